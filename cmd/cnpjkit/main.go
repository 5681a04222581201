// Package main provides the cnpjkit CLI.
package main

import (
	"os"

	"github.com/brdatalab/cnpjkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
