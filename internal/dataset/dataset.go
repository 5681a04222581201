// Package dataset defines the registry of CNPJ open-data datasets published
// by the Receita Federal do Brasil (RFB).
package dataset

import (
	"fmt"
	"sort"
	"strings"
)

// Dataset describes one RFB dataset and how to locate it, both in the
// monthly remote directory and inside a downloaded ZIP whose inner member
// frequently has no extension.
type Dataset struct {
	// Name is the dataset identifier and the warehouse table name.
	Name string

	// Hint is a short human description shown in listings.
	Hint string

	// Keywords are case-insensitive fragments used to pick the tabular
	// member inside a ZIP.
	Keywords []string

	// RemotePrefix is the file name prefix in the RFB monthly directory
	// (e.g. "Empresas" for Empresas0.zip).
	RemotePrefix string

	// MultiPart indicates the dataset is split into numbered packages
	// (Empresas0.zip .. EmpresasN.zip) instead of a single file.
	MultiPart bool

	// Domain marks the small reference tables (countries, CNAEs, ...).
	Domain bool
}

var registry = map[string]Dataset{
	"empresas": {
		Name:         "empresas",
		Hint:         "Cadastro de empresas (razão social, natureza, porte).",
		Keywords:     []string{"empresas", "empresa", "empresas1", "empresa1"},
		RemotePrefix: "Empresas",
		MultiPart:    true,
	},
	"estabelecimentos": {
		Name:         "estabelecimentos",
		Hint:         "Estabelecimentos (unidades, CNAE, endereço).",
		Keywords:     []string{"estabelec", "estabelecimentos"},
		RemotePrefix: "Estabelecimentos",
		MultiPart:    true,
	},
	"socios": {
		Name:         "socios",
		Hint:         "Sócios (PF, PJ e estrangeiros).",
		Keywords:     []string{"socios", "sócios", "socio", "socio1"},
		RemotePrefix: "Socios",
		MultiPart:    true,
	},
	"simples": {
		Name:         "simples",
		Hint:         "Opção pelo Simples Nacional e MEI.",
		Keywords:     []string{"simples", "mei"},
		RemotePrefix: "Simples",
	},
	"paises": {
		Name:         "paises",
		Hint:         "Tabela de domínio: países.",
		Keywords:     []string{"paises", "países", "pais"},
		RemotePrefix: "Paises",
		Domain:       true,
	},
	"municipios": {
		Name:         "municipios",
		Hint:         "Tabela de domínio: municípios.",
		Keywords:     []string{"municipio", "municípios", "municipios"},
		RemotePrefix: "Municipios",
		Domain:       true,
	},
	"qualificacoes": {
		Name:         "qualificacoes",
		Hint:         "Tabela de domínio: qualificações de sócios.",
		Keywords:     []string{"qualificacao", "qualificações", "qualificacoes"},
		RemotePrefix: "Qualificacoes",
		Domain:       true,
	},
	"naturezas": {
		Name:         "naturezas",
		Hint:         "Tabela de domínio: naturezas jurídicas.",
		Keywords:     []string{"natureza", "naturezas"},
		RemotePrefix: "Naturezas",
		Domain:       true,
	},
	"cnaes": {
		Name:         "cnaes",
		Hint:         "Tabela de domínio: CNAEs.",
		Keywords:     []string{"cnae", "cnaes"},
		RemotePrefix: "Cnaes",
		Domain:       true,
	},
}

// Get returns the dataset for name (case-insensitive).
func Get(name string) (Dataset, error) {
	ds, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Dataset{}, fmt.Errorf("unknown dataset %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return ds, nil
}

// Names returns all dataset names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Core returns the non-domain datasets, sorted by name.
func Core() []Dataset {
	return filter(func(d Dataset) bool { return !d.Domain })
}

// Domains returns the reference tables, sorted by name.
func Domains() []Dataset {
	return filter(func(d Dataset) bool { return d.Domain })
}

// DefaultSelection is the wizard's default: the four core datasets.
func DefaultSelection() []string {
	names := make([]string, 0, 4)
	for _, d := range Core() {
		names = append(names, d.Name)
	}
	return names
}

// Resolve maps a list of names to datasets, failing on the first unknown.
func Resolve(names []string) ([]Dataset, error) {
	datasets := make([]Dataset, 0, len(names))
	for _, name := range names {
		ds, err := Get(name)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, nil
}

func filter(keep func(Dataset) bool) []Dataset {
	var out []Dataset
	for _, name := range Names() {
		if d := registry[name]; keep(d) {
			out = append(out, d)
		}
	}
	return out
}
