package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/brdatalab/cnpjkit/internal/catalog"
)

func runQueryREPL(cmd *cobra.Command, cmdCtx *CommandContext, opts *QueryOptions) error {
	ctx := cmd.Context()

	historyFile := filepath.Join(cmdCtx.Cfg.DataDir, ".query_history")
	completer := newTableCompleter(ctx, cmdCtx)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cnpjkit> ",
		HistoryFile:     historyFile,
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       ".quit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize REPL: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cnpjkit SQL REPL (target: %s)\n", cmdCtx.Cfg.Target.Type)
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Type .help for commands, .quit to exit")
	_, _ = fmt.Fprintln(cmd.OutOrStdout())

	var multiLineBuffer strings.Builder
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			multiLineBuffer.Reset()
			rl.SetPrompt("cnpjkit> ")
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ".") {
			if handled := handleDotCommand(ctx, cmd, cmdCtx, line); handled {
				if line == ".quit" || line == ".exit" {
					break
				}
				continue
			}
		}

		// Accumulate multi-line SQL until semicolon
		multiLineBuffer.WriteString(line)
		if !strings.HasSuffix(line, ";") {
			multiLineBuffer.WriteString(" ")
			rl.SetPrompt("    ...> ")
			continue
		}
		rl.SetPrompt("cnpjkit> ")

		query := strings.TrimSuffix(multiLineBuffer.String(), ";")
		multiLineBuffer.Reset()

		if err := executeAndRender(ctx, cmdCtx, query, opts.Limit); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout())
	}

	return nil
}

func handleDotCommand(ctx context.Context, cmd *cobra.Command, cmdCtx *CommandContext, line string) bool {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])

	switch command {
	case ".quit", ".exit":
		return true

	case ".help":
		printREPLHelp(cmd.OutOrStdout())
		return true

	case ".tables":
		if err := listWarehouseTables(ctx, cmdCtx); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return true

	case ".schema":
		if len(parts) < 2 {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Usage: .schema <table>")
			return true
		}
		if err := showTableSchema(ctx, cmdCtx, parts[1]); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return true

	case ".catalog":
		if err := runCatalogFromREPL(cmdCtx); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return true

	case ".clear":
		fmt.Print("\033[H\033[2J")
		return true

	default:
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Unknown command: %s (type .help for commands)\n", command)
		return true
	}
}

func runCatalogFromREPL(cmdCtx *CommandContext) error {
	records, err := cmdCtx.Store.ListRecords(catalog.ListFilter{})
	if err != nil {
		return err
	}
	for _, rec := range records {
		cmdCtx.Renderer.StatusLine(rec.Dataset, "success",
			fmt.Sprintf("%d rows (%s)", rec.RowCount, rec.MonthRef))
	}
	if len(records) == 0 {
		cmdCtx.Renderer.Println("No datasets prepared yet.")
	}
	return nil
}

func printREPLHelp(w io.Writer) {
	help := `
Commands:
  .help           Show this help message
  .tables         List warehouse tables
  .schema <name>  Show columns of a table
  .catalog        List prepared datasets
  .clear          Clear the screen
  .quit / .exit   Exit the REPL

Tips:
  - SQL statements must end with a semicolon (;)
  - Use arrow keys to navigate history
  - Tab completion works for table names
`
	_, _ = fmt.Fprintln(w, help)
}

// newTableCompleter builds a readline completer from the warehouse tables.
func newTableCompleter(ctx context.Context, cmdCtx *CommandContext) *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface

	rows, err := cmdCtx.Adapter.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = `+cmdCtx.Adapter.Dialect().FormatPlaceholder(1)+`
		ORDER BY table_name`, cmdCtx.Adapter.Dialect().DefaultSchema)
	if err == nil {
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err == nil {
				items = append(items, readline.PcItem(name))
			}
		}
		// Completion is best-effort.
		_ = rows.Err()
	}

	items = append(items,
		readline.PcItem(".help"),
		readline.PcItem(".tables"),
		readline.PcItem(".schema"),
		readline.PcItem(".catalog"),
		readline.PcItem(".clear"),
		readline.PcItem(".quit"),
	)
	return readline.NewPrefixCompleter(items...)
}
