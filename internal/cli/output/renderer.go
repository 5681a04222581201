// Package output renders command results as styled text, tables, JSON, CSV
// or markdown, adapting to whether stdout is a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/brdatalab/cnpjkit/pkg/adapter"
)

// Mode selects the output format.
type Mode string

const (
	// ModeAuto picks ModeTable on a terminal and ModeMarkdown otherwise.
	ModeAuto     Mode = "auto"
	ModeTable    Mode = "table"
	ModeJSON     Mode = "json"
	ModeCSV      Mode = "csv"
	ModeMarkdown Mode = "markdown"
)

// Renderer writes command output in the configured mode.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	styles *Styles
	isTTY  bool
}

// NewRenderer creates a renderer writing to out and errOut.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	switch mode {
	case ModeTable, ModeJSON, ModeCSV, ModeMarkdown:
	case "md":
		mode = ModeMarkdown
	default:
		mode = ModeAuto
	}
	return &Renderer{
		out:    out,
		errOut: errOut,
		mode:   mode,
		styles: NewStyles(),
		isTTY:  isTerminal(out),
	}
}

// Resolved returns the effective mode with auto-detection applied.
func (r *Renderer) Resolved() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeTable
	}
	return ModeMarkdown
}

// Println writes a plain line to stdout.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Success prints a success message.
func (r *Renderer) Success(msg string) {
	r.statusMsg(r.out, r.styles.Success, "✓", msg)
}

// Warning prints a warning message to stderr.
func (r *Renderer) Warning(msg string) {
	r.statusMsg(r.errOut, r.styles.Warning, "!", msg)
}

// Error prints an error message to stderr.
func (r *Renderer) Error(msg string) {
	r.statusMsg(r.errOut, r.styles.Error, "✗", msg)
}

// StatusLine prints a per-item outcome line: name, status marker and an
// optional detail. Status is one of "success", "warn", "error", "skip".
func (r *Renderer) StatusLine(name, status, detail string) {
	var marker string
	switch status {
	case "success", "ok":
		marker = r.style(r.styles.Success, "✓")
	case "warn":
		marker = r.style(r.styles.Warning, "!")
	case "error":
		marker = r.style(r.styles.Error, "✗")
	default:
		marker = r.style(r.styles.Muted, "-")
	}
	line := fmt.Sprintf("  %s %s", marker, name)
	if detail != "" {
		line += " " + r.style(r.styles.Muted, detail)
	}
	_, _ = fmt.Fprintln(r.out, line)
}

// Title prints a bold heading.
func (r *Renderer) Title(msg string) {
	_, _ = fmt.Fprintln(r.out, r.style(r.styles.Title, msg))
}

// JSON writes v as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ResultSet renders a query result in the effective mode.
func (r *Renderer) ResultSet(rs *adapter.ResultSet) error {
	switch r.Resolved() {
	case ModeJSON:
		return r.resultJSON(rs)
	case ModeCSV:
		return r.resultCSV(rs)
	case ModeMarkdown:
		return r.resultMarkdown(rs)
	default:
		return r.resultTable(rs)
	}
}

func (r *Renderer) resultTable(rs *adapter.ResultSet) error {
	if len(rs.Rows) == 0 {
		_, _ = fmt.Fprintln(r.out, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(rs.Columns))
	for i, col := range rs.Columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rs.Rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	t.Render()
	_, _ = fmt.Fprintf(r.out, "(%d rows)\n", len(rs.Rows))
	return nil
}

func (r *Renderer) resultJSON(rs *adapter.ResultSet) error {
	records := make([]map[string]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		rec := make(map[string]string, len(rs.Columns))
		for i, col := range rs.Columns {
			rec[col] = row[i]
		}
		records = append(records, rec)
	}
	return r.JSON(records)
}

func (r *Renderer) resultCSV(rs *adapter.ResultSet) error {
	_, _ = fmt.Fprintln(r.out, strings.Join(rs.Columns, ","))
	for _, row := range rs.Rows {
		values := make([]string, len(row))
		for i, v := range row {
			values[i] = escapeCSV(v)
		}
		_, _ = fmt.Fprintln(r.out, strings.Join(values, ","))
	}
	return nil
}

func (r *Renderer) resultMarkdown(rs *adapter.ResultSet) error {
	if len(rs.Rows) == 0 {
		_, _ = fmt.Fprintln(r.out, "(0 rows)")
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "| %s |\n", strings.Join(rs.Columns, " | "))
	seps := make([]string, len(rs.Columns))
	for i := range seps {
		seps[i] = "---"
	}
	_, _ = fmt.Fprintf(r.out, "| %s |\n", strings.Join(seps, " | "))

	for _, row := range rs.Rows {
		_, _ = fmt.Fprintf(r.out, "| %s |\n", strings.Join(row, " | "))
	}
	return nil
}

func (r *Renderer) statusMsg(w io.Writer, style lipgloss.Style, marker, msg string) {
	if r.isTTY {
		_, _ = fmt.Fprintf(w, "%s %s\n", style.Render(marker), msg)
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", marker, msg)
}

func (r *Renderer) style(s lipgloss.Style, msg string) string {
	if r.isTTY {
		return s.Render(msg)
	}
	return msg
}

func escapeCSV(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
