// Package report prints the resolved indirect jumps and register queries
// as aligned tables.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/retroenv/regtrack/internal/jumpengine"
	"github.com/retroenv/regtrack/internal/value"
)

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

// Query is an answered register query.
type Query struct {
	Address  uint64
	Register string
	Value    value.Value
}

// Report contains the results of analyzing one file.
type Report struct {
	File         string
	System       string
	Instructions int
	Jumps        []jumpengine.Jump
	Queries      []Query
}

// Writer writes reports.
type Writer struct {
	w     io.Writer
	color bool
}

// New returns a report writer. Unknown states are colored if the output is
// a terminal and color was not disabled.
func New(w io.Writer, noColor bool) *Writer {
	return &Writer{
		w:     w,
		color: !noColor && isTerminal(w),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Write writes the report.
func (w *Writer) Write(r Report) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s): %d instructions\n", r.File, r.System, r.Instructions)

	if len(r.Jumps) > 0 {
		var resolved int
		t := table{header: []string{"ADDRESS", "TARGETS", "STATE", "VALUE"}}
		for _, j := range r.Jumps {
			if !j.Unresolved() {
				resolved++
			}
			targets := make([]string, 0, len(j.Targets))
			for _, target := range j.Targets {
				targets = append(targets, formatAddress(target))
			}
			t.add(w.colorFor(j.Value, j.Unresolved()),
				formatAddress(j.Address), strings.Join(targets, " "), j.Value.State().String(), j.Value.String())
		}
		fmt.Fprintf(&sb, "\nIndirect jumps: %d of %d resolved\n", resolved, len(r.Jumps))
		t.write(&sb)
	}

	if len(r.Queries) > 0 {
		t := table{header: []string{"ADDRESS", "REGISTER", "STATE", "VALUE"}}
		for _, q := range r.Queries {
			t.add(w.colorFor(q.Value, !q.Value.IsKnown()),
				formatAddress(q.Address), q.Register, q.Value.State().String(), q.Value.String())
		}
		sb.WriteString("\nQueries\n")
		t.write(&sb)
	}

	if _, err := io.WriteString(w.w, sb.String()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func (w *Writer) colorFor(v value.Value, failed bool) string {
	switch {
	case !w.color:
		return ""
	case failed && v.State() == value.Aborted:
		return colorRed
	case failed:
		return colorYellow
	default:
		return colorGreen
	}
}

func formatAddress(address uint64) string {
	return fmt.Sprintf("0x%04X", address)
}

type row struct {
	color string
	cells []string
}

// table aligns columns by their display width.
type table struct {
	header []string
	rows   []row
}

func (t *table) add(color string, cells ...string) {
	t.rows = append(t.rows, row{color: color, cells: cells})
}

func (t *table) write(sb *strings.Builder) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range t.rows {
		for i, c := range r.cells {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	writeRow(sb, widths, "", t.header)
	for _, r := range t.rows {
		writeRow(sb, widths, r.color, r.cells)
	}
}

func writeRow(sb *strings.Builder, widths []int, color string, cells []string) {
	if color != "" {
		sb.WriteString(color)
	}
	for i, c := range cells {
		if i == len(cells)-1 {
			sb.WriteString(c)
			break
		}
		sb.WriteString(runewidth.FillRight(c, widths[i]))
		sb.WriteString("  ")
	}
	if color != "" {
		sb.WriteString(colorReset)
	}
	sb.WriteByte('\n')
}
