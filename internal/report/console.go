// Package report renders run progress and outcomes for a terminal.
package report

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"

	"commentmap/internal/embedding/openai"
	"commentmap/internal/mapwriter"
)

// Console writes the summary line to out and progress and failures to errOut.
type Console struct {
	out    io.Writer
	errOut io.Writer

	mu  sync.Mutex
	bar progress.Model

	okStyle    lipgloss.Style
	errStyle   lipgloss.Style
	hintStyle  lipgloss.Style
	labelStyle lipgloss.Style
}

// New creates a console; styles degrade to plain text when a writer is not a terminal.
func New(out, errOut io.Writer) *Console {
	outR := lipgloss.NewRenderer(out)
	errR := lipgloss.NewRenderer(errOut)
	return &Console{
		out:        out,
		errOut:     errOut,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		okStyle:    outR.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		errStyle:   errR.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		hintStyle:  errR.NewStyle().Foreground(lipgloss.Color("8")),
		labelStyle: errR.NewStyle().Bold(true),
	}
}

// SummaryLine is the one-line result of a map run.
func SummaryLine(s mapwriter.Summary) string {
	return fmt.Sprintf("Map written to %s (%d points; clusters=%d; noise=%d)", s.Path, s.Records, s.Clusters, s.Noise)
}

// IndexLine is the one-line result of an index run.
func IndexLine(datasets int) string {
	return fmt.Sprintf("Dataset index written (%d datasets)", datasets)
}

// MapWritten prints the map summary line.
func (c *Console) MapWritten(s mapwriter.Summary) {
	fmt.Fprintln(c.out, c.okStyle.Render("✔")+" "+SummaryLine(s))
}

// IndexWritten prints the index summary line.
func (c *Console) IndexWritten(datasets int) {
	fmt.Fprintln(c.out, c.okStyle.Render("✔")+" "+IndexLine(datasets))
}

// ConfigWritten prints where config init wrote the defaults.
func (c *Console) ConfigWritten(path string) {
	fmt.Fprintln(c.out, c.okStyle.Render("✔")+" Config written to "+path)
}

// Progress redraws the embedding progress bar; it finishes the line once done reaches total.
func (c *Console) Progress(done, total int) {
	if total <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pct := float64(done) / float64(total)
	fmt.Fprintf(c.errOut, "\r%s %s %d/%d", c.labelStyle.Render("Embedding"), c.bar.ViewAs(pct), done, total)
	if done >= total {
		fmt.Fprintln(c.errOut)
	}
}

// Failure prints err, its hints and, for embedding batch failures, the per-item diagnostics.
func (c *Console) Failure(err error) {
	if err == nil {
		return
	}
	var b strings.Builder
	b.WriteString(c.errStyle.Render("✘ " + err.Error()))
	b.WriteString("\n")

	var be *openai.BatchError
	if errors.As(err, &be) {
		b.WriteString(be.Report())
	}
	if hints := errors.FlattenHints(err); hints != "" {
		for _, h := range strings.Split(hints, "\n") {
			if strings.TrimSpace(h) == "" {
				continue
			}
			b.WriteString(c.hintStyle.Render("hint: " + h))
			b.WriteString("\n")
		}
	}
	fmt.Fprint(c.errOut, b.String())
}
