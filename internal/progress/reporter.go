// Package progress gives the one-shot CLI visible feedback while the
// pipeline stages run.
package progress

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback during a prescription analysis.
type Reporter interface {
	Start(total int)
	Step(message string)
	Finish()
}

// NewReporter returns a TerminalReporter for interactive use, or a
// CIReporter when the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{}
	}
	return &TerminalReporter{}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	bar  *progressbar.ProgressBar
	step int
}

func (r *TerminalReporter) Start(total int) {
	r.step = 0
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Analyzing prescription"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Step(message string) {
	if r.bar != nil {
		r.step++
		r.bar.Describe(message)
		_ = r.bar.Set(r.step)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	total int
	step  int
}

func (r *CIReporter) Start(total int) {
	r.total = total
	r.step = 0
	fmt.Fprintf(os.Stderr, "Starting analysis (%d stages)\n", total)
}

func (r *CIReporter) Step(message string) {
	r.step++
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", r.step, r.total, message)
}

func (r *CIReporter) Finish() {
	fmt.Fprintln(os.Stderr, "Analysis complete")
}
