package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/changepipe/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	PromptColor  = color.New(color.FgMagenta)
	AddedColor   = color.New(color.FgGreen)
	RemovedColor = color.New(color.FgRed)
)

// Out is where status output goes. Stdout stays free for piping.
var Out io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Out, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Out, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Out, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Out, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Out, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Out, "  "+format+"\n", a...)
}

func Prompt(format string, a ...interface{}) string {
	return PromptColor.Sprintf(format, a...)
}

// Stats renders "+3 -1" with colours.
func Stats(additions, deletions int) string {
	return AddedColor.Sprintf("+%d", additions) + " " + RemovedColor.Sprintf("-%d", deletions)
}

// --- Summaries ---

func list(paths []string) {
	for _, f := range paths {
		fmt.Fprintf(Out, "  - %s\n", f)
	}
}

// PrintChanges lists proposed changes with their stats.
func PrintChanges(changes []model.FileChange) {
	Header("\n--- Proposed Changes ---")
	if len(changes) == 0 {
		Info("No edits found.")
		return
	}
	for _, c := range changes {
		tag := ""
		if c.IsNewFile {
			tag = " (new)"
		}
		fmt.Fprintf(Out, "  %s %s%s [%s]\n", Stats(c.Additions, c.Deletions), c.FilePath, tag, c.Status)
	}
}

func PrintUpdateSummary(s model.Summary) {
	Header("\n--- Update Summary ---")
	if s.Message != "" {
		Info("%s", s.Message)
	}

	if len(s.Modified) == 0 && len(s.Created) == 0 && len(s.Rejected) == 0 && len(s.Failed) == 0 {
		if s.Message == "" {
			Info("No files were updated.")
		}
		return
	}

	if len(s.Modified) > 0 {
		Success("Modified %d file(s):", len(s.Modified))
		list(s.Modified)
	}
	if len(s.Created) > 0 {
		Success("Created %d new file(s):", len(s.Created))
		list(s.Created)
	}
	if len(s.Rejected) > 0 {
		Warning("Rejected %d file(s):", len(s.Rejected))
		list(s.Rejected)
	}
	if len(s.Failed) > 0 {
		Error("Failed to write %d file(s):", len(s.Failed))
		list(s.Failed)
	}
}

func PrintRevertSummary(reverted, failed []string) {
	Header("\n--- Revert Summary ---")
	if len(reverted) > 0 {
		Success("Successfully reverted %d file(s):", len(reverted))
		list(reverted)
	}
	if len(failed) > 0 {
		Error("Failed to revert %d file(s):", len(failed))
		list(failed)
	}
}

func PrintRedoSummary(redone, failed []string) {
	Header("\n--- Redo Summary ---")
	if len(redone) > 0 {
		Success("Successfully redid %d file(s):", len(redone))
		list(redone)
	}
	if len(failed) > 0 {
		Error("Failed to redo %d file(s):", len(failed))
		list(failed)
	}
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

// Set moves the bar to done items. It matches the apply progress callback.
func (p *ProgressBar) Set(done, total int) {
	p.current = done
	p.total = total
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	fmt.Fprintln(Out)
}

func (p *ProgressBar) draw() {
	fmt.Fprint(Out, p.render())
}

func (p *ProgressBar) render() string {
	if p.total == 0 {
		return ""
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	percentStr := fmt.Sprintf("%.1f%%", percent*100)
	countStr := fmt.Sprintf("[%d/%d]", p.current, p.total)

	return fmt.Sprintf("\r%s |%s| %s %s", p.prefix, bar, countStr, percentStr)
}
