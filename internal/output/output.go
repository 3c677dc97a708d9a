// Package output renders tetrad results for humans: colored status lines,
// tables of votes and findings, and learned-pattern reports.
package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// UI writes colored messages and tables. Warnings and errors go to ErrOut so
// that --json output on Out stays parseable.
type UI struct {
	Verbose bool
	DryRun  bool
	Out     io.Writer
	ErrOut  io.Writer
}

// New creates a UI on stdout and stderr.
func New() *UI {
	return &UI{
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	}
}

var (
	cyan   = color.New(color.FgHiCyan).SprintFunc()
	green  = color.New(color.FgHiGreen).SprintFunc()
	yellow = color.New(color.FgHiYellow).SprintFunc()
	red    = color.New(color.FgHiRed).SprintFunc()

	infoMark    = color.New(color.FgHiBlue).Sprint("i")
	successMark = green("✓")
	warningMark = yellow("⚠")
	errorMark   = red("✗")
	verboseMark = color.New(color.FgHiBlue).Sprint("  →")
)

func Cyan(s string) string   { return cyan(s) }
func Green(s string) string  { return green(s) }
func Yellow(s string) string { return yellow(s) }
func Red(s string) string    { return red(s) }

// tones colors decision, verdict and severity names. Good outcomes are
// green, outcomes that need another loop yellow, rejections red.
var tones = map[string]func(a ...any) string{
	"pass":     green,
	"revise":   yellow,
	"warn":     yellow,
	"block":    red,
	"fail":     red,
	"info":     cyan,
	"warning":  yellow,
	"error":    red,
	"critical": red,
}

func tone(name, text string) string {
	if paint, ok := tones[strings.ToLower(name)]; ok {
		return paint(text)
	}
	return name
}

// DecisionColor renders a decision in capitals, colored by outcome.
func DecisionColor(decision string) string {
	return tone(decision, strings.ToUpper(decision))
}

// VerdictColor renders an evaluator verdict in capitals.
func VerdictColor(verdict string) string {
	return tone(verdict, strings.ToUpper(verdict))
}

func SeverityColor(severity string) string {
	return tone(severity, severity)
}

// ScoreColor colors a score green at or above the passing bar, yellow within
// 20 points below it and red otherwise.
func ScoreColor(score, minScore int) string {
	s := strconv.Itoa(score)
	switch {
	case score >= minScore:
		return green(s)
	case score >= minScore-20:
		return yellow(s)
	}
	return red(s)
}

func emit(w io.Writer, mark, format string, a []any) {
	fmt.Fprintf(w, "%s %s\n", mark, fmt.Sprintf(format, a...))
}

func (u *UI) Info(format string, a ...any)    { emit(u.Out, infoMark, format, a) }
func (u *UI) Success(format string, a ...any) { emit(u.Out, successMark, format, a) }
func (u *UI) Warning(format string, a ...any) { emit(u.ErrOut, warningMark, format, a) }
func (u *UI) Error(format string, a ...any)   { emit(u.ErrOut, errorMark, format, a) }

// VerboseLog prints only with --verbose.
func (u *UI) VerboseLog(format string, a ...any) {
	if u.Verbose {
		emit(u.Out, verboseMark, format, a)
	}
}

// DryRunMsg prints only with --dry-run.
func (u *UI) DryRunMsg(format string, a ...any) {
	if u.DryRun {
		u.Warning("[DRY-RUN] "+format, a...)
	}
}

// Table returns a borderless, left-aligned table on Out.
func (u *UI) Table(headers []string) *tablewriter.Table {
	table := tablewriter.NewTable(u.Out,
		tablewriter.WithHeaderAlignment(tw.AlignLeft),
		tablewriter.WithRowAlignment(tw.AlignLeft),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Lines:      tw.LinesNone,
				Separators: tw.SeparatorsNone,
			},
		}),
		tablewriter.WithPadding(tw.Padding{Left: "", Right: "  "}),
	)
	table.Header(headers)
	return table
}
