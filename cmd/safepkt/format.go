package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"github.com/jward/safepkt"
)

// validFormats lists the accepted --format values.
var validFormats = map[string]bool{"json": true, "text": true}

// validateFormat checks that the --format flag value is supported.
func validateFormat(format string) error {
	if !validFormats[format] {
		return fmt.Errorf("invalid format %q: must be json or text", format)
	}
	return nil
}

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Faint(true)
)

// outputResult writes result to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// outputResultText dispatches on the result payload type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case []safepkt.FileSummary:
		formatFilesText(w, r)
	case safepkt.Discovery:
		formatDiscoveryText(w, r)
	case []CLITest:
		formatTestsText(w, r)
	case CLIVerification:
		formatVerificationText(w, r)
	default:
		fmt.Fprintf(w, "%v\n", r)
	}
	return nil
}

func formatFilesText(w io.Writer, files []safepkt.FileSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTESTS\tSKIPPED")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", f.Path, f.Tests, f.Skipped)
	}
	tw.Flush()
}

func formatDiscoveryText(w io.Writer, d safepkt.Discovery) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLINE\tCOL\tPANICS")
	for _, t := range d.Tests {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", t.Name, t.Position.Row, t.Position.Column, t.ExpectedPanic)
	}
	tw.Flush()
	if d.Skipped > 0 {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d marker(s) not followed by a function", d.Skipped)))
	}
}

func formatTestsText(w io.Writer, tests []CLITest) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILE\tLINE\tPANICS")
	for _, t := range tests {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", t.Name, t.File, t.Line, t.ExpectedPanic)
	}
	tw.Flush()
}

func formatVerificationText(w io.Writer, v CLIVerification) {
	if v.Summary != "" {
		fmt.Fprintln(w, v.Summary)
		fmt.Fprintln(w)
	}
	for _, r := range v.Verdicts {
		label := passStyle.Render("PASS")
		if !r.Passed {
			label = failStyle.Render("FAIL")
		}
		fmt.Fprintf(w, "%s %s %s\n", label, r.Name, dimStyle.Render(fmt.Sprintf("(line %d)", r.Line+1)))
		if r.Message != "" {
			fmt.Fprintf(w, "     %s\n", r.Message)
		}
	}
	verdict := passStyle.Render("verification passed")
	if !v.Passed {
		verdict = failStyle.Render("verification failed")
	}
	fmt.Fprintf(w, "%s (%d attempt(s), run %s)\n", verdict, v.Attempts, v.RunID)
}
