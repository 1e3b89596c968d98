package main

import "fmt"

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLITest is an indexed test with its file.
type CLITest struct {
	Name          string `json:"name"`
	File          string `json:"file"`
	Line          int    `json:"line"`
	Column        int    `json:"column"`
	ExpectedPanic bool   `json:"expected_panic"`
}

// CLIVerdict is one test's verification result.
type CLIVerdict struct {
	Name    string `json:"name"`
	Line    int    `json:"line"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// CLIVerification is the verify command's result.
type CLIVerification struct {
	RunID     string       `json:"run_id"`
	ProjectID string       `json:"project_id,omitempty"`
	Source    string       `json:"source"`
	Status    string       `json:"status"`
	Attempts  int          `json:"attempts"`
	Passed    bool         `json:"passed"`
	Skipped   int          `json:"skipped"`
	Summary   string       `json:"summary,omitempty"`
	Verdicts  []CLIVerdict `json:"verdicts"`
}

func errNoIndex(dbPath string) error {
	return fmt.Errorf("no index at %s: run 'safepkt discover' first", dbPath)
}
