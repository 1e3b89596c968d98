package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/safepkt"
	"github.com/jward/safepkt/internal/verify"
)

// errVerificationFailed makes the process exit 1 after the result is printed.
var errVerificationFailed = errors.New("verification failed")

var verifyCmd = &cobra.Command{
	Use:   "verify [source]",
	Short: "Verify a Rust source file on the configured backend",
	Long: "Discovers the tests in source, uploads it to the verification backend, " +
		"follows the job to completion and prints a verdict per test. " +
		"Exits 1 when any test fails.",
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&flagScript, "script", false, "run discovery through the Risor script")
	verifyCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded (implies --script)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	repoRoot, err := workingRoot()
	if err != nil {
		return outputError("verify", err)
	}
	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return outputError("verify", err)
	}
	if err := cfg.Validate(); err != nil {
		return outputError("verify", err)
	}

	source := filepath.Join(repoRoot, cfg.Source)
	if len(args) > 0 {
		if source, err = filepath.Abs(args[0]); err != nil {
			return outputError("verify", err)
		}
	}

	logger, err := newLogger()
	if err != nil {
		return outputError("verify", err)
	}
	defer func() { _ = logger.Sync() }()

	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return outputError("verify", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
	}
	engine, err := newEngine(dbPath, logger)
	if err != nil {
		return outputError("verify", err)
	}
	defer engine.Close()

	opts := append(cfg.ClientOptions(), verify.WithLogger(logger.Named("verify")))
	client := verify.New(string(cfg.Backend), opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Debug("verifying", zap.String("source", source), zap.String("backend", string(cfg.Backend)))
	v, err := engine.Verify(ctx, client, source, func(p verify.Progress) {
		printProgress(os.Stderr, p)
	})
	if err != nil {
		return outputError("verify", err)
	}

	if err := outputResult(CLIResult{
		Command:    "verify",
		Results:    verificationToCLI(v),
		TotalCount: intPtr(len(v.Results)),
	}); err != nil {
		return err
	}
	if !v.Passed {
		errorHandled = true
		return errVerificationFailed
	}
	return nil
}

// printProgress writes one progress line; polling failures are marked.
func printProgress(w io.Writer, p verify.Progress) {
	mark := "✅"
	if p.Warning {
		mark = "❌"
	}
	fmt.Fprintf(w, "%s %s\n", mark, p.Message)
}

func verificationToCLI(v *safepkt.Verification) CLIVerification {
	out := CLIVerification{
		RunID:     v.Job.RunID,
		ProjectID: v.Job.ProjectID,
		Source:    v.Job.Source,
		Status:    string(v.Job.Status),
		Attempts:  v.Job.Attempts,
		Passed:    v.Passed,
		Skipped:   v.Tests.Skipped,
		Verdicts:  make([]CLIVerdict, 0, len(v.Results)),
	}
	if v.Report != nil {
		out.Summary = v.Report.Summary
	}
	for _, r := range v.Results {
		out.Verdicts = append(out.Verdicts, CLIVerdict{
			Name:    r.Descriptor.Name,
			Line:    r.Descriptor.Position.Row,
			Passed:  r.Passed,
			Message: r.Message,
		})
	}
	return out
}
