package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jward/safepkt"
	"github.com/jward/safepkt/scripts"
)

var (
	flagLines      []string
	flagScript     bool
	flagScriptsDir string
	flagForce      bool
	flagSerial     bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover [path]",
	Short: "Discover #[test] functions and write them to the index",
	Long: "Parses Rust sources with tree-sitter and records every #[test] function in the SQLite index. " +
		"With no path the configured sources glob is used. With a single file and --lines, only the " +
		"given line ranges are searched and nothing is written.",
	Args: cobra.MaximumNArgs(1),
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringArrayVar(&flagLines, "lines", nil, "visible line range start:end, 0-based (repeatable, single file only)")
	discoverCmd.Flags().BoolVar(&flagScript, "script", false, "run discovery through the Risor script")
	discoverCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load scripts from disk path instead of embedded (implies --script)")
	discoverCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	discoverCmd.Flags().BoolVar(&flagSerial, "serial", false, "discover files one at a time")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	start := time.Now()

	target, info, err := resolveTarget(args)
	if err != nil {
		return outputError("discover", err)
	}
	base := target
	if !info.IsDir() {
		base = filepath.Dir(target)
	}
	repoRoot := findRepoRoot(base)

	ranges, err := parseLines(flagLines)
	if err != nil {
		return outputError("discover", err)
	}
	if len(ranges) > 0 && info.IsDir() {
		return outputError("discover", fmt.Errorf("--lines requires a single file, got directory %s", target))
	}

	cfg, err := loadConfig(repoRoot)
	if err != nil {
		return outputError("discover", err)
	}
	logger, err := newLogger()
	if err != nil {
		return outputError("discover", err)
	}
	defer func() { _ = logger.Sync() }()

	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return outputError("discover", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err))
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return outputError("discover", fmt.Errorf("removing database for --force: %w", err))
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	engine, err := newEngine(dbPath, logger)
	if err != nil {
		return outputError("discover", err)
	}
	defer engine.Close()

	ctx := context.Background()

	// A ranged lookup answers from the file directly and leaves the index alone.
	if len(ranges) > 0 {
		d, err := engine.DiscoverFile(ctx, target, ranges)
		if err != nil {
			return outputError("discover", err)
		}
		return outputResult(CLIResult{
			Command:    "discover",
			Results:    d,
			TotalCount: intPtr(len(d.Tests)),
		})
	}

	if engine.ScriptsChanged() {
		logger.Info("discovery scripts changed, reindexing")
		if err := clearIndex(engine); err != nil {
			return outputError("discover", err)
		}
	}

	switch {
	case !info.IsDir():
		err = engine.IndexFiles(ctx, []string{target})
	case len(args) == 0:
		var paths []string
		paths, err = sourcesGlob(repoRoot, cfg.Sources)
		if err == nil {
			err = engine.IndexFiles(ctx, paths)
		}
	default:
		err = engine.IndexDirectory(ctx, target)
	}
	if err != nil {
		return outputError("discover", fmt.Errorf("indexing: %w", err))
	}

	files, err := engine.Query().Files()
	if err != nil {
		return outputError("discover", err)
	}
	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", target, time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return outputResult(CLIResult{
		Command:    "discover",
		Results:    files,
		TotalCount: intPtr(len(files)),
	})
}

// newEngine opens the index with the discovery flags applied.
func newEngine(dbPath string, logger *zap.Logger) (*safepkt.Engine, error) {
	opts := []safepkt.Option{
		safepkt.WithLogger(logger),
		safepkt.WithParallel(!flagSerial),
		safepkt.WithScripted(flagScript || flagScriptsDir != ""),
	}
	// --scripts-dir overrides the embedded FS.
	scriptsDir := flagScriptsDir
	if scriptsDir == "" {
		opts = append(opts, safepkt.WithScriptsFS(scripts.FS))
	}
	engine, err := safepkt.New(dbPath, scriptsDir, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return engine, nil
}

// clearIndex drops every indexed file so the next run rediscovers them.
func clearIndex(engine *safepkt.Engine) error {
	files, err := engine.Store().Files()
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	return engine.Store().DeleteFiles(ids)
}

// sourcesGlob expands pattern relative to root.
func sourcesGlob(root, pattern string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(root, pattern)
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("sources pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no sources match %s", pattern)
	}
	return paths, nil
}

// parseLines converts "start:end" flags into visible ranges. A bare number
// is a one-line range.
func parseLines(specs []string) ([]safepkt.VisibleRange, error) {
	var ranges []safepkt.VisibleRange
	for _, s := range specs {
		lo, hi, found := strings.Cut(s, ":")
		start, err := parseIntArg("line", lo)
		if err != nil {
			return nil, err
		}
		end := start
		if found {
			if end, err = parseIntArg("line", hi); err != nil {
				return nil, err
			}
		}
		if end < start {
			return nil, fmt.Errorf("invalid line range %q: end before start", s)
		}
		ranges = append(ranges, safepkt.VisibleRange{Start: start, End: end})
	}
	return ranges, nil
}

// parseIntArg parses a non-negative integer argument, naming it in errors.
func parseIntArg(name, s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, s)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, s)
	}
	return n, nil
}

func intPtr(n int) *int { return &n }
