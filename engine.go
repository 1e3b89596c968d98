package safepkt

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jward/safepkt/internal/report"
	"github.com/jward/safepkt/internal/runtime"
	"github.com/jward/safepkt/internal/store"
	"github.com/jward/safepkt/internal/syntax"
	"github.com/jward/safepkt/internal/verify"
)

// Engine orchestrates test discovery, the discovery index and verification
// runs.
type Engine struct {
	store      *store.Store
	runtime    *runtime.Runtime
	scriptsDir string
	scriptsFS  fs.FS
	logger     *zap.Logger

	// scripted routes discovery through the Risor scripts instead of the
	// native extractor.
	scripted bool

	// useParallel enables the parallel discovery pipeline.
	useParallel bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithParallel controls parallel discovery. When true (default), IndexFiles
// parses and discovers files concurrently and commits them to SQLite from a
// single goroutine. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithScriptsFS configures the Engine to load Risor scripts from the given
// filesystem instead of from the scriptsDir path on disk. This enables
// embedding scripts via go:embed.
func WithScriptsFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.scriptsFS = fsys
	}
}

// WithScripted makes discovery run the language's Risor script. The
// default is the native extractor.
func WithScripted(scripted bool) Option {
	return func(e *Engine) {
		e.scripted = scripted
	}
}

// WithLogger sets the Engine's logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
// Script loading priority:
//  1. If WithScriptsFS is set, use the provided fs.FS
//  2. Otherwise, use scriptsDir on disk
//
// The scriptsDir parameter may be empty when WithScriptsFS is used or when
// discovery is native.
func New(dbPath string, scriptsDir string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("safepkt: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("safepkt: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		scriptsDir:  scriptsDir,
		logger:      zap.NewNop(),
		useParallel: true,
	}
	for _, opt := range opts {
		opt(e)
	}

	rtOpts := []runtime.RuntimeOption{runtime.WithRuntimeLogger(e.logger)}
	if e.scriptsFS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(e.scriptsFS))
	}
	e.runtime = runtime.NewRuntime(scriptsDir, rtOpts...)

	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// scriptsHash computes a SHA-256 over every .risor script, sorted by path.
// Native discovery hashes to the empty string.
func (e *Engine) scriptsHash() string {
	if !e.scripted {
		return ""
	}
	var paths []string
	if e.scriptsFS != nil {
		fs.WalkDir(e.scriptsFS, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, ".risor") {
				paths = append(paths, path)
			}
			return nil
		})
	} else if e.scriptsDir != "" {
		filepath.WalkDir(e.scriptsDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, ".risor") {
				rel, _ := filepath.Rel(e.scriptsDir, path)
				paths = append(paths, rel)
			}
			return nil
		})
	}

	sort.Strings(paths)

	h := sha256.New()
	for _, p := range paths {
		src, err := e.runtime.LoadScript(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(src))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ScriptsChanged reports whether the discovery scripts differ from the ones
// that built the current index. It is true for a fresh database. When true,
// the caller should delete the database and reindex from scratch.
func (e *Engine) ScriptsChanged() bool {
	stored, err := e.store.GetMetadata("scripts_hash")
	if err != nil {
		return true
	}
	has, err := e.store.GetMetadata("indexed")
	if err != nil || has == "" {
		return true
	}
	return stored != e.scriptsHash()
}

// storeScriptsHash records which scripts built the index.
func (e *Engine) storeScriptsHash() {
	_ = e.store.SetMetadata("scripts_hash", e.scriptsHash())
	_ = e.store.SetMetadata("indexed", "1")
}

// DiscoverSource finds the tests declared in src. Only attributes visible
// in ranges are considered; no ranges means the whole file.
func (e *Engine) DiscoverSource(ctx context.Context, path string, src []byte, ranges []VisibleRange) (Discovery, error) {
	lang, ok := syntax.LanguageForFile(path)
	if !ok {
		return Discovery{}, fmt.Errorf("safepkt: discover %s: unsupported file type", path)
	}
	tree, err := syntax.Parse(ctx, src, lang)
	if err != nil {
		return Discovery{}, fmt.Errorf("safepkt: discover %s: %w", path, err)
	}
	defer tree.Close()

	if !e.scripted {
		return syntax.Discover(tree, ranges), nil
	}
	d, err := e.runtime.Discover(ctx, lang, tree, ranges)
	if err != nil {
		return Discovery{}, fmt.Errorf("safepkt: discover %s: %w", path, err)
	}
	return d, nil
}

// DiscoverFile reads path and finds the tests declared in it.
func (e *Engine) DiscoverFile(ctx context.Context, path string, ranges []VisibleRange) (Discovery, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Discovery{}, fmt.Errorf("safepkt: read %s: %w", path, err)
	}
	return e.DiscoverSource(ctx, path, src, ranges)
}

// IndexFiles discovers tests in the given file paths and writes them to the
// index. When WithParallel is enabled, files are discovered concurrently.
//
// For each file:
//  1. Detect language from extension, skipping unsupported files
//  2. Skip unchanged files (same content hash)
//  3. Delete the file's previous tests and file record
//  4. Discover tests and insert them in document order
//
// Errors on individual files are collected; processing continues.
func (e *Engine) IndexFiles(ctx context.Context, paths []string) error {
	var err error
	if e.useParallel {
		err = e.IndexFilesParallel(ctx, paths)
	} else {
		err = e.indexFilesSerial(ctx, paths)
	}
	if err == nil {
		e.storeScriptsHash()
	}
	return err
}

func (e *Engine) indexFilesSerial(ctx context.Context, paths []string) error {
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.indexFile(ctx, path); err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("indexing had %d error(s): %w", len(errs), errors.Join(errs...))
	}
	return nil
}

func (e *Engine) indexFile(ctx context.Context, path string) error {
	item, skip, err := e.prepareFile(ctx, path)
	if err != nil || skip {
		return err
	}
	if err := e.discoverInto(ctx, item, e.store); err != nil {
		_ = e.store.DeleteFileData(item.fileID)
		return err
	}
	return e.store.SetSkipped(item.fileID, item.skipped)
}

// discoverInto discovers item's tests and inserts them into ds.
func (e *Engine) discoverInto(ctx context.Context, item *workItem, ds store.DataStore) error {
	d, err := e.DiscoverSource(ctx, item.path, item.content, nil)
	if err != nil {
		return err
	}
	for i, desc := range d.Tests {
		_, err := ds.InsertTest(&store.Test{
			FileID:        item.fileID,
			Name:          desc.Name,
			StartLine:     desc.Position.Row,
			StartCol:      desc.Position.Column,
			ExpectedPanic: desc.ExpectedPanic,
			Ordinal:       i,
		})
		if err != nil {
			return fmt.Errorf("insert test %s: %w", desc.Name, err)
		}
	}
	item.skipped = d.Skipped
	e.logger.Debug("discovered tests",
		zap.String("path", item.path),
		zap.Int("tests", len(d.Tests)),
		zap.Int("skipped", d.Skipped))
	return nil
}

// skipDirs are excluded from the filesystem walk.
var skipDirs = map[string]bool{
	"target": true,
	"vendor": true,
}

// IndexDirectory discovers tests in every supported file under root and
// drops index entries for files under root that no longer exist.
// If root is inside a git repository, uses git ls-files to respect
// .gitignore. Falls back to a filesystem walk (skipping hidden dirs, target
// and vendor) if git is unavailable.
func (e *Engine) IndexDirectory(ctx context.Context, root string) error {
	paths, err := e.gitListFiles(ctx, root)
	if err != nil {
		e.logger.Debug("git ls-files unavailable, walking", zap.String("root", root), zap.Error(err))
		paths, err = e.walkListFiles(root)
		if err != nil {
			return err
		}
	}
	if err := e.pruneMissing(root, paths); err != nil {
		return err
	}
	return e.IndexFiles(ctx, paths)
}

// pruneMissing deletes indexed files under root that are not in present.
func (e *Engine) pruneMissing(root string, present []string) error {
	files, err := e.store.Files()
	if err != nil {
		return fmt.Errorf("safepkt: list indexed files: %w", err)
	}
	keep := make(map[string]bool, len(present))
	for _, p := range present {
		keep[p] = true
	}
	prefix := filepath.Clean(root) + string(filepath.Separator)
	var stale []int64
	for _, f := range files {
		if strings.HasPrefix(f.Path, prefix) && !keep[f.Path] {
			stale = append(stale, f.ID)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	e.logger.Info("pruning removed files", zap.Int("files", len(stale)))
	if err := e.store.DeleteFiles(stale); err != nil {
		return fmt.Errorf("safepkt: prune: %w", err)
	}
	return nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) files under root, filtered to supported languages.
func (e *Engine) gitListFiles(ctx context.Context, root string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := syntax.LanguageForFile(absPath); !ok {
			continue
		}
		// Tracked files deleted from the work tree are still listed.
		if _, err := os.Stat(absPath); err != nil {
			continue
		}
		paths = append(paths, absPath)
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a fallback
// when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := syntax.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// Verification is the outcome of one Verify call.
type Verification struct {
	Job     *verify.Job    `json:"job"`
	Tests   Discovery      `json:"discovery"`
	Report  *report.Report `json:"report,omitempty"`
	Results []TestResult   `json:"results"`
	Passed  bool           `json:"passed"`
}

// Verify discovers the tests in sourcePath, runs a verification job for it
// and matches the reported outcomes against the discovered tests. A failed
// job is returned together with its error so callers can show its message.
func (e *Engine) Verify(ctx context.Context, client *verify.Client, sourcePath string, onProgress func(verify.Progress)) (*Verification, error) {
	v := &Verification{}

	// An unreadable source is left for the client to report, so no request
	// is ever sent for it.
	if src, err := os.ReadFile(sourcePath); err == nil {
		d, err := e.DiscoverSource(ctx, sourcePath, src, nil)
		if err != nil {
			return nil, err
		}
		v.Tests = d
	}

	start := time.Now()
	job, err := client.Run(ctx, sourcePath, onProgress)
	v.Job = job
	if err != nil {
		e.logger.Warn("verification failed", zap.String("source", sourcePath), zap.Error(err))
		return v, fmt.Errorf("safepkt: verify %s: %w", sourcePath, err)
	}

	v.Report = report.Parse(job.RawLog, v.Tests.Tests)
	v.Results = Match(v.Tests.Tests, v.Report.Outcomes)
	v.Passed = Passed(v.Results)
	e.logger.Info("verification finished",
		zap.String("run_id", job.RunID),
		zap.Int("tests", len(v.Results)),
		zap.Bool("passed", v.Passed),
		zap.Duration("elapsed", time.Since(start)))
	return v, nil
}
