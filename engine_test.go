package safepkt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/safepkt/internal/store"
	"github.com/jward/safepkt/internal/verify"
	"github.com/jward/safepkt/scripts"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, "", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

// copyCrate copies testdata/crate/src into a fresh directory and returns it.
func copyCrate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"lib.rs", "math.rs"} {
		data, err := os.ReadFile(filepath.Join("testdata", "crate", "src", name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "crate", name))
	require.NoError(t, err)
	return data
}

func TestNew_CreatesStoreAndRuntime(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, "")
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.store)
	require.NotNil(t, e.runtime)
	require.NotNil(t, e.Store())
	assert.True(t, e.useParallel)
	assert.False(t, e.scripted)

	_, err = e.Store().InsertFile(&store.File{
		Path: "/tmp/lib.rs", Language: "rust", Hash: "abc", LastIndexed: time.Now(),
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/dir/db.sqlite", "")
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	e, err := New(dbPath, "")
	require.NoError(t, err)
	require.NoError(t, e.Close())
}

// =============================================================================
// Discovery
// =============================================================================

func TestDiscoverSource_Native(t *testing.T) {
	e := newTestEngine(t)

	d, err := e.DiscoverSource(context.Background(), "src/lib.rs", readFixture(t, "src/lib.rs"), nil)
	require.NoError(t, err)
	require.Len(t, d.Tests, 2)
	assert.Equal(t, "transfer_reduces_balance", d.Tests[0].Name)
	assert.Equal(t, Point{Row: 10, Column: 4}, d.Tests[0].Position)
	assert.Equal(t, "transfer_overdraw_panics", d.Tests[1].Name)
	assert.True(t, d.Tests[1].ExpectedPanic)
	assert.Zero(t, d.Skipped)
}

func TestDiscoverSource_ScriptedMatchesNative(t *testing.T) {
	native := newTestEngine(t)
	scripted := newTestEngine(t, WithScripted(true), WithScriptsFS(scripts.FS))
	src := readFixture(t, "src/lib.rs")

	want, err := native.DiscoverSource(context.Background(), "lib.rs", src, nil)
	require.NoError(t, err)
	got, err := scripted.DiscoverSource(context.Background(), "lib.rs", src, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDiscoverSource_VisibleRange(t *testing.T) {
	e := newTestEngine(t)

	d, err := e.DiscoverSource(context.Background(), "lib.rs", readFixture(t, "src/lib.rs"),
		[]VisibleRange{{Start: 16, End: 17}})
	require.NoError(t, err)
	require.Len(t, d.Tests, 1)
	assert.Equal(t, "transfer_overdraw_panics", d.Tests[0].Name)
}

func TestDiscoverSource_UnsupportedFile(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.DiscoverSource(context.Background(), "README.md", []byte("# hi"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestDiscoverFile_Missing(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.DiscoverFile(context.Background(), filepath.Join(t.TempDir(), "lib.rs"), nil)
	require.Error(t, err)
}

// =============================================================================
// Indexing
// =============================================================================

func TestIndexFiles_SerialAndParallelAgree(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		e := newTestEngine(t, WithParallel(parallel))
		dir := copyCrate(t)
		paths := []string{filepath.Join(dir, "lib.rs"), filepath.Join(dir, "math.rs")}

		require.NoError(t, e.IndexFiles(context.Background(), paths))

		all, err := e.Query().AllTests()
		require.NoError(t, err)
		names := make([]string, 0, len(all))
		for _, ft := range all {
			names = append(names, ft.Name)
		}
		assert.Equal(t, []string{"transfer_reduces_balance", "transfer_overdraw_panics", "doubles"}, names,
			"parallel=%v", parallel)
	}
}

func TestIndexFiles_SkipsUnsupportedExtensions(t *testing.T) {
	e := newTestEngine(t)
	tmp := filepath.Join(t.TempDir(), "readme.txt")
	require.NoError(t, os.WriteFile(tmp, []byte("#[test]"), 0o644))

	require.NoError(t, e.IndexFiles(context.Background(), []string{tmp}))
	f, err := e.Store().FileByPath(tmp)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestIndexFiles_SkipsUnchangedFiles(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(copyCrate(t), "lib.rs")

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	first, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	assert.Equal(t, store.ContentHash(readFixture(t, "src/lib.rs")), first.Hash)

	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))
	second, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "unchanged file keeps its record")
}

func TestIndexFiles_ReplacesTestsOnChange(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	path := filepath.Join(copyCrate(t), "math.rs")
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	src := "#[test]\nfn renamed() {}\n\n#[test]\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	require.NoError(t, e.IndexFiles(context.Background(), []string{path}))

	tests, err := e.Query().TestsInFile(path)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "renamed", tests[0].Name)

	files, err := e.Query().Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 1, files[0].Tests)
}

func TestIndexFiles_ReadErrorIsReported(t *testing.T) {
	e := newTestEngine(t, WithParallel(false))
	missing := filepath.Join(t.TempDir(), "gone.rs")

	err := e.IndexFiles(context.Background(), []string{missing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.rs")
}

func TestIndexFilesParallel_PrepareErrorLeavesNoRecords(t *testing.T) {
	e := newTestEngine(t, WithParallel(true))
	dir := t.TempDir()
	good := filepath.Join(dir, "a.rs")
	require.NoError(t, os.WriteFile(good, []byte("#[test]\nfn one() {}\n"), 0o644))
	notAFile := filepath.Join(dir, "b.rs")
	require.NoError(t, os.Mkdir(notAFile, 0o755))

	err := e.IndexFiles(context.Background(), []string{good, notAFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.rs")

	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, e.IndexFiles(context.Background(), []string{good}))
	tests, err := e.Query().TestsInFile(good)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "one", tests[0].Name)
}

func TestIndexFilesParallel_CancelledLeavesNoRecords(t *testing.T) {
	e := newTestEngine(t, WithParallel(true))
	dir := copyCrate(t)
	lib := filepath.Join(dir, "lib.rs")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.IndexFiles(ctx, []string{lib})
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, e.IndexFiles(context.Background(), []string{lib}))
	tests, err := e.Query().TestsInFile(lib)
	require.NoError(t, err)
	assert.Len(t, tests, 2)
}

func TestIndexDirectory_PrunesRemovedFiles(t *testing.T) {
	e := newTestEngine(t)
	dir := copyCrate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "gen.rs"), []byte("#[test]\nfn built() {}\n"), 0o644))

	require.NoError(t, e.IndexDirectory(context.Background(), dir))
	files, err := e.Query().Files()
	require.NoError(t, err)
	assert.Len(t, files, 2, "target/ is skipped")

	require.NoError(t, os.Remove(filepath.Join(dir, "math.rs")))
	require.NoError(t, e.IndexDirectory(context.Background(), dir))

	named, err := e.Query().TestsNamed("doubles")
	require.NoError(t, err)
	assert.Empty(t, named)
	files, err = e.Query().Files()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestScriptsChanged(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	path := filepath.Join(copyCrate(t), "lib.rs")

	native, err := New(dbPath, "")
	require.NoError(t, err)
	assert.True(t, native.ScriptsChanged(), "fresh database")
	require.NoError(t, native.IndexFiles(context.Background(), []string{path}))
	assert.False(t, native.ScriptsChanged())
	require.NoError(t, native.Close())

	scripted, err := New(dbPath, "", WithScripted(true), WithScriptsFS(scripts.FS))
	require.NoError(t, err)
	defer scripted.Close()
	assert.True(t, scripted.ScriptsChanged(), "switching to scripts invalidates the index")
}

// =============================================================================
// Verification
// =============================================================================

// reportBackend serves a finished job whose report is raw.
func reportBackend(t *testing.T, raw string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	respond := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("POST /source", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]string{"project_id": "p-1"})
	})
	mux.HandleFunc("POST /program-verification/p-1", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]string{})
	})
	mux.HandleFunc("GET /program-verification/p-1/progress", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]string{"raw_status": "done"})
	})
	mux.HandleFunc("GET /program-verification/p-1/report", func(w http.ResponseWriter, r *http.Request) {
		respond(w, map[string]string{"raw_log": raw})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify_ReconcilesDeclaredPanic(t *testing.T) {
	e := newTestEngine(t)
	srv := reportBackend(t, string(readFixture(t, "report.log")))
	client := verify.New(srv.URL, verify.WithHTTPClient(srv.Client()), verify.WithPollInterval(time.Millisecond))
	source := filepath.Join(copyCrate(t), "lib.rs")

	v, err := e.Verify(context.Background(), client, source, nil)
	require.NoError(t, err)

	assert.Equal(t, verify.StatusComplete, v.Job.Status)
	require.Len(t, v.Results, 2)
	assert.True(t, v.Results[0].Passed)
	assert.True(t, v.Results[1].Passed, "declared panic is reconciled")
	assert.Equal(t, []string{"transfer_overdraw_panics"}, v.Report.Reconciled)
	assert.True(t, v.Passed)
	assert.Contains(t, v.Report.Summary, "Tests passed: 2")
}

func TestVerify_MissingOutcomeFails(t *testing.T) {
	e := newTestEngine(t)
	raw := "running 1 test\ntest tests::transfer_reduces_balance ... ok\nVERIF\n"
	srv := reportBackend(t, raw)
	client := verify.New(srv.URL, verify.WithHTTPClient(srv.Client()), verify.WithPollInterval(time.Millisecond))
	source := filepath.Join(copyCrate(t), "lib.rs")

	v, err := e.Verify(context.Background(), client, source, nil)
	require.NoError(t, err)
	require.Len(t, v.Results, 2)
	assert.True(t, v.Results[0].Passed)
	assert.False(t, v.Results[1].Passed)
	assert.Empty(t, v.Results[1].Message)
	assert.False(t, v.Passed)
}

func TestVerify_UnreadableSource(t *testing.T) {
	e := newTestEngine(t)
	srv := reportBackend(t, "")
	client := verify.New(srv.URL, verify.WithHTTPClient(srv.Client()))

	v, err := e.Verify(context.Background(), client, filepath.Join(t.TempDir(), "src", "lib.rs"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, verify.ErrSourceUnreadable))
	require.NotNil(t, v.Job)
	assert.Equal(t, verify.StatusFailed, v.Job.Status)
	assert.Empty(t, v.Results)
}
