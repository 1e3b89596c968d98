// Package safepkt discovers Rust unit tests with tree-sitter and verifies
// them against a remote symbolic-execution backend.
//
// # Pipeline
//
//  1. Discover: parse a source file, walk its syntax tree for attribute
//     items and pair each #[test] marker with the function it decorates.
//     A #[should_panic] attribute marks the test as expecting a panic.
//
//  2. Verify: upload the source to the backend, poll until the job leaves
//     the running state, fetch the raw report and parse it into per-test
//     outcomes. Tests that panicked as declared are reconciled to passed.
//
//  3. Match: pair every discovered test with the outcome of the same name.
//
// # Usage
//
//	e, err := safepkt.New(".safepkt/index.db", "", safepkt.WithScriptsFS(scripts.FS))
//	if err != nil { ... }
//	defer e.Close()
//
//	client := verify.New("https://verifier.example.com")
//	v, err := e.Verify(ctx, client, "src/lib.rs", nil)
//	for _, r := range v.Results { ... }
//
// # Index
//
// [Engine.IndexDirectory] records discovered tests in SQLite. Unchanged
// files are skipped by content hash, and a file's tests are replaced when it
// changes. [Engine.Query] reads the index.
//
// # Scripts
//
// With [WithScripted], discovery runs scripts/discover/{language}.risor. The
// script receives the walker's attribute matches and emits tests through
// host functions; see the internal/runtime package for the globals.
package safepkt
