package safepkt

import (
	"fmt"

	"github.com/jward/safepkt/internal/store"
)

// QueryBuilder reads the discovery index.
type QueryBuilder struct {
	store *store.Store
}

// FileSummary is an indexed file with its test count.
type FileSummary struct {
	Path    string `json:"path"`
	Tests   int    `json:"tests"`
	Skipped int    `json:"skipped"`
}

// TestsInFile returns the tests indexed for path in document order, or nil
// when the file is not indexed.
func (q *QueryBuilder) TestsInFile(path string) ([]TestDescriptor, error) {
	f, err := q.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("tests in file: %w", err)
	}
	if f == nil {
		return nil, nil
	}
	tests, err := q.store.TestsByFile(f.ID)
	if err != nil {
		return nil, fmt.Errorf("tests in file: %w", err)
	}
	out := make([]TestDescriptor, 0, len(tests))
	for _, t := range tests {
		out = append(out, descriptorOf(t))
	}
	return out, nil
}

// TestsNamed returns every indexed test called name. Names are not unique
// across files or modules.
func (q *QueryBuilder) TestsNamed(name string) ([]*FileTest, error) {
	tests, err := q.store.TestsByName(name)
	if err != nil {
		return nil, fmt.Errorf("tests named: %w", err)
	}
	return tests, nil
}

// AllTests returns every indexed test ordered by path and position.
func (q *QueryBuilder) AllTests() ([]*FileTest, error) {
	tests, err := q.store.AllTests()
	if err != nil {
		return nil, fmt.Errorf("all tests: %w", err)
	}
	return tests, nil
}

// Files summarises every indexed file.
func (q *QueryBuilder) Files() ([]FileSummary, error) {
	files, err := q.store.Files()
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	out := make([]FileSummary, 0, len(files))
	for _, f := range files {
		tests, err := q.store.TestsByFile(f.ID)
		if err != nil {
			return nil, fmt.Errorf("files: %w", err)
		}
		out = append(out, FileSummary{Path: f.Path, Tests: len(tests), Skipped: f.Skipped})
	}
	return out, nil
}

func descriptorOf(t *store.Test) TestDescriptor {
	return TestDescriptor{
		Name:          t.Name,
		Position:      Point{Row: t.StartLine, Column: t.StartCol},
		ExpectedPanic: t.ExpectedPanic,
	}
}
