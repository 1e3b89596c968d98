package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_FakeIDsDecrement(t *testing.T) {
	t.Parallel()
	b := NewBatchedStore()

	id1, err := b.InsertTest(&Test{FileID: 1, Name: "a"})
	require.NoError(t, err)
	id2, err := b.InsertTest(&Test{FileID: 1, Name: "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(-1), id1)
	assert.Equal(t, int64(-2), id2)
}

func TestBatchedStore_ConcurrentInserts(t *testing.T) {
	t.Parallel()
	b := NewBatchedStore()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = b.InsertTest(&Test{FileID: 1, Name: "t", StartLine: i})
		}()
	}
	wg.Wait()

	assert.Len(t, b.Tests, 50)
	seen := make(map[int64]bool)
	for _, tt := range b.Tests {
		seen[tt.ID] = true
	}
	assert.Len(t, seen, 50, "fake IDs are unique")
}

func TestCommitBatch(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/repo/src/lib.rs")

	b := NewBatchedStore()
	_, err := b.InsertTest(&Test{FileID: f.ID, Name: "first", StartLine: 2, Ordinal: 0})
	require.NoError(t, err)
	_, err = b.InsertTest(&Test{FileID: f.ID, Name: "second", StartLine: 6, Ordinal: 1})
	require.NoError(t, err)
	b.SetSkipped(f.ID, 1)

	// Nothing reaches SQLite before commit.
	pending, err := s.TestsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, s.CommitBatch(b))

	tests, err := s.TestsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "first", tests[0].Name)
	for _, tt := range b.Tests {
		assert.Positive(t, tt.ID, "fake IDs are replaced on commit")
	}

	got, err := s.FileByPath(f.Path)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Skipped)
}

func TestCommitBatch_MissingFileRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	f := insertTestFile(t, s, "/repo/src/lib.rs")

	b := NewBatchedStore()
	_, err := b.InsertTest(&Test{FileID: f.ID, Name: "ok", StartLine: 1})
	require.NoError(t, err)
	_, err = b.InsertTest(&Test{FileID: 9999, Name: "orphan", StartLine: 2})
	require.NoError(t, err)

	require.Error(t, s.CommitBatch(b))

	tests, err := s.TestsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, tests)
}
