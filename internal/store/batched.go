package store

import "sync"

// BatchedStore buffers discovered tests in memory using fake (negative)
// IDs so discovery workers never touch SQLite. CommitBatch writes the
// buffer in a single transaction.
type BatchedStore struct {
	mu sync.Mutex

	Tests   []Test
	Skipped map[int64]int

	nextFakeID int64 // starts at -1, decrements
}

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{
		Skipped:    make(map[int64]int),
		nextFakeID: -1,
	}
}

func (b *BatchedStore) InsertTest(t *Test) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextFakeID
	b.nextFakeID--
	t.ID = id
	b.Tests = append(b.Tests, *t)
	return id, nil
}

// SetSkipped buffers the skip count for a file.
func (b *BatchedStore) SetSkipped(fileID int64, skipped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Skipped[fileID] = skipped
}
