package store

import "fmt"

// CommitBatch inserts all buffered tests from a BatchedStore into SQLite
// within a single transaction. Fake IDs on the buffered tests are replaced
// with the real row IDs.
func (s *Store) CommitBatch(batch *BatchedStore) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	batch.mu.Lock()
	defer batch.mu.Unlock()

	for i := range batch.Tests {
		t := &batch.Tests[i]
		if _, err := insertTestTx(tx, t); err != nil {
			return fmt.Errorf("commit batch: test %q: %w", t.Name, err)
		}
	}
	for fileID, skipped := range batch.Skipped {
		if _, err := tx.Exec("UPDATE files SET skipped = ? WHERE id = ?", skipped, fileID); err != nil {
			return fmt.Errorf("commit batch: skipped for file %d: %w", fileID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
