package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// --- File operations ---

const fileColumns = "id, path, language, hash, line_count, skipped, last_indexed"

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, language, hash, line_count, skipped, last_indexed) VALUES (?, ?, ?, ?, ?, ?)",
		f.Path, f.Language, f.Hash, f.LineCount, f.Skipped, f.LastIndexed,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

// SetSkipped records how many test markers in a file had no function.
func (s *Store) SetSkipped(fileID int64, skipped int) error {
	if _, err := s.db.Exec("UPDATE files SET skipped = ? WHERE id = ?", skipped, fileID); err != nil {
		return fmt.Errorf("set skipped: %w", err)
	}
	return nil
}

// FileByPath returns the file indexed at path, or nil when there is none.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every indexed file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*File, error) {
	f := &File{}
	var hash sql.NullString
	var lastIndexed sql.NullTime
	if err := row.Scan(&f.ID, &f.Path, &f.Language, &hash, &f.LineCount, &f.Skipped, &lastIndexed); err != nil {
		return nil, err
	}
	f.Hash = hash.String
	f.LastIndexed = lastIndexed.Time
	return f, nil
}

// --- Test operations ---

const testColumns = "id, file_id, name, start_line, start_col, expected_panic, ordinal"

// InsertTest inserts t unless its file already has a test at the same
// position, in which case the existing row's ID is returned.
func (s *Store) InsertTest(t *Test) (int64, error) {
	return insertTestTx(s.db, t)
}

type execQuerier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func insertTestTx(db execQuerier, t *Test) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO tests (file_id, name, start_line, start_col, expected_panic, ordinal)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file_id, start_line, start_col) DO NOTHING`,
		t.FileID, t.Name, t.StartLine, t.StartCol, t.ExpectedPanic, t.Ordinal,
	)
	if err != nil {
		return 0, fmt.Errorf("insert test: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		var id int64
		err := db.QueryRow(
			"SELECT id FROM tests WHERE file_id = ? AND start_line = ? AND start_col = ?",
			t.FileID, t.StartLine, t.StartCol,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("existing test: %w", err)
		}
		t.ID = id
		return id, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	t.ID = id
	return id, nil
}

// TestsByFile returns a file's tests in document order.
func (s *Store) TestsByFile(fileID int64) ([]*Test, error) {
	rows, err := s.db.Query("SELECT "+testColumns+" FROM tests WHERE file_id = ? ORDER BY ordinal", fileID)
	if err != nil {
		return nil, fmt.Errorf("tests by file: %w", err)
	}
	defer rows.Close()
	var tests []*Test
	for rows.Next() {
		t := &Test{}
		if err := rows.Scan(&t.ID, &t.FileID, &t.Name, &t.StartLine, &t.StartCol, &t.ExpectedPanic, &t.Ordinal); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

// TestsByName returns every test called name, across files.
func (s *Store) TestsByName(name string) ([]*FileTest, error) {
	return s.queryFileTests("WHERE t.name = ?", name)
}

// AllTests returns every indexed test ordered by file path and position.
func (s *Store) AllTests() ([]*FileTest, error) {
	return s.queryFileTests("")
}

func (s *Store) queryFileTests(where string, args ...any) ([]*FileTest, error) {
	rows, err := s.db.Query(
		`SELECT t.id, t.file_id, t.name, t.start_line, t.start_col, t.expected_panic, t.ordinal, f.path
		 FROM tests t JOIN files f ON f.id = t.file_id `+where+`
		 ORDER BY f.path, t.ordinal`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()
	var tests []*FileTest
	for rows.Next() {
		ft := &FileTest{}
		if err := rows.Scan(&ft.ID, &ft.FileID, &ft.Name, &ft.StartLine, &ft.StartCol, &ft.ExpectedPanic, &ft.Ordinal, &ft.Path); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		tests = append(tests, ft)
	}
	return tests, rows.Err()
}

// --- Metadata ---

// GetMetadata returns the value stored under key, or "" when unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return value.String, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
