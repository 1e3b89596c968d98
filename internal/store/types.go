package store

import "time"

// File is an indexed source file. Hash is the SHA-256 of its content and
// decides whether a later index run re-discovers it.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LineCount   int
	Skipped     int
	LastIndexed time.Time
}

// Test is a discovered test function. StartLine and StartCol are the
// 0-based position of its test marker.
type Test struct {
	ID            int64
	FileID        int64
	Name          string
	StartLine     int
	StartCol      int
	ExpectedPanic bool
	Ordinal       int
}

// FileTest pairs a test with the path of the file that declares it.
type FileTest struct {
	Test
	Path string
}
