package store

// DataStore is the interface for discovery-phase writes. Both Store
// (direct SQLite) and BatchedStore (in-memory buffering for parallel
// discovery) implement it.
type DataStore interface {
	InsertTest(t *Test) (int64, error)
}

var (
	_ DataStore = (*Store)(nil)
	_ DataStore = (*BatchedStore)(nil)
)
