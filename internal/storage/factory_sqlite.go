//go:build sqlite

package storage

// DefaultStoreKind reports the store used when no kind is configured.
func DefaultStoreKind() string {
	return "sqlite"
}

func newSQLiteStore(path string) (Store, error) {
	return NewSQLiteStore(path), nil
}
