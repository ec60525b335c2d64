//go:build !sqlite

package storage

import "errors"

// DefaultStoreKind reports the store used when no kind is configured.
func DefaultStoreKind() string {
	return "memory"
}

func newSQLiteStore(string) (Store, error) {
	return nil, errors.New("sqlite store unavailable: rebuild with -tags sqlite")
}
