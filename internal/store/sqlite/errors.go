// Package sqlite implements the store contracts on the local SQLite database.
package sqlite

import (
	"errors"

	"capillaire/internal/store"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// classify wraps err as a StoreError, using the SQLite result code to tell
// constraint violations from everything else.
func classify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return store.Constraint(op, err)
	}
	return store.Transport(op, err)
}
