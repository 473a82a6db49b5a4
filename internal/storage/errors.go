package storage

import (
	"database/sql"
	"database/sql/driver"
	"errors"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Common errors returned by repositories.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// IsFatal reports whether err means the store itself is unusable (I/O
// failure, full disk, corruption, lost connection) as opposed to a problem
// with one row. An ingestion run aborts on fatal errors.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrTxDone) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_IOERR,
			sqlite3.SQLITE_FULL,
			sqlite3.SQLITE_CORRUPT,
			sqlite3.SQLITE_NOTADB,
			sqlite3.SQLITE_CANTOPEN,
			sqlite3.SQLITE_READONLY,
			sqlite3.SQLITE_NOMEM:
			return true
		}
	}
	return false
}

func isConstraint(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
