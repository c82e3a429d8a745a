// Package db provides shared SQLite database utilities.
package db

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// DefaultBusyTimeout is how long a connection waits on another writer
// before reporting the database as busy.
const DefaultBusyTimeout = 2 * time.Second

// Options controls how a SQLite file is opened.
type Options struct {
	// ReadOnly opens the file without write access.
	ReadOnly bool
	// Create allows a missing file to be created. Ignored when ReadOnly.
	Create bool
	// BusyTimeout defaults to DefaultBusyTimeout.
	BusyTimeout time.Duration
	// Pragmas are run after the connection is established.
	Pragmas []string
}

// DSN builds a modernc file URI for path honouring the access mode.
func DSN(path string, opts Options) string {
	mode := "rw"
	switch {
	case opts.ReadOnly:
		mode = "ro"
	case opts.Create:
		mode = "rwc"
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		// Windows drive letters
		slashed = "/" + slashed
	}
	q := url.Values{}
	q.Set("mode", mode)
	u := url.URL{Scheme: "file", OmitHost: true, Path: slashed, RawQuery: q.Encode()}
	return u.String()
}

// OpenSQLite opens the SQLite database at dbPath with a single connection so
// pragmas and transactions always apply to the same session.
func OpenSQLite(ctx context.Context, dbPath string, opts Options) (*sqlx.DB, error) {
	if opts.Create && !opts.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sqlx.Open(DriverName, DSN(dbPath, opts))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := Configure(ctx, db, opts); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	return db, nil
}

// Configure sets the busy timeout and runs the caller's pragmas.
func Configure(ctx context.Context, db *sqlx.DB, opts Options) error {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}

	pragmas := append([]string{
		"PRAGMA busy_timeout=" + formatMillis(timeout),
	}, opts.Pragmas...)

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}
	return nil
}

func formatMillis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

// IsBusy reports whether err is SQLite refusing access because another
// connection holds a lock on the database.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

// TableExists reports whether a table named name exists.
func TableExists(ctx context.Context, db sqlx.QueryerContext, name string) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, db, &n,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, errors.Wrapf(err, "failed to check for table %s", name)
	}
	return n > 0, nil
}
