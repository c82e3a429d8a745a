package db

import (
	"context"
	"sort"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Migration is one schema step. Versions are tracked in PRAGMA user_version
// so migrated files carry no bookkeeping tables of their own.
type Migration struct {
	Version     int64
	Description string
	Up          func(ctx context.Context, tx *sqlx.Tx) error
}

// MigrationRunner applies migrations to a database
type MigrationRunner struct {
	db *sqlx.DB
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *sqlx.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

// Run executes every migration newer than the current version in version
// order. Each migration commits together with the version bump.
func (r *MigrationRunner) Run(ctx context.Context, migrations []Migration) error {
	current, err := r.Version(ctx)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if m.Version <= current {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
		current = m.Version
	}
	return nil
}

// Version returns the last applied migration version, 0 for a fresh file.
func (r *MigrationRunner) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := r.db.GetContext(ctx, &v, "PRAGMA user_version"); err != nil {
		return 0, errors.Wrap(err, "failed to read schema version")
	}
	return v, nil
}

func (r *MigrationRunner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(ctx, tx); err != nil {
		return err
	}

	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.FormatInt(m.Version, 10)); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}

	return tx.Commit()
}
