package registration

import (
	"context"
	"io/fs"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies the embedded migrations to db and returns the applied group
func Migrate(ctx context.Context, db *bun.DB) (*migrate.MigrationGroup, error) {
	migrator, err := newMigrator(ctx, db)
	if err != nil {
		return nil, err
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to lock migrations")
	}
	defer migrator.Unlock(ctx) //nolint:errcheck

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations")
	}

	return group, nil
}

func newMigrator(ctx context.Context, db *bun.DB) (*migrate.Migrator, error) {
	sub, err := fs.Sub(migrationsFS, "data/sql/migrations")
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open embedded migrations")
	}

	migrations := migrate.NewMigrations()
	if err := migrations.Discover(sub); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize migrations")
	}

	return migrator, nil
}
