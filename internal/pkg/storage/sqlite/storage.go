package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"

	"rpcgate/internal/pkg/config"
	"rpcgate/internal/pkg/log"
)

const (
	driver = "sqlite3"
)

type Storage struct {
	db *sql.DB
}

// New returns nil storage when no db path is configured.
func New(ctx context.Context, cfg config.StatsConfig) (s *Storage, err error) {
	if cfg.SqlitePath == "" {
		log.Logger.General.Infof("start without sqlite stats")
		return nil, nil
	}

	db, err := sql.Open(driver, fmt.Sprintf("file:%s?mode=rwc&_fk=1&_timeout=10000&_cache_size=-10000&_synchronous=NORMAL&_journal_mode=WAL", cfg.SqlitePath)) // cache=shared
	if err != nil {
		return s, fmt.Errorf("sql.Open: %s", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()
		return s, fmt.Errorf("ping: %s", err)
	}

	migrations := &migrate.FileMigrationSource{
		Dir: cfg.MigrationsPath,
	}

	appliedMigrations, err := migrate.Exec(db, driver, migrations, migrate.Up)
	if err != nil {
		_ = db.Close()
		return s, fmt.Errorf("migrate.Exec: %s", err)
	}

	log.Logger.General.Infof("sqlite: applied migrations: %d", appliedMigrations)

	return &Storage{
		db: db,
	}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}
