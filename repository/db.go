package repository

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/goliatone/go-identity"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	// DriverSQLite selects the embedded sqlite driver
	DriverSQLite = "sqlite"
	// DriverPostgres selects postgres through pgx
	DriverPostgres = "postgres"
)

// Open connects to the database named by driver and dsn
func Open(driver, dsn string) (*bun.DB, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3":
		sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, identity.DependencyError(err, "could not open sqlite database")
		}
		if strings.Contains(dsn, ":memory:") {
			// every connection to :memory: is a separate database
			sqldb.SetMaxOpenConns(1)
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			_ = db.Close()
			return nil, identity.DependencyError(err, "could not enable sqlite foreign keys")
		}
		return db, nil
	case DriverPostgres, "pgx", "postgresql":
		sqldb, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, identity.DependencyError(err, "could not open postgres database")
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// EnableQueryDebug logs every query to stderr. With verbose off only failed
// queries are printed.
func EnableQueryDebug(db *bun.DB, verbose bool) {
	db.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(verbose),
		bundebug.WithWriter(os.Stderr),
	))
}

// goose keeps its base FS and dialect in package state
var migrateMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations for the dialect of db
func Migrate(ctx context.Context, db *bun.DB, logger identity.Logger) error {
	dir, gooseDialect := "sqlite", "sqlite3"
	if db.Dialect().Name() == dialect.PG {
		dir, gooseDialect = "postgres", "postgres"
	}

	migrations, err := fs.Sub(identity.GetMigrationsFS(), "data/sql/migrations/"+dir)
	if err != nil {
		return identity.DependencyError(err, "could not load migrations")
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(gooseDialect); err != nil {
		return identity.DependencyError(err, "could not set migration dialect")
	}

	if err := gooseUpContext(ctx, db.DB, "."); err != nil {
		return identity.DependencyError(err, "could not apply migrations")
	}
	return nil
}

type gooseLogger struct {
	logger identity.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
