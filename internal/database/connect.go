package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hbomb79/Harvest/pkg/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/mitchellh/go-homedir"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
	_ "modernc.org/sqlite"
)

const (
	DriverSqlite   = "sqlite"
	DriverPostgres = "postgres"

	PostgresConnectionString = "host=%s user=%s password=%s dbname=%s port=%s sslmode=%s"

	maxConnectAttempts = 5
)

var (
	//go:embed migrations/*.sql
	migrations embed.FS

	dbLogger = logger.Get("DB")

	ErrNotConnected = errors.New("DB manager has not yet connected")
)

type (
	Config struct {
		Disabled bool   `yaml:"disabled" toml:"disabled" env:"DB_DISABLED"`
		Driver   string `yaml:"driver" toml:"driver" env:"DB_DRIVER" env-default:"sqlite" validate:"oneof=sqlite postgres"`
		Path     string `yaml:"path" toml:"path" env:"DB_PATH" env-default:"~/.harvest/journal.db"`
		User     string `yaml:"username" toml:"username" env:"DB_USERNAME" env-default:"harvest"`
		Password string `yaml:"password" toml:"password" env:"DB_PASSWORD"`
		Name     string `yaml:"name" toml:"name" env:"DB_NAME" env-default:"HARVEST_DB"`
		Host     string `yaml:"host" toml:"host" env:"DB_HOST" env-default:"0.0.0.0"`
		Port     string `yaml:"port" toml:"port" env:"DB_PORT" env-default:"5432"`
		SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	}

	SqlLogger struct {
		logger logger.Logger
	}

	// Queryable is satisfied by both *sqlx.DB and *sqlx.Tx, allowing stores
	// to be used inside and outside of a transaction.
	Queryable interface {
		sqlx.Ext
		Get(dest any, query string, args ...any) error
		Select(dest any, query string, args ...any) error
	}

	Manager interface {
		Connect(ctx context.Context, config Config) error
		GetSqlxDb() *sqlx.DB
		WrapTx(func(*sqlx.Tx) error) error
		Close() error
	}

	manager struct {
		driver string
		rawDb  *sql.DB
		db     *sqlx.DB
	}
)

func New() *manager {
	return &manager{}
}

// Connect opens the configured database, waits for it to accept
// connections (retrying with an exponential backoff) and then applies any
// pending migrations.
func (db *manager) Connect(ctx context.Context, config Config) error {
	driver, dsn, err := dataSource(config)
	if err != nil {
		return err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open %s connection: %w", driver, err)
	}

	conn = sqldblogger.OpenDriver(dsn, conn.Driver(), &SqlLogger{dbLogger})
	if driver == DriverSqlite {
		// sqlite permits a single writer
		conn.SetMaxOpenConns(1)
	}

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxConnectAttempts-1), ctx)
	ping := func() error {
		attempt++
		return conn.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		dbLogger.Emit(logger.WARNING, "Attempt (%d/%d) failed: %v... Retrying in %s\n", attempt, maxConnectAttempts, err, wait.Round(time.Millisecond))
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		dbLogger.Emit(logger.ERROR, "All attempts FAILED!\n")
		conn.Close()
		return fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}

	db.driver = driver
	db.rawDb = conn
	db.db = sqlx.NewDb(conn, bindDriverName(driver))

	if err := db.ExecuteMigrations(); err != nil {
		return err
	}

	dbLogger.Emit(logger.SUCCESS, "Database connection complete!\n")
	return nil
}

// ExecuteMigrations uses the comp-time embedded SQL migrations (found in the 'migrations'
// dir in this package) and runs them against the current DB instance.
func (db *manager) ExecuteMigrations() error {
	rawDb := db.rawDb
	if rawDb == nil {
		return fmt.Errorf("cannot execute migrations: %w", ErrNotConnected)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(dbLogger)
	if err := goose.SetDialect(gooseDialect(db.driver)); err != nil {
		return fmt.Errorf("failed to set dialect for DB migration: %w", err)
	}

	dbLogger.Emit(logger.INFO, "Checking for pending DB migrations...\n")
	if err := goose.Up(rawDb, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate DB: %w", err)
	}

	dbLogger.Emit(logger.SUCCESS, "DB Goose migration complete!\n")
	return nil
}

// GetSqlxDb returns the sqlx database connection if one has
// been opened using 'Connect'. Otherwise, nil is returned
func (db *manager) GetSqlxDb() *sqlx.DB {
	return db.db
}

// WrapTx is a convenience method around the top-level WrapTx, which simply
// uses the managers DB instance as the first argument.
func (db *manager) WrapTx(f func(tx *sqlx.Tx) error) error {
	if db.db == nil {
		return ErrNotConnected
	}

	return WrapTx(db.db, f)
}

func (db *manager) Close() error {
	if db.db == nil {
		return nil
	}

	dbLogger.Emit(logger.STOP, "Closing database connection\n")
	return db.db.Close()
}

func (l *SqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]any) {
	template := "%s - %v\n"
	switch level {
	case sqldblogger.LevelTrace:
		l.logger.Verbosef(template, msg, data)
	case sqldblogger.LevelDebug, sqldblogger.LevelInfo:
		duration := data["duration"]
		if query, ok := data["query"]; ok {
			l.logger.Debugf("%s [%.2fms] -- %s\n", msg, duration, query)
		} else {
			l.logger.Debugf("%s [%.2fms]\n", msg, duration)
		}
	case sqldblogger.LevelError:
		l.logger.Errorf(template, msg, data)
	}
}

// WrapTx starts a transaction against the provided DB, and then calls the user
// provided function. If this function errors, the transaction is rolled back - otherwise
// the transaction is committed.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		dbLogger.Errorf("Transaction failed... rolling back. Error: %s\n", err.Error())
		return err
	}

	return tx.Commit()
}

func dataSource(config Config) (string, string, error) {
	switch config.Driver {
	case DriverSqlite, "":
		path, err := homedir.Expand(config.Path)
		if err != nil {
			return "", "", fmt.Errorf("failed to expand sqlite path %q: %w", config.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create sqlite directory: %w", err)
		}

		return DriverSqlite, path, nil
	case DriverPostgres:
		return DriverPostgres, fmt.Sprintf(PostgresConnectionString, config.Host, config.User, config.Password, config.Name, config.Port, config.SSLMode), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", config.Driver)
	}
}

func gooseDialect(driver string) string {
	if driver == DriverPostgres {
		return "postgres"
	}

	return "sqlite3"
}

// bindDriverName maps a driver to the name sqlx uses to infer its bind
// variable style.
func bindDriverName(driver string) string {
	if driver == DriverPostgres {
		return DriverPostgres
	}

	return "sqlite3"
}
