package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/patconext-data/internal/common/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type DB struct {
	conn   *sql.DB
	driver string
	logger logger.Logger
}

// New opens a postgres (lib/pq) or sqlite (modernc) database.
func New(driver, connStr string, logger logger.Logger) (*DB, error) {
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if driver == "sqlite" {
		// one writer; also keeps ":memory:" databases on a single connection
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(time.Hour)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("Database connection established", "driver", driver)

	return &DB{
		conn:   conn,
		driver: driver,
		logger: logger,
	}, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema: %w", err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, nil)
}

// DB returns the underlying connection pool.
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Driver returns "postgres" or "sqlite".
func (db *DB) Driver() string {
	return db.driver
}

// Rebind rewrites ? placeholders to $n for postgres.
func (db *DB) Rebind(query string) string {
	if db.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
