package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/stdlib"
	_ "modernc.org/sqlite"

	"github.com/iliyamo/county-health/internal/model"
)

// Options selects the store backend and how to reach it.  For SQLite only
// Path matters.  For MySQL and Postgres either DSN is given verbatim or it is
// assembled from the discrete User/Pass/Host/Port/Name fields.
type Options struct {
	Driver       string
	Path         string
	DSN          string
	User         string
	Pass         string
	Host         string
	Port         string
	Name         string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

// Store is the shared handle to the relational store.  It is created once at
// startup and handed to the repositories; each repository call takes its own
// connection from the pool through WithConn.
type Store struct {
	db      *sql.DB
	dialect *Dialect
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := NewDialect(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := buildDSN(d, opts)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", d.Name())
	}

	// Pool settings
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s store", d.Name())
	}
	return &Store{db: db, dialect: d}, nil
}

// New wraps an already opened *sql.DB.
func New(db *sql.DB, d *Dialect) *Store {
	return &Store{db: db, dialect: d}
}

func buildDSN(d *Dialect, opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}
	switch d.Name() {
	case SQLite:
		if opts.Path == "" {
			return "", errors.New("sqlite store needs a file path")
		}
		timeout := opts.BusyTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		sep := "?"
		if strings.Contains(opts.Path, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%s_pragma=busy_timeout(%d)", opts.Path, sep, timeout.Milliseconds()), nil
	case MySQL:
		auth := opts.User
		if opts.Pass != "" {
			auth = fmt.Sprintf("%s:%s", opts.User, opts.Pass)
		}
		return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC",
			auth, opts.Host, opts.Port, opts.Name), nil
	case Postgres:
		u := url.URL{
			Scheme: "postgres",
			Host:   opts.Host + ":" + opts.Port,
			Path:   "/" + opts.Name,
		}
		if opts.Pass != "" {
			u.User = url.UserPassword(opts.User, opts.Pass)
		} else if opts.User != "" {
			u.User = url.User(opts.User)
		}
		return u.String(), nil
	}
	return "", errors.Errorf("no DSN builder for %s", d.Name())
}

// DB exposes the pool for callers that manage their own transactions.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the SQL dialect of the backend.
func (s *Store) Dialect() *Dialect { return s.dialect }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks that the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// WithConn runs fn on a dedicated connection that is returned to the pool
// when fn returns, whatever the outcome.
func (s *Store) WithConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire connection")
	}
	defer conn.Close()
	return fn(conn)
}

// Tables lists the user tables of the store in name order.
func (s *Store) Tables(ctx context.Context, q Querier) ([]string, error) {
	return s.dialect.ListTables(ctx, q)
}

// Schema introspects a single table.  It returns ErrTableNotFound when the
// table has no columns, which is how every backend reports a missing table.
func (s *Store) Schema(ctx context.Context, q Querier, table string) (model.TableSchema, error) {
	cols, err := s.dialect.Columns(ctx, q, table)
	if err != nil {
		return model.TableSchema{}, err
	}
	if len(cols) == 0 {
		return model.TableSchema{}, errors.Wrap(ErrTableNotFound, table)
	}
	return model.TableSchema{Name: table, Columns: cols}, nil
}

// ErrTableNotFound is returned by Schema for a table that does not exist.
var ErrTableNotFound = errors.New("table not found")
