package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	_ "github.com/mattn/go-sqlite3"

	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Options configures the connection pool.
type Options struct {
	Driver           string // "sqlserver" or "sqlite3"
	ConnectionString string
	MaxOpenConns     int
	ConnMaxIdleTime  time.Duration
}

// Store is a pooled database handle that hands out dedicated sessions.
type Store struct {
	db     *sql.DB
	driver string
}

// Connect establishes a connection to the database and verifies it with a ping
func Connect(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = "sqlserver"
	}

	db, err := sql.Open(driver, opts.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	logging.GetLogger().Info("Successfully connected to database", "driver", driver)

	return &Store{db: db, driver: driver}, nil
}

// DB exposes the pool for setup work that does not need a dedicated session.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Acquire reserves one pooled connection for the caller until the session is closed.
func (s *Store) Acquire(ctx context.Context) (cdc.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Session{conn: conn}, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session is a single reserved connection.
type Session struct {
	conn      *sql.Conn
	closeOnce sync.Once
	closeErr  error
}

// Query runs stmt and scans every row into a cdc.Row.
func (s *Session) Query(ctx context.Context, stmt cdc.Statement) ([]cdc.Row, error) {
	rows, err := s.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return ScanRows(rows)
}

// Close returns the connection to the pool. Calling it twice is harmless.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// ScanRows reads all remaining rows into maps keyed by column name.
func ScanRows(rows *sql.Rows) ([]cdc.Row, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	out := []cdc.Row{}
	for rows.Next() {
		values := make([]any, len(colTypes))
		valuePtrs := make([]any, len(colTypes))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(cdc.Row, len(colTypes))
		for i, col := range colTypes {
			row[col.Name()] = normalize(values[i], col)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize turns driver byte slices into the value a reader expects: text for
// character and decimal types, a canonical string for GUIDs, raw bytes for binary.
func normalize(v any, col *sql.ColumnType) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}

	switch strings.ToUpper(col.DatabaseTypeName()) {
	case "UNIQUEIDENTIFIER":
		var u mssql.UniqueIdentifier
		if err := u.Scan(b); err == nil {
			return u.String()
		}
		return b
	case "BINARY", "VARBINARY", "IMAGE", "BLOB", "TIMESTAMP", "ROWVERSION":
		return b
	default:
		return string(b)
	}
}
