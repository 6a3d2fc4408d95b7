package clientstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// SQLStore is a SQL-backed snapshot store for PostgreSQL (through pgx) and
// MySQL. Requires a table with schema:
//
//	CREATE TABLE jj_client_storage (
//	    id VARCHAR(255) PRIMARY KEY,
//	    data BYTEA NOT NULL,
//	    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
//	    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
//	);
//
// CreateTable creates it.
type SQLStore struct {
	db              *sql.DB
	ownsDB          bool
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	logger          *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// SQLDialect represents the SQL dialect for query generation.
type SQLDialect int

const (
	// DialectPostgreSQL uses PostgreSQL syntax ($1, $2 placeholders).
	DialectPostgreSQL SQLDialect = iota
	// DialectMySQL uses MySQL syntax (? placeholders).
	DialectMySQL
)

// String returns the dialect name.
func (d SQLDialect) String() string {
	switch d {
	case DialectPostgreSQL:
		return "postgres"
	case DialectMySQL:
		return "mysql"
	default:
		return fmt.Sprintf("SQLDialect(%d)", int(d))
	}
}

// ParseDialect maps a driver name to its dialect.
func ParseDialect(driver string) (SQLDialect, error) {
	switch driver {
	case "postgres", "postgresql", "pgx":
		return DialectPostgreSQL, nil
	case "mysql":
		return DialectMySQL, nil
	default:
		return 0, fmt.Errorf("clientstore: unsupported sql driver %q", driver)
	}
}

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName       string
	dialect         SQLDialect
	cleanupInterval time.Duration
	logger          *slog.Logger
}

// WithSQLTableName sets the table name.
// Default: "jj_client_storage".
func WithSQLTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.tableName = name
	}
}

// WithSQLDialect sets the SQL dialect for query generation.
// Default: DialectPostgreSQL.
func WithSQLDialect(dialect SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = dialect
	}
}

// WithSQLCleanupInterval sets how often expired rows are deleted.
// Default: 5 minutes.
func WithSQLCleanupInterval(d time.Duration) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.cleanupInterval = d
	}
}

// WithSQLLogger sets the logger used for cleanup failures.
func WithSQLLogger(logger *slog.Logger) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.logger = logger
	}
}

// NewSQLStore creates a store on an existing database handle. Close does
// not close db.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName:       "jj_client_storage",
		dialect:         DialectPostgreSQL,
		cleanupInterval: 5 * time.Minute,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	store := &SQLStore{
		db:              db,
		tableName:       cfg.tableName,
		dialect:         cfg.dialect,
		cleanupInterval: cfg.cleanupInterval,
		logger:          cfg.logger.With("component", "clientstore", "backend", "sql"),
		done:            make(chan struct{}),
	}

	go store.cleanupLoop()
	return store
}

// OpenSQL opens a database with the named driver ("postgres", "pgx" or
// "mysql") and returns a store that owns it.
func OpenSQL(driverName, dsn string, opts ...SQLStoreOption) (*SQLStore, error) {
	dialect, err := ParseDialect(driverName)
	if err != nil {
		return nil, err
	}
	if driverName == "postgres" || driverName == "postgresql" {
		driverName = "pgx"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("clientstore: open %s: %w", driverName, err)
	}
	opts = append([]SQLStoreOption{WithSQLDialect(dialect)}, opts...)
	store := NewSQLStore(db, opts...)
	store.ownsDB = true
	return store, nil
}

// placeholder returns the placeholder syntax for the dialect.
func (s *SQLStore) placeholder(n int) string {
	switch s.dialect {
	case DialectPostgreSQL:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

func (s *SQLStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Save stores a snapshot with an expiration time.
func (s *SQLStore) Save(ctx context.Context, key string, data []byte, expiresAt time.Time) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}

	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id) DO UPDATE SET
				data = EXCLUDED.data,
				expires_at = EXCLUDED.expires_at,
				updated_at = NOW()
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			INSERT INTO %s (id, data, expires_at, updated_at)
			VALUES (?, ?, ?, NOW())
			ON DUPLICATE KEY UPDATE
				data = VALUES(data),
				expires_at = VALUES(expires_at),
				updated_at = NOW()
		`, s.tableName)
	}

	_, err := s.db.ExecContext(ctx, query, key, data, expiresAt.UTC())
	return err
}

// Load retrieves a snapshot if it exists and hasn't expired.
func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s.isClosed() {
		return nil, ErrStoreClosed{}
	}

	query := fmt.Sprintf(`
		SELECT data FROM %s
		WHERE id = %s AND expires_at > NOW()
	`, s.tableName, s.placeholder(1))

	var data []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Delete removes a snapshot.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if s.isClosed() {
		return ErrStoreClosed{}
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Close stops the cleanup loop. The database is closed only when the store
// was created by OpenSQL.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

// cleanup removes expired rows.
func (s *SQLStore) cleanup() {
	if s.isClosed() {
		return
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE expires_at < NOW()`, s.tableName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		s.logger.Warn("cleanup failed", "error", err)
	}
}

// CreateTable creates the storage table and its expiry index if they don't
// exist.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				data BYTEA NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, s.tableName)
	case DialectMySQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(255) PRIMARY KEY,
				data BLOB NOT NULL,
				expires_at DATETIME NOT NULL,
				updated_at DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
			)
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("clientstore: create table %s: %w", s.tableName, err)
	}

	var indexQuery string
	switch s.dialect {
	case DialectPostgreSQL:
		indexQuery = fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at)
		`, s.tableName, s.tableName)
	case DialectMySQL:
		// MySQL has no IF NOT EXISTS for indexes; a duplicate fails harmlessly.
		indexQuery = fmt.Sprintf(`
			CREATE INDEX idx_%s_expires ON %s(expires_at)
		`, s.tableName, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, indexQuery); err != nil {
		s.logger.Debug("create index", "error", err)
	}
	return nil
}
