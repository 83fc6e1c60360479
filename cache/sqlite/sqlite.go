package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	driverName   = "sqlite"
	defaultTable = "kv_store"
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options contains configuration for the SQLite store.
type Options struct {
	// Path is a file path, a sqlite:// uri or ":memory:".
	Path  string
	Table string
}

// Cache is a device-local durable store backed by a single SQLite table.
type Cache struct {
	db    *sql.DB
	sq    sq.StatementBuilderType
	table string
}

// New opens (creating if needed) the database and its key-value table, dropping rows
// that expired while it was closed.
func New(ctx context.Context, opts Options) (*Cache, error) {
	path := strings.TrimPrefix(opts.Path, "sqlite://")
	if path == "" {
		return nil, errors.New("sqlite: empty database path")
	}

	table := opts.Table
	if table == "" {
		table = defaultTable
	}
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("sqlite: invalid table name %q", table)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, err
	}
	// One writer keeps sqlite from returning SQLITE_BUSY under concurrent persistence.
	db.SetMaxOpenConns(1)

	c := &Cache{
		db:    db,
		sq:    sq.StatementBuilder,
		table: table,
	}

	if err = c.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err = c.PurgeExpired(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: purge %s: %w", c.table, err)
	}
	return c, nil
}

func (c *Cache) migrate(ctx context.Context) error {
	stmts := []string{
		"PRAGMA busy_timeout = 5000",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0
		)`, c.table),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: migrate %s: %w", c.table, err)
		}
	}
	return nil
}

func live(now time.Time) sq.Sqlizer {
	return sq.Or{sq.Eq{"expires_at": 0}, sq.Gt{"expires_at": now.UnixMilli()}}
}

// Get retrieves a value, treating expired rows as missing.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := c.sq.Select("value").
		From(c.table).
		Where(sq.And{sq.Eq{"key": key}, live(time.Now())}).
		Limit(1)
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	if err = c.db.QueryRowContext(ctx, sqlStr, args...).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// Set upserts a value with the specified TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixMilli()
	}
	if value == nil {
		value = []byte{}
	}

	q := c.sq.Insert(c.table).
		Columns("key", "value", "expires_at").
		Values(key, value, expiresAt).
		Suffix("ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := c.sq.Delete(c.table).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	q := c.sq.Select("COUNT(1)").
		From(c.table).
		Where(sq.And{sq.Eq{"key": key}, live(time.Now())})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return false, err
	}

	var count int64
	if err = c.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeExpired deletes rows whose ttl has passed and reports how many were removed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	sqlStr, args, err := c.sq.Delete(c.table).
		Where(sq.And{sq.NotEq{"expires_at": 0}, sq.LtOrEq{"expires_at": time.Now().UnixMilli()}}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := c.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Flush clears the table.
func (c *Cache) Flush(ctx context.Context) error {
	sqlStr, args, err := c.sq.Delete(c.table).ToSql()
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (c *Cache) Close() error {
	return c.db.Close()
}
