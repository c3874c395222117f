// Package store persists the asset database: compile state, compile records,
// usage telemetry and dependency edges. SQLite is the default; Postgres is
// reached through the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver

	"github.com/conduit-lang/assetforge/internal/asset"
	"github.com/conduit-lang/assetforge/internal/compiler"
	"github.com/conduit-lang/assetforge/internal/deps"
)

// Driver names accepted by Open
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	path TEXT PRIMARY KEY,
	relative_path TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	record TEXT,
	open_count INTEGER NOT NULL DEFAULT 0,
	last_opened BIGINT NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS edges (
	from_path TEXT NOT NULL,
	to_path TEXT NOT NULL,
	kind TEXT NOT NULL,
	PRIMARY KEY (from_path, to_path, kind)
);

CREATE INDEX IF NOT EXISTS idx_edges_to_path ON edges(to_path);
`

const upsertAsset = `
INSERT INTO assets (path, relative_path, state, reason, record, open_count, last_opened, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (path) DO UPDATE SET
	relative_path = excluded.relative_path,
	state = excluded.state,
	reason = excluded.reason,
	record = excluded.record,
	open_count = excluded.open_count,
	last_opened = excluded.last_opened,
	updated_at = excluded.updated_at
`

// AssetRow is one persisted asset. RelativePath keeps the original case;
// the row itself is keyed by asset.Key.
type AssetRow struct {
	RelativePath string
	State        asset.CompileState
	Reason       string
	Record       *asset.CompileRecord
	OpenCount    int
	LastOpened   time.Time
}

// Store is a SQL-backed asset database
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and ensures the schema exists
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer, and ":memory:" databases are per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize asset database: %w", err)
		}
	}

	// databases created before relative_path existed
	if _, err := s.db.ExecContext(ctx, "SELECT relative_path FROM assets WHERE 1 = 0"); err != nil {
		if _, err := s.db.ExecContext(ctx, "ALTER TABLE assets ADD COLUMN relative_path TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("failed to migrate asset database: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCommit writes a successful compile in one transaction
func (s *Store) SaveCommit(ctx context.Context, c *compiler.Commit) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	root := c.Asset
	root.Record = c.Record
	if err = s.upsert(ctx, tx, root); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, s.rebind("DELETE FROM edges WHERE from_path = ?"), root.Key()); err != nil {
		return fmt.Errorf("failed to clear edges of %s: %w", root.RelativePath, err)
	}
	for _, e := range c.Edges {
		if _, err = tx.ExecContext(ctx, s.rebind("INSERT INTO edges (from_path, to_path, kind) VALUES (?, ?, ?)"),
			e.From, e.To, e.Kind.String()); err != nil {
			return fmt.Errorf("failed to save edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	for _, child := range c.Children {
		row := asset.Asset{RelativePath: child.RelativePath, State: asset.Compiled, Record: child.Record}
		if err = s.upsert(ctx, tx, row); err != nil {
			return err
		}
	}

	for _, rel := range c.Removed {
		if err = deleteAsset(ctx, tx, s.rebind, asset.Key(rel)); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveState writes the compile state, record and telemetry of one asset
func (s *Store) SaveState(ctx context.Context, a asset.Asset) error {
	return s.upsert(ctx, s.db, a)
}

// DeleteAsset removes an asset and every edge touching it
func (s *Store) DeleteAsset(ctx context.Context, rel string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err = deleteAsset(ctx, tx, s.rebind, asset.Key(rel)); err != nil {
		tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadAssets returns every persisted asset ordered by path
func (s *Store) LoadAssets(ctx context.Context) ([]AssetRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT path, relative_path, state, reason, record, open_count, last_opened
FROM assets
ORDER BY path ASC
`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []AssetRow
	for rows.Next() {
		var (
			row        AssetRow
			key        string
			state      string
			record     sql.NullString
			lastOpened int64
		)
		if err := rows.Scan(&key, &row.RelativePath, &state, &row.Reason, &record, &row.OpenCount, &lastOpened); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		if row.RelativePath == "" {
			row.RelativePath = key
		}
		row.State = asset.ParseCompileState(state)
		if lastOpened > 0 {
			row.LastOpened = time.Unix(0, lastOpened).UTC()
		}
		if record.Valid && record.String != "" {
			row.Record = &asset.CompileRecord{}
			if err := json.Unmarshal([]byte(record.String), row.Record); err != nil {
				return nil, fmt.Errorf("failed to decode compile record of %s: %w", row.RelativePath, err)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return out, nil
}

// LoadEdges returns every persisted dependency edge
func (s *Store) LoadEdges(ctx context.Context) ([]deps.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT from_path, to_path, kind
FROM edges
ORDER BY from_path ASC, to_path ASC
`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var out []deps.Edge
	for rows.Next() {
		var e deps.Edge
		var kind string
		if err := rows.Scan(&e.From, &e.To, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if e.Kind, err = deps.ParseKind(kind); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) upsert(ctx context.Context, ex execer, a asset.Asset) error {
	var record sql.NullString
	if a.Record != nil {
		data, err := json.Marshal(a.Record)
		if err != nil {
			return fmt.Errorf("failed to encode compile record of %s: %w", a.RelativePath, err)
		}
		record = sql.NullString{String: string(data), Valid: true}
	}

	var lastOpened int64
	if !a.LastOpened.IsZero() {
		lastOpened = a.LastOpened.UnixNano()
	}

	_, err := ex.ExecContext(ctx, s.rebind(upsertAsset),
		a.Key(), a.RelativePath, a.State.String(), a.FailureReason, record, a.OpenCount, lastOpened, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save asset %s: %w", a.RelativePath, err)
	}
	return nil
}

func deleteAsset(ctx context.Context, ex execer, rebind func(string) string, key string) error {
	if _, err := ex.ExecContext(ctx, rebind("DELETE FROM assets WHERE path = ?"), key); err != nil {
		return fmt.Errorf("failed to delete asset %s: %w", key, err)
	}
	if _, err := ex.ExecContext(ctx, rebind("DELETE FROM edges WHERE from_path = ? OR to_path = ?"), key, key); err != nil {
		return fmt.Errorf("failed to delete edges of %s: %w", key, err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for Postgres
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ compiler.Store = (*Store)(nil)
