package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	// Register the pure Go sqlite driver.
	_ "modernc.org/sqlite"

	"compliance/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS pointers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	objective TEXT NOT NULL DEFAULT '',
	compliance_requirements TEXT NOT NULL DEFAULT '',
	supporting_document_points TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL,
	compliance_status TEXT NOT NULL DEFAULT 'Not Checked',
	year INTEGER NOT NULL,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	pointer_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	document_data BLOB NOT NULL,
	upload_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_pointer_id ON documents (pointer_id);

CREATE TABLE IF NOT EXISTS compliance_results (
	id TEXT PRIMARY KEY,
	pointer_id TEXT NOT NULL,
	compliance_status TEXT NOT NULL,
	details TEXT NOT NULL DEFAULT '',
	checked_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_compliance_results_pointer_id ON compliance_results (pointer_id);
`

// DB is the SQLite implementation of store.Store.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*DB)(nil)

// NewDB opens (creating if needed) the database at path and applies the schema.
// Use ":memory:" for an ephemeral database.
func NewDB(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return &DB{db: sqlDB, now: time.Now}, nil
}

// GetDB returns the underlying database handle.
func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) timestamp() int64 {
	return d.now().UnixMilli()
}

func fromTimestamp(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// placeholders returns n placeholders for SQLite.
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, "?")
	}
	return strings.Join(list, ", ")
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return n, nil
}
