package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

// SQLite's LOWER only folds ASCII; casefold lowers the full Unicode range
// so substring filters behave like ILIKE on PostgreSQL.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("casefold", 1, casefold)
}

func casefold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	contains: func(column, param string) string {
		return fmt.Sprintf(`casefold(%s) LIKE casefold(%s) ESCAPE '\'`, column, param)
	},
	timeArg: func(t time.Time) any { return t.UnixMicro() },
}

// SQLiteCatalog stores file records in a single SQLite database file.
// Timestamps are kept as Unix microseconds so equality filters are exact.
type SQLiteCatalog struct {
	db *sql.DB
}

var _ repository.FileCatalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens (creating if needed) the database at dbPath.
// WAL mode and a busy timeout let concurrent ingests queue on the write
// lock instead of failing with SQLITE_BUSY.
func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c := &SQLiteCatalog{db: db}
	if err := c.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return c, nil
}

// Close closes the database connection
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// initTables creates necessary database tables
func (c *SQLiteCatalog) initTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		storage_key TEXT NOT NULL,
		original_filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		size INTEGER NOT NULL,
		digest TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_digest ON files(digest);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_files_storage_key ON files(storage_key);
	CREATE INDEX IF NOT EXISTS idx_files_created_at ON files(created_at);
	CREATE INDEX IF NOT EXISTS idx_files_size ON files(size);
	`

	_, err := c.db.Exec(query)
	return err
}

// InsertIfDigestAbsent inserts rec unless its digest is already present.
// The single INSERT runs in autocommit mode, so the unique index is the
// only arbiter between racing ingests.
func (c *SQLiteCatalog) InsertIfDigestAbsent(ctx context.Context, rec *entities.FileRecord) (entities.InsertResult, error) {
	query := `
	INSERT INTO files (` + fileColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(digest) DO NOTHING
	`

	res, err := c.db.ExecContext(ctx, query,
		rec.ID, rec.StorageKey, rec.OriginalFilename, rec.ContentType,
		rec.Size, rec.Digest, rec.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return entities.InsertResult{}, fmt.Errorf("failed to insert file record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return entities.InsertResult{}, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 1 {
		return entities.InsertResult{Record: rec, Inserted: true}, nil
	}

	winner, err := c.FindByDigest(ctx, rec.Digest)
	if err != nil {
		return entities.InsertResult{}, fmt.Errorf("failed to load existing record: %w", err)
	}
	return entities.InsertResult{Record: winner, Inserted: false}, nil
}

// FindByDigest returns the record owning digest
func (c *SQLiteCatalog) FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE digest = ?`, digest)
	return scanSQLiteRecord(row)
}

// Get returns the record with the given id
func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM files WHERE id = ?`, id)
	return scanSQLiteRecord(row)
}

// List returns all records matching filter
func (c *SQLiteCatalog) List(ctx context.Context, filter entities.FileFilter) ([]*entities.FileRecord, error) {
	if err := repository.ValidateFileFilter(filter); err != nil {
		return nil, err
	}

	where, args := whereClause(filter, sqliteDialect)
	query := `SELECT ` + fileColumns + ` FROM files` + where + orderClause(filter.Sort)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	records := make([]*entities.FileRecord, 0)
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}

	return records, nil
}

// HasStorageKey reports whether any record references key
func (c *SQLiteCatalog) HasStorageKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM files WHERE storage_key = ?)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage key: %w", err)
	}
	return exists, nil
}

// Ping checks the database connection
func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*entities.FileRecord, error) {
	var (
		rec       entities.FileRecord
		createdAt int64
	)
	err := row.Scan(&rec.ID, &rec.StorageKey, &rec.OriginalFilename, &rec.ContentType,
		&rec.Size, &rec.Digest, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan file record: %w", err)
	}
	rec.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &rec, nil
}
