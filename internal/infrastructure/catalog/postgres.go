package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zots0127/uploadstore/internal/domain/entities"
	"github.com/zots0127/uploadstore/internal/domain/repository"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	contains: func(column, param string) string {
		return fmt.Sprintf(`%s ILIKE %s ESCAPE '\'`, column, param)
	},
	timeArg: func(t time.Time) any { return t.UTC() },
}

// PostgresOptions holds connection settings for the PostgreSQL catalog
type PostgresOptions struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// URL renders the options in the given scheme. golang-migrate uses
// "pgx5", pgxpool accepts "postgres".
func (o PostgresOptions) URL(scheme string) string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(o.User, o.Password),
		Host:   fmt.Sprintf("%s:%d", o.Host, o.Port),
		Path:   "/" + o.Name,
	}
	if o.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(o.SSLMode)
	}
	return u.String()
}

// PostgresCatalog stores file records in PostgreSQL through a pgx pool
type PostgresCatalog struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ repository.FileCatalog = (*PostgresCatalog)(nil)

// NewPostgresCatalog applies pending migrations, then connects a pool and
// pings it
func NewPostgresCatalog(ctx context.Context, opts PostgresOptions, logger *slog.Logger) (*PostgresCatalog, error) {
	if err := Migrate(opts.URL("pgx5"), logger); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(opts.URL("postgres"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolCfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		slog.String("host", opts.Host),
		slog.Int("port", opts.Port),
		slog.String("database", opts.Name),
	)

	return &PostgresCatalog{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded SQL migrations to the database at dbURL
func Migrate(dbURL string, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Migrations applied",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}

// Close releases the pool
func (c *PostgresCatalog) Close() error {
	c.pool.Close()
	return nil
}

// InsertIfDigestAbsent inserts rec unless its digest is already present.
// RETURNING yields no row when the unique index rejected the insert.
func (c *PostgresCatalog) InsertIfDigestAbsent(ctx context.Context, rec *entities.FileRecord) (entities.InsertResult, error) {
	query := `
	INSERT INTO files (` + fileColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (digest) DO NOTHING
	RETURNING id
	`

	var id string
	err := c.pool.QueryRow(ctx, query,
		rec.ID, rec.StorageKey, rec.OriginalFilename, rec.ContentType,
		rec.Size, rec.Digest, rec.CreatedAt.UTC(),
	).Scan(&id)
	switch {
	case err == nil:
		return entities.InsertResult{Record: rec, Inserted: true}, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return entities.InsertResult{}, fmt.Errorf("failed to insert file record: %w", err)
	}

	winner, err := c.FindByDigest(ctx, rec.Digest)
	if err != nil {
		return entities.InsertResult{}, fmt.Errorf("failed to load existing record: %w", err)
	}
	return entities.InsertResult{Record: winner, Inserted: false}, nil
}

// FindByDigest returns the record owning digest
func (c *PostgresCatalog) FindByDigest(ctx context.Context, digest string) (*entities.FileRecord, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE digest = $1`, digest)
	return scanPostgresRecord(row)
}

// Get returns the record with the given id
func (c *PostgresCatalog) Get(ctx context.Context, id string) (*entities.FileRecord, error) {
	row := c.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	return scanPostgresRecord(row)
}

// List returns all records matching filter
func (c *PostgresCatalog) List(ctx context.Context, filter entities.FileFilter) ([]*entities.FileRecord, error) {
	if err := repository.ValidateFileFilter(filter); err != nil {
		return nil, err
	}

	where, args := whereClause(filter, postgresDialect)
	query := `SELECT ` + fileColumns + ` FROM files` + where + orderClause(filter.Sort)

	rows, err := c.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	records := make([]*entities.FileRecord, 0)
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
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
func (c *PostgresCatalog) HasStorageKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM files WHERE storage_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage key: %w", err)
	}
	return exists, nil
}

// Ping checks pool connectivity
func (c *PostgresCatalog) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

func scanPostgresRecord(row pgx.Row) (*entities.FileRecord, error) {
	var rec entities.FileRecord
	err := row.Scan(&rec.ID, &rec.StorageKey, &rec.OriginalFilename, &rec.ContentType,
		&rec.Size, &rec.Digest, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan file record: %w", err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return &rec, nil
}
