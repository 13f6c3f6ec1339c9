package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Sternrassler/userlink-enricher/pkg/user"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id            BIGINT PRIMARY KEY,
		external_link TEXT   NOT NULL DEFAULT ''
	)
`

// Postgres stores user records in PostgreSQL.
type Postgres struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger
}

// OpenPostgres connects to cfg.DSN and verifies the connection.
func OpenPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewPostgres(db, cfg), nil
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB, cfg Config) *Postgres {
	return &Postgres{
		db:     db,
		config: cfg,
		logger: log.With().Str("component", "store").Logger(),
	}
}

// EnsureSchema creates the users table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database handle.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// LoadBatch returns up to BatchLimit records ordered by ID.
func (p *Postgres) LoadBatch(ctx context.Context) ([]user.Record, error) {
	var limit sql.NullInt64
	if p.config.BatchLimit > 0 {
		limit = sql.NullInt64{Int64: int64(p.config.BatchLimit), Valid: true}
	}

	// LIMIT NULL returns all rows
	rows, err := p.db.QueryContext(ctx, `SELECT id, external_link FROM users ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	var records []user.Record
	for rows.Next() {
		var rec user.Record
		if err := rows.Scan(&rec.ID, &rec.ExternalLink); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	return records, nil
}

// FindByID returns the record with the given ID or ErrNotFound.
func (p *Postgres) FindByID(ctx context.Context, id int64) (user.Record, error) {
	rec := user.Record{ID: id}
	err := p.db.QueryRowContext(ctx, `SELECT external_link FROM users WHERE id = $1`, id).Scan(&rec.ExternalLink)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.Record{}, ErrNotFound
		}
		return user.Record{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return rec, nil
}

// SaveUpdated writes the links of records in one transaction and returns
// the IDs of the rows it changed, in ascending order.
// Without Overwrite, rows that already carry a link are left untouched.
func (p *Postgres) SaveUpdated(ctx context.Context, records []user.Record) ([]int64, error) {
	if len(records) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(records))
	links := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		links[i] = rec.ExternalLink
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		UPDATE users AS u
		SET external_link = v.link
		FROM unnest($1::bigint[], $2::text[]) AS v(id, link)
		WHERE u.id = v.id
		  AND (u.external_link = '' OR $3::boolean)
		RETURNING u.id
	`
	rows, err := tx.QueryContext(ctx, query, pq.Array(ids), pq.Array(links), p.config.Overwrite)
	if err != nil {
		return nil, fmt.Errorf("save links: %w", err)
	}

	var applied []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan saved id: %w", err)
		}
		applied = append(applied, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("save links: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit links: %w", err)
	}

	sort.Slice(applied, func(i, j int) bool { return applied[i] < applied[j] })
	p.logger.Debug().
		Int("records", len(records)).
		Int("applied", len(applied)).
		Msg("Saved user links")

	return applied, nil
}

// Insert adds records, ignoring IDs that already exist.
func (p *Postgres) Insert(ctx context.Context, records ...user.Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]int64, len(records))
	links := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		links[i] = rec.ExternalLink
	}

	query := `
		INSERT INTO users (id, external_link)
		SELECT * FROM unnest($1::bigint[], $2::text[])
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := p.db.ExecContext(ctx, query, pq.Array(ids), pq.Array(links)); err != nil {
		return fmt.Errorf("insert users: %w", err)
	}
	return nil
}
