package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"model-registrar/internal/config"
	"model-registrar/internal/core/domain"
	ports "model-registrar/internal/core/ports/output"
)

const schema = `
CREATE TABLE IF NOT EXISTS registered_model (
	id          UUID PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	name        TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS model_version (
	id                  UUID PRIMARY KEY,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	registered_model_id UUID NOT NULL REFERENCES registered_model(id),
	version             BIGINT NOT NULL,
	source              TEXT NOT NULL,
	run_id              TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	UNIQUE (registered_model_id, version)
);
`

// Open creates a connection pool for cfg and verifies it with a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: parse db config: %w", domain.ErrRegistry, err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create db pool: %w", domain.ErrRegistry, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping db: %w", domain.ErrRegistry, err)
	}
	return pool, nil
}

// DB is the subset of *pgxpool.Pool the registry uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type modelVersionRepo struct {
	db  DB
	now func() time.Time
}

// NewModelVersionRepository returns a Registry storing versions in PostgreSQL.
func NewModelVersionRepository(db DB) ports.Registry {
	return &modelVersionRepo{db: db, now: time.Now}
}

// EnsureSchema creates the registry tables when they do not exist.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: ensure schema: %w", domain.ErrRegistry, err)
	}
	return nil
}

// Register assigns the next version of name inside one transaction. The
// registered_model row is locked, so concurrent registrations of the same
// name are serialized by the database.
func (r *modelVersionRepo) Register(ctx context.Context, name string, logged *domain.LoggedModel) (*domain.RegistryEntry, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin transaction: %w", domain.ErrRegistry, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now().UTC()

	var modelID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO registered_model (id, created_at, updated_at, name)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (name) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING id
	`, uuid.New(), now, name).Scan(&modelID)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert registered model %q: %w", domain.ErrRegistry, name, err)
	}

	if _, err := tx.Exec(ctx, `SELECT id FROM registered_model WHERE id = $1 FOR UPDATE`, modelID); err != nil {
		return nil, fmt.Errorf("%w: lock registered model %q: %w", domain.ErrRegistry, name, err)
	}

	var version int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM model_version WHERE registered_model_id = $1
	`, modelID).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("%w: next version of %q: %w", domain.ErrRegistry, name, err)
	}

	source := logged.ArtifactURI
	if source == "" {
		source = logged.ModelURI
	}
	entry := &domain.RegistryEntry{
		Name:      name,
		Version:   version,
		Source:    source,
		RunID:     logged.RunID,
		Status:    domain.VersionStatusReady,
		CreatedAt: now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO model_version (id, created_at, registered_model_id, version, source, run_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.New(), entry.CreatedAt, modelID, entry.Version, entry.Source, entry.RunID, string(entry.Status))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: version %s already exists", domain.ErrRegistry, entry.ID())
		}
		return nil, fmt.Errorf("%w: create model version: %w", domain.ErrRegistry, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", domain.ErrRegistry, err)
	}
	return entry, nil
}

func (r *modelVersionRepo) GetVersion(ctx context.Context, name string, version int64) (*domain.RegistryEntry, error) {
	query := `
		SELECT rm.name, mv.version, mv.source, mv.run_id, mv.status, mv.created_at
		FROM model_version mv
		JOIN registered_model rm ON rm.id = mv.registered_model_id
		WHERE rm.name = $1 AND mv.version = $2
	`
	var (
		entry  domain.RegistryEntry
		status string
	)
	err := r.db.QueryRow(ctx, query, name, version).Scan(
		&entry.Name, &entry.Version, &entry.Source, &entry.RunID, &status, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: model version %s:%d not found", domain.ErrRegistry, name, version)
		}
		return nil, fmt.Errorf("%w: get model version: %w", domain.ErrRegistry, err)
	}
	entry.Status = domain.VersionStatus(status)
	return &entry, nil
}
