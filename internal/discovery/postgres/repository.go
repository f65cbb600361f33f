package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sh00ty/rendezvous/internal/models"
)

const (
	recordsTable    = "rendezvous"
	recordsPkeyName = "rendezvous_pkey"
)

const migrationSQL = `
create table if not exists rendezvous (
	name         text primary key,
	endpoint     text not null,
	published_at timestamptz not null default now()
);
`

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Repository is a discovery backend over one postgres table. The primary key
// on name gives create-only publish semantics.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepo(ctx context.Context, user, password, addr string, port uint16) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(
		fmt.Sprintf(
			"user=%s password=%s host=%s port=%d dbname=postgres sslmode=disable pool_max_conns=4",
			user, password, addr, port,
		),
	)
	if cfg == nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &Repository{
		db: pool,
	}, nil
}

func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.Exec(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("failed to create %s table: %w", recordsTable, err)
	}
	return nil
}

func publishQuery(name string, endpoint string) (string, []any, error) {
	return psql.Insert(recordsTable).
		Columns("name", "endpoint").
		Values(name, endpoint).
		ToSql()
}

func resolveQuery(name string) (string, []any, error) {
	return psql.Select("endpoint").
		From(recordsTable).
		Where(squirrel.Eq{"name": name}).
		ToSql()
}

func retractQuery(name string) (string, []any, error) {
	return psql.Delete(recordsTable).
		Where(squirrel.Eq{"name": name}).
		ToSql()
}

func publishError(name string, err error) error {
	constraint, ok := getConstraintName(err)
	if ok && constraint == recordsPkeyName {
		return fmt.Errorf("publish %s: %w", name, models.ErrAlreadyPublished)
	}
	return fmt.Errorf("failed to publish %s: %w", name, err)
}

func (r *Repository) Publish(ctx context.Context, name string, endpoint string) error {
	sql, args, err := publishQuery(name, endpoint)
	if err != nil {
		return fmt.Errorf("failed to create db request: %w", err)
	}
	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return publishError(name, err)
	}
	return nil
}

func (r *Repository) Resolve(ctx context.Context, name string) (string, error) {
	sql, args, err := resolveQuery(name)
	if err != nil {
		return "", fmt.Errorf("failed to create db request: %w", err)
	}
	var endpoint string
	err = r.db.QueryRow(ctx, sql, args...).Scan(&endpoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("resolve %s: %w", name, models.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to execute query: %w", err)
	}
	return endpoint, nil
}

func (r *Repository) Retract(ctx context.Context, name string) error {
	sql, args, err := retractQuery(name)
	if err != nil {
		return fmt.Errorf("failed to create db request: %w", err)
	}
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to retract %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("retract %s: %w", name, models.ErrNotFound)
	}
	return nil
}

func (r *Repository) Close() {
	r.db.Close()
}
