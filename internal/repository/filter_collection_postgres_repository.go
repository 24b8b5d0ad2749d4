package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/workbench/internal/db"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type postgresFilterCollectionRepository struct {
	pool pgQuerier
	tx   txRunner
}

// NewPostgresFilterCollectionRepository stores documents in the
// filter_collections table and keeps every saved version in
// filter_collection_revisions.
func NewPostgresFilterCollectionRepository(conn *db.Connection) FilterCollectionRepository {
	return &postgresFilterCollectionRepository{pool: conn.Pool, tx: conn}
}

func (r *postgresFilterCollectionRepository) Load(ctx context.Context, project string) ([]byte, error) {
	name, err := normalizeProject(project)
	if err != nil {
		return nil, err
	}
	var document string
	err = r.pool.QueryRow(ctx,
		`SELECT document FROM filter_collections WHERE project = $1`,
		name,
	).Scan(&document)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrFilterCollectionNotFound, name)
		}
		return nil, fmt.Errorf("failed to load filter collection: %w", err)
	}
	return []byte(document), nil
}

func (r *postgresFilterCollectionRepository) Save(ctx context.Context, project string, document []byte) error {
	name, err := normalizeProject(project)
	if err != nil {
		return err
	}
	return r.tx.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO filter_collections (project, document, updated_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (project) DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()`,
			name, string(document),
		); err != nil {
			return fmt.Errorf("failed to save filter collection: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO filter_collection_revisions (project, document) VALUES ($1, $2)`,
			name, string(document),
		); err != nil {
			return fmt.Errorf("failed to record filter collection revision: %w", err)
		}
		return nil
	})
}

func (r *postgresFilterCollectionRepository) Delete(ctx context.Context, project string) error {
	name, err := normalizeProject(project)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM filter_collections WHERE project = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete filter collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrFilterCollectionNotFound, name)
	}
	return nil
}

func (r *postgresFilterCollectionRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT project FROM filter_collections ORDER BY project`)
	if err != nil {
		return nil, fmt.Errorf("failed to list filter collections: %w", err)
	}
	projects, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan filter collections: %w", err)
	}
	return projects, nil
}
