package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRow struct {
	value string
	err   error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.value
	return nil
}

type stubQuerier struct {
	row      stubRow
	affected int64
	execSQL  []string
}

func (q *stubQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.execSQL = append(q.execSQL, sql)
	if q.affected == 0 {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (q *stubQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (q *stubQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	return q.row
}

// stubTx records statements; every other pgx.Tx method is unused.
type stubTx struct {
	pgx.Tx
	statements []string
	args       [][]any
	failOn     int
}

func (tx *stubTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.statements = append(tx.statements, sql)
	tx.args = append(tx.args, args)
	if tx.failOn == len(tx.statements) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

type stubTxRunner struct {
	tx *stubTx
}

func (r *stubTxRunner) WithTx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(r.tx)
}

func TestPostgresLoad(t *testing.T) {
	q := &stubQuerier{row: stubRow{value: "<doc/>"}}
	repo := &postgresFilterCollectionRepository{pool: q}

	data, err := repo.Load(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", string(data))

	q.row = stubRow{err: pgx.ErrNoRows}
	_, err = repo.Load(context.Background(), "alpha")
	assert.ErrorIs(t, err, ErrFilterCollectionNotFound)

	q.row = stubRow{err: errors.New("connection reset")}
	_, err = repo.Load(context.Background(), "alpha")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFilterCollectionNotFound)
}

func TestPostgresSaveWritesDocumentAndRevision(t *testing.T) {
	tx := &stubTx{}
	repo := &postgresFilterCollectionRepository{tx: &stubTxRunner{tx: tx}}

	require.NoError(t, repo.Save(context.Background(), " alpha ", []byte("<doc/>")))
	require.Len(t, tx.statements, 2)
	assert.Contains(t, tx.statements[0], "ON CONFLICT (project)")
	assert.Contains(t, tx.statements[1], "filter_collection_revisions")
	assert.Equal(t, []any{"alpha", "<doc/>"}, tx.args[1])
}

func TestPostgresSaveStopsOnFailure(t *testing.T) {
	tx := &stubTx{failOn: 1}
	repo := &postgresFilterCollectionRepository{tx: &stubTxRunner{tx: tx}}

	err := repo.Save(context.Background(), "alpha", []byte("<doc/>"))
	assert.ErrorContains(t, err, "failed to save filter collection")
	assert.Len(t, tx.statements, 1)
}

func TestPostgresDelete(t *testing.T) {
	q := &stubQuerier{affected: 1}
	repo := &postgresFilterCollectionRepository{pool: q}
	require.NoError(t, repo.Delete(context.Background(), "alpha"))

	q.affected = 0
	assert.ErrorIs(t, repo.Delete(context.Background(), "alpha"), ErrFilterCollectionNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), " "), ErrInvalidProject)
}
