package postgres

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/storage"
)

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(nil, "blobs")
	require.Error(t, err)

	_, err = NewWithPool(mock, "blobs; DROP TABLE users")
	require.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, defaultTable, store.table)
}

func TestEnsureSchemaCreatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "snapshots")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS snapshots").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutObjectUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "snapshots")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs("indexes/site.json", "application/json", []byte(`{"version":1}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	uri, err := store.PutObject(context.Background(), "indexes/site.json", "application/json",
		bytes.NewReader([]byte(`{"version":1}`)))
	require.NoError(t, err)
	assert.Equal(t, "postgres://snapshots/indexes/site.json", uri)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutObjectWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "snapshots")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO snapshots").
		WithArgs("k", "", []byte("v")).
		WillReturnError(boom)

	_, err = store.PutObject(context.Background(), "k", "", bytes.NewReader([]byte("v")))
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObjectReadsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "snapshots")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM snapshots").
		WithArgs("indexes/site.json").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow([]byte(`{"version":1}`)))

	rc, err := store.GetObject(context.Background(), "indexes/site.json")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(got))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetObjectMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "snapshots")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM snapshots").
		WithArgs("missing.json").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetObject(context.Background(), "missing.json")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
