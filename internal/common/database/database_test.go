package database

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"template-ingest/internal/common/config"
	"template-ingest/internal/common/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Postgres
// ==========================

func TestPostgres_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range processedColumns {
		mock.ExpectExec(`ALTER TABLE templates ADD COLUMN IF NOT EXISTS`).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, NewPostgresFromDB(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_EnsureSchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`ALTER TABLE`).WillReturnError(assert.AnError)

	err = NewPostgresFromDB(db).EnsureSchema(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeQueryExecutionFailed))
}

func TestPostgres_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()
	mock.ExpectPing().WillReturnError(assert.AnError)

	client := NewPostgresFromDB(db)
	assert.NoError(t, client.Ping(context.Background()))

	err = client.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeDatabaseConnectionFailed))
}

// ==========================
// Redis
// ==========================

func TestRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()))

	down, err := NewRedis(config.RedisConfig{Address: "127.0.0.1:1"})
	require.NoError(t, err)
	defer down.Close()
	assert.Error(t, down.Ping(context.Background()))
}

func TestRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestRedis_URLAddress(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: "redis://" + mr.Addr() + "/2"})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, 2, client.GetClient().Options().DB)
	assert.NoError(t, client.Ping(context.Background()))

	_, err = NewRedis(config.RedisConfig{Address: "redis://" + mr.Addr() + "/notadb"})
	assert.Error(t, err)
}

func TestRedis_FromClient(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	client := NewRedisFromClient(rdb)
	assert.Same(t, rdb, client.GetClient())
	assert.NoError(t, client.Ping(context.Background()))
}

// ==========================
// Elasticsearch
// ==========================

func esServer(t *testing.T, existsStatus int) (*httptest.Server, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(existsStatus)
		case http.MethodPut:
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestElasticsearch_EnsureIndex(t *testing.T) {
	tests := []struct {
		name   string
		status int
		calls  []string
	}{
		{"already exists", http.StatusOK, []string{"HEAD /templates"}},
		{"created", http.StatusNotFound, []string{"HEAD /templates", "PUT /templates"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, calls := esServer(t, tt.status)
			client, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
			require.NoError(t, err)

			require.NoError(t, client.EnsureIndex(context.Background(), "templates"))
			assert.Equal(t, tt.calls, *calls)
		})
	}
}

func TestElasticsearch_EnsureIndexUnexpectedStatus(t *testing.T) {
	srv, _ := esServer(t, http.StatusForbidden)
	client, err := NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{srv.URL}})
	require.NoError(t, err)

	err = client.EnsureIndex(context.Background(), "templates")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeIndexingFailed))
}

func TestElasticsearch_Ping(t *testing.T) {
	srv, _ := esServer(t, http.StatusOK)
	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))
}
