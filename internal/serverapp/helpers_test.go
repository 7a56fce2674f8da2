package serverapp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"tidb-hierarchy/internal/config"
)

func TestWrapHTTPHandler_UsesHTTPRootSpanName(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	originalTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(originalTP)
	})

	cfg := &config.Config{
		Observability: config.ObservabilityConfig{
			TracingEnabled: true,
		},
	}
	handler := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	for _, span := range recorder.Ended() {
		if span.Name() == "GET /health" {
			return
		}
	}
	t.Fatalf("expected GET /health span")
}

func TestWrapHTTPHandler_DisabledLeavesHandler(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := wrapHTTPHandler(&config.Config{}, testLogger(), inner)
	assert.NotNil(t, handler)
	_, wrapped := handler.(http.HandlerFunc)
	assert.True(t, wrapped)
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "graphql", input: "/graphql", expected: "/graphql"},
		{name: "health", input: "/health", expected: "/health"},
		{name: "metrics", input: "/metrics", expected: "/metrics"},
		{name: "root", input: "/", expected: "/"},
		{name: "unknown", input: "/nodes/123", expected: "/*"},
		{name: "empty", input: "", expected: "/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeHTTPSpanRoute(tt.input))
		})
	}
}

func TestHTTPRootSpanName(t *testing.T) {
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	assert.Equal(t, "POST /graphql", httpRootSpanName(req))
}

func TestDBSystemAttribute(t *testing.T) {
	assert.Equal(t, semconv.DBSystemMySQL, dbSystemAttribute(config.DriverMySQL))
	assert.Equal(t, semconv.DBSystemPostgreSQL, dbSystemAttribute(config.DriverPgx))
	assert.Equal(t, semconv.DBSystemPostgreSQL, dbSystemAttribute(config.DriverPostgres))
	assert.Equal(t, semconv.DBSystemSqlite, dbSystemAttribute(config.DriverSQLite))
}

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing()

		rec := httptest.NewRecorder()
		healthHandler(db, time.Second)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"status":"healthy","database":"ok"}`, rec.Body.String())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unhealthy", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		rec := httptest.NewRecorder()
		healthHandler(db, time.Second)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"unhealthy","database":"failed"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "refused")
	})
}

func TestWaitForDatabase_RetriesUntilDeadline(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("not yet"))
	mock.ExpectPing()

	cfg := &config.Config{Database: config.DatabaseConfig{
		ConnectionTimeout:       time.Second,
		ConnectionRetryInterval: 5 * time.Millisecond,
	}}
	require.NoError(t, waitForDatabase(context.Background(), cfg, testLogger(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWaitForDatabase_SingleAttempt(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("down"))

	err = waitForDatabase(context.Background(), &config.Config{}, testLogger(), db)
	assert.ErrorContains(t, err, "down")
}

const hierarchySchema = `
	CREATE TABLE nodes (id INTEGER PRIMARY KEY, parent_id INTEGER, name TEXT NOT NULL);
	INSERT INTO nodes (id, parent_id, name) VALUES
		(1, NULL, 'root'),
		(2, 1, 'two'),
		(3, 2, 'three'),
		(4, 3, 'four');
`

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()

	path := filepath.Join(t.TempDir(), "hierarchy.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(hierarchySchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:   config.DriverSQLite,
			Database: path,
			Pool:     config.PoolConfig{MaxOpen: 1, MaxIdle: 1},
		},
		Hierarchy: config.HierarchyConfig{
			Table:        "nodes",
			KeyColumn:    "id",
			ParentColumn: "parent_id",
		},
		Server: config.ServerConfig{
			HealthCheckTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "tidb-hierarchy",
			Logging:     config.LoggingConfig{Level: "error", Format: "text"},
		},
	}
}

func TestInit_ServesAncestorsOverHTTP(t *testing.T) {
	app, err := New(sqliteConfig(t), testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	// Second Init is a no-op.
	require.NoError(t, app.Init(context.Background()))

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	body := `{"query":"{ node(key: \"4\") { key ancestors { key depth } } }"}`
	resp, err := http.Post(srv.URL+"/graphql", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var payload struct {
		Data struct {
			Node struct {
				Key       string `json:"key"`
				Ancestors []struct {
					Key   string `json:"key"`
					Depth int    `json:"depth"`
				} `json:"ancestors"`
			} `json:"node"`
		} `json:"data"`
		Errors []json.RawMessage `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Empty(t, payload.Errors)
	assert.Equal(t, "4", payload.Data.Node.Key)
	require.Len(t, payload.Data.Node.Ancestors, 3)
	assert.Equal(t, "3", payload.Data.Node.Ancestors[0].Key)
	assert.Equal(t, -1, payload.Data.Node.Ancestors[0].Depth)
	assert.Equal(t, "1", payload.Data.Node.Ancestors[2].Key)
	assert.Equal(t, -3, payload.Data.Node.Ancestors[2].Depth)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	root, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	root.Body.Close()
	assert.Equal(t, http.StatusFound, root.StatusCode)
	assert.Equal(t, "/graphql", root.Header.Get("Location"))

	missing, err := http.Get(srv.URL + "/nodes")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestInit_RejectsMismatchedHierarchy(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Hierarchy.ParentColumn = "owner_id"

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner_id")
	assert.Nil(t, app.Handler())
}

func TestOpenHierarchy(t *testing.T) {
	h, err := OpenHierarchy(context.Background(), sqliteConfig(t), testLogger())
	require.NoError(t, err)
	defer h.Close()

	assert.True(t, h.IntegerKeys)
	assert.Equal(t, "nodes", h.Definition.Table)

	records, err := h.Loader.Nodes(context.Background(), h.Definition, []interface{}{int64(4)})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rows, err := h.Loader.Ancestors(context.Background(), h.Definition, records[0])
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, -3, rows[2].Depth)
}
