package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewClient(log, baseURL, 5*time.Second)
}

func TestClient_Version(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/version", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"version": "0.5.7"}`))
	})

	c := newTestClient(t, srv.URL)

	version, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.5.7", version)
}

func TestClient_Health(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"version": "0.5.7"}`))
	})

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Health(context.Background()))
}

func TestClient_Health_ServerDown(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	c := newTestClient(t, srv.URL)

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to reach ollama")
}

func TestClient_Health_ErrorStatus(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	c := newTestClient(t, srv.URL)

	err := c.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_ListModels(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)

		_, _ = w.Write([]byte(`{
			"models": [
				{"name": "llama2:latest", "size": 3825819519, "modified_at": "2025-03-01T10:00:00Z"},
				{"name": "codellama:13b", "size": 7365960935, "modified_at": "2025-03-02T11:30:00Z"}
			]
		}`))
	})

	c := newTestClient(t, srv.URL)

	installed, err := c.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, installed, 2)

	assert.Equal(t, "llama2:latest", installed[0].Name)
	assert.Equal(t, int64(3825819519), installed[0].Size)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), installed[0].ModifiedAt)
	assert.Equal(t, "codellama:13b", installed[1].Name)
}

func TestClient_ListModels_Empty(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models": []}`))
	})

	c := newTestClient(t, srv.URL)

	installed, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestClient_ListModels_BadJSON(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models": [`))
	})

	c := newTestClient(t, srv.URL)

	_, err := c.ListModels(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode response")
}

func TestClient_HasModel(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"models": [
				{"name": "llama2:latest", "size": 1},
				{"name": "codellama:13b", "size": 1}
			]
		}`))
	})

	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	tests := []struct {
		name      string
		model     string
		installed bool
	}{
		{name: "exact tag", model: "codellama:13b", installed: true},
		{name: "bare name matches latest", model: "llama2", installed: true},
		{name: "bare name matches any tag", model: "codellama", installed: true},
		{name: "missing tag", model: "llama2:70b", installed: false},
		{name: "missing model", model: "mistral", installed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := c.HasModel(ctx, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.installed, ok)
		})
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	var gotPath string

	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path

		_, _ = w.Write([]byte(`{"version": "0.5.7"}`))
	})

	c := newTestClient(t, srv.URL+"/")

	_, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/api/version", gotPath)
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Health(ctx)
	require.Error(t, err)
}
