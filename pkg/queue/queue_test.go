package queue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientPendingTasks(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"pendingTasks": 10}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	n, err := c.PendingTasks(context.Background(), "prov-1", "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "/v1/pending/prov-1/worker-a", gotPath)
}

func TestHTTPClientEscapesPath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"pendingTasks": 0}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL).PendingTasks(context.Background(), "prov/1", "worker a")
	require.NoError(t, err)
	assert.Equal(t, "/v1/pending/prov%2F1/worker%20a", gotPath)
}

func TestHTTPClientErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "error body", status: http.StatusNotFound, body: `{"error": "unknown pool"}`, want: "unknown pool"},
		{name: "plain body", status: http.StatusBadGateway, body: "upstream down", want: "HTTP 502"},
		{name: "malformed json", status: http.StatusOK, body: "{", want: "parsing response"},
		{name: "negative count", status: http.StatusOK, body: `{"pendingTasks": -1}`, want: "negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL).PendingTasks(context.Background(), "prov-1", "worker-a")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPClientHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pendingTasks": 1}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewHTTPClient(srv.URL).PendingTasks(ctx, "prov-1", "worker-a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic(t *testing.T) {
	s := Static{"worker-a": 10}

	n, err := s.PendingTasks(context.Background(), "prov-1", "worker-a")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = s.PendingTasks(context.Background(), "prov-1", "worker-b")
	require.NoError(t, err)
	assert.Zero(t, n)
}
