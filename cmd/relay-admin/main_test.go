package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngoyal88/studybuddy-relay/pkg/ledger"
)

func TestEnsureEnvKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")

	added, err := ensureEnvKey(path, apiKeyVar)
	require.NoError(t, err)
	assert.True(t, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OPENAI_API_KEY=\n", string(data))

	added, err = ensureEnvKey(path, apiKeyVar)
	require.NoError(t, err)
	assert.False(t, added)
}

func TestEnsureEnvKey_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("RELAY_SERVER_PORT=:8080"), 0600))

	added, err := ensureEnvKey(path, apiKeyVar)
	require.NoError(t, err)
	assert.True(t, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RELAY_SERVER_PORT=:8080\nOPENAI_API_KEY=\n", string(data))
}

func TestFetchDashboard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/dashboard", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stats":{"totalRequests":3,"successfulRequests":2,"failedRequests":1},"logs":[],"activity":[]}`))
	}))
	defer srv.Close()

	d, err := fetchDashboard(context.Background(), srv.Client(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, 3, d.Stats.TotalRequests)
	assert.Equal(t, 1, d.Stats.FailedRequests)
}

func TestFetchDashboard_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"Failed to fetch dashboard data"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fetchDashboard(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPrintStats(t *testing.T) {
	var buf bytes.Buffer
	printStats(&buf, &dashboard{
		Stats: ledger.Stats{TotalRequests: 4, SuccessfulRequests: 3, FailedRequests: 1},
		Logs: []ledger.Entry{
			{Timestamp: time.Now(), Client: "1.2.3.4", Success: false, Error: "client disconnected"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "75.0% success")
	assert.Contains(t, out, "client=1.2.3.4")
	assert.Contains(t, out, "failed: client disconnected")
}
