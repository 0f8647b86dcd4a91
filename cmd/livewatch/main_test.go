package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spdeepak/livewatch/channel"
	"github.com/spdeepak/livewatch/internal/bootstrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/streamers/metrics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quota":{"quotaUsed":101}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	require.NoError(t, fetchMetrics(context.Background(), srv.Client(), srv.URL+"/", &out))
	assert.Equal(t, "{\n  \"quota\": {\n    \"quotaUsed\": 101\n  }\n}\n", out.String())
}

func TestFetchMetricsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := fetchMetrics(context.Background(), srv.Client(), srv.URL, &bytes.Buffer{})
	require.ErrorContains(t, err, "500")
}

func TestResolvePrintsChannels(t *testing.T) {
	seed := filepath.Join(t.TempDir(), "channels.yaml")
	require.NoError(t, os.WriteFile(seed, []byte("channels:\n  - id: \"1\"\n    name: One\n    channel_id: UC1\n"), 0o600))

	cfg, err := bootstrap.LoadConfig("")
	require.NoError(t, err)
	cfg.SeedFile = seed
	cfg.DatabaseURL = ""
	cfg.RedisURL = ""
	cfg.KafkaBrokers = nil
	cfg.YouTubeAPIKey = ""

	var out bytes.Buffer
	require.NoError(t, resolve(context.Background(), cfg, 5*time.Second, &out))

	var got []channel.Channel
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "One", got[0].Name)
	assert.Equal(t, channel.StatusOffline, got[0].Status)
}
