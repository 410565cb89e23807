package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/core/vectorstore"
	"github.com/markdave123-py/vectorsync/internal/models"
	"github.com/markdave123-py/vectorsync/internal/services"
	"github.com/markdave123-py/vectorsync/internal/testutil"
)

func testConfig() *config.Config {
	return &config.Config{
		Embedding: config.EmbeddingConfig{BatchSize: 2, MaxTokens: 8191},
		Vector:    config.VectorConfig{Backend: "memory", Distance: "cosine", UpsertBudget: 10 << 20, UpsertMaxSize: 100},
		Chunking:  config.ChunkingConfig{TargetChars: 1500, MinChars: 10, OverlapElements: 1, MaxRowsPerChunk: 50},
		Queue:     config.QueueConfig{Backend: "memory", Workers: 2},
		Server:    config.ServerConfig{Port: "0", AllowedOrigins: []string{"*"}},
		Identity:  config.IdentityConfig{Strict: true, AutoMigrate: true},
	}
}

type fixture struct {
	app   *App
	store *testutil.RecordStore
	srv   *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.NewRecordStore()
	a := Assemble(testConfig(), Infra{
		Store:    store,
		Index:    vectorstore.NewMemoryIndex(),
		Embedder: testutil.NewEmbedder(8),
	})
	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &fixture{app: a, store: store, srv: srv}
}

func (f *fixture) addCSV(t *testing.T, id int64, rows int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("id,desc\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%03d,%s\n", i, strings.Repeat("d", 26))
	}
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	f.store.Add(models.Source{ID: id, Name: "sales.csv", FilePath: path, DeclaredType: models.FileTypeCSV})
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestProcessThenStatusThenSearch(t *testing.T) {
	f := newFixture(t)
	f.addCSV(t, 42, 120)

	resp, body := f.do(t, http.MethodPost, "/api/sources/42/process", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res models.ProcessingResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, models.ResultSuccess, res.Status)
	assert.Equal(t, 4, res.Chunks)

	resp, body = f.do(t, http.MethodGet, "/api/sources/datasource_42", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view services.SourceView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, models.StatusConnected, view.Source.Status)
	assert.Equal(t, 100, view.Source.ProgressPercent)
	assert.Equal(t, 4, view.Source.Metrics.VectorsStored)

	resp, body = f.do(t, http.MethodPost, "/api/search", `{"collection":"42","query":"desc 001","threshold":0}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var sr services.SearchResponse
	require.NoError(t, json.Unmarshal(body, &sr))
	assert.Equal(t, "datasource_42", sr.Collection)
	assert.Len(t, sr.Hits, 4)
	assert.Equal(t, vectorstore.QueryKeyword, sr.Plan.Type)
}

func TestProcessErrors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/sources/42/process", `{"chunkSize":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/sources/42/process", `{"fileType":"pptx"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/api/sources/3f9a1c2e-8d4b-4a6f-9e21-7c5d0b8a1f34/process", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "UnresolvedIdentity")

	resp, body = f.do(t, http.MethodGet, "/api/sources/999", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not found")

	resp, _ = f.do(t, http.MethodPost, "/api/search", `{"collection":"42","query":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchMissingCollectionIsEmpty(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/search", `{"collection":"7","query":"how many orders"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sr services.SearchResponse
	require.NoError(t, json.Unmarshal(body, &sr))
	assert.Empty(t, sr.Hits)
	assert.Equal(t, vectorstore.QueryCount, sr.Plan.Type)
}

func TestProcessAsync(t *testing.T) {
	f := newFixture(t)
	f.addCSV(t, 9, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, f.app.Ingestor.Start(ctx, 1))

	resp, body := f.do(t, http.MethodPost, "/api/sources/9/process", `{"async":true}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"processing"`)

	require.Eventually(t, func() bool {
		return f.store.Source(9).Status == models.StatusConnected
	}, 5*time.Second, 10*time.Millisecond)
}

func TestEventsForFinishedSource(t *testing.T) {
	f := newFixture(t)
	f.store.Add(models.Source{ID: 5, DeclaredType: models.FileTypePDF, Status: models.StatusCompleted, ProgressPercent: 100})

	resp, body := f.do(t, http.MethodGet, "/api/sources/5/events", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, strings.Count(string(body), "event: progress"))
	assert.Contains(t, string(body), `"progress":100`)
}

func TestEventsStreamUntilTerminal(t *testing.T) {
	f := newFixture(t)
	f.store.Add(models.Source{ID: 6, DeclaredType: models.FileTypeCSV, Status: models.StatusProcessing, ProgressPercent: 10})

	resp, err := http.Get(f.srv.URL + "/api/sources/6/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)

	readEvent := func() models.ProgressEvent {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var ev models.ProgressEvent
				require.NoError(t, json.Unmarshal([]byte(data), &ev))
				return ev
			}
		}
	}

	first := readEvent()
	assert.Equal(t, 10, first.Progress)

	ctx := context.Background()
	require.Eventually(t, func() bool { return f.app.Broker.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.app.Broker.Publish(ctx, models.ProgressEvent{ID: 7, Status: models.StatusProcessing, Progress: 50}))
	require.NoError(t, f.app.Broker.Publish(ctx, models.ProgressEvent{ID: 6, Status: models.StatusProcessing, Progress: 60}))
	require.NoError(t, f.app.Broker.Publish(ctx, models.ProgressEvent{ID: 6, Status: models.StatusConnected, Progress: 100}))

	assert.Equal(t, 60, readEvent().Progress)
	last := readEvent()
	assert.Equal(t, models.StatusConnected, last.Status)

	rest, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.NotContains(t, string(rest), "data:", "stream ends after the terminal event")
}
