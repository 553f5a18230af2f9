package handlers_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fluxbatch/internal/batch"
	"fluxbatch/internal/domain"
	"fluxbatch/internal/flux"
	"fluxbatch/internal/http/handlers"
	"fluxbatch/internal/http/httpapi"
	"fluxbatch/internal/retry"
	"fluxbatch/internal/storage"
)

// instantGenerator succeeds immediately with fixed bytes.
type instantGenerator struct{}

func (instantGenerator) Generate(ctx context.Context, req flux.GenerateRequest) (*domain.Artifact, error) {
	return &domain.Artifact{Format: req.Params.OutputFormat, Width: req.Params.Width, Height: req.Params.Height, Data: []byte("img:" + req.Prompt)}, nil
}

func newTestServer(t *testing.T) (http.Handler, *batch.Controller, *storage.FileStore) {
	t.Helper()
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	recorder := storage.NewRecorder(files, nil, zerolog.Nop())
	controller, err := batch.NewController(instantGenerator{}, recorder, batch.Config{
		MaxConcurrency: 2,
		RateLimitRPS:   1000,
		RateLimitBurst: 100,
		Policy:         retry.Policy{MaxAttempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond},
		RequestTimeout: 5 * time.Second,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}

	app := &handlers.App{Controller: controller, Files: files, Logger: zerolog.Nop()}
	return httpapi.NewRouter(app, zerolog.Nop()), controller, files
}

func startRun(t *testing.T, handler http.Handler, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if out["run_id"] == "" {
		t.Fatalf("start response missing run_id: %s", rec.Body.String())
	}
	return out["run_id"]
}

func waitCompleted(t *testing.T, controller *batch.Controller, runID string) batch.Snapshot {
	t.Helper()
	run, err := controller.Get(runID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := run.Wait(ctx); err != nil {
		t.Fatalf("run did not complete: %v", err)
	}
	return run.Snapshot()
}

func TestStartAndGetBatch(t *testing.T) {
	handler, controller, _ := newTestServer(t)

	runID := startRun(t, handler, `{"name":"postcards","prompts":["a","b"]}`)
	waitCompleted(t, controller, runID)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/"+runID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	var snapshot batch.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Name != "postcards" {
		t.Fatalf("name = %q", snapshot.Name)
	}
	if snapshot.State != domain.RunStateCompleted {
		t.Fatalf("state = %s", snapshot.State)
	}
	if snapshot.Counters.Succeeded != 2 {
		t.Fatalf("counters = %+v", snapshot.Counters)
	}
}

func TestStartBatchAppliesDefaultsToOmittedParams(t *testing.T) {
	handler, controller, _ := newTestServer(t)

	runID := startRun(t, handler, `{"prompts":["a"],"params":{"width":512,"height":512}}`)
	snapshot := waitCompleted(t, controller, runID)
	if snapshot.Counters.Succeeded != 1 {
		t.Fatalf("counters = %+v; omitted params should fall back to defaults", snapshot.Counters)
	}
}

func TestStartBatchRejectsInvalidBody(t *testing.T) {
	handler, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"prompts":`},
		{name: "empty prompts", body: `{"prompts":[]}`},
		{name: "blank prompt", body: `{"prompts":["ok",""]}`},
		{name: "bad width", body: `{"prompts":["ok"],"params":{"width":1000}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGetBatchUnknownRun(t *testing.T) {
	handler, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCancelBatch(t *testing.T) {
	handler, controller, _ := newTestServer(t)
	runID := startRun(t, handler, `{"prompts":["a"]}`)

	req := httptest.NewRequest(http.MethodDelete, "/v1/batches/"+runID, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	waitCompleted(t, controller, runID)

	req = httptest.NewRequest(http.MethodDelete, "/v1/batches/unknown", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown status = %d, want 404", rec.Code)
	}
}

func TestBatchEventsStream(t *testing.T) {
	handler, _, _ := newTestServer(t)
	runID := startRun(t, handler, `{"prompts":["a"]}`)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/"+runID+"/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("events status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"new_state":"RUNNING"`) || !strings.Contains(body, `"new_state":"SUCCEEDED"`) {
		t.Fatalf("stream missing transitions: %s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("stream missing terminator: %s", body)
	}
}

func TestBatchArchive(t *testing.T) {
	handler, controller, _ := newTestServer(t)
	runID := startRun(t, handler, `{"name":"trip","prompts":["a","b"]}`)
	waitCompleted(t, controller, runID)

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/"+runID+"/archive", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Fatalf("content type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "trip.zip") {
		t.Fatalf("disposition = %q", got)
	}

	reader, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(reader.File) != 2 {
		t.Fatalf("archive files = %d, want 2", len(reader.File))
	}
}

func TestHistoryDisabledWithoutDatabase(t *testing.T) {
	handler, _, _ := newTestServer(t)

	for _, path := range []string{"/v1/history", "/v1/favorites"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	handler, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}
