package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/regdelta/regdelta/internal/db"
)

func setupRunRouter(t *testing.T) (*chi.Mux, *Store) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s := NewStore(database)
	r := chi.NewRouter()
	RegisterRoutes(r, s)
	return r, s
}

func TestRoutesListRuns(t *testing.T) {
	r, s := setupRunRouter(t)
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2"} {
		if err := s.CreateRun(ctx, Run{ID: id, Scenario: "test", NewPath: "new.txt", State: StageIngest}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var runs []Run
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding runs: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("list returned %d runs, want 2", len(runs))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil))
	if err := json.Unmarshal(w.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decoding limited runs: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("limited list returned %d runs, want 1", len(runs))
	}
}

func TestRoutesGetRunAndArtifact(t *testing.T) {
	r, s := setupRunRouter(t)
	ctx := context.Background()
	if err := s.CreateRun(ctx, Run{ID: "run-1", Scenario: "test", NewPath: "new.txt", State: StageIngest}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.SaveArtifact(ctx, Artifact{RunID: "run-1", Stage: StageIngest, OutputDigest: "d1", Payload: []byte(`{"paragraphs":2}`)}); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get run status = %d, want 200", w.Code)
	}
	var run Run
	if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
		t.Fatalf("decoding run: %v", err)
	}
	if run.Scenario != "test" {
		t.Errorf("scenario = %q, want test", run.Scenario)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/artifacts/ingest", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get artifact status = %d, want 200", w.Code)
	}
	var a Artifact
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatalf("decoding artifact: %v", err)
	}
	if a.OutputDigest != "d1" {
		t.Errorf("artifact digest = %q, want d1", a.OutputDigest)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", w.Code)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/artifacts/plan", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing artifact status = %d, want 404", w.Code)
	}
}
