package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/pipeline"
	"github.com/regdelta/regdelta/internal/review"
)

func setupTestServer(t *testing.T) (*Server, *audit.Log) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	reviews := review.NewService(review.NewStore(database), log)
	srv := New(Config{Addr: "127.0.0.1:0"}, pipeline.NewStore(database), reviews, log)
	return srv, log
}

func TestHealthz(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != `{"status":"ok"}` {
		t.Errorf("healthz body = %s", got)
	}
}

func TestFeatureRoutesMounted(t *testing.T) {
	srv, log := setupTestServer(t)
	if _, err := log.Append(audit.ActorSystem, audit.ActionRunStarted, map[string]any{"run_id": "r1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/api/runs status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mappings", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/api/mappings status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/audit/verify", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("/api/audit/verify status = %d, want 200", w.Code)
	}
	var verify struct {
		Valid   bool  `json:"valid"`
		Entries int64 `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &verify); err != nil {
		t.Fatalf("decoding verify response: %v", err)
	}
	if !verify.Valid || verify.Entries != 1 {
		t.Errorf("verify = %+v, want valid with 1 entry", verify)
	}
}
