package review

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/extract"
	"github.com/regdelta/regdelta/internal/mapper"
)

func setupTestService(t *testing.T) (*Service, *audit.Log) {
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

	return NewService(NewStore(database), log), log
}

// seedMappings inserts a run, one obligation, and the given mappings.
func seedMappings(t *testing.T, svc *Service, runID string, mappings []mapper.Mapping) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Store().db.Exec(
		`INSERT INTO runs (id, scenario, new_path, state) VALUES (?, 'test', 'new.txt', 'done')`, runID)
	if err != nil {
		t.Fatalf("inserting run: %v", err)
	}
	obs := []extract.Obligation{{
		ID:          "ob-1",
		DocumentID:  "doc-1",
		Text:        "All data must be encrypted at rest.",
		Severity:    extract.SeverityHigh,
		ModalPhrase: "must",
		Excerpt:     "All data must be encrypted at rest.",
		Citations:   []string{"Section 4"},
	}}
	if err := svc.Store().SaveObligations(ctx, runID, obs); err != nil {
		t.Fatalf("SaveObligations: %v", err)
	}
	if err := svc.Store().SaveMappings(ctx, runID, map[string][]mapper.Mapping{"ob-1": mappings}); err != nil {
		t.Fatalf("SaveMappings: %v", err)
	}
}

func testMappings() []mapper.Mapping {
	return []mapper.Mapping{
		{
			ID: "map-1", ObligationID: "ob-1", ControlID: "DP-01", ControlTitle: "Encrypt data at rest",
			CosineScore: 0.9, FuzzyScore: 0.8, BlendedScore: 0.87,
			Status: mapper.StatusAccepted, AutoStatus: mapper.StatusAccepted,
		},
		{
			ID: "map-2", ObligationID: "ob-1", ControlID: "AC-01", ControlTitle: "Access reviews",
			CosineScore: 0.6, FuzzyScore: 0.7, BlendedScore: 0.63,
			Status: mapper.StatusReview, AutoStatus: mapper.StatusReview,
		},
	}
}

func TestStoreSaveAndList(t *testing.T) {
	svc, _ := setupTestService(t)
	seedMappings(t, svc, "run-1", testMappings())

	got, err := svc.Store().List(context.Background(), Filter{RunID: "run-1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d mappings, want 2", len(got))
	}
	if got[0].ID != "map-1" {
		t.Errorf("first mapping = %s, want map-1 (highest blended score)", got[0].ID)
	}
	if got[1].ID != "map-2" {
		t.Errorf("second mapping = %s, want map-2", got[1].ID)
	}
}

func TestStoreListStatusFilter(t *testing.T) {
	svc, _ := setupTestService(t)
	seedMappings(t, svc, "run-1", testMappings())

	got, err := svc.Store().List(context.Background(), Filter{Status: mapper.StatusReview})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != "map-2" {
		t.Fatalf("List(review) = %v, want just map-2", got)
	}
}

func TestStoreGet(t *testing.T) {
	svc, _ := setupTestService(t)
	seedMappings(t, svc, "run-1", testMappings())

	m, err := svc.Store().Get(context.Background(), "map-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.ControlID != "DP-01" {
		t.Errorf("ControlID = %q, want DP-01", m.ControlID)
	}
	if m.AutoStatus != mapper.StatusAccepted {
		t.Errorf("AutoStatus = %q, want accepted", m.AutoStatus)
	}

	if _, err := svc.Store().Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOverrideAppliedExactlyOnce(t *testing.T) {
	svc, log := setupTestService(t)
	seedMappings(t, svc, "run-1", testMappings())
	ctx := context.Background()

	ov, err := svc.Override(ctx, "map-2", mapper.StatusAccepted, "alice", "matches control intent")
	if err != nil {
		t.Fatalf("Override: %v", err)
	}
	if ov.PreviousStatus != mapper.StatusReview {
		t.Errorf("PreviousStatus = %q, want review", ov.PreviousStatus)
	}
	if ov.NewStatus != mapper.StatusAccepted {
		t.Errorf("NewStatus = %q, want accepted", ov.NewStatus)
	}

	m, err := svc.Store().Get(ctx, "map-2")
	if err != nil {
		t.Fatalf("Get after override: %v", err)
	}
	if m.Status != mapper.StatusAccepted {
		t.Errorf("status after override = %q, want accepted", m.Status)
	}
	if m.AutoStatus != mapper.StatusReview {
		t.Errorf("auto status after override = %q, want review (provenance preserved)", m.AutoStatus)
	}
	if m.Reviewer != "alice" {
		t.Errorf("reviewer = %q, want alice", m.Reviewer)
	}

	// Second decision on the same mapping must be refused, even if it
	// requests a different status.
	if _, err := svc.Override(ctx, "map-2", mapper.StatusRejected, "bob", ""); !errors.Is(err, ErrAlreadyOverridden) {
		t.Fatalf("second Override error = %v, want ErrAlreadyOverridden", err)
	}

	entries, err := log.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1 (failed override must not be recorded)", len(entries))
	}
	if entries[0].Actor != "alice" || entries[0].Action != audit.ActionMappingOverride {
		t.Errorf("audit entry = %s/%s, want alice/%s", entries[0].Actor, entries[0].Action, audit.ActionMappingOverride)
	}
}

func TestOverrideValidation(t *testing.T) {
	svc, _ := setupTestService(t)
	seedMappings(t, svc, "run-1", testMappings())
	ctx := context.Background()

	if _, err := svc.Override(ctx, "map-1", mapper.Status("bogus"), "alice", ""); err == nil {
		t.Error("override with invalid status should fail")
	}
	if _, err := svc.Override(ctx, "map-1", mapper.StatusRejected, "", ""); err == nil {
		t.Error("override without reviewer should fail")
	}
	if _, err := svc.Override(ctx, "missing", mapper.StatusRejected, "alice", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("override on missing mapping error = %v, want ErrNotFound", err)
	}
}

func setupTestRouter(t *testing.T) (*chi.Mux, *Service) {
	t.Helper()
	svc, _ := setupTestService(t)
	r := chi.NewRouter()
	RegisterRoutes(r, svc)
	return r, svc
}

func TestRoutesListAndPending(t *testing.T) {
	r, svc := setupTestRouter(t)
	seedMappings(t, svc, "run-1", testMappings())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mappings?run_id=run-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var all []mapper.Mapping
	if err := json.Unmarshal(w.Body.Bytes(), &all); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("list returned %d mappings, want 2", len(all))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mappings/pending?run_id=run-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("pending status = %d, want 200", w.Code)
	}
	var pending []mapper.Mapping
	if err := json.Unmarshal(w.Body.Bytes(), &pending); err != nil {
		t.Fatalf("decoding pending response: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "map-2" {
		t.Errorf("pending = %v, want just map-2", pending)
	}
}

func TestRoutesGetNotFound(t *testing.T) {
	r, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/mappings/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}
}

func TestRoutesOverride(t *testing.T) {
	r, svc := setupTestRouter(t)
	seedMappings(t, svc, "run-1", testMappings())

	body := `{"status":"accepted","reviewer":"alice","comment":"ok"}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mappings/map-2/override", bytes.NewReader([]byte(body))))
	if w.Code != http.StatusOK {
		t.Fatalf("override status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var ov Override
	if err := json.Unmarshal(w.Body.Bytes(), &ov); err != nil {
		t.Fatalf("decoding override response: %v", err)
	}
	if ov.NewStatus != mapper.StatusAccepted || ov.Reviewer != "alice" {
		t.Errorf("override = %+v, want accepted by alice", ov)
	}

	// Replay is a conflict.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mappings/map-2/override", bytes.NewReader([]byte(body))))
	if w.Code != http.StatusConflict {
		t.Errorf("replayed override status = %d, want 409", w.Code)
	}
}

func TestRoutesOverrideValidation(t *testing.T) {
	r, svc := setupTestRouter(t)
	seedMappings(t, svc, "run-1", testMappings())

	cases := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing reviewer", `{"status":"accepted"}`, http.StatusBadRequest},
		{"bad status", `{"status":"maybe","reviewer":"alice"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/mappings/map-1/override", bytes.NewReader([]byte(tc.body))))
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
