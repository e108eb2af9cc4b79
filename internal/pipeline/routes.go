package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the read-only run API routes.
func RegisterRoutes(r chi.Router, store *Store) {
	r.Route("/api/runs", func(r chi.Router) {
		r.Get("/", handleListRuns(store))
		r.Get("/{id}", handleGetRun(store))
		r.Get("/{id}/artifacts/{stage}", handleGetArtifact(store))
	})
}

func handleListRuns(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}

		runs, err := store.ListRuns(r.Context(), limit)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []Run{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}
}

func handleGetRun(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := store.GetRun(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, `{"error":"run not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(run)
	}
}

func handleGetArtifact(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artifact, err := store.GetArtifact(r.Context(), chi.URLParam(r, "id"), Stage(chi.URLParam(r, "stage")))
		if errors.Is(err, ErrRunNotFound) {
			http.Error(w, `{"error":"artifact not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(artifact)
	}
}
