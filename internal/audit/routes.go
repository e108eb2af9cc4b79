package audit

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts audit endpoints under /api/audit on the given router.
// The surface is read-only; entries are appended only through Log.Append.
func RegisterRoutes(r chi.Router, log *Log) {
	r.Route("/api/audit", func(r chi.Router) {
		r.Get("/", handleEntries(log))
		r.Get("/verify", handleVerify(log))
	})
}

func handleEntries(log *Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		entries, err := log.Entries()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		if v := q.Get("actor"); v != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if e.Actor == v {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if v := q.Get("action"); v != "" {
			filtered := entries[:0]
			for _, e := range entries {
				if e.Action == Action(v) {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < len(entries) {
				entries = entries[len(entries)-n:]
			}
		}
		if entries == nil {
			entries = []Entry{}
		}

		writeJSON(w, http.StatusOK, entries)
	}
}

func handleVerify(log *Log) http.HandlerFunc {
	type response struct {
		Valid      bool  `json:"valid"`
		Entries    int64 `json:"entries"`
		FirstBadAt int   `json:"first_bad_at"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		valid, firstBad, err := log.VerifyChain()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, response{
			Valid:      valid,
			Entries:    log.Len(),
			FirstBadAt: firstBad,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
