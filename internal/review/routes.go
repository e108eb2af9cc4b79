package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/regdelta/regdelta/internal/mapper"
)

// RegisterRoutes mounts the mapping review API routes.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/mappings", func(r chi.Router) {
		r.Get("/", handleList(svc))
		r.Get("/pending", handlePending(svc))
		r.Get("/{id}", handleGet(svc))
		r.Post("/{id}/override", handleOverride(svc))
	})
}

func handleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := Filter{}
		if v := r.URL.Query().Get("run_id"); v != "" {
			filter.RunID = v
		}
		if v := r.URL.Query().Get("status"); v != "" {
			filter.Status = mapper.Status(v)
			if !filter.Status.Valid() {
				http.Error(w, `{"error":"invalid status"}`, http.StatusBadRequest)
				return
			}
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}

		mappings, err := svc.Store().List(r.Context(), filter)
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if mappings == nil {
			mappings = []mapper.Mapping{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mappings)
	}
}

func handlePending(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mappings, err := svc.Pending(r.Context(), r.URL.Query().Get("run_id"))
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}
		if mappings == nil {
			mappings = []mapper.Mapping{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mappings)
	}
}

func handleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := svc.Store().Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, ErrNotFound) {
			http.Error(w, `{"error":"mapping not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}

func handleOverride(svc *Service) http.HandlerFunc {
	type request struct {
		Status   string `json:"status"`
		Reviewer string `json:"reviewer"`
		Comment  string `json:"comment"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Reviewer == "" {
			http.Error(w, `{"error":"reviewer is required"}`, http.StatusBadRequest)
			return
		}
		status := mapper.Status(req.Status)
		if !status.Valid() {
			http.Error(w, `{"error":"invalid status"}`, http.StatusBadRequest)
			return
		}

		ov, err := svc.Override(r.Context(), chi.URLParam(r, "id"), status, req.Reviewer, req.Comment)
		switch {
		case errors.Is(err, ErrNotFound):
			http.Error(w, `{"error":"mapping not found"}`, http.StatusNotFound)
			return
		case errors.Is(err, ErrAlreadyOverridden):
			http.Error(w, `{"error":"mapping has already been overridden"}`, http.StatusConflict)
			return
		case err != nil:
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ov)
	}
}
