package review

import (
	"context"
	"fmt"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/mapper"
)

// Service combines the store with the audit log so every override is
// both persisted and appended to the evidence chain.
type Service struct {
	store *Store
	log   *audit.Log
}

// NewService creates a review service.
func NewService(store *Store, log *audit.Log) *Service {
	return &Service{store: store, log: log}
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() *Store {
	return s.store
}

// Pending returns mappings still waiting on a reviewer decision.
func (s *Service) Pending(ctx context.Context, runID string) ([]mapper.Mapping, error) {
	return s.store.List(ctx, Filter{RunID: runID, Status: mapper.StatusReview})
}

// Override applies a reviewer decision and records it in the audit log.
// The audit entry is appended only after the database commit succeeds,
// so a failed override never leaves a phantom decision in the chain.
func (s *Service) Override(ctx context.Context, mappingID string, newStatus mapper.Status, reviewer, comment string) (*Override, error) {
	ov, err := s.store.ApplyOverride(ctx, mappingID, newStatus, reviewer, comment)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"mapping_id":      ov.MappingID,
		"previous_status": string(ov.PreviousStatus),
		"new_status":      string(ov.NewStatus),
		"comment":         ov.Comment,
	}
	if _, err := s.log.Append(reviewer, audit.ActionMappingOverride, payload); err != nil {
		return nil, fmt.Errorf("recording override in audit log: %w", err)
	}
	return ov, nil
}
