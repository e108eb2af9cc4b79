// Package mapper matches extracted obligations against the control
// catalog using a blend of embedding cosine similarity and lexical fuzzy
// matching, then gates each candidate into a review status by configured
// thresholds.
package mapper

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/regdelta/regdelta/internal/catalog"
	"github.com/regdelta/regdelta/internal/extract"
)

// Status is the review state of a mapping candidate.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusReview   Status = "review"
	StatusRejected Status = "rejected"
)

// Rank orders statuses rejected < review < accepted.
func (s Status) Rank() int {
	switch s {
	case StatusAccepted:
		return 2
	case StatusReview:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusAccepted || s == StatusReview || s == StatusRejected
}

// Mapping is one obligation-control candidate with its component scores.
// Status is derived automatically at creation; a reviewer may later
// override it exactly once, which is recorded as a separate event rather
// than a silent mutation.
type Mapping struct {
	ID           string    `json:"id"`
	ObligationID string    `json:"obligation_id"`
	ControlID    string    `json:"control_id"`
	ControlTitle string    `json:"control_title"`
	CosineScore  float64   `json:"cosine_score"`
	FuzzyScore   float64   `json:"fuzzy_score"`
	BlendedScore float64   `json:"blended_score"`
	Status       Status    `json:"status"`
	AutoStatus   Status    `json:"auto_status"`
	Reviewer     string    `json:"reviewer,omitempty"`
	Comment      string    `json:"comment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Options configures scoring and gating.
type Options struct {
	CosineWeight  float64
	LexicalWeight float64
	ThresholdHigh float64
	ThresholdLow  float64
	TopK          int
}

// DefaultOptions mirror the shipped configuration.
func DefaultOptions() Options {
	return Options{
		CosineWeight:  0.7,
		LexicalWeight: 0.3,
		ThresholdHigh: 0.75,
		ThresholdLow:  0.60,
		TopK:          5,
	}
}

// Validate enforces 0 <= T_low <= T_high <= 1 and positive weights.
func (o Options) Validate() error {
	if o.ThresholdLow < 0 || o.ThresholdHigh > 1 || o.ThresholdLow > o.ThresholdHigh {
		return fmt.Errorf("thresholds must satisfy 0 <= low (%v) <= high (%v) <= 1", o.ThresholdLow, o.ThresholdHigh)
	}
	if o.CosineWeight < 0 || o.LexicalWeight < 0 {
		return fmt.Errorf("blend weights must be non-negative")
	}
	if o.TopK < 1 {
		return fmt.Errorf("top_k must be at least 1")
	}
	return nil
}

// Mapper scores obligations against an indexed catalog.
type Mapper struct {
	index *Index
	cat   *catalog.Catalog
	opts  Options
}

// New returns a Mapper. The index must have been built (or loaded) from
// the same catalog version; a mismatch surfaces on the first MapCandidates
// call as ErrStaleIndex.
func New(index *Index, cat *catalog.Catalog, opts Options) (*Mapper, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Mapper{index: index, cat: cat, opts: opts}, nil
}

// MapCandidates returns the top-k candidate controls for the obligation,
// ranked by blended score descending with ties broken by control_id
// ascending. An empty catalog yields an empty result, not an error.
func (m *Mapper) MapCandidates(ctx context.Context, ob extract.Obligation, k int) ([]Mapping, error) {
	if len(m.cat.Controls) == 0 {
		return nil, nil
	}
	if m.index.Version != m.cat.Version {
		return nil, fmt.Errorf("index version %.12s vs catalog %.12s: %w",
			m.index.Version, m.cat.Version, ErrStaleIndex)
	}
	if k <= 0 {
		k = m.opts.TopK
	}

	semantic, err := m.index.scoreAll(ctx, ob.Text)
	if err != nil {
		return nil, fmt.Errorf("semantic scoring for obligation %s: %w", ob.ID, err)
	}

	now := time.Now().UTC()
	candidates := make([]Mapping, 0, len(m.cat.Controls))
	for _, c := range m.cat.Controls {
		sem := clamp01(semantic[c.ControlID])
		lex := clamp01(TokenSetRatio(ob.Text, c.EmbeddingText()))
		blended := clamp01(m.opts.CosineWeight*sem + m.opts.LexicalWeight*lex)
		status := StatusFor(blended, m.opts)

		candidates = append(candidates, Mapping{
			ID:           uuid.New().String(),
			ObligationID: ob.ID,
			ControlID:    c.ControlID,
			ControlTitle: c.Title,
			CosineScore:  sem,
			FuzzyScore:   lex,
			BlendedScore: blended,
			Status:       status,
			AutoStatus:   status,
			Timestamp:    now,
		})
	}

	// Explicit stable key (-blended, control_id); never rely on insertion
	// or map iteration order.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].BlendedScore != candidates[j].BlendedScore {
			return candidates[i].BlendedScore > candidates[j].BlendedScore
		}
		return candidates[i].ControlID < candidates[j].ControlID
	})

	if k < len(candidates) {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// MapAll maps every obligation, preserving obligation order.
func (m *Mapper) MapAll(ctx context.Context, obs []extract.Obligation) (map[string][]Mapping, error) {
	out := make(map[string][]Mapping, len(obs))
	for _, ob := range obs {
		cands, err := m.MapCandidates(ctx, ob, m.opts.TopK)
		if err != nil {
			return nil, err
		}
		out[ob.ID] = cands
	}
	return out, nil
}

// StatusFor gates a blended score: >= high accepted, >= low review,
// otherwise rejected.
func StatusFor(blended float64, opts Options) Status {
	switch {
	case blended >= opts.ThresholdHigh:
		return StatusAccepted
	case blended >= opts.ThresholdLow:
		return StatusReview
	default:
		return StatusRejected
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Stats summarizes a mapping pass for audit payloads.
type Stats struct {
	TotalMappings int     `json:"total_mappings"`
	Accepted      int     `json:"accepted"`
	Review        int     `json:"review"`
	Rejected      int     `json:"rejected"`
	TopScore      float64 `json:"top_score"`
	Obligations   int     `json:"obligations"`
}

// Summarize tallies mappings by status.
func Summarize(all map[string][]Mapping) Stats {
	var s Stats
	s.Obligations = len(all)
	for _, maps := range all {
		for _, m := range maps {
			s.TotalMappings++
			switch m.Status {
			case StatusAccepted:
				s.Accepted++
			case StatusReview:
				s.Review++
			case StatusRejected:
				s.Rejected++
			}
			if m.BlendedScore > s.TopScore {
				s.TopScore = m.BlendedScore
			}
		}
	}
	return s
}
