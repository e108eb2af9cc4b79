// Package extract implements rule-based obligation extraction. No language
// model is involved: a sentence either contains a configured modal phrase
// or it is not an obligation.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/regdelta/regdelta/internal/diffengine"
	"github.com/regdelta/regdelta/internal/document"
	"github.com/regdelta/regdelta/internal/lexicon"
)

// Severity ranks how binding an obligation is.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Obligation is a requirement sentence extracted from a document.
// Immutable after creation; re-extraction supersedes rather than mutates.
type Obligation struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"document_id"`
	SectionLabel string   `json:"section_label,omitempty"`
	Text         string   `json:"text"`
	Severity     Severity `json:"severity"`
	ModalPhrase  string   `json:"modal_phrase"`
	Deadline     string   `json:"deadline,omitempty"`
	Excerpt      string   `json:"excerpt"`
	Citations    []string `json:"citations,omitempty"`
}

// minUnitLen filters out headings and fragments that happen to contain a
// modal verb.
const minUnitLen = 20

// excerptLen bounds the normalized excerpt recorded for traceability.
const excerptLen = 160

// Extractor applies a compiled lexicon to paragraphs.
type Extractor struct {
	lex *lexicon.Lexicon
}

// New returns an Extractor over the given lexicon.
func New(lex *lexicon.Lexicon) *Extractor {
	return &Extractor{lex: lex}
}

// Paragraph extracts zero or more obligations from a single paragraph.
// A paragraph may contain several obligation-bearing sentences; each
// becomes its own record. Deterministic for a fixed lexicon.
func (e *Extractor) Paragraph(docID string, p document.Paragraph) []Obligation {
	var out []Obligation
	for _, unit := range splitUnits(p.RawText) {
		if len(unit) < minUnitLen {
			continue
		}
		if e.lex.IsStopPhrase(unit) {
			continue
		}

		kind, modal := e.matchModal(unit)
		if modal == "" {
			continue
		}

		deadline := e.lex.MatchDeadline(unit)
		out = append(out, Obligation{
			ID:           uuid.New().String(),
			DocumentID:   docID,
			SectionLabel: p.SectionLabel,
			Text:         unit,
			Severity:     e.severity(unit, kind, deadline != ""),
			ModalPhrase:  modal,
			Deadline:     deadline,
			Excerpt:      excerpt(unit),
			Citations:    citations(unit),
		})
	}
	return out
}

// ChangedParagraphs extracts from the new-side paragraphs touched by
// insert or replace ops.
func (e *Extractor) ChangedParagraphs(docID string, newParas []document.Paragraph, ops []diffengine.ChangeOp) []Obligation {
	var out []Obligation
	for _, op := range ops {
		if op.Kind != diffengine.OpInsert && op.Kind != diffengine.OpReplace {
			continue
		}
		for i := op.NewStart; i < op.NewEnd && i < len(newParas); i++ {
			out = append(out, e.Paragraph(docID, newParas[i])...)
		}
	}
	return out
}

// AllParagraphs extracts from every paragraph, used when there is no
// baseline to diff against.
func (e *Extractor) AllParagraphs(docID string, paras []document.Paragraph) []Obligation {
	var out []Obligation
	for _, p := range paras {
		out = append(out, e.Paragraph(docID, p)...)
	}
	return out
}

// matchModal tests phrase categories in precedence order. Prohibitive wins
// over mandatory so "shall not" is not misread as a plain "shall".
func (e *Extractor) matchModal(unit string) (lexicon.PhraseKind, string) {
	for _, kind := range []lexicon.PhraseKind{lexicon.Prohibitive, lexicon.Mandatory, lexicon.Advisory} {
		if m := e.lex.MatchModal(unit, kind); m != "" {
			return kind, m
		}
	}
	return "", ""
}

// severity applies the priority policy: high keyword, then prohibition,
// then deadline-boosted mandate, then plain mandate, then advisory.
func (e *Extractor) severity(unit string, kind lexicon.PhraseKind, hasDeadline bool) Severity {
	if e.lex.MatchSeverity(unit, "high") {
		return SeverityHigh
	}
	if kind == lexicon.Prohibitive {
		return SeverityHigh
	}
	if hasDeadline && kind == lexicon.Mandatory {
		return SeverityHigh
	}
	if kind == lexicon.Mandatory || e.lex.MatchSeverity(unit, "medium") {
		return SeverityMedium
	}
	return SeverityLow
}

var unitSplit = regexp.MustCompile(`(?:[.!?]|;)\s+`)

// splitUnits breaks a paragraph into sentence-like units.
func splitUnits(text string) []string {
	parts := unitSplit.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimRight(p, ".!?;"))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func excerpt(unit string) string {
	norm := document.Normalize(unit)
	if len(norm) <= excerptLen {
		return norm
	}
	// Back off to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := excerptLen
	for cut > 0 && !utf8.RuneStart(norm[cut]) {
		cut--
	}
	return norm[:cut]
}

var citationRe = regexp.MustCompile(`(?i)\b(?:Section|Article|Clause|Paragraph|Regulation)\s+\d+(?:\.\d+)*`)

// citations pulls in-text references ("Section 4.2") for traceability.
// No external source is consulted.
func citations(unit string) []string {
	found := citationRe.FindAllString(unit, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	var out []string
	for _, c := range found {
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Stats summarizes an extraction pass for audit payloads.
type Stats struct {
	Total         int `json:"total"`
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	WithDeadlines int `json:"with_deadlines"`
	WithCitations int `json:"with_citations"`
}

// Summarize tallies obligations by severity and annotation.
func Summarize(obs []Obligation) Stats {
	var s Stats
	s.Total = len(obs)
	for _, o := range obs {
		switch o.Severity {
		case SeverityHigh:
			s.High++
		case SeverityMedium:
			s.Medium++
		case SeverityLow:
			s.Low++
		}
		if o.Deadline != "" {
			s.WithDeadlines++
		}
		if len(o.Citations) > 0 {
			s.WithCitations++
		}
	}
	return s
}
