// Package document turns extracted document text into the ordered
// paragraph sequences the rest of the pipeline operates on. How the text
// was pulled out of a source file (PDF, scan, whatever) is out of scope;
// this package consumes plain text.
package document

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Paragraph is a single unit of document text. Immutable once produced:
// NormalizedText drives comparison and extraction, RawText is preserved
// for citation.
type Paragraph struct {
	SequenceIndex  int    `json:"sequence_index"`
	RawText        string `json:"raw_text"`
	NormalizedText string `json:"normalized_text"`
	SectionLabel   string `json:"section_label,omitempty"`
}

// Document is an ordered paragraph sequence plus provenance.
type Document struct {
	ID         string      `json:"id"`
	Path       string      `json:"path,omitempty"`
	Paragraphs []Paragraph `json:"paragraphs"`
}

var (
	crlfRe      = regexp.MustCompile(`\r\n`)
	multiBlank  = regexp.MustCompile(`\n{3,}`)
	multiSpace  = regexp.MustCompile(`[ \t]{2,}`)
	whitespace  = regexp.MustCompile(`\s+`)
	sectionHead = regexp.MustCompile(`^(Section\s+\d+(?:\.\d+)*|Article\s+\d+(?:\.\d+)*|Requirement\s+\d+(?:\.\d+)*|Clause\s+\d+(?:\.\d+)*|\d+(?:\.\d+)+)\b`)
)

// Paragraphize splits raw document text into paragraphs. Splits happen on
// blank lines and on regulatory section headings ("Section 3", "4.2 Title").
// Chunks shorter than 10 characters are treated as layout noise and dropped.
func Paragraphize(text string) []Paragraph {
	text = crlfRe.ReplaceAllString(text, "\n")
	text = multiBlank.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")

	chunks := splitSections(text)

	var paras []Paragraph
	lastLabel := ""
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if len(chunk) < 10 {
			continue
		}
		if m := sectionHead.FindString(chunk); m != "" {
			lastLabel = m
		}
		paras = append(paras, Paragraph{
			SequenceIndex:  len(paras),
			RawText:        chunk,
			NormalizedText: Normalize(chunk),
			SectionLabel:   lastLabel,
		})
	}
	return paras
}

// splitSections cuts text at blank lines and before section headings.
func splitSections(text string) []string {
	lines := strings.Split(text, "\n")
	var chunks []string
	var cur []string

	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur = nil
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if sectionHead.MatchString(trimmed) {
			flush()
		}
		cur = append(cur, trimmed)
	}
	flush()
	return chunks
}

// Normalize collapses whitespace and lowercases text so that cosmetic
// reflows do not register as changes.
func Normalize(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Load reads a plain-text document from disk and paragraphizes it. The
// document ID is derived from the content so re-ingesting identical text is
// idempotent.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	paras := Paragraphize(string(data))
	if len(paras) == 0 {
		return nil, fmt.Errorf("document %s: no usable paragraphs", path)
	}
	sum := sha256.Sum256(data)
	return &Document{
		ID:         hex.EncodeToString(sum[:8]),
		Path:       path,
		Paragraphs: paras,
	}, nil
}

// Texts returns the normalized paragraph texts in order. The diff engine
// aligns on these.
func (d *Document) Texts() []string {
	out := make([]string, len(d.Paragraphs))
	for i, p := range d.Paragraphs {
		out[i] = p.NormalizedText
	}
	return out
}
