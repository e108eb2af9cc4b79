// Package lexicon loads and compiles the phrase sets that drive obligation
// extraction. A lexicon is loaded once per run and is read-only afterwards.
package lexicon

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// PhraseKind classifies a modal phrase.
type PhraseKind string

const (
	Mandatory   PhraseKind = "mandatory"
	Prohibitive PhraseKind = "prohibitive"
	Advisory    PhraseKind = "advisory"
)

// File is the on-disk YAML shape of a lexicon.
type File struct {
	ModalPhrases struct {
		Mandatory    []string `yaml:"mandatory"`
		Prohibitions []string `yaml:"prohibitions"`
		Advisory     []string `yaml:"advisory"`
	} `yaml:"modal_phrases"`
	SeverityKeywords struct {
		High   []string `yaml:"high"`
		Medium []string `yaml:"medium"`
		Low    []string `yaml:"low"`
	} `yaml:"severity_keywords"`
	DeadlinePatterns []string `yaml:"deadline_patterns"`
	StopPhrases      []string `yaml:"stop_phrases"`
}

// phrase pairs the literal phrase with its compiled word-boundary pattern.
type phrase struct {
	text string
	re   *regexp.Regexp
}

// Lexicon holds the compiled patterns. Safe for concurrent reads.
type Lexicon struct {
	modal    map[PhraseKind][]phrase
	severity map[string][]phrase // "high", "medium", "low"
	deadline []*regexp.Regexp
	stop     []*regexp.Regexp
}

// Load reads and compiles a lexicon from a YAML file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	return Compile(f)
}

// Compile builds a Lexicon from its file representation. Phrases are
// compiled case-insensitive with word boundaries and ordered longest-first
// so that "shall not" wins over "shall".
func Compile(f File) (*Lexicon, error) {
	lex := &Lexicon{
		modal:    make(map[PhraseKind][]phrase),
		severity: make(map[string][]phrase),
	}

	modal := map[PhraseKind][]string{
		Mandatory:   f.ModalPhrases.Mandatory,
		Prohibitive: f.ModalPhrases.Prohibitions,
		Advisory:    f.ModalPhrases.Advisory,
	}
	for kind, phrases := range modal {
		compiled, err := compilePhrases(phrases)
		if err != nil {
			return nil, fmt.Errorf("modal phrases (%s): %w", kind, err)
		}
		lex.modal[kind] = compiled
	}

	sev := map[string][]string{
		"high":   f.SeverityKeywords.High,
		"medium": f.SeverityKeywords.Medium,
		"low":    f.SeverityKeywords.Low,
	}
	for level, keywords := range sev {
		compiled, err := compilePhrases(keywords)
		if err != nil {
			return nil, fmt.Errorf("severity keywords (%s): %w", level, err)
		}
		lex.severity[level] = compiled
	}

	for _, p := range f.DeadlinePatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("deadline pattern %q: %w", p, err)
		}
		lex.deadline = append(lex.deadline, re)
	}
	for _, p := range f.StopPhrases {
		re, err := regexp.Compile("(?i)" + regexp.QuoteMeta(p))
		if err != nil {
			return nil, fmt.Errorf("stop phrase %q: %w", p, err)
		}
		lex.stop = append(lex.stop, re)
	}
	return lex, nil
}

func compilePhrases(phrases []string) ([]phrase, error) {
	// Longest first, then lexicographic: the order is part of the
	// extraction contract, not an accident of the YAML file.
	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})

	out := make([]phrase, 0, len(sorted))
	for _, p := range sorted {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("phrase %q: %w", p, err)
		}
		out = append(out, phrase{text: p, re: re})
	}
	return out, nil
}

// MatchModal returns the first (longest) matching phrase of the given kind,
// or "" if none match.
func (l *Lexicon) MatchModal(text string, kind PhraseKind) string {
	for _, p := range l.modal[kind] {
		if p.re.MatchString(text) {
			return p.text
		}
	}
	return ""
}

// MatchSeverity reports whether any keyword of the given level occurs.
func (l *Lexicon) MatchSeverity(text, level string) bool {
	for _, p := range l.severity[level] {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// MatchDeadline returns the matched deadline text, or "" if none.
func (l *Lexicon) MatchDeadline(text string) string {
	for _, re := range l.deadline {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// IsStopPhrase reports whether text matches any configured stop phrase.
func (l *Lexicon) IsStopPhrase(text string) bool {
	for _, re := range l.stop {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Default returns the built-in lexicon used by `regdelta init` and tests.
func Default() File {
	var f File
	f.ModalPhrases.Mandatory = []string{
		"must", "shall", "is required to", "are required to", "will ensure",
	}
	f.ModalPhrases.Prohibitions = []string{
		"must not", "shall not", "is prohibited from", "may not",
	}
	f.ModalPhrases.Advisory = []string{
		"should", "is recommended to", "are encouraged to", "may consider",
	}
	f.SeverityKeywords.High = []string{
		"penalty", "penalties", "fine", "sanction", "revocation", "breach",
		"immediately", "critical",
	}
	f.SeverityKeywords.Medium = []string{
		"report", "notify", "document", "retain", "review",
	}
	f.SeverityKeywords.Low = []string{
		"consider", "periodically",
	}
	f.DeadlinePatterns = []string{
		`within\s+\d+\s+(?:calendar\s+|business\s+)?days?`,
		`within\s+\d+\s+(?:weeks?|months?|years?)`,
		`no\s+later\s+than`,
		`by\s+(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}`,
	}
	f.StopPhrases = []string{
		"for the purposes of this definition",
		"this section is intentionally left blank",
		"as defined in the glossary",
	}
	return f
}
