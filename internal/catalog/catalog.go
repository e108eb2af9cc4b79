// Package catalog loads the internal control catalog the mapper matches
// obligations against. Catalogs are read-only during a run.
package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// Control is a single safeguard or practice from the catalog.
type Control struct {
	ControlID        string   `yaml:"control_id" json:"control_id"`
	Domain           string   `yaml:"domain" json:"domain"`
	Title            string   `yaml:"title" json:"title"`
	Description      string   `yaml:"description" json:"description"`
	Owner            string   `yaml:"owner" json:"owner"`
	EvidenceExamples []string `yaml:"evidence_examples" json:"evidence_examples,omitempty"`
}

// EmbeddingText is the text embedded and fuzzy-matched for this control.
func (c Control) EmbeddingText() string {
	return c.Title + ". " + c.Description
}

// catalogFile is the on-disk YAML shape.
type catalogFile struct {
	Controls []Control `yaml:"controls"`
}

// Catalog is the concatenation of all loaded catalog files, with a
// canonical version hash used to detect stale mapping indexes.
type Catalog struct {
	Controls []Control
	Version  string
	Sources  []string
}

// Load reads every catalog file matching the given glob patterns relative
// to dir, concatenates the controls, and rejects duplicate control IDs
// across all files as a configuration error.
func Load(dir string, patterns []string) (*Catalog, error) {
	var files []string
	for _, pat := range patterns {
		matches, err := doublestar.FilepathGlob(filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("catalog glob %q: %w", pat, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no catalog files matched %v under %s", patterns, dir)
	}
	sort.Strings(files)

	cat := &Catalog{Sources: files}
	seen := make(map[string]string) // control_id -> source file
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog %s: %w", path, err)
		}
		var f catalogFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
		}
		for _, c := range f.Controls {
			if c.ControlID == "" {
				return nil, fmt.Errorf("catalog %s: control with empty control_id", path)
			}
			if prev, dup := seen[c.ControlID]; dup {
				return nil, fmt.Errorf("duplicate control_id %q in %s (already defined in %s)", c.ControlID, path, prev)
			}
			seen[c.ControlID] = path
			cat.Controls = append(cat.Controls, c)
		}
	}

	v, err := versionHash(cat.Controls)
	if err != nil {
		return nil, err
	}
	cat.Version = v
	return cat, nil
}

// FromControls builds a Catalog directly from control records, enforcing
// the same duplicate-ID rule. Used by tests and programmatic callers.
func FromControls(controls []Control) (*Catalog, error) {
	seen := make(map[string]struct{}, len(controls))
	for _, c := range controls {
		if c.ControlID == "" {
			return nil, fmt.Errorf("control with empty control_id")
		}
		if _, dup := seen[c.ControlID]; dup {
			return nil, fmt.Errorf("duplicate control_id %q", c.ControlID)
		}
		seen[c.ControlID] = struct{}{}
	}
	v, err := versionHash(controls)
	if err != nil {
		return nil, err
	}
	return &Catalog{Controls: controls, Version: v}, nil
}

// ByID returns the control with the given ID, or nil.
func (c *Catalog) ByID(id string) *Control {
	for i := range c.Controls {
		if c.Controls[i].ControlID == id {
			return &c.Controls[i]
		}
	}
	return nil
}

// versionHash computes a content-addressed version for the catalog:
// SHA-256 over the JCS-canonicalized JSON of the controls sorted by ID.
// The mapper refuses to serve an index built against a different version.
func versionHash(controls []Control) (string, error) {
	sorted := make([]Control, len(controls))
	copy(sorted, controls)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ControlID < sorted[j].ControlID })

	raw, err := json.Marshal(sorted)
	if err != nil {
		return "", fmt.Errorf("serializing catalog for versioning: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing catalog: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
