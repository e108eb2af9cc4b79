package mapper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"

	"github.com/regdelta/regdelta/internal/catalog"
	"github.com/regdelta/regdelta/internal/embeddings"
)

const collectionName = "controls"

// ErrStaleIndex is returned when a mapping index was built against a
// different catalog version than the one currently loaded. The caller
// must rebuild; mapping against outdated embeddings is never allowed.
var ErrStaleIndex = errors.New("mapping index is stale relative to catalog")

// Index holds the embedded control catalog. Building it is a one-time,
// blocking preparation step per catalog version; once built it serves
// concurrent reads.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   embeddings.Embedder
	embedFunc  chromem.EmbeddingFunc

	// Version is the catalog version hash the index was built from.
	Version string
}

// BuildIndex embeds every control description and returns a ready index.
func BuildIndex(ctx context.Context, embedder embeddings.Embedder, cat *catalog.Catalog) (*Index, error) {
	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)
	col, err := db.GetOrCreateCollection(collectionName, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("create index collection: %w", err)
	}

	idx := &Index{db: db, collection: col, embedder: embedder, embedFunc: ef, Version: cat.Version}

	if len(cat.Controls) == 0 {
		return idx, nil
	}

	docs := make([]chromem.Document, len(cat.Controls))
	for i, c := range cat.Controls {
		docs[i] = chromem.Document{
			ID:      c.ControlID,
			Content: c.EmbeddingText(),
			Metadata: map[string]string{
				"domain": c.Domain,
				"title":  c.Title,
			},
		}
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("embedding catalog: %w", err)
	}
	return idx, nil
}

// indexMeta is the sidecar written next to the persisted collection so a
// reload can detect catalog drift without re-embedding.
type indexMeta struct {
	CatalogVersion string `json:"catalog_version"`
	Model          string `json:"model"`
	Dimensions     int    `json:"dimensions"`
	Controls       int    `json:"controls"`
}

// Persist saves the index and its version sidecar under dir.
func (idx *Index) Persist(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating index dir: %w", err)
	}
	if err := idx.db.ExportToFile(filepath.Join(dir, "index.gob.gz"), true, ""); err != nil {
		return fmt.Errorf("persisting index: %w", err)
	}
	meta := indexMeta{
		CatalogVersion: idx.Version,
		Model:          idx.embedder.Name(),
		Dimensions:     idx.embedder.Dimensions(),
		Controls:       idx.collection.Count(),
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing index metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	return nil
}

// LoadIndex restores a persisted index and verifies it matches the given
// catalog version. A mismatch returns ErrStaleIndex so the caller rebuilds
// instead of silently mapping against outdated embeddings.
func LoadIndex(dir string, embedder embeddings.Embedder, cat *catalog.Catalog) (*Index, error) {
	metaRaw, err := os.ReadFile(filepath.Join(dir, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("reading index metadata: %w", err)
	}
	var meta indexMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("parsing index metadata: %w", err)
	}
	if meta.CatalogVersion != cat.Version {
		return nil, fmt.Errorf("index built for catalog %.12s, current catalog is %.12s: %w",
			meta.CatalogVersion, cat.Version, ErrStaleIndex)
	}
	if meta.Model != embedder.Name() || meta.Dimensions != embedder.Dimensions() {
		return nil, fmt.Errorf("index built with model %s/%d, configured model is %s/%d: %w",
			meta.Model, meta.Dimensions, embedder.Name(), embedder.Dimensions(), ErrStaleIndex)
	}

	db := chromem.NewDB()
	ef := embeddings.ToChromemFunc(embedder)
	if err := db.ImportFromFile(filepath.Join(dir, "index.gob.gz"), ""); err != nil {
		return nil, fmt.Errorf("loading index: %w", err)
	}
	col := db.GetCollection(collectionName, ef)
	if col == nil {
		return nil, fmt.Errorf("collection %q missing from persisted index", collectionName)
	}
	return &Index{db: db, collection: col, embedder: embedder, embedFunc: ef, Version: meta.CatalogVersion}, nil
}

// Count returns the number of indexed controls.
func (idx *Index) Count() int { return idx.collection.Count() }

// scoreAll returns the cosine similarity of the query against every
// indexed control, keyed by control ID. chromem computes exact cosine over
// the whole collection, which satisfies the brute-force ranking contract.
func (idx *Index) scoreAll(ctx context.Context, query string) (map[string]float64, error) {
	count := idx.collection.Count()
	if count == 0 {
		return nil, nil
	}
	results, err := idx.collection.Query(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	scores := make(map[string]float64, len(results))
	for _, r := range results {
		scores[r.ID] = float64(r.Similarity)
	}
	return scores, nil
}
