package config

import "path/filepath"

// DefaultConfig returns a Config with the shipped defaults. Threshold and
// blend values match the documented mapping contract: blended =
// 0.7*cosine + 0.3*lexical, accepted at 0.75, review at 0.60.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir:   "data",
			AuditFile: filepath.Join("audit", "audit.jsonl"),
			IndexDir:  filepath.Join("data", "index"),
			Database:  filepath.Join("data", "regdelta.db"),
			ReportDir: filepath.Join("data", "reports"),
		},
		Lexicon: LexiconConfig{
			File: "lexicon.yml",
		},
		Controls: ControlsConfig{
			CatalogDir: "catalogs",
			Catalogs:   []string{"*.yml", "*.yaml"},
		},
		Mapping: MappingConfig{
			CosineWeight:  0.7,
			LexicalWeight: 0.3,
			ThresholdHigh: 0.75,
			ThresholdLow:  0.60,
			TopK:          5,
			Dimensions:    0, // embedder default
		},
		Ingest: IngestConfig{
			MaxRetries: 2,
		},
		Reviewer: ReviewerConfig{
			Identity: "prompt",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8484",
		},
	}
}
