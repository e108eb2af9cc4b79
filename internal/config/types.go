package config

// Config is the top-level regdelta configuration, corresponding to
// .regdelta.yml. Loaded once per invocation and passed explicitly to the
// components that need it; nothing reads it from a global.
type Config struct {
	Storage  StorageConfig  `yaml:"storage" koanf:"storage"`
	Lexicon  LexiconConfig  `yaml:"lexicon" koanf:"lexicon"`
	Controls ControlsConfig `yaml:"controls" koanf:"controls"`
	Mapping  MappingConfig  `yaml:"mapping" koanf:"mapping"`
	Ingest   IngestConfig   `yaml:"ingest" koanf:"ingest"`
	Reviewer ReviewerConfig `yaml:"reviewer" koanf:"reviewer"`
	Server   ServerConfig   `yaml:"server" koanf:"server"`
}

// StorageConfig locates everything regdelta writes.
type StorageConfig struct {
	DataDir   string `yaml:"data_dir" koanf:"data_dir"`
	AuditFile string `yaml:"audit_file" koanf:"audit_file"`
	IndexDir  string `yaml:"index_dir" koanf:"index_dir"`
	Database  string `yaml:"database" koanf:"database"`
	ReportDir string `yaml:"report_dir" koanf:"report_dir"`
}

// LexiconConfig locates the extraction lexicon.
type LexiconConfig struct {
	File string `yaml:"file" koanf:"file"`
}

// ControlsConfig locates the control catalogs.
type ControlsConfig struct {
	CatalogDir string   `yaml:"catalog_dir" koanf:"catalog_dir"`
	Catalogs   []string `yaml:"catalogs" koanf:"catalogs"`
}

// MappingConfig holds scoring weights, status thresholds, and candidate
// count for the control mapper.
type MappingConfig struct {
	CosineWeight  float64 `yaml:"cosine_weight" koanf:"cosine_weight"`
	LexicalWeight float64 `yaml:"lexical_weight" koanf:"lexical_weight"`
	ThresholdHigh float64 `yaml:"threshold_high" koanf:"threshold_high"`
	ThresholdLow  float64 `yaml:"threshold_low" koanf:"threshold_low"`
	TopK          int     `yaml:"top_k" koanf:"top_k"`
	Dimensions    int     `yaml:"dimensions" koanf:"dimensions"`
}

// IngestConfig bounds retries for the read-only ingest stage.
type IngestConfig struct {
	MaxRetries int `yaml:"max_retries" koanf:"max_retries"`
}

// ReviewerConfig controls how the review command resolves the reviewer's
// identity: "prompt" asks interactively, "static" uses Name.
type ReviewerConfig struct {
	Identity string `yaml:"identity" koanf:"identity"`
	Name     string `yaml:"name" koanf:"name"`
}

// ServerConfig holds the local review/read API settings.
type ServerConfig struct {
	Addr string `yaml:"addr" koanf:"addr"`
}
