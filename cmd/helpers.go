package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/catalog"
	"github.com/regdelta/regdelta/internal/config"
	"github.com/regdelta/regdelta/internal/embeddings"
	"github.com/regdelta/regdelta/internal/mapper"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `regdelta init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

// loadCatalog loads all control catalog files named by the config.
func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	cat, err := catalog.Load(cfg.Controls.CatalogDir, cfg.Controls.Catalogs)
	if err != nil {
		return nil, fmt.Errorf("loading control catalog: %w", err)
	}
	return cat, nil
}

// openMapper loads the persisted control index, rebuilding it when it is
// missing or stale against the current catalog. A rebuild is an audited
// event.
func openMapper(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, auditLog *audit.Log) (*mapper.Mapper, error) {
	dims := cfg.Mapping.Dimensions
	if dims <= 0 {
		dims = embeddings.DefaultDimensions
	}
	embedder := embeddings.NewLocalEmbedder(dims)

	idx, err := mapper.LoadIndex(cfg.Storage.IndexDir, embedder, cat)
	if err != nil {
		if verbose {
			if errors.Is(err, mapper.ErrStaleIndex) {
				fmt.Fprintln(os.Stderr, "control index is stale, rebuilding")
			} else {
				fmt.Fprintf(os.Stderr, "control index not loadable (%v), rebuilding\n", err)
			}
		}
		idx, err = mapper.BuildIndex(ctx, embedder, cat)
		if err != nil {
			return nil, fmt.Errorf("building control index: %w", err)
		}
		if err := idx.Persist(cfg.Storage.IndexDir); err != nil {
			return nil, fmt.Errorf("persisting control index: %w", err)
		}
		if _, err := auditLog.Append(audit.ActorSystem, audit.ActionIndexBuilt, map[string]any{
			"controls":        len(cat.Controls),
			"catalog_version": cat.Version,
			"model":           embedder.Name(),
			"dimensions":      embedder.Dimensions(),
		}); err != nil {
			return nil, err
		}
	}

	return mapper.New(idx, cat, cfg.MapperOptions())
}

// reviewerName resolves the reviewer identity: the flag wins, then the
// static config name, then an interactive prompt.
func reviewerName(cfg *config.Config, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.Reviewer.Identity == "static" && cfg.Reviewer.Name != "" {
		return cfg.Reviewer.Name, nil
	}

	prompt := promptui.Prompt{
		Label: "Reviewer name",
		Validate: func(s string) error {
			if s == "" {
				return fmt.Errorf("reviewer name must not be empty")
			}
			return nil
		},
	}
	name, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("reading reviewer name: %w", err)
	}
	return name, nil
}
