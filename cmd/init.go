package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/regdelta/regdelta/internal/config"
	"github.com/regdelta/regdelta/internal/lexicon"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration, lexicon, and sample catalog",
	Long: `Creates .regdelta.yml with the default settings, a starter extraction
lexicon, and a sample control catalog. Existing files are left untouched.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()

	if _, err := os.Stat(cfgFile); err == nil {
		fmt.Printf("%s already exists, skipping.\n", cfgFile)
	} else {
		if err := cfg.Save(cfgFile); err != nil {
			return err
		}
		fmt.Printf("Wrote %s.\n", cfgFile)
	}

	if _, err := os.Stat(cfg.Lexicon.File); err == nil {
		fmt.Printf("%s already exists, skipping.\n", cfg.Lexicon.File)
	} else {
		raw, err := yaml.Marshal(lexicon.Default())
		if err != nil {
			return fmt.Errorf("serializing default lexicon: %w", err)
		}
		if err := os.WriteFile(cfg.Lexicon.File, raw, 0o644); err != nil {
			return fmt.Errorf("writing lexicon: %w", err)
		}
		fmt.Printf("Wrote %s.\n", cfg.Lexicon.File)
	}

	samplePath := filepath.Join(cfg.Controls.CatalogDir, "sample.yml")
	if _, err := os.Stat(samplePath); err == nil {
		fmt.Printf("%s already exists, skipping.\n", samplePath)
	} else {
		if err := os.MkdirAll(cfg.Controls.CatalogDir, 0o755); err != nil {
			return fmt.Errorf("creating catalog directory: %w", err)
		}
		if err := os.WriteFile(samplePath, []byte(sampleCatalog), 0o644); err != nil {
			return fmt.Errorf("writing sample catalog: %w", err)
		}
		fmt.Printf("Wrote %s.\n", samplePath)
	}

	fmt.Println("\nNext: put your control catalogs in", cfg.Controls.CatalogDir,
		"and run `regdelta run --new <document>`.")
	return nil
}

const sampleCatalog = `controls:
  - control_id: AC-01
    domain: Access Control
    title: Access reviews
    description: User access to systems handling regulated data is reviewed and recertified on a recurring schedule.
    owner: Security Team
    evidence_examples:
      - Quarterly access review sign-off
      - Recertification report
  - control_id: DP-01
    domain: Data Protection
    title: Encrypt data at rest
    description: All regulated data stores use strong encryption at rest with managed keys.
    owner: Platform Team
    evidence_examples:
      - Encryption configuration export
      - Key rotation log
  - control_id: IR-01
    domain: Incident Response
    title: Incident notification
    description: Security incidents affecting regulated data are reported to the regulator within the mandated notification window.
    owner: Compliance Team
    evidence_examples:
      - Incident runbook
      - Notification log
`
