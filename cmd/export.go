package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/review"
)

var exportCmd = &cobra.Command{
	Use:   "export --run <id> --out <file>",
	Short: "Export a run's mappings to JSON or CSV",
	Long: `Writes the mappings of a run to a file. The format is inferred from the
output extension (.json or .csv). Exports are audited events carrying a
digest of the exported content.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().String("run", "", "run to export")
	exportCmd.Flags().String("out", "", "output file (.json or .csv)")
	exportCmd.Flags().String("format", "", "override format: json or csv")
	_ = exportCmd.MarkFlagRequired("run")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run")
	outPath, _ := cmd.Flags().GetString("out")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = "json"
		if strings.HasSuffix(outPath, ".csv") {
			format = "csv"
		}
	}

	database, err := db.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	mappings, err := review.NewStore(database).List(ctx, review.Filter{RunID: runID})
	if err != nil {
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	switch format {
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(mappings); err != nil {
			return fmt.Errorf("writing JSON export: %w", err)
		}
	case "csv":
		w := csv.NewWriter(f)
		header := []string{"mapping_id", "obligation_id", "control_id", "control_title",
			"cosine_score", "fuzzy_score", "blended_score", "status", "auto_status", "reviewer", "comment"}
		if err := w.Write(header); err != nil {
			return fmt.Errorf("writing CSV header: %w", err)
		}
		for _, m := range mappings {
			row := []string{
				m.ID, m.ObligationID, m.ControlID, m.ControlTitle,
				strconv.FormatFloat(m.CosineScore, 'f', 6, 64),
				strconv.FormatFloat(m.FuzzyScore, 'f', 6, 64),
				strconv.FormatFloat(m.BlendedScore, 'f', 6, 64),
				string(m.Status), string(m.AutoStatus), m.Reviewer, m.Comment,
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("writing CSV row: %w", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flushing CSV export: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q", format)
	}

	digest, err := audit.Digest(mappings)
	if err != nil {
		return err
	}

	auditLog, err := audit.Open(cfg.Storage.AuditFile)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	if _, err := auditLog.Append(audit.ActorSystem, audit.ActionExport, map[string]any{
		"run_id":         runID,
		"format":         format,
		"file":           outPath,
		"mappings":       len(mappings),
		"content_digest": digest,
	}); err != nil {
		return err
	}

	fmt.Printf("Exported %d mapping(s) to %s.\n", len(mappings), outPath)
	return nil
}
