package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/lexicon"
	"github.com/regdelta/regdelta/internal/mapper"
	"github.com/regdelta/regdelta/internal/pipeline"
	"github.com/regdelta/regdelta/internal/progress"
	"github.com/regdelta/regdelta/internal/report"
	"github.com/regdelta/regdelta/internal/review"
)

var runCmd = &cobra.Command{
	Use:   "run --new <file> [--baseline <file>]",
	Short: "Analyze a document change end to end",
	Long: `Runs the full pipeline: ingest the document pair, diff the paragraphs,
extract obligations from changed text, map them to the control catalog,
and generate an action plan. Results are stored for review and a report
is written to the report directory.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("baseline", "", "path to the baseline document (optional for a first scenario)")
	runCmd.Flags().String("new", "", "path to the new document version")
	runCmd.Flags().String("scenario", "default", "scenario name recorded with the run")
	runCmd.Flags().Bool("no-report", false, "skip writing the HTML report")
	_ = runCmd.MarkFlagRequired("new")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	baselinePath, _ := cmd.Flags().GetString("baseline")
	newPath, _ := cmd.Flags().GetString("new")
	scenario, _ := cmd.Flags().GetString("scenario")
	noReport, _ := cmd.Flags().GetBool("no-report")

	auditLog, err := audit.Open(cfg.Storage.AuditFile)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	database, err := db.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	lex, err := lexicon.Load(cfg.Lexicon.File)
	if err != nil {
		return fmt.Errorf("loading lexicon: %w", err)
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	m, err := openMapper(ctx, cfg, cat, auditLog)
	if err != nil {
		return err
	}

	p := pipeline.New(
		pipeline.NewStore(database),
		review.NewStore(database),
		auditLog,
		lex,
		cat,
		m,
		cfg.Ingest.MaxRetries,
		progress.NewReporter(),
	)

	res, err := p.Run(ctx, scenario, baselinePath, newPath)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s complete.\n", res.RunID)
	fmt.Printf("  Changes:     %d paragraphs added, %d removed, %d unchanged\n",
		res.DiffSummary.Added, res.DiffSummary.Removed, res.DiffSummary.Unchanged)
	fmt.Printf("  Obligations: %d extracted\n", len(res.Obligations))
	fmt.Printf("  Actions:     %d planned\n", len(res.Actions))

	if !noReport {
		gen := report.NewGenerator(cfg.Storage.ReportDir)
		path, err := gen.Generate(res)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("  Report:      %s\n", path)
	}

	pending, err := review.NewStore(database).List(ctx, review.Filter{RunID: res.RunID, Status: mapper.StatusReview})
	if err == nil && len(pending) > 0 {
		fmt.Printf("\n%d mapping(s) need review. Run `regdelta review`.\n", len(pending))
	}
	return nil
}
