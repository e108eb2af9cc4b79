package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/mapper"
	"github.com/regdelta/regdelta/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "List mappings pending review or apply a decision",
	Long: `Without flags, lists mappings whose automatic status is review. With
--mapping and --status, applies a reviewer override; each mapping can be
overridden exactly once and the decision is recorded in the audit log.`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("run", "", "restrict to one run")
	reviewCmd.Flags().String("mapping", "", "mapping ID to override")
	reviewCmd.Flags().String("status", "", "new status: accepted or rejected")
	reviewCmd.Flags().String("reviewer", "", "reviewer name (prompted if omitted)")
	reviewCmd.Flags().String("comment", "", "review comment")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runID, _ := cmd.Flags().GetString("run")
	mappingID, _ := cmd.Flags().GetString("mapping")
	status, _ := cmd.Flags().GetString("status")
	reviewerFlag, _ := cmd.Flags().GetString("reviewer")
	comment, _ := cmd.Flags().GetString("comment")

	database, err := db.Open(cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	auditLog, err := audit.Open(cfg.Storage.AuditFile)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	svc := review.NewService(review.NewStore(database), auditLog)

	if mappingID == "" {
		pending, err := svc.Pending(ctx, runID)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("No mappings pending review.")
			return nil
		}
		fmt.Printf("%d mapping(s) pending review:\n\n", len(pending))
		for _, m := range pending {
			fmt.Printf("  %s\n", m.ID)
			fmt.Printf("    obligation: %s\n", m.ObligationID)
			fmt.Printf("    control:    %s (%s)\n", m.ControlID, m.ControlTitle)
			fmt.Printf("    blended:    %.3f (cosine %.3f, lexical %.3f)\n\n",
				m.BlendedScore, m.CosineScore, m.FuzzyScore)
		}
		fmt.Println("Apply a decision with: regdelta review --mapping <id> --status accepted|rejected")
		return nil
	}

	if status == "" {
		return fmt.Errorf("--status is required with --mapping")
	}
	newStatus := mapper.Status(status)
	if !newStatus.Valid() || newStatus == mapper.StatusReview {
		return fmt.Errorf("status must be accepted or rejected, got %q", status)
	}

	reviewer, err := reviewerName(cfg, reviewerFlag)
	if err != nil {
		return err
	}

	ov, err := svc.Override(ctx, mappingID, newStatus, reviewer, comment)
	if err != nil {
		return err
	}
	fmt.Printf("Mapping %s: %s -> %s (by %s)\n", ov.MappingID, ov.PreviousStatus, ov.NewStatus, ov.Reviewer)
	return nil
}
