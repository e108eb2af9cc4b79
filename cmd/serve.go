package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/regdelta/regdelta/internal/audit"
	"github.com/regdelta/regdelta/internal/db"
	"github.com/regdelta/regdelta/internal/pipeline"
	"github.com/regdelta/regdelta/internal/review"
	"github.com/regdelta/regdelta/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local review API",
	Long: `Starts the local HTTP server exposing runs, mappings, the override
endpoint, and audit chain verification. Intended for a reviewer UI on
the same machine; there is no authentication.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = cfg.Server.Addr
		}
		allowAll, _ := cmd.Flags().GetBool("cors-allow-all")

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

		srv := server.New(
			server.Config{Addr: addr, AllowAll: allowAll},
			pipeline.NewStore(database),
			review.NewService(review.NewStore(database), auditLog),
			auditLog,
		)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-stop:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().Bool("cors-allow-all", false, "allow all CORS origins")
	rootCmd.AddCommand(serveCmd)
}
