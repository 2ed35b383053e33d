// Package cli implements the tablerag command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/app"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/config"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/infrastructure/telemetry"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tablerag",
	Short: "Answer questions over spreadsheet tables",
	Long: `tablerag answers natural-language questions over a collection of
spreadsheets. It picks the relevant tables, lets a language model break the
question into sub-queries, and resolves each one with SQL.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (trace, debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// session is an opened application plus its teardown.
type session struct {
	*app.App
	shutdown telemetry.Shutdown
}

func (s *session) Close() {
	s.App.Close()
	s.shutdown(context.Background())
}

func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.JSON, cmd.ErrOrStderr())

	shutdown, err := telemetry.Setup("tablerag", Version, cfg.Telemetry.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	return &session{App: a, shutdown: shutdown}, nil
}
