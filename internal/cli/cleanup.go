package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
)

var (
	cleanupTargets []string
	cleanupYes     bool
	cleanupDryRun  bool
)

// exit is replaced in tests.
var exit = os.Exit

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete tables, schema files and spreadsheets by original filename",
	Long: `Delete everything derived from the given spreadsheets: the stored
tables, their schema files and the spreadsheets themselves. A plan is shown
first and confirmation is required unless --yes is given.

Exit codes: 0 done, 1 aborted, 2 no targets, 3 partial failure.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}

		planner := s.CleanupService()
		planner.Out = cmd.OutOrStdout()
		planner.In = cmd.InOrStdin()
		outcome := planner.Execute(cmd.Context(), planner.Plan(cleanupTargets), cleanupYes, cleanupDryRun)
		s.Close()
		if outcome.ExitCode != entities.CleanupOK {
			exit(outcome.ExitCode)
		}
		return nil
	},
}

func init() {
	cleanupCmd.Flags().StringArrayVar(&cleanupTargets, "target", nil, "original spreadsheet filename (repeatable); .xlsx is assumed without an extension")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "skip the confirmation prompt")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "show the plan without deleting anything")
	rootCmd.AddCommand(cleanupCmd)
}
