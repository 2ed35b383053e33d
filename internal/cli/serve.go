package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveWatch bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the HTTP API. Long operations (import, index build, cleanup)
run in the background and are polled through /api/tasks/{id}.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := openSession(ctx, cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		if serveWatch {
			go func() {
				if err := s.WatchTables(ctx); err != nil {
					s.Logger.Error("table watcher stopped", "error", err)
				}
			}()
		}
		return s.Server().Start(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveWatch, "watch", true, "rebuild the table catalog when schema or data files change")
	rootCmd.AddCommand(serveCmd)
}
