package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/usecases"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load the data directory through the ingestion service",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.Data.Import(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var buildPolicy string

var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "Manage the retrieval index",
}

var embeddingsBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the retrieval index from schema, data and doc files",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy, err := usecases.ParseBuildPolicy(buildPolicy)
		if err != nil {
			return err
		}
		s, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.Index.Build(cmd.Context(), policy)
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	embeddingsBuildCmd.Flags().StringVar(&buildPolicy, "policy", "", "rebuild, build_if_missing or load_only (default embedding.policy)")
	embeddingsCmd.AddCommand(embeddingsBuildCmd)
	rootCmd.AddCommand(importCmd, embeddingsCmd)
}
