package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	tablesStored bool
	tablesMeta   bool
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List known tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		if tablesStored {
			names, err := s.Tables.Stored(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		if tablesMeta {
			fmt.Fprintln(tw, "ID\tTABLE NAME\tORIGINAL FILE\tHASH")
		} else {
			fmt.Fprintln(tw, "ID\tDATA FILE\tSCHEMA FILE\tALIASES")
		}
		for _, t := range s.Tables.List(tablesMeta) {
			if tablesMeta {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.TableName, t.OriginalFilename, t.SourceFileHash)
			} else {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.DataFile, t.SchemaFile, strings.Join(t.Aliases, ", "))
			}
		}
		return tw.Flush()
	},
}

func init() {
	tablesCmd.Flags().BoolVar(&tablesStored, "stored", false, "list tables present in the database instead")
	tablesCmd.Flags().BoolVar(&tablesMeta, "meta", false, "show metadata read from schema files")
	rootCmd.AddCommand(tablesCmd)
}
