package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/vaultd/internal/core"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

var extractJSON bool

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "List the directives in a document without running the agent",
	Long: `Print every inline directive vaultd would execute in a document.

Lines inside fenced code blocks, table rows, headings, quotes, indented code
and lines where the trigger is not the first token are never directives.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not initialized")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		directives := core.ExtractDirectives(string(data), Config.Scan.Trigger)
		out := cmd.OutOrStdout()
		if extractJSON {
			if directives == nil {
				directives = []models.Directive{}
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(directives)
		}

		if len(directives) == 0 {
			fmt.Fprintln(out, "No directives found.")
			return nil
		}
		for _, d := range directives {
			fmt.Fprintf(out, "%4d  %s\n", d.LineNumber, d.Instruction)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractJSON, "json", false, "Print directives as JSON")
	rootCmd.AddCommand(extractCmd)
}
