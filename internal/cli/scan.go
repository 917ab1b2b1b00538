package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Run the directive scanner once in the foreground",
	Long: `Scan the whole root, or a single document, for directives and run the
agent for each one, exactly as the daemon would.

A single file is always processed even if it has not changed. The command
refuses to run while a daemon serves the same root.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewScanner == nil {
			return fmt.Errorf("scanner not initialized")
		}
		if daemonRunning() {
			return fmt.Errorf("a vaultd daemon is running for %s; it scans on its own", Root)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		scanner := NewScanner()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving %s: %w", args[0], err)
			}
			if !scanner.Eligible(path) {
				return fmt.Errorf("%s is not a scannable document under %s", args[0], Root)
			}
			res, err := scanner.ScanFile(ctx, path, true)
			if err != nil {
				return err
			}
			if res.Skipped {
				return fmt.Errorf("%s no longer exists", args[0])
			}
			fmt.Fprintf(out, "%s: %d directive(s), %d processed, %d failed\n", args[0], res.Found, res.Processed, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d directive(s) failed", res.Failed)
			}
			return nil
		}

		sum, err := scanner.ScanAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Scanned %d file(s) in %s: %d directive(s), %d processed, %d failed\n",
			sum.Files, sum.Duration.Round(time.Millisecond), sum.Found, sum.Processed, sum.Failed)
		if sum.Failed > 0 {
			return fmt.Errorf("%d directive(s) failed", sum.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
