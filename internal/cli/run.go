package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Run the daemon until interrupted.

On start, tasks left in the in-progress folder by a previous run are handled
according to recovery.orphans, tasks already in the inbox are admitted oldest
first, and the whole root is scanned for directives. SIGINT or SIGTERM pauses
the daemon, stops running agents and waits for them to exit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewDaemon == nil {
			return fmt.Errorf("daemon not initialized")
		}
		if runVerbose && LogHandler != nil {
			LogHandler.SetTee(cmd.ErrOrStderr())
			defer LogHandler.SetTee(nil)
		}

		d, err := NewDaemon()
		if err != nil {
			return fmt.Errorf("starting daemon: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.ErrOrStderr(), "vaultd serving %s (log: %s)\n", Root, Config.StatePath(Config.State.LogFile))
		if err := d.Run(ctx); err != nil {
			return fmt.Errorf("running daemon: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Also write log lines to stderr")
	rootCmd.AddCommand(runCmd)
}
