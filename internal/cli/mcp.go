package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	vaultmcp "github.com/valter-silva-au/vaultd/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the vaultd MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the vaultd MCP server on stdio",
	Long: `Start the vaultd MCP server on stdio transport.

The server exposes the daemon's state as MCP tools that AI assistants can
call: get_status, list_tasks, enqueue_task, extract_directives, recent_events.
It only reads and writes files, so it works with or without a running daemon.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil || StatusStore == nil || Tasks == nil {
			return fmt.Errorf("vaultd not initialized")
		}

		opts := vaultmcp.Options{
			Root:    Root,
			Trigger: Config.Scan.Trigger,
			Status:  StatusStore,
			Tasks:   Tasks,
			Events:  EventLog,
			Version: appVersion,
		}
		srv := vaultmcp.NewServer(opts)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
