package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon status and task folder counts",
	Long: `Show the status last published by the daemon together with the number of
tasks in each folder.

With --json the status file is printed as-is, which is the same document
external tools read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if StatusStore == nil || Tasks == nil {
			return fmt.Errorf("status store not initialized")
		}

		st, err := StatusStore.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statusJSON {
			if st == nil {
				return fmt.Errorf("no status published yet at %s", StatusStore.Path())
			}
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding status: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		counts, err := taskCounts()
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderStatus(st, counts, daemonRunning()))
		return nil
	},
}

// taskCounts returns the number of task files in every location.
func taskCounts() (map[models.Location]int, error) {
	counts := make(map[models.Location]int, len(models.AllLocations))
	for _, loc := range models.AllLocations {
		tasks, err := Tasks.List(loc)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", loc, err)
		}
		counts[loc] = len(tasks)
	}
	return counts, nil
}

// renderStatus formats a status snapshot. st may be nil when no daemon has
// published yet.
func renderStatus(st *models.DaemonStatus, counts map[models.Location]int, running bool) string {
	var b strings.Builder

	daemon := "not running"
	if running {
		daemon = "running"
	}

	if st == nil {
		b.WriteString(titleStyle.Render(" vaultd ") + " no status published yet\n")
	} else {
		b.WriteString(titleStyle.Render(" vaultd ") + " " + styleForState(st.Status).Render(string(st.Status)) + "\n")
	}
	writeRow(&b, "Daemon", daemon)
	if st != nil {
		writeRow(&b, "Active tasks", fmt.Sprintf("%d", st.ActiveTasks))
		writeRow(&b, "Completed today", fmt.Sprintf("%d", st.TasksCompletedToday))
		writeRow(&b, "Agent commands", fmt.Sprintf("%d", st.AgentCommandsToday))
		writeRow(&b, "Last scan", derefOr(st.LastScan, "never"))
		if st.LastError != nil {
			writeRow(&b, "Last error", stateError.Render(*st.LastError))
		}
	}

	b.WriteString("\n" + headerStyle.Render("Tasks") + "\n")
	for _, loc := range models.AllLocations {
		writeRow(&b, string(loc), fmt.Sprintf("%d", counts[loc]))
	}
	return b.String()
}

func writeRow(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "  %s %s\n", labelStyle.Render(fmt.Sprintf("%-16s", label)), value)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status document")
	rootCmd.AddCommand(statusCmd)
}
