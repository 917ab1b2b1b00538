package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/vaultd/internal/integration"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage task files (add, list, requeue)",
	Long: `Manage the task folders by hand.

Tasks are ordinary files: these commands are shortcuts for creating a file in
the inbox, listing the folders and moving a task back to the inbox.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add <name> [text...]",
	Short: "Add a task to the inbox",
	Long: `Write a new task file into the inbox. The text is taken from the remaining
arguments, or from stdin when there are none or the only one is "-".

The configured extension is appended when the name has none. The file is
written under a temporary name and renamed, so the daemon never sees a
partial task.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task folders not initialized")
		}

		name := taskFileName(args[0])
		var content string
		if len(args) == 1 || (len(args) == 2 && args[1] == "-") {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading task from stdin: %w", err)
			}
			content = string(data)
		} else {
			content = strings.Join(args[1:], " ") + "\n"
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("task %s is empty", name)
		}

		path, err := Tasks.Create(name, content)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", path)
		return nil
	},
}

var taskListLocation string

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in every folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil {
			return fmt.Errorf("task folders not initialized")
		}

		locations := models.AllLocations
		if taskListLocation != "" {
			loc := models.Location(taskListLocation)
			if !loc.Valid() {
				return fmt.Errorf("invalid location %q: must be one of inbox, in_progress, blocked, completed", taskListLocation)
			}
			locations = []models.Location{loc}
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LOCATION\tNAME\tMODIFIED\tTITLE")
		total := 0
		for _, loc := range locations {
			tasks, err := Tasks.List(loc)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				title := ""
				if content, err := Tasks.Read(loc, t.Name); err == nil {
					title = integration.TaskTitle(content)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", loc, t.Name, t.Modified.Local().Format(time.DateTime), title)
				total++
			}
		}
		if total == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		return tw.Flush()
	},
}

var taskRequeueCmd = &cobra.Command{
	Use:   "requeue <name>",
	Short: "Move a blocked or in-progress task back to the inbox",
	Long: `Move a task from the blocked or in-progress folder back to the inbox
without editing it.

In-progress tasks can only be requeued while no daemon is running, since a
running daemon may still be executing them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Tasks == nil || NewLifecycle == nil {
			return fmt.Errorf("task folders not initialized")
		}

		name := taskFileName(args[0])
		loc, err := Tasks.Find(name)
		if err != nil {
			return err
		}
		if loc == models.LocationInProgress && daemonRunning() {
			return fmt.Errorf("task %s is in progress and a daemon is running; stop the daemon first", name)
		}

		from, err := NewLifecycle().Requeue(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (%s -> inbox)\n", name, from)
		return nil
	},
}

// taskFileName appends the configured task extension when name has none.
func taskFileName(name string) string {
	if Config == nil || Config.Tasks.Extension == "" {
		return name
	}
	if strings.HasSuffix(strings.ToLower(name), strings.ToLower(Config.Tasks.Extension)) {
		return name
	}
	if strings.Contains(name, ".") && !strings.HasPrefix(name, ".") {
		return name
	}
	return name + Config.Tasks.Extension
}

// completeTaskNames offers task file names from the given locations.
func completeTaskNames(locs ...models.Location) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 || Tasks == nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var names []string
		for _, loc := range locs {
			tasks, err := Tasks.List(loc)
			if err != nil {
				continue
			}
			for _, t := range tasks {
				if strings.HasPrefix(t.Name, toComplete) {
					names = append(names, t.Name)
				}
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}

func init() {
	taskListCmd.Flags().StringVar(&taskListLocation, "location", "", "Only list one folder (inbox, in_progress, blocked, completed)")
	taskRequeueCmd.ValidArgsFunction = completeTaskNames(models.LocationBlocked, models.LocationInProgress)

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskRequeueCmd)
	rootCmd.AddCommand(taskCmd)
}
