package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eburon/brokerdial/pkg/crm"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and complete follow-up tasks",
}

type taskTable []*crm.Task

func (taskTable) TableHeaders() []string {
	return []string{"ID", "TITLE", "DUE", "PRIORITY", "LEAD", "DONE"}
}

func (t taskTable) TableRows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(t))
	for _, task := range t {
		due := task.DueDate.Time().Local().Format("2006-01-02 15:04")
		if task.Overdue(now) {
			due += " (overdue)"
		}
		done := ""
		if task.Completed {
			done = "✓"
		}
		rows = append(rows, []string{task.ID, task.Title, due, string(task.Priority), task.LeadName, done})
	}
	return rows
}

var tasksAll bool

var tasksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List open tasks, soonest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			tasks, err := e.crm.GetTasks(cmd.Context())
			if err != nil {
				return err
			}
			shown := tasks[:0]
			for _, t := range tasks {
				if tasksAll || !t.Completed {
					shown = append(shown, t)
				}
			}
			if len(shown) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No tasks.")
				return nil
			}
			return output(cmd, taskTable(shown))
		})
	},
}

var tasksDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEnv(cmd.Context(), func(e *env) error {
			tasks, err := e.crm.GetTasks(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if t.ID != args[0] {
					continue
				}
				t.Completed = true
				if err := e.crm.UpdateTask(cmd.Context(), t); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", t.Title)
				return nil
			}
			return fmt.Errorf("task %s: %w", args[0], crm.ErrTaskNotFound)
		})
	},
}

func init() {
	tasksListCmd.Flags().BoolVar(&tasksAll, "all", false, "include completed tasks")

	tasksCmd.AddCommand(tasksListCmd, tasksDoneCmd)
	rootCmd.AddCommand(tasksCmd)
}
