package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fentz26/morningtrio/internal/models"
	"github.com/fentz26/morningtrio/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a new task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runTaskAdd),
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the board for a list",
	RunE:  withApp(runTaskList),
}

var taskEditCmd = &cobra.Command{
	Use:   "edit [task-id] [text]",
	Short: "Change a task's text",
	Args:  cobra.MinimumNArgs(2),
	RunE:  withApp(runTaskEdit),
}

var taskDoneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Toggle a task's completion",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTaskDone),
}

var taskMoveCmd = &cobra.Command{
	Use:   "move [task-id] [must|other]",
	Short: "Move a task to another section",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTaskMove),
}

var taskSwitchCmd = &cobra.Command{
	Use:   "switch [task-id] [personal|work]",
	Short: "Move a task to the other task list",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTaskSwitch),
}

var taskReorderCmd = &cobra.Command{
	Use:   "reorder [task-id...]",
	Short: "Set the order of tasks within a section",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withApp(runTaskReorder),
}

var taskRmCmd = &cobra.Command{
	Use:   "rm [task-id]",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTaskRm),
}

var taskClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete completed tasks in a list",
	RunE:  withApp(runTaskClear),
}

var (
	taskList    string
	taskMust    bool
	taskSection string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskEditCmd, taskDoneCmd, taskMoveCmd,
		taskSwitchCmd, taskReorderCmd, taskRmCmd, taskClearCmd)

	taskCmd.PersistentFlags().StringVarP(&taskList, "list", "l", string(models.TaskListPersonal), "Task list (personal or work)")
	taskAddCmd.Flags().BoolVarP(&taskMust, "must", "m", false, "Add to today's must-do tasks")
	taskReorderCmd.Flags().StringVar(&taskSection, "section", "other", "Section to reorder (must or other)")
}

// withApp opens the device app around a command and closes it after.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return explain(fn(cmd.Context(), a, args))
	}
}

func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tasks.ErrMustDoFull):
		return fmt.Errorf("must-do already has %d open tasks; finish or move one first", models.MustDoCap)
	case errors.Is(err, tasks.ErrUnauthenticated):
		return fmt.Errorf("sign in first with 'trio login' (anonymous use is disabled)")
	}
	return err
}

func runTaskAdd(ctx context.Context, a *app, args []string) error {
	list, err := parseList(taskList)
	if err != nil {
		return err
	}
	section := models.SectionOther
	if taskMust {
		section = models.SectionMustDo
	}

	t, err := a.tasks.AddTask(ctx, strings.Join(args, " "), section, list)
	if err != nil {
		return err
	}
	fmt.Printf("Created task: %s\n", truncateID(t.ID))
	return nil
}

func runTaskList(ctx context.Context, a *app, args []string) error {
	list, err := parseList(taskList)
	if err != nil {
		return err
	}
	board, err := a.tasks.Board(ctx, list)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	printGroup := func(title string, ts []models.Task) {
		fmt.Fprintf(w, "%s (%d)\n", title, len(ts))
		for _, t := range ts {
			mark := "[ ]"
			if t.Completed {
				mark = "[x]"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\n", truncateID(t.ID), mark, truncate(t.Text, 50))
		}
	}
	printGroup("MUST DO", board.MustDo)
	printGroup("OTHER", board.Other)
	printGroup("COMPLETED", board.Completed)
	return w.Flush()
}

func runTaskEdit(ctx context.Context, a *app, args []string) error {
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")
	if _, err := a.tasks.UpdateTask(ctx, id, models.Patch{Text: &text}); err != nil {
		return err
	}
	fmt.Printf("Updated task %s\n", truncateID(id))
	return nil
}

func runTaskDone(ctx context.Context, a *app, args []string) error {
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	t, err := a.tasks.ToggleComplete(ctx, id)
	if err != nil {
		return err
	}
	if t.Completed {
		fmt.Printf("Completed: %s\n", t.Text)
	} else {
		fmt.Printf("Reopened: %s\n", t.Text)
	}
	return nil
}

func runTaskMove(ctx context.Context, a *app, args []string) error {
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	section, err := parseSection(args[1])
	if err != nil {
		return err
	}
	if _, err := a.tasks.MoveToSection(ctx, id, section); err != nil {
		return err
	}
	fmt.Printf("Moved task %s to %s\n", truncateID(id), section)
	return nil
}

func runTaskSwitch(ctx context.Context, a *app, args []string) error {
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	list, err := parseList(args[1])
	if err != nil {
		return err
	}
	if _, err := a.tasks.SwitchTaskList(ctx, id, list); err != nil {
		return err
	}
	fmt.Printf("Moved task %s to the %s list\n", truncateID(id), list)
	return nil
}

func runTaskReorder(ctx context.Context, a *app, args []string) error {
	list, err := parseList(taskList)
	if err != nil {
		return err
	}
	section, err := parseSection(taskSection)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(args))
	for _, prefix := range args {
		id, err := a.resolveID(ctx, prefix)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}
	if err := a.tasks.ReorderTasks(ctx, list, section, ids); err != nil {
		return err
	}
	fmt.Printf("Reordered %d task(s)\n", len(ids))
	return nil
}

func runTaskRm(ctx context.Context, a *app, args []string) error {
	id, err := a.resolveID(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.tasks.DeleteTask(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", truncateID(id))
	return nil
}

func runTaskClear(ctx context.Context, a *app, args []string) error {
	list, err := parseList(taskList)
	if err != nil {
		return err
	}
	n, err := a.tasks.ClearCompleted(ctx, list)
	if err != nil {
		return err
	}
	fmt.Printf("Cleared %d completed task(s)\n", n)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
