package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func epicCmd() *cobra.Command {
	epic := &cobra.Command{
		Use:   "epic",
		Short: "Manage epics",
		Long:  "Epics group tasks. An epic's status follows its tasks: all COMPLETE makes it COMPLETE, any started task makes it UNDERWAY.",
	}
	epic.AddCommand(epicCreateCmd())
	epic.AddCommand(epicListCmd())
	epic.AddCommand(epicShowCmd())
	epic.AddCommand(epicUpdateCmd())
	epic.AddCommand(epicAbortCmd())
	epic.AddCommand(epicLinkCmd())
	epic.AddCommand(epicUnlinkCmd())
	epic.AddCommand(epicSyncCmd())
	return epic
}

func progress(ep domain.Epic) string {
	return fmt.Sprintf("%d/%d (%d%%)", ep.CompletedCount, ep.SubtaskCount, ep.ProgressPercent())
}

func epicCreateCmd() *cobra.Command {
	var opts engine.EpicCreateOptions
	var priority string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an epic",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Priority, err = parsePriorityFlag(priority); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ep, err := e.CreateEpic(ctx, opts)
				if err != nil {
					return err
				}
				okf("created %s", ep.ID)
				return printJSONOrTable(ep)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "epic id (allocated when omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&priority, "priority", "", "CRITICAL, HIGH, MEDIUM or LOW")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func epicListCmd() *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List epics with progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f repo.EpicFilters
			var err error
			if status != "" {
				if f.Status, err = domain.ParseEpicStatus(status); err != nil {
					return err
				}
			}
			if f.Priority, err = parsePriorityFlag(priority); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				epics, err := e.ListEpics(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(epics)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Priority", "Progress"})
				for _, ep := range epics {
					tw.AppendRow(table.Row{ep.ID, ep.Title, statusColor(string(ep.Status)), ep.Priority, progress(ep)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	return cmd
}

func epicShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <epic-id>",
		Short: "Show an epic and its subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ep, err := e.GetEpic(ctx, args[0])
				if err != nil {
					return err
				}
				tasks, err := e.Subtasks(ctx, ep.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(struct {
						domain.Epic
						Tasks []domain.Task `json:"tasks"`
					}{ep, tasks})
				}
				fmt.Printf("%s  %s  [%s]  %s\n", ep.ID, ep.Title, statusColor(string(ep.Status)), progress(ep))
				if ep.AbortedReason != nil {
					fmt.Printf("  aborted: %s\n", *ep.AbortedReason)
				}
				if len(tasks) == 0 {
					return nil
				}
				tw := newTable(table.Row{"Task", "Title", "Status", "Role"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, statusColor(string(t.Status)), t.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func epicUpdateCmd() *cobra.Command {
	var title, description, priority string
	cmd := &cobra.Command{
		Use:   "update <epic-id>",
		Short: "Edit epic title, description or priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.EpicUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("description") {
				u.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				p, err := domain.ParsePriority(priority)
				if err != nil {
					return err
				}
				u.Priority = &p
			}
			if u.Empty() {
				return fmt.Errorf("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ep, err := e.UpdateEpic(ctx, args[0], u)
				if err != nil {
					return err
				}
				return printJSONOrTable(ep)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	return cmd
}

func epicAbortCmd() *cobra.Command {
	var reason string
	var yes bool
	cmd := &cobra.Command{
		Use:   "abort <epic-id>",
		Short: "Abort an epic and every task in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("aborting %s also aborts all of its tasks; rerun with --yes", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ep, err := e.AbortEpic(ctx, args[0], reason)
				if err != nil {
					return err
				}
				warnf("%s aborted with %d task(s)", ep.ID, ep.SubtaskCount)
				return printJSONOrTable(ep)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the epic was aborted")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the cascade")
	return cmd
}

func epicLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <task-id> <epic-id>",
		Short: "Move a task into an epic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.LinkTask(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				okf("%s linked to %s", t.ID, args[1])
				return nil
			})
		},
	}
}

func epicUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <task-id>",
		Short: "Remove a task from its epic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UnlinkTask(ctx, args[0])
				if err != nil {
					return err
				}
				okf("%s unlinked", t.ID)
				return nil
			})
		},
	}
}

func epicSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [epic-id...]",
		Short: "Recompute epic status from subtasks (all epics when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				epics, err := e.SyncEpics(ctx, args...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(epics)
				}
				tw := newTable(table.Row{"ID", "Status", "Progress"})
				for _, ep := range epics {
					tw.AppendRow(table.Row{ep.ID, statusColor(string(ep.Status)), progress(ep)})
				}
				tw.Render()
				return nil
			})
		},
	}
}
