package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks are units of work owned by a role. IDs encode role, priority and a workspace-wide number, e.g. ENG-H-0008.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskClaimCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskCloseCmd())
	task.AddCommand(taskReleaseCmd())
	task.AddCommand(taskDependCmd())
	task.AddCommand(taskUndependCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var role, priority, category string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Role, err = parseRoleFlag(role); err != nil {
				return err
			}
			if opts.Priority, err = parsePriorityFlag(priority); err != nil {
				return err
			}
			opts.Category = domain.Category(category)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				okf("created %s", t.ID)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (allocated when omitted)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&role, "role", "", "owning role (derived from --id when omitted)")
	cmd.Flags().StringVar(&priority, "priority", "", "CRITICAL, HIGH, MEDIUM or LOW")
	cmd.Flags().StringVar(&category, "category", "", "category")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.EpicID, "epic", "", "epic to link")
	cmd.Flags().StringArrayVar(&opts.DependsOn, "depends-on", nil, "dependency task id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	var status, role, priority, category string
	var missionID int64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if status != "" {
				if f.Status, err = domain.ParseTaskStatus(status); err != nil {
					return err
				}
			}
			if f.Role, err = parseRoleFlag(role); err != nil {
				return err
			}
			if f.Priority, err = parsePriorityFlag(priority); err != nil {
				return err
			}
			if category != "" {
				if f.Category, err = domain.ParseCategory(category); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("mission") {
				f.MissionID = &missionID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := newTable(table.Row{"ID", "Title", "Status", "Role", "Epic", "Mission"})
				for _, t := range tasks {
					mission := ""
					if t.CurrentMissionID != nil {
						mission = fmt.Sprintf("%d", *t.CurrentMissionID)
					}
					tw.AppendRow(table.Row{t.ID, t.Title, statusColor(string(t.Status)), t.Role, deref(t.EpicID), mission})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.EpicID, "epic", "", "epic filter")
	cmd.Flags().Int64Var(&missionID, "mission", 0, "claimed by mission")
	cmd.Flags().BoolVar(&f.OpenOnly, "open", false, "hide COMPLETE and ABORTED tasks")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its dependencies and blocking review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				dependents, err := e.Dependents(ctx, t.ID)
				if err != nil {
					return err
				}
				blocker, err := e.CheckBlocked(ctx, t.ID)
				if err != nil {
					return err
				}
				out := struct {
					domain.Task
					Dependents []string       `json:"dependents,omitempty"`
					BlockedBy  *domain.Review `json:"blocked_by,omitempty"`
				}{Task: t, Dependents: dependents, BlockedBy: blocker}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s  %s\n", t.ID, t.Title)
				fmt.Printf("  status:   %s\n", statusColor(string(t.Status)))
				fmt.Printf("  role:     %s\n", t.Role)
				fmt.Printf("  priority: %s\n", t.Priority)
				if t.EpicID != nil {
					fmt.Printf("  epic:     %s\n", *t.EpicID)
				}
				if t.CurrentMissionID != nil {
					fmt.Printf("  mission:  %d\n", *t.CurrentMissionID)
				}
				if len(t.DependsOn) > 0 {
					fmt.Printf("  depends:  %s\n", strings.Join(t.DependsOn, ", "))
				}
				if len(dependents) > 0 {
					fmt.Printf("  needed by: %s\n", strings.Join(dependents, ", "))
				}
				if blocker != nil {
					warnf("blocked by pending review #%d (%s)", blocker.ID, blocker.Title)
				}
				if t.Description != "" {
					fmt.Printf("\n%s\n", t.Description)
				}
				return nil
			})
		},
	}
}

func taskClaimCmd() *cobra.Command {
	var missionID int64
	cmd := &cobra.Command{
		Use:   "claim <task-id>",
		Short: "Claim a task for a mission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var mid *int64
			if cmd.Flags().Changed("mission") {
				mid = &missionID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ClaimTask(ctx, args[0], mid)
				if err != nil {
					return err
				}
				okf("claimed %s", t.ID)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&missionID, "mission", 0, "claiming mission id")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, notes, category, status string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Edit task fields or set its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u engine.TaskUpdate
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("description") {
				u.Description = &description
			}
			if cmd.Flags().Changed("category") {
				c := domain.Category(category)
				u.Category = &c
			}
			var newStatus domain.TaskStatus
			if status != "" {
				var err error
				if newStatus, err = domain.ParseTaskStatus(status); err != nil {
					return err
				}
			}
			var notesPtr *string
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}
			if u.Title == nil && u.Description == nil && u.Category == nil && newStatus == "" && notesPtr == nil {
				return fmt.Errorf("nothing to update")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var t domain.Task
				var err error
				if u.Title != nil || u.Description != nil || u.Category != nil || (notesPtr != nil && newStatus == "") {
					u.Notes = notesPtr
					if t, err = e.UpdateTask(ctx, args[0], u); err != nil {
						return err
					}
				}
				if newStatus != "" {
					if t, err = e.UpdateTaskStatus(ctx, args[0], newStatus, notesPtr); err != nil {
						return err
					}
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&notes, "notes", "", "replace notes")
	cmd.Flags().StringVar(&category, "category", "", "new category (empty clears)")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	return cmd
}

func taskCloseCmd() *cobra.Command {
	var status, notes string
	cmd := &cobra.Command{
		Use:   "close <task-id>",
		Short: "Close a task as COMPLETE or ABORTED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := domain.ParseTaskStatus(status)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.CloseTask(ctx, args[0], st, optionalString(notes))
				if err != nil {
					return err
				}
				okf("%s is %s", t.ID, t.Status)
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(domain.TaskComplete), "COMPLETE or ABORTED")
	cmd.Flags().StringVar(&notes, "notes", "", "closing notes")
	return cmd
}

func taskReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <task-id>",
		Short: "Return a claimed task to TODO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReleaseTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskDependCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "depend <task-id> <depends-on>",
		Short: "Record that a task depends on another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.AddDependency(ctx, args[0], args[1]); err != nil {
					return err
				}
				okf("%s now depends on %s", args[0], args[1])
				return nil
			})
		},
	}
}

func taskUndependCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undepend <task-id> <depends-on>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.RemoveDependency(ctx, args[0], args[1]); err != nil {
					return err
				}
				okf("removed %s -> %s", args[0], args[1])
				return nil
			})
		},
	}
}
