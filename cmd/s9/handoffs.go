package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func handoffCmd() *cobra.Command {
	h := &cobra.Command{
		Use:   "handoff",
		Short: "Pass tasks between missions",
		Long:  "Handoffs move pending -> accepted -> completed; pending or accepted handoffs can be cancelled.",
	}
	h.AddCommand(handoffCreateCmd())
	h.AddCommand(handoffListCmd())
	h.AddCommand(handoffShowCmd())
	h.AddCommand(handoffAcceptCmd())
	h.AddCommand(handoffCompleteCmd())
	h.AddCommand(handoffCancelCmd())
	return h
}

func handoffCreateCmd() *cobra.Command {
	var opts engine.HandoffCreateOptions
	var toRole string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Hand a task to another role",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(toRole)
			if err != nil {
				return err
			}
			opts.ToRole = r
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.CreateHandoff(ctx, opts)
				if err != nil {
					return err
				}
				okf("handoff #%d created for %s", h.ID, h.ToRole)
				return printJSONOrTable(h)
			})
		},
	}
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task being handed off")
	cmd.Flags().Int64Var(&opts.FromMissionID, "from-mission", 0, "handing-off mission id")
	cmd.Flags().StringVar(&toRole, "to-role", "", "receiving role")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "what was done and what is left")
	cmd.Flags().StringArrayVar(&opts.Files, "file", nil, "relevant file (repeatable)")
	cmd.Flags().StringVar(&opts.AcceptanceCriteria, "criteria", "", "acceptance criteria")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	for _, name := range []string{"task", "from-mission", "to-role", "summary"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func handoffListCmd() *cobra.Command {
	var toRole, status string
	var f repo.HandoffFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List handoffs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.ToRole, err = parseRoleFlag(toRole); err != nil {
				return err
			}
			if status != "" {
				if f.Status, err = domain.ParseHandoffStatus(status); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListHandoffs(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"#", "Task", "From", "To role", "Status", "Summary"})
				for _, h := range items {
					tw.AppendRow(table.Row{h.ID, h.TaskID, h.FromMissionID, h.ToRole, statusColor(string(h.Status)), h.Summary})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&toRole, "to-role", "", "receiving role filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	return cmd
}

func handoffShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <handoff-id>",
		Short: "Show a handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "handoff")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				h, err := e.GetHandoff(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
}

func reportTransition(res engine.HandoffResult, verb string) error {
	if !res.Changed {
		warnf("handoff #%d is %s; not %s", res.Handoff.ID, res.Handoff.Status, verb)
	} else {
		okf("handoff #%d %s", res.Handoff.ID, res.Handoff.Status)
	}
	return printJSONOrTable(res)
}

func handoffAcceptCmd() *cobra.Command {
	var missionID int64
	cmd := &cobra.Command{
		Use:   "accept <handoff-id>",
		Short: "Accept a pending handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "handoff")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.AcceptHandoff(ctx, id, missionID)
				if err != nil {
					return err
				}
				return reportTransition(res, "accepted")
			})
		},
	}
	cmd.Flags().Int64Var(&missionID, "mission", 0, "accepting mission id")
	_ = cmd.MarkFlagRequired("mission")
	return cmd
}

func handoffCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <handoff-id>",
		Short: "Complete an accepted handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "handoff")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteHandoff(ctx, id)
				if err != nil {
					return err
				}
				return reportTransition(res, "completed")
			})
		},
	}
}

func handoffCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <handoff-id>",
		Short: "Cancel a pending or accepted handoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "handoff")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CancelHandoff(ctx, id)
				if err != nil {
					return err
				}
				return reportTransition(res, "cancelled")
			})
		},
	}
}
