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

func reviewCmd() *cobra.Command {
	review := &cobra.Command{
		Use:   "review",
		Short: "Request and decide reviews",
		Long:  "A pending review linked to a task as its blocker stops the task from being claimed until the review is approved or rejected.",
	}
	review.AddCommand(reviewCreateCmd())
	review.AddCommand(reviewListCmd())
	review.AddCommand(reviewShowCmd())
	review.AddCommand(reviewApproveCmd())
	review.AddCommand(reviewRejectCmd())
	review.AddCommand(reviewBlockCmd())
	review.AddCommand(reviewUnblockCmd())
	review.AddCommand(reviewBlockedCmd())
	return review
}

func reviewCreateCmd() *cobra.Command {
	var opts engine.ReviewCreateOptions
	var typ string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a review",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := domain.ParseReviewType(typ)
			if err != nil {
				return err
			}
			opts.Type = t
			opts.RequestedBy = viper.GetString("actor")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.CreateReview(ctx, opts)
				if err != nil {
					return err
				}
				okf("review #%d requested", rv.ID)
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(domain.ReviewGeneral), "code, task_completion, design or general")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task under review")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.ArtifactPath, "artifact", "", "path of the artifact to review")
	cmd.Flags().BoolVar(&opts.Block, "block", false, "block the task until the review is decided")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func reviewListCmd() *cobra.Command {
	var status, typ string
	var f repo.ReviewFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List reviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if status != "" {
				if f.Status, err = domain.ParseReviewStatus(status); err != nil {
					return err
				}
			}
			if typ != "" {
				if f.Type, err = domain.ParseReviewType(typ); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				reviews, err := e.ListReviews(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reviews)
				}
				tw := newTable(table.Row{"#", "Type", "Title", "Task", "Status", "Requested"})
				for _, rv := range reviews {
					tw.AppendRow(table.Row{rv.ID, rv.Type.Display(), rv.Title, deref(rv.TaskID), statusColor(string(rv.Status)), rv.RequestedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "pending, approved or rejected")
	cmd.Flags().StringVar(&typ, "type", "", "type filter")
	cmd.Flags().StringVar(&f.TaskID, "task", "", "task filter")
	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <review-id>",
		Short: "Show a review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "review")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.GetReview(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(rv)
			})
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	var reviewer, reason string
	cmd := &cobra.Command{
		Use:   "approve <review-id>",
		Short: "Approve a pending review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "review")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.ApproveReview(ctx, id, reviewer, optionalString(reason))
				if err != nil {
					return err
				}
				reportDecision(rv, domain.ReviewApproved)
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (default "+engine.DefaultReviewer+")")
	cmd.Flags().StringVar(&reason, "reason", "", "optional note")
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	var reviewer, reason string
	cmd := &cobra.Command{
		Use:   "reject <review-id>",
		Short: "Reject a pending review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "review")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rv, err := e.RejectReview(ctx, id, reviewer, reason)
				if err != nil {
					return err
				}
				reportDecision(rv, domain.ReviewRejected)
				return printJSONOrTable(rv)
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer name (default "+engine.DefaultReviewer+")")
	cmd.Flags().StringVar(&reason, "reason", "", "why the review was rejected")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// reportDecision warns when the review had already been decided differently.
func reportDecision(rv domain.Review, want domain.ReviewStatus) {
	if rv.Status != want {
		warnf("review #%d was already %s; left unchanged", rv.ID, rv.Status)
		return
	}
	okf("review #%d %s", rv.ID, rv.Status)
}

func reviewBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <task-id> <review-id>",
		Short: "Gate a task on a review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1], "review")
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.BlockTask(ctx, args[0], id)
				if err != nil {
					return err
				}
				okf("%s blocked on review #%d", t.ID, id)
				return nil
			})
		},
	}
}

func reviewUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <task-id>",
		Short: "Clear a task's blocking review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.UnblockTask(ctx, args[0])
				if err != nil {
					return err
				}
				okf("%s unblocked", t.ID)
				return nil
			})
		},
	}
}

func reviewBlockedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "blocked",
		Short: "List tasks waiting on a pending review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.BlockedTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if len(items) == 0 {
					fmt.Println("no blocked tasks")
					return nil
				}
				tw := newTable(table.Row{"Task", "Title", "Review", "Review title"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.Task.ID, b.Task.Title, fmt.Sprintf("#%d", b.Review.ID), b.Review.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
}
