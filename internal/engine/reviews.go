package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// DefaultReviewer is recorded when approve or reject is called without one.
const DefaultReviewer = "Director"

type ReviewCreateOptions struct {
	Type         domain.ReviewType
	Title        string
	TaskID       string
	Description  string
	ArtifactPath string
	RequestedBy  string
	// Block also sets the task's blocking review to the new review.
	Block bool
}

func (e Engine) CreateReview(ctx context.Context, opts ReviewCreateOptions) (domain.Review, error) {
	typ, err := domain.ParseReviewType(string(opts.Type))
	if err != nil {
		return domain.Review{}, invalid("type", err)
	}
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Review{}, invalidf("title", "title is required")
	}
	if opts.Block && opts.TaskID == "" {
		return domain.Review{}, invalidf("task_id", "a task is required to block on the review")
	}
	var rv domain.Review
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if opts.TaskID != "" {
			exists, err := e.Repo.TaskExistsTx(ctx, tx, opts.TaskID)
			if err != nil {
				return err
			}
			if !exists {
				return &ReferentialError{Kind: "review", ID: "(new)", Ref: "task", RefID: opts.TaskID}
			}
		}
		now := e.timestamp()
		rv = domain.Review{
			Type:         typ,
			Status:       domain.ReviewPending,
			Title:        opts.Title,
			Description:  opts.Description,
			ArtifactPath: opts.ArtifactPath,
			RequestedAt:  now,
		}
		if opts.TaskID != "" {
			rv.TaskID = &opts.TaskID
		}
		if opts.RequestedBy != "" {
			rv.RequestedBy = &opts.RequestedBy
		}
		id, err := e.Repo.InsertReviewTx(ctx, tx, rv)
		if err != nil {
			return err
		}
		rv.ID = id
		if opts.Block {
			if err := e.Repo.SetTaskReviewBlockTx(ctx, tx, opts.TaskID, &id, now); err != nil {
				return err
			}
		}
		return e.event(ctx, tx, "review.created", events.KindReview, fmt.Sprint(id), events.EventPayload{
			"type": typ, "task_id": opts.TaskID, "blocking": opts.Block,
		})
	})
	return rv, err
}

func (e Engine) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	rv, err := e.Repo.GetReview(ctx, id)
	if err != nil {
		return rv, wrapNotFound(err, "review", fmt.Sprint(id))
	}
	return rv, nil
}

func (e Engine) ListReviews(ctx context.Context, f repo.ReviewFilters) ([]domain.Review, error) {
	return e.Repo.ListReviews(ctx, f)
}

func (e Engine) PendingReviews(ctx context.Context) ([]domain.Review, error) {
	return e.Repo.ListReviews(ctx, repo.ReviewFilters{Status: domain.ReviewPending})
}

// ApproveReview approves a pending review. A review that was already decided
// is returned unchanged and a warning is logged.
func (e Engine) ApproveReview(ctx context.Context, id int64, reviewer string, reason *string) (domain.Review, error) {
	return e.decideReview(ctx, id, domain.ReviewApproved, reviewer, reason)
}

// RejectReview rejects a pending review. The reason is required.
func (e Engine) RejectReview(ctx context.Context, id int64, reviewer, reason string) (domain.Review, error) {
	if strings.TrimSpace(reason) == "" {
		return domain.Review{}, invalidf("reason", "a reason is required to reject a review")
	}
	return e.decideReview(ctx, id, domain.ReviewRejected, reviewer, &reason)
}

func (e Engine) decideReview(ctx context.Context, id int64, status domain.ReviewStatus, reviewer string, reason *string) (domain.Review, error) {
	if reviewer == "" {
		reviewer = DefaultReviewer
	}
	var rv domain.Review
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		rv, err = e.Repo.GetReviewTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "review", fmt.Sprint(id))
		}
		ok, err := e.Repo.DecideReviewTx(ctx, tx, id, status, reviewer, reason, e.timestamp())
		if err != nil {
			return err
		}
		if !ok {
			e.log().Warn("review is not pending, leaving it unchanged", "review", id, "status", rv.Status, "requested", status)
			return nil
		}
		if err := e.event(ctx, tx, "review."+string(status), events.KindReview, fmt.Sprint(id), events.EventPayload{"reviewer": reviewer}); err != nil {
			return err
		}
		rv, err = e.Repo.GetReviewTx(ctx, tx, id)
		return err
	})
	return rv, err
}

// BlockTask makes claiming taskID wait on reviewID while that review is pending.
func (e Engine) BlockTask(ctx context.Context, taskID string, reviewID int64) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetReviewTx(ctx, tx, reviewID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &ReferentialError{Kind: "task", ID: taskID, Ref: "review", RefID: fmt.Sprint(reviewID)}
			}
			return err
		}
		if err := e.Repo.SetTaskReviewBlockTx(ctx, tx, taskID, &reviewID, e.timestamp()); err != nil {
			return wrapNotFound(err, "task", taskID)
		}
		if err := e.event(ctx, tx, "task.blocked_on_review", events.KindTask, taskID, events.EventPayload{"review_id": reviewID}); err != nil {
			return err
		}
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		return err
	})
	return t, err
}

// UnblockTask clears the task's blocking review reference.
func (e Engine) UnblockTask(ctx context.Context, taskID string) (domain.Task, error) {
	var t domain.Task
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.SetTaskReviewBlockTx(ctx, tx, taskID, nil, e.timestamp()); err != nil {
			return wrapNotFound(err, "task", taskID)
		}
		if err := e.event(ctx, tx, "task.unblocked", events.KindTask, taskID, nil); err != nil {
			return err
		}
		var err error
		t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
		return err
	})
	return t, err
}

// CheckBlocked returns the review blocking taskID, if it is still pending.
// A resolved review no longer blocks even though the task keeps referencing it.
func (e Engine) CheckBlocked(ctx context.Context, taskID string) (*domain.Review, error) {
	var out *domain.Review
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		t, err := e.Repo.GetTaskTx(ctx, tx, taskID)
		if err != nil {
			return wrapNotFound(err, "task", taskID)
		}
		rv, blocked, err := e.pendingBlockTx(ctx, tx, t)
		if err != nil {
			return err
		}
		if blocked {
			out = &rv
		}
		return nil
	})
	return out, err
}

// BlockedTasks lists every task currently gated by a pending review.
func (e Engine) BlockedTasks(ctx context.Context) ([]domain.BlockedTask, error) {
	return e.Repo.ListBlockedTasks(ctx)
}

func (e Engine) pendingBlockTx(ctx context.Context, tx *sql.Tx, t domain.Task) (domain.Review, bool, error) {
	if t.BlocksOnReviewID == nil {
		return domain.Review{}, false, nil
	}
	rv, err := e.Repo.GetReviewTx(ctx, tx, *t.BlocksOnReviewID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Review{}, false, nil
	}
	if err != nil {
		return domain.Review{}, false, err
	}
	return rv, rv.Status == domain.ReviewPending, nil
}
