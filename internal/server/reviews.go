package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type reviewBody struct {
	Body domain.Review `json:"body"`
}

func registerReviews(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-review",
		Method:        http.MethodPost,
		Path:          "/reviews",
		Summary:       "Request a review",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateReviewRequest `json:"body"`
	}) (*reviewBody, error) {
		rv, err := engineFor(ctx, e).CreateReview(ctx, engine.ReviewCreateOptions{
			Type:         domain.ReviewType(input.Body.Type),
			Title:        input.Body.Title,
			TaskID:       input.Body.TaskID,
			Description:  input.Body.Description,
			ArtifactPath: input.Body.ArtifactPath,
			RequestedBy:  actorFromContext(ctx),
			Block:        input.Body.Block,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &reviewBody{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reviews",
		Method:      http.MethodGet,
		Path:        "/reviews",
		Summary:     "List reviews",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
		Type   string `query:"type"`
		TaskID string `query:"task_id"`
	}) (*struct {
		Body reviewList `json:"body"`
	}, error) {
		f := repo.ReviewFilters{TaskID: input.TaskID}
		var err error
		if input.Status != "" {
			if f.Status, err = domain.ParseReviewStatus(input.Status); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
		}
		if input.Type != "" {
			if f.Type, err = domain.ParseReviewType(input.Type); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "type"})
			}
		}
		items, err := e.ListReviews(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body reviewList `json:"body"`
		}{Body: reviewList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-blocked-tasks",
		Method:      http.MethodGet,
		Path:        "/blocked-tasks",
		Summary:     "List tasks gated by a pending review",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body blockedList `json:"body"`
	}, error) {
		items, err := e.BlockedTasks(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body blockedList `json:"body"`
		}{Body: blockedList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-review",
		Method:      http.MethodGet,
		Path:        "/reviews/{id}",
		Summary:     "Get review",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*reviewBody, error) {
		rv, err := e.GetReview(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &reviewBody{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-review",
		Method:      http.MethodPost,
		Path:        "/reviews/{id}/approve",
		Summary:     "Approve a pending review",
		Description: "Approving a review that was already decided returns it unchanged.",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body *DecideReviewRequest `json:"body"`
	}) (*reviewBody, error) {
		if err := requirePermission(ctx, PermReviewDecide); err != nil {
			return nil, handleError(err)
		}
		var body DecideReviewRequest
		if input.Body != nil {
			body = *input.Body
		}
		var reason *string
		if body.Reason != "" {
			reason = &body.Reason
		}
		rv, err := engineFor(ctx, e).ApproveReview(ctx, input.ID, reviewerFor(ctx, body.Reviewer), reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &reviewBody{Body: rv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-review",
		Method:      http.MethodPost,
		Path:        "/reviews/{id}/reject",
		Summary:     "Reject a pending review",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64               `path:"id"`
		Body DecideReviewRequest `json:"body"`
	}) (*reviewBody, error) {
		if err := requirePermission(ctx, PermReviewDecide); err != nil {
			return nil, handleError(err)
		}
		rv, err := engineFor(ctx, e).RejectReview(ctx, input.ID, reviewerFor(ctx, input.Body.Reviewer), input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &reviewBody{Body: rv}, nil
	})
}

// reviewerFor prefers an explicit reviewer, then a verified caller.
func reviewerFor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p, ok := principalFromContext(ctx); ok && p.Verified {
		return p.ActorID
	}
	return ""
}
