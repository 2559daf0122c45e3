package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type handoffBody struct {
	Body domain.Handoff `json:"body"`
}

type handoffResultBody struct {
	Body engine.HandoffResult `json:"body"`
}

func registerHandoffs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-handoff",
		Method:        http.MethodPost,
		Path:          "/handoffs",
		Summary:       "Hand a task to another role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateHandoffRequest `json:"body"`
	}) (*handoffBody, error) {
		h, err := engineFor(ctx, e).CreateHandoff(ctx, engine.HandoffCreateOptions{
			TaskID:             input.Body.TaskID,
			FromMissionID:      input.Body.FromMissionID,
			ToRole:             domain.Role(input.Body.ToRole),
			Summary:            input.Body.Summary,
			Files:              input.Body.Files,
			AcceptanceCriteria: input.Body.AcceptanceCriteria,
			Notes:              input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &handoffBody{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-handoffs",
		Method:      http.MethodGet,
		Path:        "/handoffs",
		Summary:     "List handoffs",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ToRole string `query:"to_role"`
		Status string `query:"status"`
		TaskID string `query:"task_id"`
	}) (*struct {
		Body handoffList `json:"body"`
	}, error) {
		f := repo.HandoffFilters{TaskID: input.TaskID}
		var err error
		if input.ToRole != "" {
			if f.ToRole, err = domain.ParseRole(input.ToRole); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "to_role"})
			}
		}
		if input.Status != "" {
			if f.Status, err = domain.ParseHandoffStatus(input.Status); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
		}
		items, err := e.ListHandoffs(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body handoffList `json:"body"`
		}{Body: handoffList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-handoff",
		Method:      http.MethodGet,
		Path:        "/handoffs/{id}",
		Summary:     "Get handoff",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*handoffBody, error) {
		h, err := e.GetHandoff(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &handoffBody{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-handoff",
		Method:      http.MethodPost,
		Path:        "/handoffs/{id}/accept",
		Summary:     "Accept a pending handoff",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body AcceptHandoffRequest `json:"body"`
	}) (*handoffResultBody, error) {
		res, err := engineFor(ctx, e).AcceptHandoff(ctx, input.ID, input.Body.MissionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &handoffResultBody{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-handoff",
		Method:      http.MethodPost,
		Path:        "/handoffs/{id}/complete",
		Summary:     "Complete an accepted handoff",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*handoffResultBody, error) {
		res, err := engineFor(ctx, e).CompleteHandoff(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &handoffResultBody{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-handoff",
		Method:      http.MethodPost,
		Path:        "/handoffs/{id}/cancel",
		Summary:     "Cancel a pending or accepted handoff",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*handoffResultBody, error) {
		res, err := engineFor(ctx, e).CancelHandoff(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &handoffResultBody{Body: res}, nil
	})
}
