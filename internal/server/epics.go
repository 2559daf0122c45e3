package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type epicBody struct {
	Body domain.Epic `json:"body"`
}

func registerEpics(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-epic",
		Method:        http.MethodPost,
		Path:          "/epics",
		Summary:       "Create epic",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateEpicRequest `json:"body"`
	}) (*epicBody, error) {
		ep, err := engineFor(ctx, e).CreateEpic(ctx, engine.EpicCreateOptions{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Priority:    domain.Priority(input.Body.Priority),
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &epicBody{Body: ep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-epics",
		Method:      http.MethodGet,
		Path:        "/epics",
		Summary:     "List epics",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Priority string `query:"priority"`
	}) (*struct {
		Body epicList `json:"body"`
	}, error) {
		var f repo.EpicFilters
		var err error
		if input.Status != "" {
			if f.Status, err = domain.ParseEpicStatus(input.Status); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
		}
		if input.Priority != "" {
			if f.Priority, err = domain.ParsePriority(input.Priority); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "priority"})
			}
		}
		items, err := e.ListEpics(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body epicList `json:"body"`
		}{Body: epicList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-epic",
		Method:      http.MethodGet,
		Path:        "/epics/{id}",
		Summary:     "Get epic with progress counts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" example:"EPC-H-0001"`
	}) (*epicBody, error) {
		ep, err := e.GetEpic(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &epicBody{Body: ep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-epic",
		Method:      http.MethodPatch,
		Path:        "/epics/{id}",
		Summary:     "Edit epic fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateEpicRequest `json:"body"`
	}) (*epicBody, error) {
		u := repo.EpicUpdate{Title: input.Body.Title, Description: input.Body.Description}
		if input.Body.Priority != nil {
			p, err := domain.ParsePriority(*input.Body.Priority)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "priority"})
			}
			u.Priority = &p
		}
		ep, err := engineFor(ctx, e).UpdateEpic(ctx, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &epicBody{Body: ep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-epic-tasks",
		Method:      http.MethodGet,
		Path:        "/epics/{id}/tasks",
		Summary:     "List an epic's subtasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		tasks, err := e.Subtasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "abort-epic",
		Method:      http.MethodPost,
		Path:        "/epics/{id}/abort",
		Summary:     "Abort epic and all of its tasks",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body *AbortEpicRequest `json:"body"`
	}) (*epicBody, error) {
		if err := requirePermission(ctx, PermEpicAbort); err != nil {
			return nil, handleError(err)
		}
		var reason string
		if input.Body != nil {
			reason = input.Body.Reason
		}
		ep, err := engineFor(ctx, e).AbortEpic(ctx, input.ID, reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &epicBody{Body: ep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-epics",
		Method:      http.MethodPost,
		Path:        "/epics/sync",
		Summary:     "Recompute epic status from subtasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body *SyncEpicsRequest `json:"body"`
	}) (*struct {
		Body epicList `json:"body"`
	}, error) {
		var ids []string
		if input.Body != nil {
			ids = input.Body.IDs
		}
		items, err := engineFor(ctx, e).SyncEpics(ctx, ids...)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body epicList `json:"body"`
		}{Body: epicList{Items: nonNilSlice(items)}}, nil
	})
}
