package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type taskPath struct {
	ID string `path:"id" example:"OPR-H-0001"`
}

type taskBody struct {
	Body domain.Task `json:"body"`
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := engineFor(ctx, e).CreateTask(ctx, engine.TaskCreateOptions{
			ID:          input.Body.ID,
			Title:       input.Body.Title,
			Role:        domain.Role(input.Body.Role),
			Priority:    domain.Priority(input.Body.Priority),
			Category:    domain.Category(input.Body.Category),
			Description: input.Body.Description,
			EpicID:      input.Body.EpicID,
			DependsOn:   input.Body.DependsOn,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		Role      string `query:"role"`
		Priority  string `query:"priority"`
		Category  string `query:"category"`
		EpicID    string `query:"epic_id"`
		MissionID int64  `query:"mission_id"`
		Open      bool   `query:"open"`
	}) (*struct {
		Body taskList `json:"body"`
	}, error) {
		f := repo.TaskFilters{
			EpicID:   input.EpicID,
			OpenOnly: input.Open,
		}
		var err error
		if input.Status != "" {
			if f.Status, err = domain.ParseTaskStatus(input.Status); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "status"})
			}
		}
		if input.Role != "" {
			if f.Role, err = domain.ParseRole(input.Role); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "role"})
			}
		}
		if input.Priority != "" {
			if f.Priority, err = domain.ParsePriority(input.Priority); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "priority"})
			}
		}
		if input.Category != "" {
			if f.Category, err = domain.ParseCategory(input.Category); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "category"})
			}
		}
		if input.MissionID > 0 {
			id := input.MissionID
			f.MissionID = &id
		}
		tasks, err := e.ListTasks(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body taskList `json:"body"`
		}{Body: taskList{Items: nonNilSlice(tasks)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Edit task fields",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*taskBody, error) {
		u := engine.TaskUpdate{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Notes:       input.Body.Notes,
		}
		if input.Body.Category != nil {
			c := domain.Category(*input.Body.Category)
			u.Category = &c
		}
		t, err := engineFor(ctx, e).UpdateTask(ctx, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "claim-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/claim",
		Summary:     "Claim task",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body *ClaimTaskRequest `json:"body"`
	}) (*taskBody, error) {
		var missionID *int64
		if input.Body != nil && input.Body.MissionID > 0 {
			id := input.Body.MissionID
			missionID = &id
		}
		t, err := engineFor(ctx, e).ClaimTask(ctx, input.ID, missionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/release",
		Summary:     "Return task to TODO",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, err := engineFor(ctx, e).ReleaseTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-task-status",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/status",
		Summary:     "Set task status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body SetTaskStatusRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := engineFor(ctx, e).UpdateTaskStatus(ctx, input.ID, domain.TaskStatus(input.Body.Status), input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/close",
		Summary:     "Close task as COMPLETE or ABORTED",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body SetTaskStatusRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := engineFor(ctx, e).CloseTask(ctx, input.ID, domain.TaskStatus(input.Body.Status), input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-task-epic",
		Method:      http.MethodPut,
		Path:        "/tasks/{id}/epic",
		Summary:     "Link task to an epic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body LinkTaskRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := engineFor(ctx, e).LinkTask(ctx, input.ID, input.Body.EpicID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-task-epic",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}/epic",
		Summary:     "Unlink task from its epic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, err := engineFor(ctx, e).UnlinkTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "task-blocked",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/blocked",
		Summary:     "Report the pending review blocking a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body BlockedStatusResponse `json:"body"`
	}, error) {
		rv, err := e.CheckBlocked(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body BlockedStatusResponse `json:"body"`
		}{Body: BlockedStatusResponse{TaskID: input.ID, Blocked: rv != nil, Review: rv}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "block-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/block",
		Summary:     "Block task on a review",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body BlockTaskRequest `json:"body"`
	}) (*taskBody, error) {
		t, err := engineFor(ctx, e).BlockTask(ctx, input.ID, input.Body.ReviewID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unblock-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{id}/unblock",
		Summary:     "Clear a task's blocking review",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*taskBody, error) {
		t, err := engineFor(ctx, e).UnblockTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskBody{Body: t}, nil
	})
}

func registerDependencies(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-dependencies",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/dependencies",
		Summary:     "List prerequisites of a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body idList `json:"body"`
	}, error) {
		deps, err := e.Dependencies(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body idList `json:"body"`
		}{Body: idList{Items: nonNilSlice(deps)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-dependents",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/dependents",
		Summary:     "List tasks that depend on a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *taskPath) (*struct {
		Body idList `json:"body"`
	}, error) {
		deps, err := e.Dependents(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body idList `json:"body"`
		}{Body: idList{Items: nonNilSlice(deps)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-dependency",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/dependencies",
		Summary:       "Add a dependency edge",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body AddDependencyRequest `json:"body"`
	}) (*struct {
		Body idList `json:"body"`
	}, error) {
		eng := engineFor(ctx, e)
		if err := eng.AddDependency(ctx, input.ID, input.Body.DependsOn); err != nil {
			return nil, handleError(err)
		}
		deps, err := eng.Dependencies(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body idList `json:"body"`
		}{Body: idList{Items: nonNilSlice(deps)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-dependency",
		Method:        http.MethodDelete,
		Path:          "/tasks/{id}/dependencies/{depends_on}",
		Summary:       "Remove a dependency edge",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		DependsOn string `path:"depends_on"`
	}) (*struct{}, error) {
		if err := engineFor(ctx, e).RemoveDependency(ctx, input.ID, input.DependsOn); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
