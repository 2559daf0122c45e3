package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type adrBody struct {
	Body domain.ADR `json:"body"`
}

func adrTarget(epicID, taskID string) (repo.ADRTarget, string, huma.StatusError) {
	switch {
	case epicID != "" && taskID != "":
		return "", "", newAPIError(http.StatusBadRequest, "bad_request", "give epic_id or task_id, not both", nil)
	case epicID != "":
		return repo.ADRTargetEpic, epicID, nil
	case taskID != "":
		return repo.ADRTargetTask, taskID, nil
	}
	return "", "", newAPIError(http.StatusBadRequest, "bad_request", "epic_id or task_id is required", nil)
}

func registerADRs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-adr",
		Method:        http.MethodPost,
		Path:          "/adrs",
		Summary:       "Record an architecture decision",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateADRRequest `json:"body"`
	}) (*adrBody, error) {
		a, err := engineFor(ctx, e).CreateADR(ctx, engine.ADRCreateOptions{
			ID:       input.Body.ID,
			Title:    input.Body.Title,
			Status:   domain.ADRStatus(input.Body.Status),
			FilePath: input.Body.FilePath,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &adrBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-adrs",
		Method:      http.MethodGet,
		Path:        "/adrs",
		Summary:     "List architecture decisions",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status"`
	}) (*struct {
		Body adrList `json:"body"`
	}, error) {
		items, err := e.ListADRs(ctx, domain.ADRStatus(input.Status))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body adrList `json:"body"`
		}{Body: adrList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-adr",
		Method:      http.MethodGet,
		Path:        "/adrs/{id}",
		Summary:     "Get an architecture decision with its links",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id" example:"ADR-001"`
	}) (*adrBody, error) {
		a, err := e.GetADR(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &adrBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-adr",
		Method:      http.MethodPatch,
		Path:        "/adrs/{id}",
		Summary:     "Edit title, status or document path",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UpdateADRRequest `json:"body"`
	}) (*adrBody, error) {
		u := repo.ADRUpdate{Title: input.Body.Title, FilePath: input.Body.FilePath}
		if input.Body.Status != nil {
			st := domain.ADRStatus(*input.Body.Status)
			u.Status = &st
		}
		a, err := engineFor(ctx, e).UpdateADR(ctx, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &adrBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "link-adr",
		Method:      http.MethodPost,
		Path:        "/adrs/{id}/links",
		Summary:     "Link a decision to an epic or task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body ADRLinkRequest `json:"body"`
	}) (*adrBody, error) {
		target, targetID, apiErr := adrTarget(input.Body.EpicID, input.Body.TaskID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := engineFor(ctx, e).LinkADR(ctx, input.ID, target, targetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &adrBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unlink-adr",
		Method:      http.MethodDelete,
		Path:        "/adrs/{id}/links",
		Summary:     "Remove a decision's link to an epic or task",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		EpicID string `query:"epic_id"`
		TaskID string `query:"task_id"`
	}) (*adrBody, error) {
		target, targetID, apiErr := adrTarget(input.EpicID, input.TaskID)
		if apiErr != nil {
			return nil, apiErr
		}
		a, err := engineFor(ctx, e).UnlinkADR(ctx, input.ID, target, targetID)
		if err != nil {
			return nil, handleError(err)
		}
		return &adrBody{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-epic-adrs",
		Method:      http.MethodGet,
		Path:        "/epics/{id}/adrs",
		Summary:     "List decisions linked to an epic",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body adrList `json:"body"`
	}, error) {
		items, err := e.EpicADRs(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body adrList `json:"body"`
		}{Body: adrList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-adrs",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/adrs",
		Summary:     "List decisions linked to a task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body adrList `json:"body"`
	}, error) {
		items, err := e.TaskADRs(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body adrList `json:"body"`
		}{Body: adrList{Items: nonNilSlice(items)}}, nil
	})
}

// registerDoctor exposes the consistency check. Reset is not served over HTTP.
func registerDoctor(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "doctor",
		Method:      http.MethodGet,
		Path:        "/doctor",
		Summary:     "Report store inconsistencies without changing anything",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.DoctorReport `json:"body"`
	}, error) {
		report, err := e.Doctor(ctx, false)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DoctorReport `json:"body"`
		}{Body: nonNilIssues(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "doctor-repair",
		Method:      http.MethodPost,
		Path:        "/doctor/repair",
		Summary:     "Repair every fixable inconsistency",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body engine.DoctorReport `json:"body"`
	}, error) {
		if err := requirePermission(ctx, PermRepair); err != nil {
			return nil, handleError(err)
		}
		report, err := engineFor(ctx, e).Doctor(ctx, true)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.DoctorReport `json:"body"`
		}{Body: nonNilIssues(report)}, nil
	})
}

func nonNilIssues(r engine.DoctorReport) engine.DoctorReport {
	r.Issues = nonNilSlice(r.Issues)
	return r
}
