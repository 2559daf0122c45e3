package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

type missionBody struct {
	Body domain.Mission `json:"body"`
}

type personaBody struct {
	Body domain.Persona `json:"body"`
}

func registerMissions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Start a mission",
		Description:   "When no persona is given the least used persona for the role is chosen.",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body StartMissionRequest `json:"body"`
	}) (*missionBody, error) {
		eng := engineFor(ctx, e)
		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "role"})
		}
		persona := input.Body.Persona
		if persona == "" {
			p, err := eng.SuggestPersona(ctx, role, nil)
			if err != nil {
				return nil, handleError(err)
			}
			persona = p.Name
		}
		m, err := eng.StartMission(ctx, persona, role, input.Body.Objective)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-missions",
		Method:      http.MethodGet,
		Path:        "/missions",
		Summary:     "List missions, newest first",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Active  bool   `query:"active"`
		Role    string `query:"role"`
		Persona string `query:"persona"`
		Limit   int    `query:"limit" default:"50"`
	}) (*struct {
		Body missionList `json:"body"`
	}, error) {
		f := repo.MissionFilters{ActiveOnly: input.Active, Persona: strings.ToLower(input.Persona), Limit: normalizeLimit(input.Limit)}
		if input.Role != "" {
			r, err := domain.ParseRole(input.Role)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "role"})
			}
			f.Role = r
		}
		items, err := e.ListMissions(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body missionList `json:"body"`
		}{Body: missionList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*missionBody, error) {
		m, err := e.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-mission",
		Method:      http.MethodPatch,
		Path:        "/missions/{id}",
		Summary:     "Edit mission objective or role",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   int64                `path:"id"`
		Body UpdateMissionRequest `json:"body"`
	}) (*missionBody, error) {
		u := repo.MissionUpdate{Objective: input.Body.Objective}
		if input.Body.Role != nil {
			r := domain.Role(*input.Body.Role)
			u.Role = &r
		}
		m, err := engineFor(ctx, e).UpdateMission(ctx, input.ID, u)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "end-mission",
		Method:      http.MethodPost,
		Path:        "/missions/{id}/end",
		Summary:     "End a mission",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*missionBody, error) {
		m, err := engineFor(ctx, e).EndMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &missionBody{Body: m}, nil
	})
}

func registerPersonas(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-personas",
		Method:      http.MethodGet,
		Path:        "/personas",
		Summary:     "List personas",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		Unused bool   `query:"unused"`
		ByUse  bool   `query:"by_usage"`
	}) (*struct {
		Body personaList `json:"body"`
	}, error) {
		f := repo.PersonaFilters{UnusedOnly: input.Unused, ByUsage: input.ByUse}
		if input.Role != "" {
			r, err := domain.ParseRole(input.Role)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "role"})
			}
			f.Role = r
		}
		items, err := e.ListPersonas(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body personaList `json:"body"`
		}{Body: personaList{Items: nonNilSlice(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suggest-persona",
		Method:      http.MethodGet,
		Path:        "/persona-suggestion",
		Summary:     "Suggest the least used persona for a role",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Role    string   `query:"role" required:"true"`
		Exclude []string `query:"exclude"`
	}) (*personaBody, error) {
		p, err := e.SuggestPersona(ctx, domain.Role(input.Role), input.Exclude)
		if err != nil {
			return nil, handleError(err)
		}
		return &personaBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-persona",
		Method:      http.MethodGet,
		Path:        "/personas/{name}",
		Summary:     "Get persona",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*personaBody, error) {
		p, err := e.GetPersona(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &personaBody{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-persona",
		Method:        http.MethodPost,
		Path:          "/personas",
		Summary:       "Add a persona to the catalog",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreatePersonaRequest `json:"body"`
	}) (*personaBody, error) {
		if err := requirePermission(ctx, PermPersonaAdmin); err != nil {
			return nil, handleError(err)
		}
		p, err := engineFor(ctx, e).AddPersona(ctx, config.PersonaSeed{
			Name:        input.Body.Name,
			Role:        input.Body.Role,
			Mythology:   input.Body.Mythology,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &personaBody{Body: p}, nil
	})
}
