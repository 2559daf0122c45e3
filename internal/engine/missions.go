package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dusktreader/site-nine/internal/codename"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// StartMission opens a mission for persona in role. The codename is derived
// from the new mission id and the persona's usage counter is bumped in the
// same transaction.
func (e Engine) StartMission(ctx context.Context, personaName string, role domain.Role, objective string) (domain.Mission, error) {
	personaName = strings.ToLower(strings.TrimSpace(personaName))
	if personaName == "" {
		return domain.Mission{}, invalidf("persona", "persona is required")
	}
	r, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.Mission{}, invalid("role", err)
	}
	var m domain.Mission
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetPersonaTx(ctx, tx, personaName); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &ReferentialError{Kind: "mission", ID: "(new)", Ref: "persona", RefID: personaName}
			}
			return err
		}
		now := e.timestamp()
		m = domain.Mission{
			PersonaName: personaName,
			Role:        r,
			Objective:   objective,
			StartTime:   now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		id, err := e.Repo.InsertMissionTx(ctx, tx, m)
		if err != nil {
			return err
		}
		m.ID = id
		m.Codename = codename.Generate(id)
		if err := e.Repo.SetMissionCodenameTx(ctx, tx, id, m.Codename); err != nil {
			return err
		}
		if err := e.Repo.IncrementPersonaMissionsTx(ctx, tx, personaName, now); err != nil {
			return wrapNotFound(err, "persona", personaName)
		}
		return e.event(ctx, tx, "mission.started", events.KindMission, fmt.Sprint(id), events.EventPayload{
			"persona": personaName, "role": r, "codename": m.Codename,
		})
	})
	return m, err
}

// EndMission stamps end_time. Ending an ended mission changes nothing.
func (e Engine) EndMission(ctx context.Context, id int64) (domain.Mission, error) {
	var m domain.Mission
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetMissionTx(ctx, tx, id); err != nil {
			return wrapNotFound(err, "mission", fmt.Sprint(id))
		}
		ended, err := e.Repo.EndMissionTx(ctx, tx, id, e.timestamp())
		if err != nil {
			return err
		}
		if ended {
			if err := e.event(ctx, tx, "mission.ended", events.KindMission, fmt.Sprint(id), nil); err != nil {
				return err
			}
		} else {
			e.log().Warn("mission already ended", "mission", id)
		}
		m, err = e.Repo.GetMissionTx(ctx, tx, id)
		return err
	})
	return m, err
}

func (e Engine) GetMission(ctx context.Context, id int64) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return m, wrapNotFound(err, "mission", fmt.Sprint(id))
	}
	return m, nil
}

func (e Engine) ListMissions(ctx context.Context, f repo.MissionFilters) ([]domain.Mission, error) {
	return e.Repo.ListMissions(ctx, f)
}

// UpdateMission edits the objective or role of a mission.
func (e Engine) UpdateMission(ctx context.Context, id int64, u repo.MissionUpdate) (domain.Mission, error) {
	if u.Objective == nil && u.Role == nil {
		return domain.Mission{}, invalidf("", "no fields to update")
	}
	if u.Role != nil {
		r, err := domain.ParseRole(string(*u.Role))
		if err != nil {
			return domain.Mission{}, invalid("role", err)
		}
		u.Role = &r
	}
	var m domain.Mission
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateMissionTx(ctx, tx, id, u, e.timestamp()); err != nil {
			return wrapNotFound(err, "mission", fmt.Sprint(id))
		}
		if err := e.event(ctx, tx, "mission.updated", events.KindMission, fmt.Sprint(id), nil); err != nil {
			return err
		}
		var err error
		m, err = e.Repo.GetMissionTx(ctx, tx, id)
		return err
	})
	return m, err
}
