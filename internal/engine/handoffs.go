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

type HandoffCreateOptions struct {
	TaskID             string
	FromMissionID      int64
	ToRole             domain.Role
	Summary            string
	Files              []string
	AcceptanceCriteria string
	Notes              string
}

func (e Engine) CreateHandoff(ctx context.Context, opts HandoffCreateOptions) (domain.Handoff, error) {
	role, err := domain.ParseRole(string(opts.ToRole))
	if err != nil {
		return domain.Handoff{}, invalid("to_role", err)
	}
	opts.Summary = strings.TrimSpace(opts.Summary)
	if opts.Summary == "" {
		return domain.Handoff{}, invalidf("summary", "summary is required")
	}
	var h domain.Handoff
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := e.Repo.TaskExistsTx(ctx, tx, opts.TaskID)
		if err != nil {
			return err
		}
		if !exists {
			return &ReferentialError{Kind: "handoff", ID: "(new)", Ref: "task", RefID: opts.TaskID}
		}
		if _, err := e.Repo.GetMissionTx(ctx, tx, opts.FromMissionID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return &ReferentialError{Kind: "handoff", ID: "(new)", Ref: "mission", RefID: fmt.Sprint(opts.FromMissionID)}
			}
			return err
		}
		h = domain.Handoff{
			TaskID:             opts.TaskID,
			FromMissionID:      opts.FromMissionID,
			ToRole:             role,
			Status:             domain.HandoffPending,
			Summary:            opts.Summary,
			Files:              opts.Files,
			AcceptanceCriteria: opts.AcceptanceCriteria,
			Notes:              opts.Notes,
			CreatedAt:          e.timestamp(),
		}
		id, err := e.Repo.InsertHandoffTx(ctx, tx, h)
		if err != nil {
			return err
		}
		h.ID = id
		return e.event(ctx, tx, "handoff.created", events.KindHandoff, fmt.Sprint(id), events.EventPayload{
			"task_id": h.TaskID, "from_mission_id": h.FromMissionID, "to_role": role,
		})
	})
	return h, err
}

func (e Engine) GetHandoff(ctx context.Context, id int64) (domain.Handoff, error) {
	h, err := e.Repo.GetHandoff(ctx, id)
	if err != nil {
		return h, wrapNotFound(err, "handoff", fmt.Sprint(id))
	}
	return h, nil
}

func (e Engine) ListHandoffs(ctx context.Context, f repo.HandoffFilters) ([]domain.Handoff, error) {
	return e.Repo.ListHandoffs(ctx, f)
}

// PendingHandoffsForRole lists handoffs waiting for an agent of role.
func (e Engine) PendingHandoffsForRole(ctx context.Context, role domain.Role) ([]domain.Handoff, error) {
	r, err := domain.ParseRole(string(role))
	if err != nil {
		return nil, invalid("role", err)
	}
	return e.Repo.ListHandoffs(ctx, repo.HandoffFilters{ToRole: r, Status: domain.HandoffPending})
}

// HandoffResult is the handoff after a transition attempt. Changed is false
// when the handoff was not in a state the transition applies to.
type HandoffResult struct {
	Handoff domain.Handoff `json:"handoff"`
	Changed bool           `json:"changed"`
}

// AcceptHandoff moves a pending handoff to accepted by missionID.
func (e Engine) AcceptHandoff(ctx context.Context, id, missionID int64) (HandoffResult, error) {
	return e.transitionHandoff(ctx, id, "handoff.accepted", func(tx *sql.Tx, now string) (bool, error) {
		if _, err := e.Repo.GetMissionTx(ctx, tx, missionID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return false, &ReferentialError{Kind: "handoff", ID: fmt.Sprint(id), Ref: "mission", RefID: fmt.Sprint(missionID)}
			}
			return false, err
		}
		return e.Repo.AcceptHandoffTx(ctx, tx, id, missionID, now)
	})
}

// CompleteHandoff moves an accepted handoff to completed.
func (e Engine) CompleteHandoff(ctx context.Context, id int64) (HandoffResult, error) {
	return e.transitionHandoff(ctx, id, "handoff.completed", func(tx *sql.Tx, now string) (bool, error) {
		return e.Repo.CompleteHandoffTx(ctx, tx, id, now)
	})
}

// CancelHandoff cancels a pending or accepted handoff.
func (e Engine) CancelHandoff(ctx context.Context, id int64) (HandoffResult, error) {
	return e.transitionHandoff(ctx, id, "handoff.cancelled", func(tx *sql.Tx, _ string) (bool, error) {
		return e.Repo.CancelHandoffTx(ctx, tx, id)
	})
}

func (e Engine) transitionHandoff(ctx context.Context, id int64, evtType string, apply func(tx *sql.Tx, now string) (bool, error)) (HandoffResult, error) {
	var res HandoffResult
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		before, err := e.Repo.GetHandoffTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "handoff", fmt.Sprint(id))
		}
		ok, err := apply(tx, e.timestamp())
		if err != nil {
			return err
		}
		res.Changed = ok
		if !ok {
			e.log().Warn("handoff transition not applicable", "handoff", id, "status", before.Status, "event", evtType)
			res.Handoff = before
			return nil
		}
		if err := e.event(ctx, tx, evtType, events.KindHandoff, fmt.Sprint(id), events.EventPayload{"from_status": before.Status}); err != nil {
			return err
		}
		res.Handoff, err = e.Repo.GetHandoffTx(ctx, tx, id)
		return err
	})
	return res, err
}
