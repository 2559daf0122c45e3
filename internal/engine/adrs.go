package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/ids"
	"github.com/dusktreader/site-nine/internal/repo"
)

// ADRDir is where decision documents live, relative to the workspace root.
const ADRDir = ".opencode/docs/adrs"

var slugStrip = regexp.MustCompile(`[^a-z0-9-]`)

// ADRFilePath returns the conventional document path for a record.
func ADRFilePath(id, title string) string {
	slug := strings.NewReplacer(" ", "-", "_", "-").Replace(strings.ToLower(strings.TrimSpace(title)))
	slug = slugStrip.ReplaceAllString(slug, "")
	return path.Join(ADRDir, id+"-"+slug+".md")
}

type ADRCreateOptions struct {
	// ID is optional; the next ADR number is allocated when empty.
	ID     string
	Title  string
	Status domain.ADRStatus
	// FilePath defaults to ADRFilePath(ID, Title).
	FilePath string
}

// CreateADR records an architecture decision. New records start PROPOSED
// unless a status is given.
func (e Engine) CreateADR(ctx context.Context, opts ADRCreateOptions) (domain.ADR, error) {
	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.ADR{}, invalidf("title", "title is required")
	}
	if opts.Status == "" {
		opts.Status = domain.ADRProposed
	}
	status, err := domain.ParseADRStatus(string(opts.Status))
	if err != nil {
		return domain.ADR{}, invalid("status", err)
	}
	if opts.ID != "" {
		if _, err := ids.ParseADRID(opts.ID); err != nil {
			return domain.ADR{}, invalid("id", err)
		}
	}
	var a domain.ADR
	err = e.withTx(ctx, func(tx *sql.Tx) error {
		id := opts.ID
		if id == "" {
			existing, err := e.Repo.ListADRIDsTx(ctx, tx)
			if err != nil {
				return err
			}
			if id, err = ids.FormatADRID(ids.NextADRNumber(existing)); err != nil {
				return invalid("id", err)
			}
		}
		filePath := strings.TrimSpace(opts.FilePath)
		if filePath == "" {
			filePath = ADRFilePath(id, opts.Title)
		}
		now := e.timestamp()
		a = domain.ADR{
			ID:        id,
			Title:     opts.Title,
			Status:    status,
			FilePath:  filePath,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertADRTx(ctx, tx, a); err != nil {
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: adr %s already exists", ErrDuplicateKey, id)
			}
			return err
		}
		return e.event(ctx, tx, "adr.created", events.KindADR, id, events.EventPayload{"title": a.Title, "status": a.Status})
	})
	return a, err
}

func (e Engine) GetADR(ctx context.Context, id string) (domain.ADR, error) {
	a, err := e.Repo.GetADR(ctx, id)
	if err != nil {
		return a, wrapNotFound(err, "adr", id)
	}
	return a, nil
}

// ListADRs returns records in ID order. An empty status lists all of them.
func (e Engine) ListADRs(ctx context.Context, status domain.ADRStatus) ([]domain.ADR, error) {
	if status != "" {
		st, err := domain.ParseADRStatus(string(status))
		if err != nil {
			return nil, invalid("status", err)
		}
		status = st
	}
	return e.Repo.ListADRs(ctx, status)
}

// UpdateADR edits title, status or document path.
func (e Engine) UpdateADR(ctx context.Context, id string, u repo.ADRUpdate) (domain.ADR, error) {
	if u.Empty() {
		return domain.ADR{}, invalidf("", "no fields to update")
	}
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		return domain.ADR{}, invalidf("title", "title cannot be empty")
	}
	if u.FilePath != nil && strings.TrimSpace(*u.FilePath) == "" {
		return domain.ADR{}, invalidf("file_path", "file path cannot be empty")
	}
	if u.Status != nil {
		st, err := domain.ParseADRStatus(string(*u.Status))
		if err != nil {
			return domain.ADR{}, invalid("status", err)
		}
		u.Status = &st
	}
	var a domain.ADR
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		before, err := e.Repo.GetADRTx(ctx, tx, id)
		if err != nil {
			return wrapNotFound(err, "adr", id)
		}
		if err := e.Repo.UpdateADRTx(ctx, tx, id, u, e.timestamp()); err != nil {
			return err
		}
		payload := events.EventPayload{}
		if u.Status != nil && *u.Status != before.Status {
			payload["from_status"] = before.Status
			payload["to_status"] = *u.Status
		}
		if err := e.event(ctx, tx, "adr.updated", events.KindADR, id, payload); err != nil {
			return err
		}
		a, err = e.Repo.GetADRTx(ctx, tx, id)
		return err
	})
	return a, err
}

// LinkADR attaches a record to an epic or task. Linking twice is a no-op.
func (e Engine) LinkADR(ctx context.Context, adrID string, target repo.ADRTarget, targetID string) (domain.ADR, error) {
	return e.changeADRLink(ctx, adrID, target, targetID, true)
}

// UnlinkADR removes a link. Removing a missing link is a no-op.
func (e Engine) UnlinkADR(ctx context.Context, adrID string, target repo.ADRTarget, targetID string) (domain.ADR, error) {
	return e.changeADRLink(ctx, adrID, target, targetID, false)
}

func (e Engine) changeADRLink(ctx context.Context, adrID string, target repo.ADRTarget, targetID string, link bool) (domain.ADR, error) {
	if target != repo.ADRTargetEpic && target != repo.ADRTargetTask {
		return domain.ADR{}, invalidf("target", "adr links attach to an epic or a task, not %q", target)
	}
	var a domain.ADR
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := e.Repo.GetADRTx(ctx, tx, adrID); err != nil {
			return wrapNotFound(err, "adr", adrID)
		}
		if err := e.targetExistsTx(ctx, tx, adrID, target, targetID); err != nil {
			return err
		}
		var changed bool
		var err error
		evt := "adr.linked"
		if link {
			changed, err = e.Repo.LinkADRTx(ctx, tx, target, targetID, adrID, e.timestamp())
		} else {
			evt = "adr.unlinked"
			changed, err = e.Repo.UnlinkADRTx(ctx, tx, target, targetID, adrID)
		}
		if err != nil {
			return err
		}
		if changed {
			if err := e.event(ctx, tx, evt, events.KindADR, adrID, events.EventPayload{string(target) + "_id": targetID}); err != nil {
				return err
			}
		} else {
			e.log().Debug("adr link unchanged", "adr", adrID, string(target), targetID, "link", link)
		}
		a, err = e.Repo.GetADRTx(ctx, tx, adrID)
		return err
	})
	return a, err
}

func (e Engine) targetExistsTx(ctx context.Context, tx *sql.Tx, adrID string, target repo.ADRTarget, targetID string) error {
	var err error
	if target == repo.ADRTargetEpic {
		_, err = e.Repo.GetEpicTx(ctx, tx, targetID)
	} else {
		_, err = e.Repo.GetTaskTx(ctx, tx, targetID)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return &ReferentialError{Kind: "adr", ID: adrID, Ref: string(target), RefID: targetID}
	}
	return err
}

// EpicADRs lists the records linked to an epic.
func (e Engine) EpicADRs(ctx context.Context, epicID string) ([]domain.ADR, error) {
	if _, err := e.GetEpic(ctx, epicID); err != nil {
		return nil, err
	}
	return e.Repo.LinkedADRs(ctx, repo.ADRTargetEpic, epicID)
}

// TaskADRs lists the records linked to a task.
func (e Engine) TaskADRs(ctx context.Context, taskID string) ([]domain.ADR, error) {
	if _, err := e.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	return e.Repo.LinkedADRs(ctx, repo.ADRTargetTask, taskID)
}
