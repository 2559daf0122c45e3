package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dusktreader/site-nine/internal/events"
	"github.com/dusktreader/site-nine/internal/repo"
)

// ResetConfirmation must be passed to Reset verbatim.
const ResetConfirmation = "DELETE ALL DATA"

// Reset deletes every task, epic, review, handoff, mission and ADR link and
// zeroes persona usage. Personas, ADR records and the event log survive.
// It cannot be undone, so the caller passes ResetConfirmation after asking.
func (e Engine) Reset(ctx context.Context, confirmation string) (repo.ResetCounts, error) {
	if confirmation != ResetConfirmation {
		return repo.ResetCounts{}, invalidf("confirmation", "reset requires the confirmation %q", ResetConfirmation)
	}
	var counts repo.ResetCounts
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if counts, err = e.Repo.ResetWorkTx(ctx, tx); err != nil {
			return err
		}
		return e.event(ctx, tx, "workspace.reset", events.KindWorkspace, "", events.EventPayload{
			"tasks": counts.Tasks, "epics": counts.Epics, "missions": counts.Missions,
		})
	})
	if err != nil {
		return counts, err
	}
	e.log().Warn("workspace reset", "tasks", counts.Tasks, "epics", counts.Epics, "missions", counts.Missions)
	if err := e.Repo.Vacuum(ctx); err != nil {
		e.log().Warn("vacuum after reset failed", "error", err)
	}
	return counts, nil
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Doctor check names.
const (
	CheckForeignKeys   = "foreign_keys"
	CheckClaimedAt     = "claimed_at"
	CheckEndedMissions = "ended_missions"
	CheckPersonaUsage  = "persona_usage"
	CheckEpicStatus    = "epic_status"
)

type DoctorIssue struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity" enum:"error,warning"`
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Fixable  bool     `json:"fixable"`
	Fixed    bool     `json:"fixed"`
}

type DoctorReport struct {
	Issues []DoctorIssue `json:"issues"`
	Fixed  int           `json:"fixed"`
}

// Healthy reports whether nothing is left to repair. Warnings do not count.
func (r DoctorReport) Healthy() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError && !is.Fixed {
			return false
		}
	}
	return true
}

// Doctor inspects the store for damage the schema cannot prevent on its own,
// such as rows orphaned while foreign keys were off or drifted counters. With
// fix set, every fixable issue is repaired in the same transaction.
func (e Engine) Doctor(ctx context.Context, fix bool) (DoctorReport, error) {
	var report DoctorReport
	err := e.withTx(ctx, func(tx *sql.Tx) error {
		report = DoctorReport{}
		checks := []func(context.Context, *sql.Tx, bool, *DoctorReport) error{
			e.checkForeignKeys,
			e.checkClaimedAt,
			e.checkEndedMissions,
			e.checkPersonaUsage,
			e.checkEpicStatus,
		}
		for _, check := range checks {
			if err := check(ctx, tx, fix, &report); err != nil {
				return err
			}
		}
		for _, is := range report.Issues {
			if is.Fixed {
				report.Fixed++
			}
		}
		if report.Fixed == 0 {
			return nil
		}
		return e.event(ctx, tx, "workspace.repaired", events.KindWorkspace, "", events.EventPayload{"fixed": report.Fixed})
	})
	if err != nil {
		return DoctorReport{}, err
	}
	e.log().Info("doctor finished", "issues", len(report.Issues), "fixed", report.Fixed)
	return report, nil
}

func (e Engine) checkForeignKeys(ctx context.Context, tx *sql.Tx, fix bool, r *DoctorReport) error {
	violations, err := e.Repo.ForeignKeyViolationsTx(ctx, tx)
	if err != nil {
		return err
	}
	for _, v := range violations {
		is := DoctorIssue{
			Check:    CheckForeignKeys,
			Severity: SeverityError,
			Subject:  fmt.Sprintf("%s row %d", v.Table, v.RowID),
			Message:  fmt.Sprintf("%s references a missing %s row", v.Column, v.Parent),
			Fixable:  v.OnDelete == "SET NULL" || v.OnDelete == "CASCADE",
		}
		if fix && is.Fixable {
			if is.Fixed, err = e.Repo.RepairFKViolationTx(ctx, tx, v); err != nil {
				return err
			}
		}
		r.Issues = append(r.Issues, is)
	}
	return nil
}

func (e Engine) checkClaimedAt(ctx context.Context, tx *sql.Tx, _ bool, r *DoctorReport) error {
	taskIDs, err := e.Repo.UnderwayWithoutClaimTx(ctx, tx)
	if err != nil {
		return err
	}
	for _, id := range taskIDs {
		r.Issues = append(r.Issues, DoctorIssue{
			Check:    CheckClaimedAt,
			Severity: SeverityWarning,
			Subject:  id,
			Message:  "task is UNDERWAY but was never claimed",
		})
	}
	return nil
}

func (e Engine) checkEndedMissions(ctx context.Context, tx *sql.Tx, _ bool, r *DoctorReport) error {
	taskIDs, err := e.Repo.TasksHeldByEndedMissionsTx(ctx, tx)
	if err != nil {
		return err
	}
	for _, id := range taskIDs {
		r.Issues = append(r.Issues, DoctorIssue{
			Check:    CheckEndedMissions,
			Severity: SeverityWarning,
			Subject:  id,
			Message:  "task is UNDERWAY under a mission that has ended",
		})
	}
	return nil
}

func (e Engine) checkPersonaUsage(ctx context.Context, tx *sql.Tx, fix bool, r *DoctorReport) error {
	drift, err := e.Repo.PersonaUsageDriftTx(ctx, tx)
	if err != nil {
		return err
	}
	for _, u := range drift {
		is := DoctorIssue{
			Check:    CheckPersonaUsage,
			Severity: SeverityError,
			Subject:  u.Name,
			Message:  fmt.Sprintf("mission_count is %d but %d missions exist", u.StoredCount, u.ActualCount),
			Fixable:  true,
		}
		if u.StoredCount == u.ActualCount {
			is.Message = "last_mission_at does not match the latest mission"
		}
		if fix {
			if err := e.Repo.SetPersonaUsageTx(ctx, tx, u.Name, u.ActualCount, u.ActualLastMission); err != nil {
				return err
			}
			is.Fixed = true
		}
		r.Issues = append(r.Issues, is)
	}
	return nil
}

func (e Engine) checkEpicStatus(ctx context.Context, tx *sql.Tx, fix bool, r *DoctorReport) error {
	epicIDs, err := e.Repo.ListEpicIDsTx(ctx, tx)
	if err != nil {
		return err
	}
	for _, id := range epicIDs {
		ep, err := e.Repo.GetEpicTx(ctx, tx, id)
		if err != nil {
			return err
		}
		counts, err := e.Repo.EpicTaskCountsTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if !epicDrifted(ep, counts) {
			continue
		}
		is := DoctorIssue{
			Check:    CheckEpicStatus,
			Severity: SeverityError,
			Subject:  id,
			Message:  fmt.Sprintf("stored status %s, subtasks say %s", ep.Status, deriveEpicStatus(counts)),
			Fixable:  true,
		}
		if deriveEpicStatus(counts) == ep.Status {
			is.Message = "epic is COMPLETE without completed_at"
		}
		if fix {
			if _, err := e.RecomputeEpicTx(ctx, tx, id); err != nil {
				return err
			}
			is.Fixed = true
		}
		r.Issues = append(r.Issues, is)
	}
	return nil
}
