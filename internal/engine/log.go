package engine

import (
	"context"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/repo"
)

// LatestEvents returns audit events, newest first.
func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return e.Repo.LatestEvents(ctx, f)
}

// Summary counts tasks by status.
type Summary struct {
	Tasks          map[domain.TaskStatus]int `json:"tasks"`
	ActiveMissions int                       `json:"active_missions"`
	PendingReviews int                       `json:"pending_reviews"`
	OpenEpics      int                       `json:"open_epics"`
}

// Status summarises the workspace for dashboards.
func (e Engine) Status(ctx context.Context) (Summary, error) {
	var s Summary
	var err error
	if s.Tasks, err = e.Repo.CountTasksByStatus(ctx); err != nil {
		return s, err
	}
	missions, err := e.Repo.ListMissions(ctx, repo.MissionFilters{ActiveOnly: true})
	if err != nil {
		return s, err
	}
	s.ActiveMissions = len(missions)
	reviews, err := e.PendingReviews(ctx)
	if err != nil {
		return s, err
	}
	s.PendingReviews = len(reviews)
	epics, err := e.Repo.ListEpics(ctx, repo.EpicFilters{})
	if err != nil {
		return s, err
	}
	for _, ep := range epics {
		if ep.Status.Active() {
			s.OpenEpics++
		}
	}
	return s, nil
}
