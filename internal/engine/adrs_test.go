package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

func TestCreateADRAllocatesNumberAndPath(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Use SQLite for state"})
	require.NoError(t, err)
	assert.Equal(t, "ADR-001", first.ID)
	assert.Equal(t, domain.ADRProposed, first.Status)
	assert.Equal(t, ".opencode/docs/adrs/ADR-001-use-sqlite-for-state.md", first.FilePath)

	_, err = env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{ID: "ADR-010", Title: "Event_log (append only)", Status: "accepted"})
	require.NoError(t, err)
	next, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Next"})
	require.NoError(t, err)
	assert.Equal(t, "ADR-011", next.ID)

	got, err := env.Engine.GetADR(env.Ctx, "ADR-010")
	require.NoError(t, err)
	assert.Equal(t, domain.ADRAccepted, got.Status)
	assert.Equal(t, ".opencode/docs/adrs/ADR-010-event-log-append-only.md", got.FilePath)

	accepted, err := env.Engine.ListADRs(env.Ctx, domain.ADRAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, "ADR-010", accepted[0].ID)
	all, err := env.Engine.ListADRs(env.Ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateADRRejections(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{ID: "ADR-001", Title: "One"})
	require.NoError(t, err)

	_, err = env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{ID: "ADR-001", Title: "Again"})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)

	var ve *engine.ValidationError
	_, err = env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "  "})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "title", ve.Field)
	_, err = env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "x", Status: "MAYBE"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
	_, err = env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{ID: "ADR-7", Title: "x"})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "id", ve.Field)

	_, err = env.Engine.GetADR(env.Ctx, "ADR-404")
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "adr", nf.Kind)
}

func TestUpdateADR(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Draft"})
	require.NoError(t, err)

	status := domain.ADRStatus("superseded")
	title := "Final"
	got, err := env.Engine.UpdateADR(env.Ctx, a.ID, repo.ADRUpdate{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "Final", got.Title)
	assert.Equal(t, domain.ADRSuperseded, got.Status)
	assert.Equal(t, a.FilePath, got.FilePath)

	_, err = env.Engine.UpdateADR(env.Ctx, a.ID, repo.ADRUpdate{})
	var ve *engine.ValidationError
	assert.ErrorAs(t, err, &ve)
	_, err = env.Engine.UpdateADR(env.Ctx, "ADR-404", repo.ADRUpdate{Title: &title})
	var nf *engine.NotFoundError
	assert.ErrorAs(t, err, &nf)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "adr.updated"})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Contains(t, evts[0].Payload, `"to_status":"SUPERSEDED"`)
}

func TestLinkADRToEpicsAndTasks(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Queue design"})
	require.NoError(t, err)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Queues"})
	require.NoError(t, err)
	task := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})

	_, err = env.Engine.LinkADR(env.Ctx, a.ID, repo.ADRTargetEpic, ep.ID)
	require.NoError(t, err)
	got, err := env.Engine.LinkADR(env.Ctx, a.ID, repo.ADRTargetTask, task.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{ep.ID}, got.EpicIDs)
	assert.Equal(t, []string{task.ID}, got.TaskIDs)

	_, err = env.Engine.LinkADR(env.Ctx, a.ID, repo.ADRTargetTask, task.ID)
	require.NoError(t, err)
	linked, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "adr.linked"})
	require.NoError(t, err)
	assert.Len(t, linked, 2)

	onEpic, err := env.Engine.EpicADRs(env.Ctx, ep.ID)
	require.NoError(t, err)
	require.Len(t, onEpic, 1)
	assert.Equal(t, a.ID, onEpic[0].ID)
	onTask, err := env.Engine.TaskADRs(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Len(t, onTask, 1)

	got, err = env.Engine.UnlinkADR(env.Ctx, a.ID, repo.ADRTargetTask, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.TaskIDs)
	assert.Equal(t, []string{ep.ID}, got.EpicIDs)
	_, err = env.Engine.UnlinkADR(env.Ctx, a.ID, repo.ADRTargetTask, task.ID)
	require.NoError(t, err)
}

func TestLinkADRToMissingTarget(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Orphan"})
	require.NoError(t, err)

	_, err = env.Engine.LinkADR(env.Ctx, a.ID, repo.ADRTargetEpic, "EPC-H-0042")
	var ref *engine.ReferentialError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "epic", ref.Ref)
	assert.Equal(t, "EPC-H-0042", ref.RefID)

	_, err = env.Engine.LinkADR(env.Ctx, "ADR-404", repo.ADRTargetTask, "ENG-H-0001")
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "adr", nf.Kind)

	_, err = env.Engine.LinkADR(env.Ctx, a.ID, "review", "1")
	var ve *engine.ValidationError
	assert.ErrorAs(t, err, &ve)
}
