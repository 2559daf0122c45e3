package engine_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/codename"
	"github.com/dusktreader/site-nine/internal/config"
	"github.com/dusktreader/site-nine/internal/db"
	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/migrate"
	"github.com/dusktreader/site-nine/internal/repo"
)

type testEnv struct {
	Engine    engine.Engine
	Ctx       context.Context
	Workspace string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	eng := engine.New(conn, config.Default("test-project"))
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	_, err = eng.SeedPersonas(ctx)
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Workspace: dir}
}

func (env testEnv) task(t *testing.T, opts engine.TaskCreateOptions) domain.Task {
	t.Helper()
	if opts.Title == "" {
		opts.Title = "work"
	}
	if opts.Role == "" && opts.ID == "" {
		opts.Role = domain.RoleEngineer
	}
	task, err := env.Engine.CreateTask(env.Ctx, opts)
	require.NoError(t, err)
	return task
}

func (env testEnv) mission(t *testing.T, role domain.Role) domain.Mission {
	t.Helper()
	p, err := env.Engine.SuggestPersona(env.Ctx, role, nil)
	require.NoError(t, err)
	m, err := env.Engine.StartMission(env.Ctx, p.Name, role, "test")
	require.NoError(t, err)
	return m
}

func TestCreateTaskWithExplicitID(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ID:       "OPR-H-0001",
		Title:    "Set up CI",
		Role:     domain.RoleOperator,
		Priority: domain.PriorityHigh,
		Category: "infrastructure",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, task.Status)
	assert.Equal(t, "2024-01-01T00:00:00Z", task.CreatedAt)
	require.NotNil(t, task.Category)
	assert.Equal(t, domain.Category("infrastructure"), *task.Category)

	got, err := env.Engine.GetTask(env.Ctx, "OPR-H-0001")
	require.NoError(t, err)
	assert.Equal(t, "Set up CI", got.Title)
	assert.Nil(t, got.ClaimedAt)
	assert.Nil(t, got.ClosedAt)
}

func TestCreateTaskAllocatesGlobalNumber(t *testing.T) {
	env := newTestEnv(t)
	env.task(t, engine.TaskCreateOptions{ID: "OPR-H-0001", Role: domain.RoleOperator, Priority: domain.PriorityHigh})
	env.task(t, engine.TaskCreateOptions{ID: "TST-M-0007", Role: domain.RoleTester})

	next := env.task(t, engine.TaskCreateOptions{Role: domain.RoleEngineer, Priority: domain.PriorityLow})
	assert.Equal(t, "ENG-L-0008", next.ID)
}

func TestCreateTaskRejections(t *testing.T) {
	env := newTestEnv(t)
	env.task(t, engine.TaskCreateOptions{ID: "OPR-H-0001", Role: domain.RoleOperator, Priority: domain.PriorityHigh})

	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "OPR-H-0001", Title: "again", Priority: domain.PriorityHigh})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "OPR-H-0002", Title: "x", Role: domain.RoleOperator, Priority: domain.PriorityLow})
	var mismatch *engine.IDMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "priority", mismatch.Field)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "ENG-H-0003", Title: "x", Role: domain.RoleTester, Priority: domain.PriorityHigh})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "role", mismatch.Field)

	var verr *engine.ValidationError
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "  ", Role: domain.RoleTester})
	assert.ErrorAs(t, err, &verr)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ID: "OPR-H-12", Title: "x", Priority: domain.PriorityHigh})
	assert.ErrorAs(t, err, &verr)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Role: domain.RoleTester, Category: "gardening"})
	assert.ErrorAs(t, err, &verr)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Role: domain.RoleTester, EpicID: "EPC-H-0042"})
	var refErr *engine.ReferentialError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "epic", refErr.Ref)

	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", Role: domain.RoleTester, DependsOn: []string{"ENG-H-0404"}})
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "task", refErr.Ref)
	assert.Equal(t, "ENG-H-0404", refErr.RefID)

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.GetTask(env.Ctx, "ENG-H-0404")
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "task", nf.Kind)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestTaskLifecycleTimestamps(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	task := env.task(t, engine.TaskCreateOptions{})

	claimed, err := env.Engine.ClaimTask(env.Ctx, task.ID, &m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskUnderway, claimed.Status)
	require.NotNil(t, claimed.ClaimedAt)
	require.NotNil(t, claimed.CurrentMissionID)
	assert.Equal(t, m.ID, *claimed.CurrentMissionID)

	paused, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskPaused, nil)
	require.NoError(t, err)
	assert.NotNil(t, paused.PausedAt)

	notes := "shipped"
	done, err := env.Engine.CloseTask(env.Ctx, task.ID, domain.TaskComplete, &notes)
	require.NoError(t, err)
	assert.Nil(t, done.PausedAt)
	assert.NotNil(t, done.ClosedAt)
	assert.Equal(t, "shipped", done.Notes)

	reopened, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskUnderway, nil)
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)

	released, err := env.Engine.ReleaseTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, released.Status)
	assert.Nil(t, released.ClaimedAt)
	assert.Nil(t, released.CurrentMissionID)

	_, err = env.Engine.CloseTask(env.Ctx, task.ID, domain.TaskReview, nil)
	var verr *engine.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestClaimTaskUnknownMission(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{})
	missing := int64(99)
	_, err := env.Engine.ClaimTask(env.Ctx, task.ID, &missing)
	var refErr *engine.ReferentialError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "mission", refErr.Ref)

	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, got.Status)
}

func TestUpdateTaskFields(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{Category: "feature"})
	title := "renamed"
	none := domain.Category("")
	got, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{Title: &title, Category: &none})
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Nil(t, got.Category)

	_, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdate{})
	var verr *engine.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDependencies(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, engine.TaskCreateOptions{})
	b := env.task(t, engine.TaskCreateOptions{})
	c := env.task(t, engine.TaskCreateOptions{DependsOn: []string{a.ID}})
	assert.Equal(t, []string{a.ID}, c.DependsOn)

	require.NoError(t, env.Engine.AddDependency(env.Ctx, c.ID, b.ID))
	err := env.Engine.AddDependency(env.Ctx, c.ID, b.ID)
	assert.ErrorIs(t, err, engine.ErrDuplicateEdge)

	deps, err := env.Engine.Dependencies(env.Ctx, c.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, deps)

	dependents, err := env.Engine.Dependents(env.Ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, dependents)

	err = env.Engine.AddDependency(env.Ctx, c.ID, "ENG-H-0999")
	var nf *engine.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ENG-H-0999", nf.ID)

	err = env.Engine.AddDependency(env.Ctx, a.ID, a.ID)
	var verr *engine.ValidationError
	assert.ErrorAs(t, err, &verr)

	require.NoError(t, env.Engine.RemoveDependency(env.Ctx, c.ID, a.ID))
	assert.ErrorIs(t, env.Engine.RemoveDependency(env.Ctx, c.ID, a.ID), repo.ErrNotFound)

	// Dependencies do not gate claiming.
	_, err = env.Engine.ClaimTask(env.Ctx, c.ID, nil)
	assert.NoError(t, err)
}

func TestEpicIDsUseTheirOwnCounter(t *testing.T) {
	env := newTestEnv(t)
	env.task(t, engine.TaskCreateOptions{ID: "ENG-H-0005", Priority: domain.PriorityHigh})
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Auth", Priority: domain.PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, "EPC-H-0001", ep.ID)
	assert.Equal(t, domain.EpicTodo, ep.Status)

	ep2, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Billing", Priority: domain.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, "EPC-L-0002", ep2.ID)

	_, err = env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{ID: "EPC-L-0002", Title: "dup", Priority: domain.PriorityLow})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)
}

func TestUpdateEpicPriorityKeepsID(t *testing.T) {
	env := newTestEnv(t)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Auth", Priority: domain.PriorityHigh})
	require.NoError(t, err)

	low := domain.PriorityLow
	got, err := env.Engine.UpdateEpic(env.Ctx, ep.ID, repo.EpicUpdate{Priority: &low})
	require.NoError(t, err)
	assert.Equal(t, "EPC-H-0001", got.ID)
	assert.Equal(t, domain.PriorityLow, got.Priority)

	next, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Billing", Priority: domain.PriorityLow})
	require.NoError(t, err)
	assert.Equal(t, "EPC-L-0002", next.ID)
}

func TestEpicStatusFollowsSubtasks(t *testing.T) {
	env := newTestEnv(t)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Auth"})
	require.NoError(t, err)
	a := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})
	b := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})

	got, err := env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicTodo, got.Status)
	assert.Equal(t, 2, got.SubtaskCount)

	_, err = env.Engine.ClaimTask(env.Ctx, a.ID, nil)
	require.NoError(t, err)
	got, err = env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicUnderway, got.Status)

	_, err = env.Engine.CloseTask(env.Ctx, a.ID, domain.TaskComplete, nil)
	require.NoError(t, err)
	_, err = env.Engine.CloseTask(env.Ctx, b.ID, domain.TaskComplete, nil)
	require.NoError(t, err)
	got, err = env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicComplete, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 100, got.ProgressPercent())

	_, err = env.Engine.UpdateTaskStatus(env.Ctx, b.ID, domain.TaskUnderway, nil)
	require.NoError(t, err)
	got, err = env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicUnderway, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Equal(t, 50, got.ProgressPercent())

	_, err = env.Engine.UnlinkTask(env.Ctx, b.ID)
	require.NoError(t, err)
	got, err = env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicComplete, got.Status)
	assert.Equal(t, 1, got.SubtaskCount)
}

func TestEpicWithoutTasksStaysTodo(t *testing.T) {
	env := newTestEnv(t)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Empty"})
	require.NoError(t, err)
	synced, err := env.Engine.SyncEpics(env.Ctx)
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, ep.ID, synced[0].ID)
	assert.Equal(t, domain.EpicTodo, synced[0].Status)
	assert.Equal(t, 0, synced[0].ProgressPercent())
}

func TestLinkTaskMovesBetweenEpics(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "one"})
	require.NoError(t, err)
	second, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "two"})
	require.NoError(t, err)
	task := env.task(t, engine.TaskCreateOptions{EpicID: first.ID})
	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, nil)
	require.NoError(t, err)

	moved, err := env.Engine.LinkTask(env.Ctx, task.ID, second.ID)
	require.NoError(t, err)
	require.NotNil(t, moved.EpicID)
	assert.Equal(t, second.ID, *moved.EpicID)

	got, err := env.Engine.GetEpic(env.Ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicTodo, got.Status)
	got, err = env.Engine.GetEpic(env.Ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicUnderway, got.Status)

	_, err = env.Engine.LinkTask(env.Ctx, task.ID, "EPC-H-0099")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAbortEpicCascades(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Doomed"})
	require.NoError(t, err)
	a := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})
	b := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})
	other := env.task(t, engine.TaskCreateOptions{})
	_, err = env.Engine.ClaimTask(env.Ctx, a.ID, &m.ID)
	require.NoError(t, err)

	aborted, err := env.Engine.AbortEpic(env.Ctx, ep.ID, "descoped")
	require.NoError(t, err)
	assert.Equal(t, domain.EpicAborted, aborted.Status)
	require.NotNil(t, aborted.AbortedReason)
	assert.Equal(t, "descoped", *aborted.AbortedReason)
	assert.NotNil(t, aborted.AbortedAt)

	for _, id := range []string{a.ID, b.ID} {
		task, err := env.Engine.GetTask(env.Ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskAborted, task.Status)
		assert.NotNil(t, task.ClosedAt)
		assert.Nil(t, task.CurrentMissionID)
	}
	untouched, err := env.Engine.GetTask(env.Ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, untouched.Status)

	// An aborted epic is not recomputed by later task changes.
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, a.ID, domain.TaskUnderway, nil)
	require.NoError(t, err)
	got, err := env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicAborted, got.Status)

	again, err := env.Engine.AbortEpic(env.Ctx, ep.ID, "twice")
	require.NoError(t, err)
	assert.Equal(t, "descoped", *again.AbortedReason)
}

func TestReviewBlocksClaimUntilDecided(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{})
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{
		Type:   domain.ReviewDesign,
		Title:  "Schema review",
		TaskID: task.ID,
		Block:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, rv.Status)

	blocking, err := env.Engine.CheckBlocked(env.Ctx, task.ID)
	require.NoError(t, err)
	require.NotNil(t, blocking)
	assert.Equal(t, rv.ID, blocking.ID)

	blocked, err := env.Engine.BlockedTasks(env.Ctx)
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	assert.Equal(t, task.ID, blocked[0].Task.ID)

	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, nil)
	var rbErr *engine.ReviewBlockedError
	require.ErrorAs(t, err, &rbErr)
	assert.Equal(t, rv.ID, rbErr.Review.ID)

	approved, err := env.Engine.ApproveReview(env.Ctx, rv.ID, "", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, approved.Status)
	require.NotNil(t, approved.ReviewedBy)
	assert.Equal(t, engine.DefaultReviewer, *approved.ReviewedBy)

	blocking, err = env.Engine.CheckBlocked(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, blocking)

	claimed, err := env.Engine.ClaimTask(env.Ctx, task.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskUnderway, claimed.Status)
	require.NotNil(t, claimed.BlocksOnReviewID)
	assert.Equal(t, rv.ID, *claimed.BlocksOnReviewID)
}

func TestReviewDecisionsAreFinal(t *testing.T) {
	env := newTestEnv(t)
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{Type: "code", Title: "PR 12"})
	require.NoError(t, err)

	_, err = env.Engine.RejectReview(env.Ctx, rv.ID, "alice", " ")
	var verr *engine.ValidationError
	require.ErrorAs(t, err, &verr)

	rejected, err := env.Engine.RejectReview(env.Ctx, rv.ID, "alice", "needs tests")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewRejected, rejected.Status)

	again, err := env.Engine.ApproveReview(env.Ctx, rv.ID, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewRejected, again.Status)
	assert.Equal(t, "alice", *again.ReviewedBy)
	assert.Equal(t, "needs tests", *again.OutcomeReason)

	pending, err := env.Engine.PendingReviews(env.Ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = env.Engine.ApproveReview(env.Ctx, 404, "", nil)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestBlockAndUnblockTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{})
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{Type: "general", Title: "sign-off", TaskID: task.ID})
	require.NoError(t, err)

	_, err = env.Engine.BlockTask(env.Ctx, task.ID, rv.ID)
	require.NoError(t, err)
	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, nil)
	var rbErr *engine.ReviewBlockedError
	require.ErrorAs(t, err, &rbErr)

	unblocked, err := env.Engine.UnblockTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, unblocked.BlocksOnReviewID)
	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, nil)
	assert.NoError(t, err)

	_, err = env.Engine.BlockTask(env.Ctx, task.ID, 999)
	var refErr *engine.ReferentialError
	assert.ErrorAs(t, err, &refErr)
}

func TestHandoffTransitions(t *testing.T) {
	env := newTestEnv(t)
	from := env.mission(t, domain.RoleEngineer)
	to := env.mission(t, domain.RoleTester)
	task := env.task(t, engine.TaskCreateOptions{})

	h, err := env.Engine.CreateHandoff(env.Ctx, engine.HandoffCreateOptions{
		TaskID:        task.ID,
		FromMissionID: from.ID,
		ToRole:        domain.RoleTester,
		Summary:       "ready for QA",
		Files:         []string{"api/handler.go", "api/handler_test.go"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HandoffPending, h.Status)

	pending, err := env.Engine.PendingHandoffsForRole(env.Ctx, domain.RoleTester)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"api/handler.go", "api/handler_test.go"}, pending[0].Files)

	res, err := env.Engine.CompleteHandoff(env.Ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.HandoffPending, res.Handoff.Status)

	res, err = env.Engine.AcceptHandoff(env.Ctx, h.ID, to.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.HandoffAccepted, res.Handoff.Status)
	require.NotNil(t, res.Handoff.ToMissionID)
	assert.Equal(t, to.ID, *res.Handoff.ToMissionID)
	assert.NotNil(t, res.Handoff.AcceptedAt)

	res, err = env.Engine.CancelHandoff(env.Ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.HandoffCancelled, res.Handoff.Status)

	res, err = env.Engine.CancelHandoff(env.Ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	pending, err = env.Engine.PendingHandoffsForRole(env.Ctx, domain.RoleTester)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompletedHandoffCannotBeCancelled(t *testing.T) {
	env := newTestEnv(t)
	from := env.mission(t, domain.RoleEngineer)
	to := env.mission(t, domain.RoleInspector)
	task := env.task(t, engine.TaskCreateOptions{})
	h, err := env.Engine.CreateHandoff(env.Ctx, engine.HandoffCreateOptions{TaskID: task.ID, FromMissionID: from.ID, ToRole: domain.RoleInspector, Summary: "audit"})
	require.NoError(t, err)
	_, err = env.Engine.AcceptHandoff(env.Ctx, h.ID, to.ID)
	require.NoError(t, err)
	res, err := env.Engine.CompleteHandoff(env.Ctx, h.ID)
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.NotNil(t, res.Handoff.CompletedAt)

	res, err = env.Engine.CancelHandoff(env.Ctx, h.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, domain.HandoffCompleted, res.Handoff.Status)

	_, err = env.Engine.CreateHandoff(env.Ctx, engine.HandoffCreateOptions{TaskID: "ENG-H-0999", FromMissionID: from.ID, ToRole: domain.RoleTester, Summary: "x"})
	var refErr *engine.ReferentialError
	assert.ErrorAs(t, err, &refErr)
}

func TestMissionCodenameAndPersonaUsage(t *testing.T) {
	env := newTestEnv(t)
	engineers, err := env.Engine.ListPersonas(env.Ctx, repo.PersonaFilters{Role: domain.RoleEngineer})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(engineers), 2)
	names := make([]string, 0, len(engineers))
	for _, p := range engineers {
		names = append(names, p.Name)
	}
	sort.Strings(names)

	suggested, err := env.Engine.SuggestPersona(env.Ctx, domain.RoleEngineer, nil)
	require.NoError(t, err)
	assert.Equal(t, names[0], suggested.Name)

	m, err := env.Engine.StartMission(env.Ctx, suggested.Name, domain.RoleEngineer, "build login")
	require.NoError(t, err)
	assert.Equal(t, codename.Generate(m.ID), m.Codename)
	assert.True(t, m.Active())

	p, err := env.Engine.GetPersona(env.Ctx, suggested.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MissionCount)
	assert.NotNil(t, p.LastMissionAt)

	next, err := env.Engine.SuggestPersona(env.Ctx, domain.RoleEngineer, nil)
	require.NoError(t, err)
	assert.Equal(t, names[1], next.Name)

	_, err = env.Engine.SuggestPersona(env.Ctx, domain.RoleEngineer, names)
	assert.ErrorIs(t, err, engine.ErrNoPersonaAvailable)

	ended, err := env.Engine.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, ended.Active())
	again, err := env.Engine.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, ended.EndTime, again.EndTime)

	active, err := env.Engine.ListMissions(env.Ctx, repo.MissionFilters{ActiveOnly: true})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSuggestPersonaExcludeIgnoresCase(t *testing.T) {
	env := newTestEnv(t)
	first, err := env.Engine.SuggestPersona(env.Ctx, domain.RoleEngineer, nil)
	require.NoError(t, err)

	next, err := env.Engine.SuggestPersona(env.Ctx, domain.RoleEngineer, []string{strings.ToUpper(first.Name[:1]) + first.Name[1:]})
	require.NoError(t, err)
	assert.NotEqual(t, first.Name, next.Name)
}

func TestStartMissionUnknownPersona(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.StartMission(env.Ctx, "loki-the-second", domain.RoleEngineer, "")
	var refErr *engine.ReferentialError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "persona", refErr.Ref)

	_, err = env.Engine.EndMission(env.Ctx, 77)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateMission(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	objective := "pair on review"
	role := domain.Role("builder")
	got, err := env.Engine.UpdateMission(env.Ctx, m.ID, repo.MissionUpdate{Objective: &objective, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, objective, got.Objective)
	assert.Equal(t, domain.RoleEngineer, got.Role)
	assert.Equal(t, m.Codename, got.Codename)
}

func TestSeedPersonasIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	added, err := env.Engine.SeedPersonas(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	p, err := env.Engine.AddPersona(env.Ctx, config.PersonaSeed{Name: "anansi", Role: "Designer", Mythology: "Akan"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDesigner, p.Role)
	_, err = env.Engine.AddPersona(env.Ctx, config.PersonaSeed{Name: "anansi", Role: "Designer", Mythology: "Akan"})
	assert.ErrorIs(t, err, engine.ErrDuplicateKey)
	_, err = env.Engine.AddPersona(env.Ctx, config.PersonaSeed{Name: "Anansi", Role: "Designer", Mythology: "Akan"})
	var verr *engine.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestOperatorScenario(t *testing.T) {
	env := newTestEnv(t)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Deploy pipeline", Priority: domain.PriorityHigh})
	require.NoError(t, err)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		ID: "OPR-H-0001", Title: "Provision runners", Role: domain.RoleOperator, Priority: domain.PriorityHigh, EpicID: ep.ID,
	})
	require.NoError(t, err)
	m := env.mission(t, domain.RoleOperator)

	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, &m.ID)
	require.NoError(t, err)
	rv, err := env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{Type: domain.ReviewTaskCompletion, Title: "verify runners", TaskID: task.ID})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.TaskReview, nil)
	require.NoError(t, err)
	_, err = env.Engine.ApproveReview(env.Ctx, rv.ID, "lead", nil)
	require.NoError(t, err)
	_, err = env.Engine.CloseTask(env.Ctx, task.ID, domain.TaskComplete, nil)
	require.NoError(t, err)
	_, err = env.Engine.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)

	got, err := env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicComplete, got.Status)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "task", EntityID: task.ID, Limit: 50})
	require.NoError(t, err)
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"task.status", "task.status", "task.claimed", "task.created"}, types)

	summary, err := env.Engine.Status(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Tasks[domain.TaskComplete])
	assert.Zero(t, summary.ActiveMissions)
	assert.Zero(t, summary.OpenEpics)
}

func TestBusyStoreReturnsErrBusy(t *testing.T) {
	env := newTestEnv(t)
	holder, err := db.Open(db.Config{Workspace: env.Workspace})
	require.NoError(t, err)
	defer holder.Close()
	tx, err := holder.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	contender, err := db.Open(db.Config{Workspace: env.Workspace, BusyTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	defer contender.Close()
	eng := engine.New(contender, config.Default("test-project"))
	eng.BusyRetries = 1

	_, err = eng.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "locked out"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrBusy), "got %v", err)

	require.NoError(t, tx.Rollback())
	_, err = eng.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "after release"})
	assert.NoError(t, err)
}
