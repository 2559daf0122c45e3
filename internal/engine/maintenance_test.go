package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusktreader/site-nine/internal/domain"
	"github.com/dusktreader/site-nine/internal/engine"
	"github.com/dusktreader/site-nine/internal/repo"
)

// exec runs raw statements with foreign keys off, the way an older tool or a
// hand edit could have left the store.
func (env testEnv) exec(t *testing.T, stmts ...string) {
	t.Helper()
	conn, err := env.Engine.DB.Conn(env.Ctx)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.ExecContext(env.Ctx, `PRAGMA foreign_keys=OFF`)
	require.NoError(t, err)
	for _, stmt := range stmts {
		_, err = conn.ExecContext(env.Ctx, stmt)
		require.NoError(t, err, stmt)
	}
	_, err = conn.ExecContext(env.Ctx, `PRAGMA foreign_keys=ON`)
	require.NoError(t, err)
}

func issuesByCheck(r engine.DoctorReport) map[string][]engine.DoctorIssue {
	out := map[string][]engine.DoctorIssue{}
	for _, is := range r.Issues {
		out[is.Check] = append(out[is.Check], is)
	}
	return out
}

func TestResetRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t)
	env.task(t, engine.TaskCreateOptions{})

	_, err := env.Engine.Reset(env.Ctx, "yes")
	var ve *engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "confirmation", ve.Field)

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestResetClearsWorkAndKeepsCatalog(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Big"})
	require.NoError(t, err)
	a := env.task(t, engine.TaskCreateOptions{EpicID: ep.ID})
	b := env.task(t, engine.TaskCreateOptions{DependsOn: []string{a.ID}})
	_, err = env.Engine.CreateReview(env.Ctx, engine.ReviewCreateOptions{Type: domain.ReviewCode, Title: "look", TaskID: b.ID, Block: true})
	require.NoError(t, err)
	_, err = env.Engine.CreateHandoff(env.Ctx, engine.HandoffCreateOptions{TaskID: a.ID, FromMissionID: m.ID, ToRole: domain.RoleTester, Summary: "over to you"})
	require.NoError(t, err)
	adr, err := env.Engine.CreateADR(env.Ctx, engine.ADRCreateOptions{Title: "Keep me"})
	require.NoError(t, err)
	_, err = env.Engine.LinkADR(env.Ctx, adr.ID, repo.ADRTargetTask, a.ID)
	require.NoError(t, err)
	_, err = env.Engine.LinkADR(env.Ctx, adr.ID, repo.ADRTargetEpic, ep.ID)
	require.NoError(t, err)

	counts, err := env.Engine.Reset(env.Ctx, engine.ResetConfirmation)
	require.NoError(t, err)
	assert.Equal(t, repo.ResetCounts{Handoffs: 1, Reviews: 1, Dependencies: 1, ADRLinks: 2, Tasks: 2, Epics: 1, Missions: 1}, counts)

	tasks, err := env.Engine.ListTasks(env.Ctx, repo.TaskFilters{})
	require.NoError(t, err)
	assert.Empty(t, tasks)
	missions, err := env.Engine.ListMissions(env.Ctx, repo.MissionFilters{})
	require.NoError(t, err)
	assert.Empty(t, missions)

	p, err := env.Engine.GetPersona(env.Ctx, m.PersonaName)
	require.NoError(t, err)
	assert.Zero(t, p.MissionCount)
	assert.Nil(t, p.LastMissionAt)

	kept, err := env.Engine.GetADR(env.Ctx, adr.ID)
	require.NoError(t, err)
	assert.Empty(t, kept.EpicIDs)
	assert.Empty(t, kept.TaskIDs)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "workspace.reset"})
	require.NoError(t, err)
	assert.Len(t, evts, 1)

	report, err := env.Engine.Doctor(env.Ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)

	next := env.task(t, engine.TaskCreateOptions{})
	assert.Equal(t, "ENG-M-0001", next.ID)
}

func TestDoctorOnCleanStore(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	task := env.task(t, engine.TaskCreateOptions{})
	_, err := env.Engine.ClaimTask(env.Ctx, task.ID, &m.ID)
	require.NoError(t, err)

	report, err := env.Engine.Doctor(env.Ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.True(t, report.Healthy())
}

func TestDoctorRepairsDanglingReferences(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, engine.TaskCreateOptions{})
	env.exec(t,
		`UPDATE tasks SET current_mission_id=999 WHERE id='`+task.ID+`'`,
		`INSERT INTO task_deps(task_id,depends_on_task_id,created_at) VALUES ('`+task.ID+`','ENG-H-0404','2024-01-01T00:00:00Z')`,
	)

	report, err := env.Engine.Doctor(env.Ctx, false)
	require.NoError(t, err)
	fk := issuesByCheck(report)[engine.CheckForeignKeys]
	require.Len(t, fk, 2)
	for _, is := range fk {
		assert.Equal(t, engine.SeverityError, is.Severity)
		assert.True(t, is.Fixable)
		assert.False(t, is.Fixed)
	}
	assert.False(t, report.Healthy())

	report, err = env.Engine.Doctor(env.Ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fixed)
	assert.True(t, report.Healthy())

	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentMissionID)
	deps, err := env.Engine.Dependencies(env.Ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)

	report, err = env.Engine.Doctor(env.Ctx, false)
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
}

func TestDoctorRecountsPersonaUsage(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	env.exec(t, `UPDATE personas SET mission_count=5 WHERE name='`+m.PersonaName+`'`)

	report, err := env.Engine.Doctor(env.Ctx, false)
	require.NoError(t, err)
	usage := issuesByCheck(report)[engine.CheckPersonaUsage]
	require.Len(t, usage, 1)
	assert.Equal(t, m.PersonaName, usage[0].Subject)
	assert.Contains(t, usage[0].Message, "mission_count is 5 but 1 missions exist")

	report, err = env.Engine.Doctor(env.Ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fixed)
	p, err := env.Engine.GetPersona(env.Ctx, m.PersonaName)
	require.NoError(t, err)
	assert.Equal(t, 1, p.MissionCount)
	require.NotNil(t, p.LastMissionAt)
	assert.Equal(t, m.StartTime, *p.LastMissionAt)

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: "workspace.repaired"})
	require.NoError(t, err)
	assert.Len(t, evts, 1)
}

func TestDoctorRecomputesEpicStatus(t *testing.T) {
	env := newTestEnv(t)
	ep, err := env.Engine.CreateEpic(env.Ctx, engine.EpicCreateOptions{Title: "Drifted"})
	require.NoError(t, err)
	env.exec(t, `UPDATE epics SET status='COMPLETE' WHERE id='`+ep.ID+`'`)

	report, err := env.Engine.Doctor(env.Ctx, true)
	require.NoError(t, err)
	drift := issuesByCheck(report)[engine.CheckEpicStatus]
	require.Len(t, drift, 1)
	assert.True(t, drift[0].Fixed)

	got, err := env.Engine.GetEpic(env.Ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpicTodo, got.Status)
}

func TestDoctorWarnsAboutSuspiciousAssignments(t *testing.T) {
	env := newTestEnv(t)
	m := env.mission(t, domain.RoleEngineer)
	held := env.task(t, engine.TaskCreateOptions{})
	_, err := env.Engine.ClaimTask(env.Ctx, held.ID, &m.ID)
	require.NoError(t, err)
	_, err = env.Engine.EndMission(env.Ctx, m.ID)
	require.NoError(t, err)
	unclaimed := env.task(t, engine.TaskCreateOptions{})
	env.exec(t, `UPDATE tasks SET status='UNDERWAY' WHERE id='`+unclaimed.ID+`'`)

	report, err := env.Engine.Doctor(env.Ctx, true)
	require.NoError(t, err)
	byCheck := issuesByCheck(report)
	require.Len(t, byCheck[engine.CheckEndedMissions], 1)
	assert.Equal(t, held.ID, byCheck[engine.CheckEndedMissions][0].Subject)
	require.Len(t, byCheck[engine.CheckClaimedAt], 1)
	assert.Equal(t, unclaimed.ID, byCheck[engine.CheckClaimedAt][0].Subject)
	for _, is := range report.Issues {
		assert.Equal(t, engine.SeverityWarning, is.Severity)
		assert.False(t, is.Fixed)
	}
	assert.Zero(t, report.Fixed)
	assert.True(t, report.Healthy())
}
