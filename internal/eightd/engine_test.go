package eightd_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"safeline/internal/access"
	"safeline/internal/config"
	"safeline/internal/db"
	"safeline/internal/domain"
	"safeline/internal/eightd"
	"safeline/internal/migrate"
)

const (
	champ    = "champ"
	reporter = "reporter"
	resp     = "resp"
)

type testEnv struct {
	Engine   eightd.Engine
	Ctx      context.Context
	Incident domain.Incident
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := eightd.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	seedUser(t, eng, champ, "epc", "B")
	seedUser(t, eng, reporter, "contractor", "C")
	seedUser(t, eng, resp, "contractor", "B")
	in, err := eng.ReportIncident(ctx, eightd.IncidentOptions{
		Title:    "Scaffold collapse near gate 4",
		Severity: "high",
		ActorID:  reporter,
	})
	if err != nil {
		t.Fatalf("report incident: %v", err)
	}
	in, err = eng.AssignInvestigator(ctx, in.ID, champ, reporter)
	if err != nil {
		t.Fatalf("assign investigator: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Incident: in}
}

func seedUser(t *testing.T, eng eightd.Engine, id, org, grade string) {
	t.Helper()
	err := eng.Repo.InsertUser(context.Background(), domain.User{
		ID: id, Name: id, OrgType: org, Grade: grade, IsActive: true,
		CreatedAt: "2026-03-01T08:00:00Z",
	})
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func initProcess(t *testing.T, env testEnv) domain.Process {
	t.Helper()
	p, err := env.Engine.InitProcess(env.Ctx, eightd.InitOptions{
		IncidentID:       env.Incident.ID,
		ProblemStatement: "Scaffold planks failed under load",
		ChampionID:       champ,
		ActorID:          champ,
	})
	if err != nil {
		t.Fatalf("init process: %v", err)
	}
	return p
}

func advance(t *testing.T, env testEnv, processID string, discipline int) domain.Process {
	t.Helper()
	p, err := env.Engine.Advance(env.Ctx, processID, discipline, champ)
	if err != nil {
		t.Fatalf("advance D%d: %v", discipline, err)
	}
	return p
}

func mustFailValidation(t *testing.T, err error, what string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected validation error", what)
	}
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("%s: got %T (%v), want ValidationError", what, err, err)
	}
}

func TestInitProcessRequiresInvestigator(t *testing.T) {
	env := newTestEnv(t)
	in, err := env.Engine.ReportIncident(env.Ctx, eightd.IncidentOptions{Title: "Unassigned", ActorID: reporter})
	if err != nil {
		t.Fatalf("report incident: %v", err)
	}
	_, err = env.Engine.InitProcess(env.Ctx, eightd.InitOptions{
		IncidentID: in.ID, ProblemStatement: "x", ChampionID: champ, ActorID: champ,
	})
	mustFailValidation(t, err, "init without investigator")
}

func TestInitProcessUniquePerIncident(t *testing.T) {
	env := newTestEnv(t)
	initProcess(t, env)
	_, err := env.Engine.InitProcess(env.Ctx, eightd.InitOptions{
		IncidentID: env.Incident.ID, ProblemStatement: "again", ChampionID: champ, ActorID: champ,
	})
	var ce access.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("second init: got %T (%v), want ConflictError", err, err)
	}
}

func TestAdvanceOrderAndChampionGate(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	// Disciplines complete strictly in order.
	_, err := env.Engine.Advance(env.Ctx, p.ID, 3, champ)
	mustFailValidation(t, err, "skip to D3")
	// Only the champion advances.
	_, err = env.Engine.Advance(env.Ctx, p.ID, 1, reporter)
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("advance by non-champion: got %T (%v), want PermissionError", err, err)
	}
}

func TestFullWalkthrough(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	if p.CurrentDiscipline != 1 || p.Status != "active" {
		t.Fatalf("fresh process at D%d status %s", p.CurrentDiscipline, p.Status)
	}

	// D1 passes immediately: the champion is seeded as team leader.
	p = advance(t, env, p.ID, 1)
	if p.CurrentDiscipline != 2 || p.OverallProgress != 12 {
		t.Fatalf("after D1: discipline %d progress %d", p.CurrentDiscipline, p.OverallProgress)
	}

	// D2 needs a problem description.
	_, err := env.Engine.Advance(env.Ctx, p.ID, 2, champ)
	mustFailValidation(t, err, "D2 without problem description")
	if _, err := env.Engine.SetProblemDescription(env.Ctx, p.ID, eightd.ProblemInput{What: "Planks failed"}, champ); err != nil {
		t.Fatalf("set problem: %v", err)
	}
	p = advance(t, env, p.ID, 2)
	if p.OverallProgress != 25 {
		t.Fatalf("after D2: progress %d", p.OverallProgress)
	}

	// D3 needs containment.
	_, err = env.Engine.Advance(env.Ctx, p.ID, 3, champ)
	mustFailValidation(t, err, "D3 without containment")
	if _, err := env.Engine.AddContainmentAction(env.Ctx, p.ID, "Cordon off the area", "", champ); err != nil {
		t.Fatalf("add containment: %v", err)
	}
	p = advance(t, env, p.ID, 3)

	// D4 needs a verified root cause; an unverified one is not enough.
	rc, err := env.Engine.AddRootCause(env.Ctx, p.ID, eightd.RootCauseInput{
		Description: "Planks past service life", Category: "material",
	}, champ)
	if err != nil {
		t.Fatalf("add root cause: %v", err)
	}
	_, err = env.Engine.Advance(env.Ctx, p.ID, 4, champ)
	mustFailValidation(t, err, "D4 with unverified root cause")
	if _, err := env.Engine.VerifyRootCause(env.Ctx, p.ID, rc.ID, champ); err != nil {
		t.Fatalf("verify root cause: %v", err)
	}
	p = advance(t, env, p.ID, 4)
	if p.OverallProgress != 50 {
		t.Fatalf("after D4: progress %d", p.OverallProgress)
	}

	// D5 needs a planned corrective action.
	_, err = env.Engine.Advance(env.Ctx, p.ID, 5, champ)
	mustFailValidation(t, err, "D5 without corrective action")
	action, err := env.Engine.AddCorrectiveAction(env.Ctx, p.ID, eightd.CorrectiveInput{
		RootCauseID: rc.ID, Description: "Replace all planks", ResponsibleID: resp,
	}, champ)
	if err != nil {
		t.Fatalf("add corrective: %v", err)
	}
	p = advance(t, env, p.ID, 5)

	// D6 needs the action implemented.
	_, err = env.Engine.Advance(env.Ctx, p.ID, 6, champ)
	mustFailValidation(t, err, "D6 with planned action")
	if _, err := env.Engine.ImplementCorrectiveAction(env.Ctx, p.ID, action.ID, "Planks replaced", "photo-42", resp); err != nil {
		t.Fatalf("implement corrective: %v", err)
	}
	p = advance(t, env, p.ID, 6)
	if p.OverallProgress != 75 {
		t.Fatalf("after D6: progress %d", p.OverallProgress)
	}

	// D7 needs a prevention action judged effective by the reporter.
	prev, err := env.Engine.AddPreventionAction(env.Ctx, p.ID, eightd.PreventionInput{
		Description: "Quarterly plank inspection", ResponsibleID: resp,
	}, champ)
	if err != nil {
		t.Fatalf("add prevention: %v", err)
	}
	if _, err := env.Engine.ImplementPreventionAction(env.Ctx, p.ID, prev.ID, resp); err != nil {
		t.Fatalf("implement prevention: %v", err)
	}
	_, err = env.Engine.Advance(env.Ctx, p.ID, 7, champ)
	mustFailValidation(t, err, "D7 without effectiveness verdict")
	if _, err := env.Engine.VerifyPreventionEffectiveness(env.Ctx, p.ID, prev.ID, true, "No repeat in 90 days", reporter); err != nil {
		t.Fatalf("verify prevention: %v", err)
	}
	p = advance(t, env, p.ID, 7)

	// D8 needs every active member recognized.
	_, err = env.Engine.Advance(env.Ctx, p.ID, 8, champ)
	mustFailValidation(t, err, "D8 with unrecognized members")
	members, err := env.Engine.Repo.ListTeamMembers(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	for _, m := range members {
		if _, err := env.Engine.RecognizeMember(env.Ctx, p.ID, m.ID, "thanks", champ); err != nil {
			t.Fatalf("recognize %s: %v", m.UserID, err)
		}
	}
	p = advance(t, env, p.ID, 8)
	if p.Status != "completed" || p.OverallProgress != 100 || p.CompletedAt == nil {
		t.Fatalf("after D8: status %s progress %d completed_at %v", p.Status, p.OverallProgress, p.CompletedAt)
	}

	// A completed process is frozen.
	_, err = env.Engine.AddTeamMember(env.Ctx, eightd.AddMemberOptions{ProcessID: p.ID, UserID: resp, ActorID: champ})
	mustFailValidation(t, err, "mutate completed process")
	_, err = env.Engine.Advance(env.Ctx, p.ID, 8, champ)
	mustFailValidation(t, err, "advance completed process")
}

func TestCorrectiveActionNeedsVerifiedRootCause(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	rc, err := env.Engine.AddRootCause(env.Ctx, p.ID, eightd.RootCauseInput{
		Description: "Guess", Category: "method",
	}, champ)
	if err != nil {
		t.Fatalf("add root cause: %v", err)
	}
	_, err = env.Engine.AddCorrectiveAction(env.Ctx, p.ID, eightd.CorrectiveInput{
		RootCauseID: rc.ID, Description: "Fix it", ResponsibleID: resp,
	}, champ)
	mustFailValidation(t, err, "corrective against unverified root cause")
}

func TestImplementCorrectiveResponsibleOnly(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	rc, _ := env.Engine.AddRootCause(env.Ctx, p.ID, eightd.RootCauseInput{Description: "rc", Category: "man"}, champ)
	if _, err := env.Engine.VerifyRootCause(env.Ctx, p.ID, rc.ID, champ); err != nil {
		t.Fatalf("verify root cause: %v", err)
	}
	action, err := env.Engine.AddCorrectiveAction(env.Ctx, p.ID, eightd.CorrectiveInput{
		RootCauseID: rc.ID, Description: "Fix", ResponsibleID: resp,
	}, champ)
	if err != nil {
		t.Fatalf("add corrective: %v", err)
	}
	_, err = env.Engine.ImplementCorrectiveAction(env.Ctx, p.ID, action.ID, "done", "", champ)
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("implement by champion: got %T (%v), want PermissionError", err, err)
	}
	// The responsible person succeeds; a second implementation conflicts.
	if _, err := env.Engine.ImplementCorrectiveAction(env.Ctx, p.ID, action.ID, "done", "", resp); err != nil {
		t.Fatalf("implement by responsible: %v", err)
	}
	_, err = env.Engine.ImplementCorrectiveAction(env.Ctx, p.ID, action.ID, "again", "", resp)
	var ce access.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("double implement: got %T (%v), want ConflictError", err, err)
	}
}

func TestPreventionEffectivenessReporterOnly(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	prev, err := env.Engine.AddPreventionAction(env.Ctx, p.ID, eightd.PreventionInput{
		Description: "Audit", ResponsibleID: resp,
	}, champ)
	if err != nil {
		t.Fatalf("add prevention: %v", err)
	}
	// Verification requires implementation first.
	_, err = env.Engine.VerifyPreventionEffectiveness(env.Ctx, p.ID, prev.ID, true, "notes", reporter)
	mustFailValidation(t, err, "verify planned prevention")
	if _, err := env.Engine.ImplementPreventionAction(env.Ctx, p.ID, prev.ID, resp); err != nil {
		t.Fatalf("implement prevention: %v", err)
	}
	_, err = env.Engine.VerifyPreventionEffectiveness(env.Ctx, p.ID, prev.ID, true, "notes", champ)
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("verify by non-reporter: got %T (%v), want PermissionError", err, err)
	}
	_, err = env.Engine.VerifyPreventionEffectiveness(env.Ctx, p.ID, prev.ID, true, "", reporter)
	mustFailValidation(t, err, "verify without notes")
	a, err := env.Engine.VerifyPreventionEffectiveness(env.Ctx, p.ID, prev.ID, false, "recurred last week", reporter)
	if err != nil {
		t.Fatalf("verify prevention: %v", err)
	}
	if a.Status != "ineffective" {
		t.Fatalf("status %s, want ineffective", a.Status)
	}
}

func TestTeamManagement(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	m, err := env.Engine.AddTeamMember(env.Ctx, eightd.AddMemberOptions{
		ProcessID: p.ID, UserID: resp, ActorID: champ,
	})
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if m.Role != "member" {
		t.Fatalf("default role %s, want member", m.Role)
	}
	// Duplicate enrollment conflicts.
	_, err = env.Engine.AddTeamMember(env.Ctx, eightd.AddMemberOptions{ProcessID: p.ID, UserID: resp, ActorID: champ})
	var ce access.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("duplicate member: got %T (%v), want ConflictError", err, err)
	}
	// Non-champion cannot add.
	_, err = env.Engine.AddTeamMember(env.Ctx, eightd.AddMemberOptions{ProcessID: p.ID, UserID: reporter, ActorID: resp})
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("add by non-champion: got %T (%v), want PermissionError", err, err)
	}
	// Double recognition conflicts.
	if _, err := env.Engine.RecognizeMember(env.Ctx, p.ID, m.ID, "", champ); err != nil {
		t.Fatalf("recognize: %v", err)
	}
	_, err = env.Engine.RecognizeMember(env.Ctx, p.ID, m.ID, "", champ)
	if !errors.As(err, &ce) {
		t.Fatalf("double recognition: got %T (%v), want ConflictError", err, err)
	}
	// The champion's own membership cannot be removed.
	members, _ := env.Engine.Repo.ListTeamMembers(env.Ctx, p.ID)
	for _, member := range members {
		if member.UserID == champ {
			err = env.Engine.RemoveTeamMember(env.Ctx, p.ID, member.ID, champ)
			mustFailValidation(t, err, "remove champion")
		}
	}
	if err := env.Engine.RemoveTeamMember(env.Ctx, p.ID, m.ID, champ); err != nil {
		t.Fatalf("remove member: %v", err)
	}
}

func TestIncidentTransitions(t *testing.T) {
	env := newTestEnv(t)
	in := env.Incident // investigating after assignment
	if in.Status != "investigating" {
		t.Fatalf("status %s after assignment, want investigating", in.Status)
	}
	_, err := env.Engine.SetIncidentStatus(env.Ctx, in.ID, "closed", reporter)
	mustFailValidation(t, err, "investigating to closed")
	in2, err := env.Engine.SetIncidentStatus(env.Ctx, in.ID, "resolved", reporter)
	if err != nil || in2.Status != "resolved" {
		t.Fatalf("to resolved: %v", err)
	}
	in2, err = env.Engine.SetIncidentStatus(env.Ctx, in.ID, "closed", reporter)
	if err != nil || in2.Status != "closed" {
		t.Fatalf("to closed: %v", err)
	}
}

func TestEventsLogged(t *testing.T) {
	env := newTestEnv(t)
	p := initProcess(t, env)
	advance(t, env, p.ID, 1)
	events, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "", "eightd_process", p.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	seen := map[string]bool{}
	for _, evt := range events {
		seen[evt.Type] = true
	}
	for _, want := range []string{"eightd.created", "eightd.discipline.completed"} {
		if !seen[want] {
			t.Fatalf("missing event %s in %v", want, seen)
		}
	}
}

func TestStepStatus(t *testing.T) {
	p := domain.Process{CurrentDiscipline: 3, Status: "active"}
	if got := eightd.StepStatus(p, 1); got != "finish" {
		t.Fatalf("D1 = %s, want finish", got)
	}
	if got := eightd.StepStatus(p, 3); got != "process" {
		t.Fatalf("D3 = %s, want process", got)
	}
	if got := eightd.StepStatus(p, 7); got != "wait" {
		t.Fatalf("D7 = %s, want wait", got)
	}
	p.Status = "completed"
	for n := 1; n <= eightd.FinalDiscipline; n++ {
		if got := eightd.StepStatus(p, n); got != "finish" {
			t.Fatalf("completed D%d = %s, want finish", n, got)
		}
	}
}
