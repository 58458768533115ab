package permit_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"safeline/internal/access"
	"safeline/internal/config"
	"safeline/internal/db"
	"safeline/internal/domain"
	"safeline/internal/migrate"
	"safeline/internal/permit"
)

const (
	creator  = "cre"
	verifier = "ver"
	approver = "app"
	rival    = "app2"
	worker   = "wrk"
	outsider = "out"
)

type testEnv struct {
	Engine permit.Engine
	Ctx    context.Context
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
	eng := permit.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	users := []struct{ id, org, grade string }{
		{creator, "contractor", "C"},
		{verifier, "epc", "C"},
		{approver, "client", "C"},
		{rival, "client", "C"},
		{worker, "contractor", "C"},
		{outsider, "contractor", "C"},
	}
	for _, u := range users {
		err := eng.Repo.InsertUser(ctx, domain.User{
			ID: u.id, Name: u.id, OrgType: u.org, Grade: u.grade, IsActive: true,
			CreatedAt: "2026-03-01T08:00:00Z",
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", u.id, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func draftPermit(t *testing.T, env testEnv) domain.Permit {
	t.Helper()
	p, err := env.Engine.CreatePermit(env.Ctx, permit.CreateOptions{
		Title:        "Hot work on tank 7",
		PlannedStart: "2026-03-01T09:00:00Z",
		Workers:      []string{worker},
		ActorID:      creator,
	})
	if err != nil {
		t.Fatalf("create permit: %v", err)
	}
	return p
}

func activePermit(t *testing.T, env testEnv) domain.Permit {
	t.Helper()
	p := draftPermit(t, env)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, creator); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Verify(env.Ctx, p.ID, verifier, true, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, p.ID, approver, "ok"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	p, err := env.Engine.StartWork(env.Ctx, p.ID, worker)
	if err != nil {
		t.Fatalf("start work: %v", err)
	}
	return p
}

func TestCreatePermitDefaults(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	if p.PermitNumber != "PTW-2026-0001" {
		t.Fatalf("permit number %s", p.PermitNumber)
	}
	if p.Status != "draft" {
		t.Fatalf("status %s", p.Status)
	}
	// Planned end defaults to the configured validity window.
	if p.PlannedEnd != "2026-03-01T17:00:00Z" {
		t.Fatalf("planned end %s", p.PlannedEnd)
	}
	if p.CreatorOrgType != "contractor" || p.CreatorGrade != "C" {
		t.Fatalf("creator snapshot %s/%s", p.CreatorOrgType, p.CreatorGrade)
	}
	p2, err := env.Engine.CreatePermit(env.Ctx, permit.CreateOptions{
		Title: "Second", PlannedStart: "2026-03-01T09:00:00Z", ActorID: creator,
	})
	if err != nil {
		t.Fatalf("second permit: %v", err)
	}
	if p2.PermitNumber != "PTW-2026-0002" {
		t.Fatalf("second permit number %s", p2.PermitNumber)
	}
	_, err = env.Engine.CreatePermit(env.Ctx, permit.CreateOptions{
		Title: "Bad window", PlannedStart: "2026-03-01T09:00:00Z", PlannedEnd: "2026-03-01T08:00:00Z", ActorID: creator,
	})
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("end before start: got %T (%v)", err, err)
	}
}

func TestLifecycleOrdering(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	// No skipping: a draft cannot be verified or started.
	_, err := env.Engine.Verify(env.Ctx, p.ID, verifier, true, "")
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("verify draft: got %T (%v)", err, err)
	}
	_, err = env.Engine.StartWork(env.Ctx, p.ID, creator)
	if !errors.As(err, &ve) {
		t.Fatalf("start draft: got %T (%v)", err, err)
	}
	// Only the creator submits.
	_, err = env.Engine.Submit(env.Ctx, p.ID, verifier)
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("submit by verifier: got %T (%v)", err, err)
	}
	p, err = env.Engine.Submit(env.Ctx, p.ID, creator)
	if err != nil || p.Status != "submitted" {
		t.Fatalf("submit: %v (%s)", err, p.Status)
	}
	// Approval before verification is refused.
	_, err = env.Engine.Approve(env.Ctx, p.ID, approver, "")
	if !errors.As(err, &ve) {
		t.Fatalf("approve submitted: got %T (%v)", err, err)
	}
	p, err = env.Engine.Verify(env.Ctx, p.ID, verifier, true, "looks fine")
	if err != nil || p.Status != "pending_approval" {
		t.Fatalf("verify: %v (%s)", err, p.Status)
	}
	if p.VerifiedBy == nil || *p.VerifiedBy != verifier {
		t.Fatalf("verifier not bound: %v", p.VerifiedBy)
	}
	p, err = env.Engine.Approve(env.Ctx, p.ID, approver, "go ahead")
	if err != nil || p.Status != "approved" {
		t.Fatalf("approve: %v (%s)", err, p.Status)
	}
	p, err = env.Engine.StartWork(env.Ctx, p.ID, worker)
	if err != nil || p.Status != "active" {
		t.Fatalf("start work: %v (%s)", err, p.Status)
	}
	if p.ActualStart == nil {
		t.Fatalf("actual start not stamped")
	}
	p, err = env.Engine.CompleteWork(env.Ctx, p.ID, creator)
	if err != nil || p.Status != "completed" {
		t.Fatalf("complete: %v (%s)", err, p.Status)
	}
	if p.ActualEnd == nil {
		t.Fatalf("actual end not stamped")
	}
	p, err = env.Engine.ClosePermit(env.Ctx, p.ID, approver, "all clear")
	if err != nil || p.Status != "closed" {
		t.Fatalf("close: %v (%s)", err, p.Status)
	}
}

func TestVerifyEligibilityAndRejection(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, creator); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// The approver's client grade does not verify contractor work.
	_, err := env.Engine.Verify(env.Ctx, p.ID, approver, true, "")
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("ineligible verifier: got %T (%v)", err, err)
	}
	// Rejection needs a comment.
	_, err = env.Engine.Verify(env.Ctx, p.ID, verifier, false, "")
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("reject without comment: got %T (%v)", err, err)
	}
	p, err = env.Engine.Verify(env.Ctx, p.ID, verifier, false, "missing isolation plan")
	if err != nil || p.Status != "rejected" {
		t.Fatalf("reject: %v (%s)", err, p.Status)
	}
	if p.RejectedBy == nil || *p.RejectedBy != verifier {
		t.Fatalf("rejector not bound: %v", p.RejectedBy)
	}
}

func TestApprovalConflictNamesWinner(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, creator); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Verify(env.Ctx, p.ID, verifier, true, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, p.ID, approver, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// A straggler sees the status has moved on.
	_, err := env.Engine.Approve(env.Ctx, p.ID, rival, "")
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("late approve: got %T (%v)", err, err)
	}
	// Emulate the lost-update interleaving: the status is rolled back as a
	// racing reader would have seen it, but the approver binding remains.
	// The guarded update must refuse and the error must name the winner.
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := env.Engine.Repo.UpdatePermitStatus(env.Ctx, tx, p.ID, "approved", "pending_approval", "2026-03-01T08:00:00Z"); err != nil {
		t.Fatalf("reset status: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	_, err = env.Engine.Approve(env.Ctx, p.ID, rival, "")
	var ce access.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("raced approve: got %T (%v), want ConflictError", err, err)
	}
	if !strings.Contains(ce.Error(), approver) {
		t.Fatalf("conflict does not name the bound approver: %q", ce.Error())
	}
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	p := activePermit(t, env)
	entries, err := env.Engine.Repo.ListAudit(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	want := []string{"created", "submitted", "verified", "approved", "work_started"}
	if len(entries) != len(want) {
		t.Fatalf("got %d audit entries, want %d", len(entries), len(want))
	}
	for i, action := range want {
		if entries[i].Action != action {
			t.Fatalf("audit[%d] = %s, want %s", i, entries[i].Action, action)
		}
	}
}

func TestWorkerPermissions(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	if _, err := env.Engine.Submit(env.Ctx, p.ID, creator); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.Engine.Verify(env.Ctx, p.ID, verifier, true, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := env.Engine.Approve(env.Ctx, p.ID, approver, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}
	_, err := env.Engine.StartWork(env.Ctx, p.ID, outsider)
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("start by outsider: got %T (%v)", err, err)
	}
	if _, err := env.Engine.StartWork(env.Ctx, p.ID, worker); err != nil {
		t.Fatalf("start by worker: %v", err)
	}
}

func TestSuspendResume(t *testing.T) {
	env := newTestEnv(t)
	p := activePermit(t, env)
	_, err := env.Engine.Suspend(env.Ctx, p.ID, worker, "gas alarm")
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("suspend by worker: got %T (%v)", err, err)
	}
	_, err = env.Engine.Suspend(env.Ctx, p.ID, verifier, "")
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("suspend without reason: got %T (%v)", err, err)
	}
	p, err = env.Engine.Suspend(env.Ctx, p.ID, verifier, "gas alarm")
	if err != nil || p.Status != "suspended" {
		t.Fatalf("suspend: %v (%s)", err, p.Status)
	}
	p, err = env.Engine.Resume(env.Ctx, p.ID, approver)
	if err != nil || p.Status != "active" {
		t.Fatalf("resume: %v (%s)", err, p.Status)
	}
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	p := draftPermit(t, env)
	_, err := env.Engine.Cancel(env.Ctx, p.ID, verifier, "")
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("cancel by non-creator: got %T (%v)", err, err)
	}
	p, err = env.Engine.Cancel(env.Ctx, p.ID, creator, "weather")
	if err != nil || p.Status != "cancelled" {
		t.Fatalf("cancel draft: %v (%s)", err, p.Status)
	}
	// An active permit is past the point of cancellation.
	active := activePermit(t, env)
	_, err = env.Engine.Cancel(env.Ctx, active.ID, creator, "")
	var ve access.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("cancel active: got %T (%v)", err, err)
	}
}

func TestExtension(t *testing.T) {
	env := newTestEnv(t)
	p := activePermit(t, env) // planned end 2026-03-01T17:00:00Z
	var ve access.ValidationError
	_, err := env.Engine.RequestExtension(env.Ctx, p.ID, creator, "2026-03-02T17:00:00Z", "")
	if !errors.As(err, &ve) {
		t.Fatalf("extend without reason: got %T (%v)", err, err)
	}
	_, err = env.Engine.RequestExtension(env.Ctx, p.ID, creator, "2026-03-01T12:00:00Z", "more time")
	if !errors.As(err, &ve) {
		t.Fatalf("extend backwards: got %T (%v)", err, err)
	}
	// 72h past the old end is the configured ceiling.
	_, err = env.Engine.RequestExtension(env.Ctx, p.ID, creator, "2026-03-05T17:00:01Z", "more time")
	if !errors.As(err, &ve) {
		t.Fatalf("extend beyond ceiling: got %T (%v)", err, err)
	}
	_, err = env.Engine.RequestExtension(env.Ctx, p.ID, outsider, "2026-03-02T17:00:00Z", "more time")
	var pe access.PermissionError
	if !errors.As(err, &pe) {
		t.Fatalf("extend by outsider: got %T (%v)", err, err)
	}
	p, err = env.Engine.RequestExtension(env.Ctx, p.ID, worker, "2026-03-02T17:00:00Z", "scope grew")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if p.PlannedEnd != "2026-03-02T17:00:00Z" {
		t.Fatalf("planned end %s", p.PlannedEnd)
	}
	exts, err := env.Engine.Repo.ListExtensions(env.Ctx, p.ID)
	if err != nil || len(exts) != 1 {
		t.Fatalf("extensions: %v (%d)", err, len(exts))
	}
	if exts[0].OldEnd != "2026-03-01T17:00:00Z" || exts[0].RequestedBy != worker {
		t.Fatalf("extension record %+v", exts[0])
	}
}

func TestExpireOverdue(t *testing.T) {
	env := newTestEnv(t)
	p := activePermit(t, env)
	// Nothing is overdue yet.
	n, err := env.Engine.ExpireOverdue(env.Ctx)
	if err != nil || n != 0 {
		t.Fatalf("premature expiry: %v (%d)", err, n)
	}
	// Move the clock past the planned end.
	env.Engine.Now = func() time.Time { return time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC) }
	n, err = env.Engine.ExpireOverdue(env.Ctx)
	if err != nil || n != 1 {
		t.Fatalf("expire: %v (%d)", err, n)
	}
	p, err = env.Engine.Repo.GetPermit(env.Ctx, p.ID)
	if err != nil || p.Status != "expired" {
		t.Fatalf("status after sweep: %v (%s)", err, p.Status)
	}
	// Idempotent on a second pass.
	n, err = env.Engine.ExpireOverdue(env.Ctx)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: %v (%d)", err, n)
	}
}
