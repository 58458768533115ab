package permit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safeline/internal/access"
	"safeline/internal/config"
	"safeline/internal/domain"
	"safeline/internal/events"
	"safeline/internal/notify"
	"safeline/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify notify.Dispatcher
	Tables access.Tables
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	tables := access.DefaultTables()
	enabled := true
	if cfg != nil {
		tables = cfg.AccessTables()
		enabled = cfg.Notifications.Enabled
	}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Notify: notify.Dispatcher{Repo: r, Enabled: enabled},
		Tables: tables,
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) numberPrefix() string {
	if e.Config != nil && e.Config.Permits.NumberPrefix != "" {
		return e.Config.Permits.NumberPrefix
	}
	return "PTW"
}

func (e Engine) defaultValidHours() int {
	if e.Config != nil && e.Config.Permits.DefaultValidHours > 0 {
		return e.Config.Permits.DefaultValidHours
	}
	return 8
}

func (e Engine) maxExtensionHours() int {
	if e.Config != nil && e.Config.Permits.MaxExtensionHours > 0 {
		return e.Config.Permits.MaxExtensionHours
	}
	return 72
}

// canTransition reports whether a permit may move from one lifecycle status
// to another. Verification and approval transitions are handled separately
// because they also bind an actor.
func canTransition(from, to string) bool {
	switch from {
	case "draft":
		return to == "submitted" || to == "cancelled"
	case "submitted":
		return to == "under_review" || to == "cancelled"
	case "under_review":
		return to == "cancelled"
	case "pending_approval":
		return to == "cancelled"
	case "approved":
		return to == "active" || to == "cancelled"
	case "active":
		return to == "completed" || to == "suspended" || to == "expired"
	case "suspended":
		return to == "active" || to == "cancelled"
	case "completed":
		return to == "closed"
	}
	return false
}

func (e Engine) actor(ctx context.Context, userID string) (access.Actor, error) {
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return access.Actor{}, access.Permissionf("unknown actor %s", userID)
		}
		return access.Actor{}, err
	}
	if !u.IsActive {
		return access.Actor{}, access.Permissionf("user %s is deactivated", userID)
	}
	return access.ActorFromUser(u), nil
}

type CreateOptions struct {
	Title           string
	WorkDescription string
	Location        string
	PlannedStart    string
	PlannedEnd      string
	Workers         []string
	ActorID         string
}

// CreatePermit drafts a new permit. The creator's org type and grade are
// snapshotted on the permit so later eligibility checks are stable even if
// the user record changes.
func (e Engine) CreatePermit(ctx context.Context, opts CreateOptions) (domain.Permit, error) {
	if opts.Title == "" {
		return domain.Permit{}, access.Validationf("title is required")
	}
	if opts.PlannedStart == "" {
		return domain.Permit{}, access.Validationf("planned_start is required")
	}
	start, err := time.Parse(time.RFC3339, opts.PlannedStart)
	if err != nil {
		return domain.Permit{}, access.Validationf("planned_start must be RFC 3339")
	}
	var end time.Time
	if opts.PlannedEnd == "" {
		end = start.Add(time.Duration(e.defaultValidHours()) * time.Hour)
		opts.PlannedEnd = end.UTC().Format(time.RFC3339)
	} else {
		end, err = time.Parse(time.RFC3339, opts.PlannedEnd)
		if err != nil {
			return domain.Permit{}, access.Validationf("planned_end must be RFC 3339")
		}
	}
	if !end.After(start) {
		return domain.Permit{}, access.Validationf("planned_end must be after planned_start")
	}
	creator, err := e.Repo.GetUser(ctx, opts.ActorID)
	if err != nil {
		return domain.Permit{}, fmt.Errorf("creator: %w", err)
	}
	if !creator.IsActive {
		return domain.Permit{}, access.Permissionf("user %s is deactivated", creator.ID)
	}

	now := e.nowRFC3339()
	p := domain.Permit{
		ID:              uuid.New().String(),
		Title:           opts.Title,
		WorkDescription: opts.WorkDescription,
		Location:        opts.Location,
		Status:          "draft",
		CreatedBy:       creator.ID,
		CreatorOrgType:  creator.OrgType,
		CreatorGrade:    creator.Grade,
		PlannedStart:    start.UTC().Format(time.RFC3339),
		PlannedEnd:      end.UTC().Format(time.RFC3339),
		Workers:         opts.Workers,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Permit{}, err
	}
	defer tx.Rollback()
	p.PermitNumber, err = e.Repo.NextPermitNumber(ctx, tx, e.numberPrefix(), e.now().UTC().Year())
	if err != nil {
		return domain.Permit{}, fmt.Errorf("allocate permit number: %w", err)
	}
	if err := e.Repo.InsertPermit(ctx, tx, p); err != nil {
		return domain.Permit{}, fmt.Errorf("insert permit: %w", err)
	}
	if len(p.Workers) > 0 {
		if err := e.Repo.AddPermitWorkers(ctx, tx, p.ID, p.Workers); err != nil {
			return domain.Permit{}, err
		}
	}
	if err := e.audit(ctx, tx, p.ID, "created", creator.ID, ""); err != nil {
		return domain.Permit{}, err
	}
	if err := e.Events.Append(ctx, tx, "permit.created", "permit", p.ID, creator.ID, events.EventPayload{
		"permit_number": p.PermitNumber,
	}); err != nil {
		return domain.Permit{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Permit{}, err
	}
	return p, nil
}

func (e Engine) audit(ctx context.Context, tx *sql.Tx, permitID, action, actorID, comments string) error {
	return e.Repo.AppendAudit(ctx, tx, domain.AuditEntry{
		PermitID: permitID,
		Action:   action,
		ActorID:  actorID,
		TS:       e.nowRFC3339(),
		Comments: comments,
	})
}

// transition performs a simple status move with its audit entry and event.
// The guarded update makes the first concurrent writer win.
func (e Engine) transition(ctx context.Context, p domain.Permit, to, action, actorID, comments string) (domain.Permit, error) {
	if !canTransition(p.Status, to) {
		return p, access.Validationf("permit %s cannot move from %s to %s", p.PermitNumber, p.Status, to)
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdatePermitStatus(ctx, tx, p.ID, p.Status, to, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, access.Conflictf("permit %s was modified concurrently", p.PermitNumber)
		}
		return p, err
	}
	switch to {
	case "active":
		if p.ActualStart == nil {
			if err := e.Repo.SetPermitActualStart(ctx, tx, p.ID, now); err != nil {
				return p, err
			}
			p.ActualStart = &now
		}
	case "completed":
		if err := e.Repo.SetPermitActualEnd(ctx, tx, p.ID, now); err != nil {
			return p, err
		}
		p.ActualEnd = &now
	}
	if err := e.audit(ctx, tx, p.ID, action, actorID, comments); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "permit."+action, "permit", p.ID, actorID, events.EventPayload{
		"permit_number": p.PermitNumber,
		"from":          p.Status,
		"to":            to,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = to
	p.UpdatedAt = now
	return p, nil
}

// Submit moves a draft into the verification queue. Creator only.
func (e Engine) Submit(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if actorID != p.CreatedBy {
		return p, access.Permissionf("only the creator may submit a permit")
	}
	p, err = e.transition(ctx, p, "submitted", "submitted", actorID, "")
	if err != nil {
		return p, err
	}
	e.Notify.Send(ctx, p.CreatedBy, "Permit submitted",
		fmt.Sprintf("Permit %s is awaiting verification", p.PermitNumber))
	return p, nil
}

// StartReview marks a submitted permit as under review by an eligible
// verifier. Optional step; Verify accepts both submitted and under_review.
func (e Engine) StartReview(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return p, err
	}
	if !e.Tables.CanVerify(actor, p) {
		return p, access.Permissionf("user %s is not eligible to review permit %s", actorID, p.PermitNumber)
	}
	return e.transition(ctx, p, "under_review", "review_started", actorID, "")
}

// Verify records the verification verdict. The first eligible verifier to
// commit is bound on the permit; a later verifier gets a conflict naming
// the winner. Rejections require a comment.
func (e Engine) Verify(ctx context.Context, permitID, actorID string, approve bool, comment string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return p, err
	}
	if p.Status != "submitted" && p.Status != "under_review" {
		return p, access.Validationf("permit %s is not awaiting verification (status is %s)", p.PermitNumber, p.Status)
	}
	if !e.Tables.CanVerify(actor, p) {
		return p, access.Permissionf("user %s is not eligible to verify permit %s", actorID, p.PermitNumber)
	}
	if !approve && comment == "" {
		return p, access.Validationf("a comment is required when rejecting")
	}

	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	action := "verified"
	if approve {
		err = e.Repo.BindVerifier(ctx, tx, p.ID, p.Status, "pending_approval", actorID, now)
	} else {
		action = "verification_rejected"
		err = e.Repo.BindRejector(ctx, tx, p.ID, p.Status, actorID, now)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, e.verifyConflict(ctx, p)
		}
		return p, err
	}
	if err := e.audit(ctx, tx, p.ID, action, actorID, comment); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "permit."+action, "permit", p.ID, actorID, events.EventPayload{
		"permit_number": p.PermitNumber,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	if approve {
		p.Status = "pending_approval"
		p.VerifiedBy = &actorID
		p.VerifiedAt = &now
	} else {
		p.Status = "rejected"
		p.RejectedBy = &actorID
	}
	p.UpdatedAt = now
	title := "Permit verified"
	msg := fmt.Sprintf("Permit %s passed verification and awaits approval", p.PermitNumber)
	if !approve {
		title = "Permit rejected"
		msg = fmt.Sprintf("Permit %s was rejected at verification: %s", p.PermitNumber, comment)
	}
	e.Notify.Send(ctx, p.CreatedBy, title, msg)
	return p, nil
}

func (e Engine) verifyConflict(ctx context.Context, stale domain.Permit) error {
	p, err := e.Repo.GetPermit(ctx, stale.ID)
	if err != nil {
		return access.Conflictf("permit %s was modified concurrently", stale.PermitNumber)
	}
	if p.VerifiedBy != nil {
		return access.Conflictf("permit %s was already verified by %s", p.PermitNumber, *p.VerifiedBy)
	}
	return access.Conflictf("permit %s is no longer awaiting verification (status is %s)", p.PermitNumber, p.Status)
}

// Approve grants final approval. First eligible approver wins; the binding
// is permanent for the life of the permit.
func (e Engine) Approve(ctx context.Context, permitID, actorID, comment string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return p, err
	}
	if p.Status != "pending_approval" {
		return p, access.Validationf("permit %s is not pending approval (status is %s)", p.PermitNumber, p.Status)
	}
	if !e.Tables.CanApprove(actor, p) {
		return p, access.Permissionf("user %s is not eligible to approve permit %s", actorID, p.PermitNumber)
	}

	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.BindApprover(ctx, tx, p.ID, "approved", actorID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, e.approveConflict(ctx, p)
		}
		return p, err
	}
	if err := e.audit(ctx, tx, p.ID, "approved", actorID, comment); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "permit.approved", "permit", p.ID, actorID, events.EventPayload{
		"permit_number": p.PermitNumber,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = "approved"
	p.ApprovedBy = &actorID
	p.ApprovedAt = &now
	p.UpdatedAt = now
	recipients := append([]string{p.CreatedBy}, p.Workers...)
	e.Notify.SendAll(ctx, recipients, "Permit approved",
		fmt.Sprintf("Permit %s is approved; work may start", p.PermitNumber))
	return p, nil
}

func (e Engine) approveConflict(ctx context.Context, stale domain.Permit) error {
	p, err := e.Repo.GetPermit(ctx, stale.ID)
	if err != nil {
		return access.Conflictf("permit %s was modified concurrently", stale.PermitNumber)
	}
	if p.ApprovedBy != nil {
		return access.Conflictf("permit %s was already approved by %s", p.PermitNumber, *p.ApprovedBy)
	}
	return access.Conflictf("permit %s is no longer pending approval (status is %s)", p.PermitNumber, p.Status)
}

// Reject declines a permit at the approval stage. Comment required.
func (e Engine) Reject(ctx context.Context, permitID, actorID, comment string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return p, err
	}
	if p.Status != "pending_approval" {
		return p, access.Validationf("permit %s is not pending approval (status is %s)", p.PermitNumber, p.Status)
	}
	if !e.Tables.CanApprove(actor, p) {
		return p, access.Permissionf("user %s is not eligible to reject permit %s", actorID, p.PermitNumber)
	}
	if comment == "" {
		return p, access.Validationf("a comment is required when rejecting")
	}
	now := e.nowRFC3339()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.BindRejector(ctx, tx, p.ID, "pending_approval", actorID, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, e.approveConflict(ctx, p)
		}
		return p, err
	}
	if err := e.audit(ctx, tx, p.ID, "rejected", actorID, comment); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "permit.rejected", "permit", p.ID, actorID, events.EventPayload{
		"permit_number": p.PermitNumber,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.Status = "rejected"
	p.RejectedBy = &actorID
	p.UpdatedAt = now
	e.Notify.Send(ctx, p.CreatedBy, "Permit rejected",
		fmt.Sprintf("Permit %s was rejected: %s", p.PermitNumber, comment))
	return p, nil
}

func (e Engine) requireCreatorOrWorker(ctx context.Context, p domain.Permit, actorID string) error {
	if actorID == p.CreatedBy {
		return nil
	}
	ok, err := e.Repo.IsPermitWorker(ctx, p.ID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return access.Permissionf("user %s is not the creator or a listed worker on permit %s", actorID, p.PermitNumber)
	}
	return nil
}

// StartWork activates an approved permit and stamps the actual start time.
func (e Engine) StartWork(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if err := e.requireCreatorOrWorker(ctx, p, actorID); err != nil {
		return p, err
	}
	if p.Status != "approved" {
		return p, access.Validationf("work can only start on an approved permit (status is %s)", p.Status)
	}
	return e.transition(ctx, p, "active", "work_started", actorID, "")
}

// CompleteWork ends the work phase and stamps the actual end time.
func (e Engine) CompleteWork(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if err := e.requireCreatorOrWorker(ctx, p, actorID); err != nil {
		return p, err
	}
	if p.Status != "active" {
		return p, access.Validationf("only active permits can be completed (status is %s)", p.Status)
	}
	return e.transition(ctx, p, "completed", "work_completed", actorID, "")
}

// ClosePermit performs final closeout of a completed permit. The creator or
// the bound approver may close.
func (e Engine) ClosePermit(ctx context.Context, permitID, actorID, comment string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	allowed := actorID == p.CreatedBy || (p.ApprovedBy != nil && actorID == *p.ApprovedBy)
	if !allowed {
		return p, access.Permissionf("only the creator or the approver may close permit %s", p.PermitNumber)
	}
	if p.Status != "completed" {
		return p, access.Validationf("only completed permits can be closed (status is %s)", p.Status)
	}
	return e.transition(ctx, p, "closed", "closed", actorID, comment)
}

// Suspend pauses an active permit. Reason required.
func (e Engine) Suspend(ctx context.Context, permitID, actorID, reason string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if err := e.requireOverseer(p, actorID); err != nil {
		return p, err
	}
	if reason == "" {
		return p, access.Validationf("a reason is required to suspend a permit")
	}
	if p.Status != "active" {
		return p, access.Validationf("only active permits can be suspended (status is %s)", p.Status)
	}
	p, err = e.transition(ctx, p, "suspended", "suspended", actorID, reason)
	if err != nil {
		return p, err
	}
	recipients := append([]string{p.CreatedBy}, p.Workers...)
	e.Notify.SendAll(ctx, recipients, "Permit suspended",
		fmt.Sprintf("Permit %s was suspended: %s", p.PermitNumber, reason))
	return p, nil
}

// Resume reactivates a suspended permit.
func (e Engine) Resume(ctx context.Context, permitID, actorID string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if err := e.requireOverseer(p, actorID); err != nil {
		return p, err
	}
	if p.Status != "suspended" {
		return p, access.Validationf("only suspended permits can be resumed (status is %s)", p.Status)
	}
	return e.transition(ctx, p, "active", "resumed", actorID, "")
}

// requireOverseer admits the creator, the bound verifier, or the bound
// approver.
func (e Engine) requireOverseer(p domain.Permit, actorID string) error {
	if actorID == p.CreatedBy {
		return nil
	}
	if p.VerifiedBy != nil && actorID == *p.VerifiedBy {
		return nil
	}
	if p.ApprovedBy != nil && actorID == *p.ApprovedBy {
		return nil
	}
	return access.Permissionf("user %s has no authority over permit %s", actorID, p.PermitNumber)
}

// Cancel withdraws a permit that has not yet entered the work phase.
// Creator only.
func (e Engine) Cancel(ctx context.Context, permitID, actorID, reason string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if actorID != p.CreatedBy {
		return p, access.Permissionf("only the creator may cancel a permit")
	}
	if !canTransition(p.Status, "cancelled") {
		return p, access.Validationf("permit %s cannot be cancelled in status %s", p.PermitNumber, p.Status)
	}
	return e.transition(ctx, p, "cancelled", "cancelled", actorID, reason)
}

// RequestExtension extends the planned end of an active permit. The new end
// must be in the future and may not stretch the permit by more than the
// configured maximum.
func (e Engine) RequestExtension(ctx context.Context, permitID, actorID, newEnd, reason string) (domain.Permit, error) {
	p, err := e.Repo.GetPermit(ctx, permitID)
	if err != nil {
		return p, err
	}
	if err := e.requireCreatorOrWorker(ctx, p, actorID); err != nil {
		return p, err
	}
	if p.Status != "active" {
		return p, access.Validationf("only active permits can be extended (status is %s)", p.Status)
	}
	if reason == "" {
		return p, access.Validationf("a reason is required to extend a permit")
	}
	end, err := time.Parse(time.RFC3339, newEnd)
	if err != nil {
		return p, access.Validationf("new_end must be RFC 3339")
	}
	oldEnd, err := time.Parse(time.RFC3339, p.PlannedEnd)
	if err != nil {
		return p, fmt.Errorf("parse planned_end: %w", err)
	}
	if !end.After(oldEnd) {
		return p, access.Validationf("new_end must be after the current planned end")
	}
	if end.Before(e.now()) {
		return p, access.Validationf("new_end must be in the future")
	}
	max := time.Duration(e.maxExtensionHours()) * time.Hour
	if end.Sub(oldEnd) > max {
		return p, access.Validationf("extension exceeds the maximum of %d hours", e.maxExtensionHours())
	}

	now := e.nowRFC3339()
	ends := end.UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.ExtendPermitPlannedEnd(ctx, tx, p.ID, ends, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return p, access.Conflictf("permit %s is no longer active", p.PermitNumber)
		}
		return p, err
	}
	if err := e.Repo.InsertExtension(ctx, tx, domain.Extension{
		PermitID:    p.ID,
		OldEnd:      p.PlannedEnd,
		NewEnd:      ends,
		Reason:      reason,
		RequestedBy: actorID,
		CreatedAt:   now,
	}); err != nil {
		return p, err
	}
	if err := e.audit(ctx, tx, p.ID, "extended", actorID, reason); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "permit.extended", "permit", p.ID, actorID, events.EventPayload{
		"permit_number": p.PermitNumber,
		"old_end":       p.PlannedEnd,
		"new_end":       ends,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	p.PlannedEnd = ends
	p.UpdatedAt = now
	return p, nil
}

// ExpireOverdue sweeps active permits whose planned end has passed and
// marks them expired. Intended to run periodically from the server loop.
func (e Engine) ExpireOverdue(ctx context.Context) (int, error) {
	overdue, err := e.Repo.ListActivePermitsPastEnd(ctx, e.nowRFC3339())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, p := range overdue {
		if _, err := e.transition(ctx, p, "expired", "expired", "system", "planned end passed"); err != nil {
			var conflict access.ConflictError
			if errors.As(err, &conflict) {
				continue
			}
			return expired, err
		}
		expired++
		e.Notify.Send(ctx, p.CreatedBy, "Permit expired",
			fmt.Sprintf("Permit %s expired at its planned end", p.PermitNumber))
	}
	return expired, nil
}
