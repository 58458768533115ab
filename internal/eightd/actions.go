package eightd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"safeline/internal/access"
	"safeline/internal/domain"
	"safeline/internal/events"
	"safeline/internal/repo"
)

func (e Engine) activeProcess(ctx context.Context, processID string) (domain.Process, error) {
	p, err := e.Repo.GetProcess(ctx, processID)
	if err != nil {
		return p, err
	}
	if p.Status == "completed" {
		return p, access.Validationf("process %s is completed and can no longer be modified", p.EightDID)
	}
	return p, nil
}

func (e Engine) requireTeamMember(ctx context.Context, p domain.Process, actorID string) error {
	if actorID == p.ChampionID {
		return nil
	}
	ok, err := e.Repo.HasTeamMember(ctx, p.ID, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return access.Permissionf("only team members of %s may perform this action", p.EightDID)
	}
	return nil
}

// --- D1: team ---

type AddMemberOptions struct {
	ProcessID        string
	UserID           string
	Role             string
	ExpertiseArea    string
	Responsibilities string
	ActorID          string
}

// AddTeamMember enrolls a user on the team. Champion only; a user can be
// enrolled at most once per process.
func (e Engine) AddTeamMember(ctx context.Context, opts AddMemberOptions) (domain.TeamMember, error) {
	p, err := e.activeProcess(ctx, opts.ProcessID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	if opts.ActorID != p.ChampionID {
		return domain.TeamMember{}, access.Permissionf("only the champion may add team members")
	}
	if opts.UserID == "" {
		return domain.TeamMember{}, access.Validationf("user_id is required")
	}
	if _, err := e.Repo.GetUser(ctx, opts.UserID); err != nil {
		return domain.TeamMember{}, fmt.Errorf("user: %w", err)
	}
	exists, err := e.Repo.HasTeamMember(ctx, p.ID, opts.UserID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	if exists {
		return domain.TeamMember{}, access.Conflictf("user %s is already on the team of %s", opts.UserID, p.EightDID)
	}
	role := opts.Role
	if role == "" {
		role = "member"
	}
	m := domain.TeamMember{
		ID:               uuid.New().String(),
		ProcessID:        p.ID,
		UserID:           opts.UserID,
		Role:             role,
		ExpertiseArea:    opts.ExpertiseArea,
		Responsibilities: opts.Responsibilities,
		IsActive:         true,
		CreatedAt:        e.nowRFC3339(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertTeamMember(ctx, tx, m); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.team.added", "eightd_process", p.ID, opts.ActorID, events.EventPayload{
			"member_id": m.ID,
			"user_id":   m.UserID,
			"role":      m.Role,
		})
	})
	if err != nil {
		return domain.TeamMember{}, err
	}
	e.Notify.Send(ctx, m.UserID, "Added to 8D team",
		fmt.Sprintf("You joined the team of %s as %s", p.EightDID, m.Role))
	return m, nil
}

// RemoveTeamMember marks a member inactive. Champion only. The champion's
// own membership cannot be removed.
func (e Engine) RemoveTeamMember(ctx context.Context, processID, memberID, actorID string) error {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return err
	}
	if actorID != p.ChampionID {
		return access.Permissionf("only the champion may remove team members")
	}
	m, err := e.Repo.GetTeamMember(ctx, memberID)
	if err != nil {
		return err
	}
	if m.ProcessID != p.ID {
		return repo.ErrNotFound
	}
	if m.UserID == p.ChampionID {
		return access.Validationf("the champion cannot leave the team")
	}
	return e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.DeactivateTeamMember(ctx, tx, memberID); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.team.removed", "eightd_process", p.ID, actorID, events.EventPayload{
			"member_id": memberID,
			"user_id":   m.UserID,
		})
	})
}

// --- D2: problem description ---

type ProblemInput struct {
	What    string
	Where   string
	When    string
	Who     string
	HowMany string
	Impact  string
}

// SetProblemDescription creates or replaces the 5W2H problem description.
// Any team member may write it; the latest write wins.
func (e Engine) SetProblemDescription(ctx context.Context, processID string, in ProblemInput, actorID string) (domain.ProblemDescription, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.ProblemDescription{}, err
	}
	if err := e.requireTeamMember(ctx, p, actorID); err != nil {
		return domain.ProblemDescription{}, err
	}
	if in.What == "" {
		return domain.ProblemDescription{}, access.Validationf("what is required")
	}
	now := e.nowRFC3339()
	d := domain.ProblemDescription{
		ProcessID: p.ID,
		What:      in.What,
		Where:     in.Where,
		When:      in.When,
		Who:       in.Who,
		HowMany:   in.HowMany,
		Impact:    in.Impact,
		UpdatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpsertProblemDescription(ctx, tx, d); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.problem.updated", "eightd_process", p.ID, actorID, nil)
	})
	if err != nil {
		return domain.ProblemDescription{}, err
	}
	return d, nil
}

// --- D3: containment ---

func (e Engine) AddContainmentAction(ctx context.Context, processID, description, responsibleID, actorID string) (domain.ContainmentAction, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.ContainmentAction{}, err
	}
	if err := e.requireTeamMember(ctx, p, actorID); err != nil {
		return domain.ContainmentAction{}, err
	}
	if description == "" {
		return domain.ContainmentAction{}, access.Validationf("description is required")
	}
	if responsibleID == "" {
		responsibleID = actorID
	}
	a := domain.ContainmentAction{
		ID:            uuid.New().String(),
		ProcessID:     p.ID,
		Description:   description,
		ResponsibleID: responsibleID,
		CreatedAt:     e.nowRFC3339(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertContainmentAction(ctx, tx, a); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.containment.added", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id": a.ID,
		})
	})
	if err != nil {
		return domain.ContainmentAction{}, err
	}
	e.Notify.Send(ctx, responsibleID, "Containment action assigned",
		fmt.Sprintf("A containment action on %s was assigned to you", p.EightDID))
	return a, nil
}

// --- D4: root causes ---

type RootCauseInput struct {
	Description    string
	Category       string
	AnalysisMethod string
}

func (e Engine) AddRootCause(ctx context.Context, processID string, in RootCauseInput, actorID string) (domain.RootCause, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.RootCause{}, err
	}
	if err := e.requireTeamMember(ctx, p, actorID); err != nil {
		return domain.RootCause{}, err
	}
	if in.Description == "" {
		return domain.RootCause{}, access.Validationf("description is required")
	}
	if in.Category == "" {
		return domain.RootCause{}, access.Validationf("category is required")
	}
	rc := domain.RootCause{
		ID:             uuid.New().String(),
		ProcessID:      p.ID,
		Description:    in.Description,
		Category:       in.Category,
		AnalysisMethod: in.AnalysisMethod,
		CreatedAt:      e.nowRFC3339(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRootCause(ctx, tx, rc); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.rootcause.added", "eightd_process", p.ID, actorID, events.EventPayload{
			"root_cause_id": rc.ID,
			"category":      rc.Category,
		})
	})
	if err != nil {
		return domain.RootCause{}, err
	}
	return rc, nil
}

// VerifyRootCause confirms a proposed root cause. Champion only; a verified
// root cause is the prerequisite for corrective actions against it.
func (e Engine) VerifyRootCause(ctx context.Context, processID, rootCauseID, actorID string) (domain.RootCause, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.RootCause{}, err
	}
	if actorID != p.ChampionID {
		return domain.RootCause{}, access.Permissionf("only the champion may verify root causes")
	}
	rc, err := e.Repo.GetRootCause(ctx, rootCauseID)
	if err != nil {
		return domain.RootCause{}, err
	}
	if rc.ProcessID != p.ID {
		return domain.RootCause{}, repo.ErrNotFound
	}
	if rc.IsVerified {
		return domain.RootCause{}, access.Conflictf("root cause is already verified")
	}
	now := e.nowRFC3339()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.VerifyRootCause(ctx, tx, rootCauseID, actorID, now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.rootcause.verified", "eightd_process", p.ID, actorID, events.EventPayload{
			"root_cause_id": rootCauseID,
		})
	})
	if err != nil {
		return domain.RootCause{}, err
	}
	rc.IsVerified = true
	rc.VerifiedBy = &actorID
	rc.VerifiedAt = &now
	return rc, nil
}

// --- D5: corrective actions ---

type CorrectiveInput struct {
	RootCauseID        string
	Description        string
	ActionType         string
	ResponsibleID      string
	TargetDate         string
	VerificationMethod string
}

// AddCorrectiveAction plans a corrective action. The referenced root cause
// must belong to the process and be verified.
func (e Engine) AddCorrectiveAction(ctx context.Context, processID string, in CorrectiveInput, actorID string) (domain.CorrectiveAction, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.CorrectiveAction{}, err
	}
	if err := e.requireTeamMember(ctx, p, actorID); err != nil {
		return domain.CorrectiveAction{}, err
	}
	if in.Description == "" {
		return domain.CorrectiveAction{}, access.Validationf("description is required")
	}
	if in.ResponsibleID == "" {
		return domain.CorrectiveAction{}, access.Validationf("responsible_id is required")
	}
	rc, err := e.Repo.GetRootCause(ctx, in.RootCauseID)
	if err != nil {
		return domain.CorrectiveAction{}, fmt.Errorf("root cause: %w", err)
	}
	if rc.ProcessID != p.ID {
		return domain.CorrectiveAction{}, access.Validationf("root cause %s does not belong to %s", in.RootCauseID, p.EightDID)
	}
	if !rc.IsVerified {
		return domain.CorrectiveAction{}, access.Validationf("corrective actions require a verified root cause")
	}
	actionType := in.ActionType
	if actionType == "" {
		actionType = "other"
	}
	a := domain.CorrectiveAction{
		ID:                 uuid.New().String(),
		ProcessID:          p.ID,
		RootCauseID:        in.RootCauseID,
		Description:        in.Description,
		ActionType:         actionType,
		ResponsibleID:      in.ResponsibleID,
		TargetDate:         in.TargetDate,
		VerificationMethod: in.VerificationMethod,
		Status:             "planned",
		CreatedAt:          e.nowRFC3339(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertCorrectiveAction(ctx, tx, a); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.corrective.added", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id":     a.ID,
			"root_cause_id": a.RootCauseID,
		})
	})
	if err != nil {
		return domain.CorrectiveAction{}, err
	}
	e.Notify.Send(ctx, a.ResponsibleID, "Corrective action assigned",
		fmt.Sprintf("A corrective action on %s was assigned to you", p.EightDID))
	return a, nil
}

// --- D6: implementation ---

// ImplementCorrectiveAction records the implementation of a corrective
// action. Only the responsible person may record it; the record doubles as
// the D6 evidence trail.
func (e Engine) ImplementCorrectiveAction(ctx context.Context, processID, actionID, summary, evidenceRef, actorID string) (domain.ImplementationRecord, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.ImplementationRecord{}, err
	}
	a, err := e.Repo.GetCorrectiveAction(ctx, actionID)
	if err != nil {
		return domain.ImplementationRecord{}, err
	}
	if a.ProcessID != p.ID {
		return domain.ImplementationRecord{}, repo.ErrNotFound
	}
	if actorID != a.ResponsibleID {
		return domain.ImplementationRecord{}, access.Permissionf("only the responsible person may implement this action")
	}
	if a.Status != "planned" {
		return domain.ImplementationRecord{}, access.Conflictf("corrective action is already %s", a.Status)
	}
	if summary == "" {
		return domain.ImplementationRecord{}, access.Validationf("summary is required")
	}
	now := e.nowRFC3339()
	rec := domain.ImplementationRecord{
		ID:                 uuid.New().String(),
		ProcessID:          p.ID,
		CorrectiveActionID: actionID,
		Summary:            summary,
		EvidenceRef:        evidenceRef,
		RecordedBy:         actorID,
		CreatedAt:          now,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateCorrectiveActionStatus(ctx, tx, actionID, "implemented", &now); err != nil {
			return err
		}
		if err := e.Repo.InsertImplementationRecord(ctx, tx, rec); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.corrective.implemented", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id": actionID,
			"record_id": rec.ID,
		})
	})
	if err != nil {
		return domain.ImplementationRecord{}, err
	}
	e.Notify.Send(ctx, p.ChampionID, "Corrective action implemented",
		fmt.Sprintf("A corrective action on %s was implemented", p.EightDID))
	return rec, nil
}

// --- D7: prevention ---

type PreventionInput struct {
	Description      string
	ActionType       string
	ResponsibleID    string
	TargetDate       string
	RolloutScope     string
	SimilarProcesses string
}

func (e Engine) AddPreventionAction(ctx context.Context, processID string, in PreventionInput, actorID string) (domain.PreventionAction, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	if err := e.requireTeamMember(ctx, p, actorID); err != nil {
		return domain.PreventionAction{}, err
	}
	if in.Description == "" {
		return domain.PreventionAction{}, access.Validationf("description is required")
	}
	if in.ResponsibleID == "" {
		return domain.PreventionAction{}, access.Validationf("responsible_id is required")
	}
	actionType := in.ActionType
	if actionType == "" {
		actionType = "other"
	}
	a := domain.PreventionAction{
		ID:               uuid.New().String(),
		ProcessID:        p.ID,
		Description:      in.Description,
		ActionType:       actionType,
		ResponsibleID:    in.ResponsibleID,
		TargetDate:       in.TargetDate,
		RolloutScope:     in.RolloutScope,
		SimilarProcesses: in.SimilarProcesses,
		Status:           "planned",
		CreatedAt:        e.nowRFC3339(),
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertPreventionAction(ctx, tx, a); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.prevention.added", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id": a.ID,
		})
	})
	if err != nil {
		return domain.PreventionAction{}, err
	}
	e.Notify.Send(ctx, a.ResponsibleID, "Prevention action assigned",
		fmt.Sprintf("A prevention action on %s was assigned to you", p.EightDID))
	return a, nil
}

// ImplementPreventionAction marks a prevention action implemented. Only the
// assigned responsible person may do so.
func (e Engine) ImplementPreventionAction(ctx context.Context, processID, actionID, actorID string) (domain.PreventionAction, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	a, err := e.Repo.GetPreventionAction(ctx, actionID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	if a.ProcessID != p.ID {
		return domain.PreventionAction{}, repo.ErrNotFound
	}
	if actorID != a.ResponsibleID {
		return domain.PreventionAction{}, access.Permissionf("only the responsible person may implement this action")
	}
	if a.Status != "planned" {
		return domain.PreventionAction{}, access.Conflictf("prevention action is already %s", a.Status)
	}
	now := e.nowRFC3339()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdatePreventionActionStatus(ctx, tx, actionID, "implemented", &now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.prevention.implemented", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id": actionID,
		})
	})
	if err != nil {
		return domain.PreventionAction{}, err
	}
	a.Status = "implemented"
	a.ImplementedAt = &now
	return a, nil
}

// VerifyPreventionEffectiveness records the effectiveness verdict on an
// implemented prevention action. Only the reporter of the originating
// incident may judge effectiveness, and notes are mandatory.
func (e Engine) VerifyPreventionEffectiveness(ctx context.Context, processID, actionID string, effective bool, notes, actorID string) (domain.PreventionAction, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	in, err := e.Repo.GetIncident(ctx, p.IncidentID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	if actorID != in.ReportedBy {
		return domain.PreventionAction{}, access.Permissionf("only the incident reporter may verify prevention effectiveness")
	}
	if notes == "" {
		return domain.PreventionAction{}, access.Validationf("effectiveness notes are required")
	}
	a, err := e.Repo.GetPreventionAction(ctx, actionID)
	if err != nil {
		return domain.PreventionAction{}, err
	}
	if a.ProcessID != p.ID {
		return domain.PreventionAction{}, repo.ErrNotFound
	}
	if a.Status != "implemented" {
		return domain.PreventionAction{}, access.Validationf("prevention action must be implemented before verification (status is %s)", a.Status)
	}
	status := "effective"
	if !effective {
		status = "ineffective"
	}
	now := e.nowRFC3339()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.MarkPreventionActionEffectiveness(ctx, tx, actionID, status, notes, actorID, now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.prevention.verified", "eightd_process", p.ID, actorID, events.EventPayload{
			"action_id": actionID,
			"status":    status,
		})
	})
	if err != nil {
		return domain.PreventionAction{}, err
	}
	a.Status = status
	a.EffectivenessNotes = notes
	a.VerifiedBy = &actorID
	a.VerifiedAt = &now
	e.Notify.Send(ctx, a.ResponsibleID, "Prevention action "+status,
		fmt.Sprintf("Your prevention action on %s was judged %s", p.EightDID, status))
	return a, nil
}

// --- D8: recognition ---

// RecognizeMember records the champion's recognition of a team member,
// clearing one of the D8 gates.
func (e Engine) RecognizeMember(ctx context.Context, processID, memberID, notes, actorID string) (domain.TeamMember, error) {
	p, err := e.activeProcess(ctx, processID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	if actorID != p.ChampionID {
		return domain.TeamMember{}, access.Permissionf("only the champion may recognize team members")
	}
	m, err := e.Repo.GetTeamMember(ctx, memberID)
	if err != nil {
		return domain.TeamMember{}, err
	}
	if m.ProcessID != p.ID {
		return domain.TeamMember{}, repo.ErrNotFound
	}
	if !m.IsActive {
		return domain.TeamMember{}, access.Validationf("inactive members cannot be recognized")
	}
	if m.IsRecognized {
		return domain.TeamMember{}, access.Conflictf("member is already recognized")
	}
	now := e.nowRFC3339()
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.RecognizeTeamMember(ctx, tx, memberID, notes, now); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "eightd.team.recognized", "eightd_process", p.ID, actorID, events.EventPayload{
			"member_id": memberID,
			"user_id":   m.UserID,
		})
	})
	if err != nil {
		return domain.TeamMember{}, err
	}
	m.IsRecognized = true
	m.RecognizedDate = &now
	m.RecognitionNotes = notes
	e.Notify.Send(ctx, m.UserID, "Team contribution recognized",
		fmt.Sprintf("Your contribution to %s was recognized", p.EightDID))
	return m, nil
}
