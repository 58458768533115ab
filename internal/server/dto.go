package server

import (
	"safeline/internal/domain"
)

// Request payloads

type CreateUserRequest struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	OrgType string `json:"org_type" enum:"contractor,epc,client"`
	Grade   string `json:"grade" enum:"A,B,C"`
}

type CreateAPIKeyRequest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
}

type CreateIncidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Severity    string `json:"severity,omitempty" enum:"low,medium,high,critical"`
	OccurredAt  string `json:"occurred_at,omitempty" format:"date-time"`
}

type AssignInvestigatorRequest struct {
	UserID string `json:"user_id"`
}

type SetIncidentStatusRequest struct {
	Status string `json:"status" enum:"open,investigating,resolved,closed"`
}

type InitProcessRequest struct {
	IncidentID           string `json:"incident_id"`
	ProblemStatement     string `json:"problem_statement"`
	ChampionID           string `json:"champion_id"`
	TargetCompletionDate string `json:"target_completion_date,omitempty" format:"date"`
}

type AdvanceRequest struct {
	Discipline int `json:"discipline" minimum:"1" maximum:"8"`
}

type AddMemberRequest struct {
	UserID           string `json:"user_id"`
	Role             string `json:"role,omitempty" enum:"team_leader,subject_expert,process_owner,quality_rep,technical_expert,member,sponsor"`
	ExpertiseArea    string `json:"expertise_area,omitempty"`
	Responsibilities string `json:"responsibilities,omitempty"`
}

type RecognizeMemberRequest struct {
	Notes string `json:"notes,omitempty"`
}

type ProblemDescriptionRequest struct {
	What    string `json:"what"`
	Where   string `json:"where,omitempty"`
	When    string `json:"when,omitempty"`
	Who     string `json:"who,omitempty"`
	HowMany string `json:"how_many,omitempty"`
	Impact  string `json:"impact,omitempty"`
}

type ContainmentRequest struct {
	Description   string `json:"description"`
	ResponsibleID string `json:"responsible_id,omitempty"`
}

type RootCauseRequest struct {
	Description    string `json:"description"`
	Category       string `json:"category" enum:"man,machine,method,material,measurement,environment"`
	AnalysisMethod string `json:"analysis_method,omitempty" enum:"five_whys,fishbone,fault_tree,other"`
}

type CorrectiveActionRequest struct {
	RootCauseID        string `json:"root_cause_id"`
	Description        string `json:"description"`
	ActionType         string `json:"action_type,omitempty" enum:"design_change,process_change,training,procedural,other"`
	ResponsibleID      string `json:"responsible_id"`
	TargetDate         string `json:"target_date,omitempty" format:"date"`
	VerificationMethod string `json:"verification_method,omitempty"`
}

type ImplementActionRequest struct {
	Summary     string `json:"summary"`
	EvidenceRef string `json:"evidence_ref,omitempty"`
}

type PreventionActionRequest struct {
	Description      string `json:"description"`
	ActionType       string `json:"action_type,omitempty" enum:"standardization,system_update,training,audit,other"`
	ResponsibleID    string `json:"responsible_id"`
	TargetDate       string `json:"target_date,omitempty" format:"date"`
	RolloutScope     string `json:"rollout_scope,omitempty"`
	SimilarProcesses string `json:"similar_processes,omitempty"`
}

type VerifyEffectivenessRequest struct {
	Effective bool   `json:"effective"`
	Notes     string `json:"notes"`
}

type CreatePermitRequest struct {
	Title           string   `json:"title"`
	WorkDescription string   `json:"work_description,omitempty"`
	Location        string   `json:"location,omitempty"`
	PlannedStart    string   `json:"planned_start" format:"date-time"`
	PlannedEnd      string   `json:"planned_end,omitempty" format:"date-time"`
	Workers         []string `json:"workers,omitempty"`
}

type VerifyPermitRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment,omitempty"`
}

type CommentRequest struct {
	Comment string `json:"comment,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type ExtendPermitRequest struct {
	NewEnd string `json:"new_end" format:"date-time"`
	Reason string `json:"reason"`
}

// Response payloads

type MeResponse struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	OrgType string `json:"org_type,omitempty"`
	Grade   string `json:"grade,omitempty"`
	Source  string `json:"source"`
}

type APIKeyCreatedResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Key    string `json:"key"`
}

// DisciplineStep is the display state of one discipline in the 8D sequence.
type DisciplineStep struct {
	Discipline int    `json:"discipline" minimum:"1" maximum:"8"`
	Status     string `json:"status" enum:"finish,process,wait"`
}

// ProcessDetailResponse bundles a process with its sub-entities for the
// detail endpoint.
type ProcessDetailResponse struct {
	Process            domain.Process              `json:"process"`
	Steps              []DisciplineStep            `json:"steps"`
	Team               []domain.TeamMember         `json:"team,omitempty"`
	ProblemDescription *domain.ProblemDescription  `json:"problem_description,omitempty"`
	Containment        []domain.ContainmentAction  `json:"containment_actions,omitempty"`
	RootCauses         []domain.RootCause          `json:"root_causes,omitempty"`
	CorrectiveActions  []domain.CorrectiveAction   `json:"corrective_actions,omitempty"`
	Implementation     []domain.ImplementationRecord `json:"implementation_records,omitempty"`
	PreventionActions  []domain.PreventionAction   `json:"prevention_actions,omitempty"`
}

// PermitActionsResponse tells the caller which sign-offs they may perform
// on a permit. Display logic only; the server re-checks on every mutation.
type PermitActionsResponse struct {
	PermitID   string `json:"permit_id"`
	CanVerify  bool   `json:"can_verify"`
	CanApprove bool   `json:"can_approve"`
}

// PermitDetailResponse bundles a permit with its audit trail and extensions.
type PermitDetailResponse struct {
	Permit     domain.Permit      `json:"permit"`
	Audit      []domain.AuditEntry `json:"audit,omitempty"`
	Extensions []domain.Extension  `json:"extensions,omitempty"`
}
