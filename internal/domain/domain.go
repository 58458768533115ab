package domain

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OrgType   string `json:"org_type" enum:"contractor,epc,client"`
	Grade     string `json:"grade" enum:"A,B,C"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Incident struct {
	ID                   string  `json:"id"`
	Title                string  `json:"title"`
	Description          string  `json:"description,omitempty"`
	Severity             string  `json:"severity" enum:"low,medium,high,critical"`
	Status               string  `json:"status" enum:"open,investigating,resolved,closed"`
	ReportedBy           string  `json:"reported_by"`
	AssignedInvestigator *string `json:"assigned_investigator,omitempty"`
	OccurredAt           string  `json:"occurred_at,omitempty" format:"date-time"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
}

type Process struct {
	ID                   string  `json:"id"`
	EightDID             string  `json:"eight_d_id"`
	IncidentID           string  `json:"incident_id"`
	ProblemStatement     string  `json:"problem_statement"`
	ChampionID           string  `json:"champion_id"`
	CurrentDiscipline    int     `json:"current_discipline" minimum:"1" maximum:"9"`
	Status               string  `json:"status" enum:"active,completed"`
	OverallProgress      int     `json:"overall_progress" minimum:"0" maximum:"100"`
	TargetCompletionDate string  `json:"target_completion_date,omitempty" format:"date"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
	UpdatedAt            string  `json:"updated_at" format:"date-time"`
	CompletedAt          *string `json:"completed_at,omitempty" format:"date-time"`
}

type TeamMember struct {
	ID               string  `json:"id"`
	ProcessID        string  `json:"process_id"`
	UserID           string  `json:"user_id"`
	Role             string  `json:"role" enum:"team_leader,subject_expert,process_owner,quality_rep,technical_expert,member,sponsor"`
	ExpertiseArea    string  `json:"expertise_area,omitempty"`
	Responsibilities string  `json:"responsibilities,omitempty"`
	IsActive         bool    `json:"is_active"`
	IsRecognized     bool    `json:"is_recognized"`
	RecognizedDate   *string `json:"recognized_date,omitempty" format:"date-time"`
	RecognitionNotes string  `json:"recognition_notes,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type ProblemDescription struct {
	ProcessID string `json:"process_id"`
	What      string `json:"what"`
	Where     string `json:"where,omitempty"`
	When      string `json:"when,omitempty"`
	Who       string `json:"who,omitempty"`
	HowMany   string `json:"how_many,omitempty"`
	Impact    string `json:"impact,omitempty"`
	UpdatedBy string `json:"updated_by"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type ContainmentAction struct {
	ID            string  `json:"id"`
	ProcessID     string  `json:"process_id"`
	Description   string  `json:"description"`
	ResponsibleID string  `json:"responsible_id"`
	ImplementedAt *string `json:"implemented_at,omitempty" format:"date-time"`
	Effectiveness string  `json:"effectiveness,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type RootCause struct {
	ID             string  `json:"id"`
	ProcessID      string  `json:"process_id"`
	Description    string  `json:"description"`
	Category       string  `json:"category" enum:"man,machine,method,material,measurement,environment"`
	AnalysisMethod string  `json:"analysis_method,omitempty" enum:"five_whys,fishbone,fault_tree,other"`
	IsVerified     bool    `json:"is_verified"`
	VerifiedBy     *string `json:"verified_by,omitempty"`
	VerifiedAt     *string `json:"verified_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type CorrectiveAction struct {
	ID                 string  `json:"id"`
	ProcessID          string  `json:"process_id"`
	RootCauseID        string  `json:"root_cause_id"`
	Description        string  `json:"description"`
	ActionType         string  `json:"action_type" enum:"design_change,process_change,training,procedural,other"`
	ResponsibleID      string  `json:"responsible_id"`
	TargetDate         string  `json:"target_date,omitempty" format:"date"`
	VerificationMethod string  `json:"verification_method,omitempty"`
	Status             string  `json:"status" enum:"planned,implemented,verified,effective,ineffective"`
	ImplementedAt      *string `json:"implemented_at,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type ImplementationRecord struct {
	ID                 string `json:"id"`
	ProcessID          string `json:"process_id"`
	CorrectiveActionID string `json:"corrective_action_id"`
	Summary            string `json:"summary"`
	EvidenceRef        string `json:"evidence_ref,omitempty"`
	RecordedBy         string `json:"recorded_by"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

type PreventionAction struct {
	ID                 string  `json:"id"`
	ProcessID          string  `json:"process_id"`
	Description        string  `json:"description"`
	ActionType         string  `json:"action_type" enum:"standardization,system_update,training,audit,other"`
	ResponsibleID      string  `json:"responsible_id"`
	TargetDate         string  `json:"target_date,omitempty" format:"date"`
	RolloutScope       string  `json:"rollout_scope,omitempty"`
	SimilarProcesses   string  `json:"similar_processes,omitempty"`
	Status             string  `json:"status" enum:"planned,implemented,verified,effective,ineffective"`
	ImplementedAt      *string `json:"implemented_at,omitempty" format:"date-time"`
	EffectivenessNotes string  `json:"effectiveness_notes,omitempty"`
	VerifiedBy         *string `json:"verified_by,omitempty"`
	VerifiedAt         *string `json:"verified_at,omitempty" format:"date-time"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type Permit struct {
	ID              string   `json:"id"`
	PermitNumber    string   `json:"permit_number"`
	Title           string   `json:"title"`
	WorkDescription string   `json:"work_description,omitempty"`
	Location        string   `json:"location,omitempty"`
	Status          string   `json:"status" enum:"draft,submitted,under_review,pending_approval,approved,rejected,active,suspended,completed,closed,cancelled,expired"`
	CreatedBy       string   `json:"created_by"`
	CreatorOrgType  string   `json:"creator_org_type" enum:"contractor,epc,client"`
	CreatorGrade    string   `json:"creator_grade" enum:"A,B,C"`
	VerifiedBy      *string  `json:"verified_by,omitempty"`
	VerifiedAt      *string  `json:"verified_at,omitempty" format:"date-time"`
	ApprovedBy      *string  `json:"approved_by,omitempty"`
	ApprovedAt      *string  `json:"approved_at,omitempty" format:"date-time"`
	RejectedBy      *string  `json:"rejected_by,omitempty"`
	PlannedStart    string   `json:"planned_start" format:"date-time"`
	PlannedEnd      string   `json:"planned_end" format:"date-time"`
	ActualStart     *string  `json:"actual_start,omitempty" format:"date-time"`
	ActualEnd       *string  `json:"actual_end,omitempty" format:"date-time"`
	Workers         []string `json:"workers,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
	UpdatedAt       string   `json:"updated_at" format:"date-time"`
}

// AuditEntry is one immutable row of a permit's audit trail.
type AuditEntry struct {
	ID       int64  `json:"id"`
	PermitID string `json:"permit_id"`
	Action   string `json:"action"`
	ActorID  string `json:"actor_id"`
	TS       string `json:"ts" format:"date-time"`
	Comments string `json:"comments,omitempty"`
}

type Extension struct {
	ID          int64  `json:"id"`
	PermitID    string `json:"permit_id"`
	OldEnd      string `json:"old_end" format:"date-time"`
	NewEnd      string `json:"new_end" format:"date-time"`
	Reason      string `json:"reason"`
	RequestedBy string `json:"requested_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        int64  `json:"id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
