package eightd

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

// FinalDiscipline is the last discipline of the 8D methodology.
const FinalDiscipline = 8

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Notify notify.Dispatcher
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	enabled := cfg == nil || cfg.Notifications.Enabled
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Notify: notify.Dispatcher{Repo: r, Enabled: enabled},
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

// inTx runs fn in a transaction, committing on success.
func (e Engine) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// InitOptions are parameters for starting an 8D process on an incident.
type InitOptions struct {
	IncidentID           string
	ProblemStatement     string
	ChampionID           string
	TargetCompletionDate string
	ActorID              string
}

// InitProcess starts the 8D process for an incident. One process per
// incident; the champion is seeded as team leader so D1 starts with a
// non-empty team.
func (e Engine) InitProcess(ctx context.Context, opts InitOptions) (domain.Process, error) {
	if opts.IncidentID == "" {
		return domain.Process{}, access.Validationf("incident is required")
	}
	if opts.ProblemStatement == "" {
		return domain.Process{}, access.Validationf("problem_statement is required")
	}
	if opts.ChampionID == "" {
		return domain.Process{}, access.Validationf("champion is required")
	}
	in, err := e.Repo.GetIncident(ctx, opts.IncidentID)
	if err != nil {
		return domain.Process{}, err
	}
	if in.AssignedInvestigator == nil || *in.AssignedInvestigator == "" {
		return domain.Process{}, access.Validationf("incident %s has no assigned investigator", in.ID)
	}
	if _, err := e.Repo.GetProcessByIncident(ctx, opts.IncidentID); err == nil {
		return domain.Process{}, access.Conflictf("incident %s already has an 8D process", opts.IncidentID)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Process{}, err
	}
	if _, err := e.Repo.GetUser(ctx, opts.ChampionID); err != nil {
		return domain.Process{}, fmt.Errorf("champion: %w", err)
	}

	now := e.nowRFC3339()
	p := domain.Process{
		ID:                   uuid.New().String(),
		EightDID:             fmt.Sprintf("8D-%d-%s", e.now().UTC().Year(), opts.IncidentID),
		IncidentID:           opts.IncidentID,
		ProblemStatement:     opts.ProblemStatement,
		ChampionID:           opts.ChampionID,
		CurrentDiscipline:    1,
		Status:               "active",
		OverallProgress:      0,
		TargetCompletionDate: opts.TargetCompletionDate,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Process{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProcess(ctx, tx, p); err != nil {
		return domain.Process{}, fmt.Errorf("insert process: %w", err)
	}
	leader := domain.TeamMember{
		ID:        uuid.New().String(),
		ProcessID: p.ID,
		UserID:    opts.ChampionID,
		Role:      "team_leader",
		IsActive:  true,
		CreatedAt: now,
	}
	if err := e.Repo.InsertTeamMember(ctx, tx, leader); err != nil {
		return domain.Process{}, fmt.Errorf("seed team leader: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "eightd.created", "eightd_process", p.ID, opts.ActorID, events.EventPayload{
		"eight_d_id":  p.EightDID,
		"incident_id": p.IncidentID,
		"champion_id": p.ChampionID,
	}); err != nil {
		return domain.Process{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Process{}, err
	}
	e.Notify.Send(ctx, opts.ChampionID, "8D process started",
		fmt.Sprintf("You are the champion of %s for incident %s", p.EightDID, p.IncidentID))
	return p, nil
}

// Advance completes the given discipline. It succeeds only when the
// discipline is the current one, its completion criteria hold, and the
// caller is the bound champion. Completing D8 finishes the process.
func (e Engine) Advance(ctx context.Context, processID string, discipline int, actorID string) (domain.Process, error) {
	p, err := e.Repo.GetProcess(ctx, processID)
	if err != nil {
		return p, err
	}
	if p.Status == "completed" {
		return p, access.Validationf("process %s is already completed", p.EightDID)
	}
	if discipline < 1 || discipline > FinalDiscipline {
		return p, access.Validationf("discipline must be between 1 and %d", FinalDiscipline)
	}
	if discipline != p.CurrentDiscipline {
		return p, access.Validationf("cannot complete D%d while D%d is in progress", discipline, p.CurrentDiscipline)
	}
	if actorID != p.ChampionID {
		return p, access.Permissionf("only the champion may complete D%d", discipline)
	}
	if err := e.completionCriteria(ctx, p, discipline); err != nil {
		return p, err
	}

	original := p
	now := e.nowRFC3339()
	if discipline == FinalDiscipline {
		p.Status = "completed"
		p.OverallProgress = 100
		p.CompletedAt = &now
	} else {
		p.CurrentDiscipline = discipline + 1
		p.OverallProgress = discipline * 100 / FinalDiscipline
	}
	p.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return original, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProcess(ctx, tx, p); err != nil {
		return original, err
	}
	if err := e.Events.Append(ctx, tx, "eightd.discipline.completed", "eightd_process", p.ID, actorID, events.EventPayload{
		"discipline": discipline,
		"progress":   p.OverallProgress,
	}); err != nil {
		return original, err
	}
	if p.Status == "completed" {
		if err := e.Events.Append(ctx, tx, "eightd.completed", "eightd_process", p.ID, actorID, events.EventPayload{
			"eight_d_id": p.EightDID,
		}); err != nil {
			return original, err
		}
	}
	if err := tx.Commit(); err != nil {
		return original, err
	}

	e.notifyStakeholders(ctx, p, discipline)
	return p, nil
}

// completionCriteria checks the discipline-specific gate. Failures are
// ValidationErrors; they never mutate state.
func (e Engine) completionCriteria(ctx context.Context, p domain.Process, discipline int) error {
	switch discipline {
	case 1:
		n, err := e.Repo.CountActiveTeamMembers(ctx, p.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D1 requires at least one active team member")
		}
	case 2:
		ok, err := e.Repo.HasProblemDescription(ctx, p.ID)
		if err != nil {
			return err
		}
		if !ok {
			return access.Validationf("D2 requires a problem description")
		}
	case 3:
		n, err := e.Repo.CountContainmentActions(ctx, p.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D3 requires at least one containment action")
		}
	case 4:
		n, err := e.Repo.CountVerifiedRootCauses(ctx, p.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D4 requires at least one verified root cause")
		}
	case 5:
		n, err := e.Repo.CountCorrectiveActions(ctx, p.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D5 requires at least one corrective action")
		}
	case 6:
		n, err := e.Repo.CountCorrectiveActionsByStatus(ctx, p.ID, "implemented", "verified", "effective")
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D6 requires at least one implemented corrective action")
		}
	case 7:
		n, err := e.Repo.CountPreventionActionsByStatus(ctx, p.ID, "verified", "effective")
		if err != nil {
			return err
		}
		if n == 0 {
			return access.Validationf("D7 requires at least one verified prevention action")
		}
	case 8:
		active, err := e.Repo.CountActiveTeamMembers(ctx, p.ID)
		if err != nil {
			return err
		}
		if active == 0 {
			return access.Validationf("D8 requires an active team")
		}
		unrecognized, err := e.Repo.CountUnrecognizedActiveMembers(ctx, p.ID)
		if err != nil {
			return err
		}
		if unrecognized > 0 {
			return access.Validationf("D8 requires recognition of all active team members; %d remaining", unrecognized)
		}
	}
	return nil
}

// notifyStakeholders fans out discipline-completion notifications. Best
// effort only; the transition has already committed.
func (e Engine) notifyStakeholders(ctx context.Context, p domain.Process, discipline int) {
	recipients := []string{p.ChampionID}
	if in, err := e.Repo.GetIncident(ctx, p.IncidentID); err == nil {
		recipients = append(recipients, in.ReportedBy)
		if in.AssignedInvestigator != nil {
			recipients = append(recipients, *in.AssignedInvestigator)
		}
	}
	title := fmt.Sprintf("D%d completed", discipline)
	msg := fmt.Sprintf("Discipline D%d of %s was completed (progress %d%%)", discipline, p.EightDID, p.OverallProgress)
	if p.Status == "completed" {
		title = "8D process completed"
		msg = fmt.Sprintf("%s for incident %s is complete", p.EightDID, p.IncidentID)
	}
	e.Notify.SendAll(ctx, recipients, title, msg)
}

// StepStatus reports the display state of discipline n: "finish" for passed
// disciplines, "process" for the current one, "wait" for the rest. Pure
// function of the process snapshot.
func StepStatus(p domain.Process, n int) string {
	if p.Status == "completed" || n < p.CurrentDiscipline {
		return "finish"
	}
	if n == p.CurrentDiscipline {
		return "process"
	}
	return "wait"
}
