package eightd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"safeline/internal/access"
	"safeline/internal/domain"
	"safeline/internal/events"
)

type IncidentOptions struct {
	Title       string
	Description string
	Severity    string
	OccurredAt  string
	ActorID     string
}

// ReportIncident files a new incident. The reporter is the acting user.
func (e Engine) ReportIncident(ctx context.Context, opts IncidentOptions) (domain.Incident, error) {
	if opts.Title == "" {
		return domain.Incident{}, access.Validationf("title is required")
	}
	severity := opts.Severity
	if severity == "" {
		severity = "medium"
	}
	if _, err := e.Repo.GetUser(ctx, opts.ActorID); err != nil {
		return domain.Incident{}, fmt.Errorf("reporter: %w", err)
	}
	in := domain.Incident{
		ID:          uuid.New().String(),
		Title:       opts.Title,
		Description: opts.Description,
		Severity:    severity,
		Status:      "open",
		ReportedBy:  opts.ActorID,
		OccurredAt:  opts.OccurredAt,
		CreatedAt:   e.nowRFC3339(),
	}
	if err := e.Repo.InsertIncident(ctx, in); err != nil {
		return domain.Incident{}, err
	}
	err := e.inTx(ctx, func(tx *sql.Tx) error {
		return e.Events.Append(ctx, tx, "incident.reported", "incident", in.ID, opts.ActorID, events.EventPayload{
			"severity": in.Severity,
		})
	})
	if err != nil {
		return domain.Incident{}, err
	}
	return in, nil
}

// AssignInvestigator binds an investigator and moves an open incident to
// investigating. Assignment is a precondition for starting an 8D process.
func (e Engine) AssignInvestigator(ctx context.Context, incidentID, userID, actorID string) (domain.Incident, error) {
	in, err := e.Repo.GetIncident(ctx, incidentID)
	if err != nil {
		return in, err
	}
	u, err := e.Repo.GetUser(ctx, userID)
	if err != nil {
		return in, fmt.Errorf("investigator: %w", err)
	}
	if !u.IsActive {
		return in, access.Validationf("user %s is deactivated", userID)
	}
	if in.Status == "resolved" || in.Status == "closed" {
		return in, access.Validationf("incident %s is %s", in.ID, in.Status)
	}
	if err := e.Repo.AssignInvestigator(ctx, incidentID, userID); err != nil {
		return in, err
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if in.Status == "open" {
			if err := e.Repo.UpdateIncidentStatus(ctx, tx, incidentID, "investigating"); err != nil {
				return err
			}
			in.Status = "investigating"
		}
		return e.Events.Append(ctx, tx, "incident.assigned", "incident", incidentID, actorID, events.EventPayload{
			"investigator": userID,
		})
	})
	if err != nil {
		return in, err
	}
	in.AssignedInvestigator = &userID
	e.Notify.Send(ctx, userID, "Incident assigned",
		fmt.Sprintf("You were assigned to investigate incident %s", in.Title))
	return in, nil
}

// SetIncidentStatus moves the incident along open → investigating →
// resolved → closed.
func (e Engine) SetIncidentStatus(ctx context.Context, incidentID, status, actorID string) (domain.Incident, error) {
	in, err := e.Repo.GetIncident(ctx, incidentID)
	if err != nil {
		return in, err
	}
	if !incidentTransitionAllowed(in.Status, status) {
		return in, access.Validationf("incident cannot move from %s to %s", in.Status, status)
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateIncidentStatus(ctx, tx, incidentID, status); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, "incident.status", "incident", incidentID, actorID, events.EventPayload{
			"from": in.Status,
			"to":   status,
		})
	})
	if err != nil {
		return in, err
	}
	in.Status = status
	e.Notify.Send(ctx, in.ReportedBy, "Incident "+status,
		fmt.Sprintf("Incident %s is now %s", in.Title, status))
	return in, nil
}

func incidentTransitionAllowed(from, to string) bool {
	switch from {
	case "open":
		return to == "investigating" || to == "closed"
	case "investigating":
		return to == "resolved"
	case "resolved":
		return to == "closed" || to == "investigating"
	}
	return false
}
