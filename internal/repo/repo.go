package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"safeline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

// --- users ---

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,org_type,grade,is_active,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.OrgType, u.Grade, boolToInt(u.IsActive), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	var active int
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,org_type,grade,is_active,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.OrgType, &u.Grade, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.IsActive = active != 0
	return u, err
}

func (r Repo) ListUsers(ctx context.Context, orgType string) ([]domain.User, error) {
	query := `SELECT id,name,org_type,grade,is_active,created_at FROM users`
	var args []any
	if orgType != "" {
		query += ` WHERE org_type=?`
		args = append(args, orgType)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var active int
		if err := rows.Scan(&u.ID, &u.Name, &u.OrgType, &u.Grade, &active, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.IsActive = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}

// --- incidents ---

func (r Repo) InsertIncident(ctx context.Context, in domain.Incident) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO incidents(id,title,description,severity,status,reported_by,assigned_investigator,occurred_at,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		in.ID, in.Title, nullable(in.Description), in.Severity, in.Status, in.ReportedBy, nullableStringPtr(in.AssignedInvestigator), nullable(in.OccurredAt), in.CreatedAt)
	return err
}

func scanIncident(scan func(...any) error) (domain.Incident, error) {
	var in domain.Incident
	var desc, investigator, occurred sql.NullString
	err := scan(&in.ID, &in.Title, &desc, &in.Severity, &in.Status, &in.ReportedBy, &investigator, &occurred, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	if desc.Valid {
		in.Description = desc.String
	}
	if investigator.Valid {
		in.AssignedInvestigator = &investigator.String
	}
	if occurred.Valid {
		in.OccurredAt = occurred.String
	}
	return in, nil
}

const incidentCols = `id,title,description,severity,status,reported_by,assigned_investigator,occurred_at,created_at`

func (r Repo) GetIncident(ctx context.Context, id string) (domain.Incident, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id=?`, id)
	return scanIncident(row.Scan)
}

type IncidentFilters struct {
	Status          string
	Severity        string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListIncidents(ctx context.Context, f IncidentFilters) ([]domain.Incident, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Severity != "" {
		clauses = append(clauses, "severity=?")
		args = append(args, f.Severity)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + incidentCols + ` FROM incidents ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Incident
	for rows.Next() {
		in, err := scanIncident(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIncidentStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE incidents SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) AssignInvestigator(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE incidents SET assigned_investigator=? WHERE id=?`, userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// LatestEventID returns the highest event ID, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryEvents(ctx, `SELECT id,ts,type,entity_kind,entity_id,actor_id,payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
