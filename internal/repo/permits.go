package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"safeline/internal/domain"
)

const permitCols = `id,permit_number,title,work_description,location,status,created_by,creator_org_type,creator_grade,verified_by,verified_at,approved_by,approved_at,rejected_by,planned_start,planned_end,actual_start,actual_end,created_at,updated_at`

func (r Repo) InsertPermit(ctx context.Context, tx *sql.Tx, p domain.Permit) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permits(`+permitCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.PermitNumber, p.Title, nullable(p.WorkDescription), nullable(p.Location), p.Status,
		p.CreatedBy, p.CreatorOrgType, p.CreatorGrade,
		nullableStringPtr(p.VerifiedBy), nullableStringPtr(p.VerifiedAt),
		nullableStringPtr(p.ApprovedBy), nullableStringPtr(p.ApprovedAt), nullableStringPtr(p.RejectedBy),
		p.PlannedStart, p.PlannedEnd, nullableStringPtr(p.ActualStart), nullableStringPtr(p.ActualEnd),
		p.CreatedAt, p.UpdatedAt)
	return err
}

func scanPermit(scan func(...any) error) (domain.Permit, error) {
	var p domain.Permit
	var desc, loc, verifiedBy, verifiedAt, approvedBy, approvedAt, rejectedBy, actualStart, actualEnd sql.NullString
	err := scan(&p.ID, &p.PermitNumber, &p.Title, &desc, &loc, &p.Status, &p.CreatedBy, &p.CreatorOrgType, &p.CreatorGrade,
		&verifiedBy, &verifiedAt, &approvedBy, &approvedAt, &rejectedBy, &p.PlannedStart, &p.PlannedEnd, &actualStart, &actualEnd,
		&p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.WorkDescription = desc.String
	}
	if loc.Valid {
		p.Location = loc.String
	}
	if verifiedBy.Valid {
		p.VerifiedBy = &verifiedBy.String
	}
	if verifiedAt.Valid {
		p.VerifiedAt = &verifiedAt.String
	}
	if approvedBy.Valid {
		p.ApprovedBy = &approvedBy.String
	}
	if approvedAt.Valid {
		p.ApprovedAt = &approvedAt.String
	}
	if rejectedBy.Valid {
		p.RejectedBy = &rejectedBy.String
	}
	if actualStart.Valid {
		p.ActualStart = &actualStart.String
	}
	if actualEnd.Valid {
		p.ActualEnd = &actualEnd.String
	}
	return p, nil
}

func (r Repo) GetPermit(ctx context.Context, id string) (domain.Permit, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+permitCols+` FROM permits WHERE id=?`, id)
	p, err := scanPermit(row.Scan)
	if err != nil {
		return p, err
	}
	p.Workers, err = r.ListPermitWorkers(ctx, p.ID)
	return p, err
}

func (r Repo) GetPermitTx(ctx context.Context, tx *sql.Tx, id string) (domain.Permit, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+permitCols+` FROM permits WHERE id=?`, id)
	return scanPermit(row.Scan)
}

type PermitFilters struct {
	Status          string
	CreatedBy       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListPermits(ctx context.Context, f PermitFilters) ([]domain.Permit, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CreatedBy != "" {
		clauses = append(clauses, "created_by=?")
		args = append(args, f.CreatedBy)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + permitCols + ` FROM permits ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ListActivePermitsPastEnd returns active permits whose planned end has passed.
func (r Repo) ListActivePermitsPastEnd(ctx context.Context, now string) ([]domain.Permit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+permitCols+` FROM permits WHERE status='active' AND planned_end < ?`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Permit
	for rows.Next() {
		p, err := scanPermit(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdatePermitStatus moves a permit out of fromStatus. The guarded WHERE
// clause makes the first writer win; callers treat zero affected rows as a
// concurrent-transition conflict.
func (r Repo) UpdatePermitStatus(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET status=?, updated_at=? WHERE id=? AND status=?`,
		toStatus, updatedAt, id, fromStatus)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BindVerifier records the verification outcome; fails if another verifier
// is already bound.
func (r Repo) BindVerifier(ctx context.Context, tx *sql.Tx, id, fromStatus, toStatus, verifierID, verifiedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET status=?, verified_by=?, verified_at=?, updated_at=? WHERE id=? AND status=? AND verified_by IS NULL`,
		toStatus, verifierID, verifiedAt, verifiedAt, id, fromStatus)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// BindApprover records the approval outcome; fails if another approver is
// already bound.
func (r Repo) BindApprover(ctx context.Context, tx *sql.Tx, id, toStatus, approverID, approvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET status=?, approved_by=?, approved_at=?, updated_at=? WHERE id=? AND status='pending_approval' AND approved_by IS NULL`,
		toStatus, approverID, approvedAt, approvedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) BindRejector(ctx context.Context, tx *sql.Tx, id, fromStatus, rejectorID, rejectedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET status='rejected', rejected_by=?, updated_at=? WHERE id=? AND status=?`,
		rejectorID, rejectedAt, id, fromStatus)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetPermitActualStart(ctx context.Context, tx *sql.Tx, id, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE permits SET actual_start=? WHERE id=?`, ts, id)
	return err
}

func (r Repo) SetPermitActualEnd(ctx context.Context, tx *sql.Tx, id, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE permits SET actual_end=? WHERE id=?`, ts, id)
	return err
}

func (r Repo) ExtendPermitPlannedEnd(ctx context.Context, tx *sql.Tx, id, newEnd, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE permits SET planned_end=?, updated_at=? WHERE id=? AND status='active'`, newEnd, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextPermitNumber allocates a sequential permit number for the given year,
// e.g. PTW-2026-0007.
func (r Repo) NextPermitNumber(ctx context.Context, tx *sql.Tx, prefix string, year int) (string, error) {
	like := fmt.Sprintf("%s-%d-%%", prefix, year)
	var maxSeq sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(CAST(substr(permit_number, length(?)+1) AS INTEGER)) FROM permits WHERE permit_number LIKE ?`,
		fmt.Sprintf("%s-%d-", prefix, year), like).Scan(&maxSeq)
	if err != nil {
		return "", err
	}
	next := int64(1)
	if maxSeq.Valid {
		next = maxSeq.Int64 + 1
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, next), nil
}

// --- workers ---

func (r Repo) AddPermitWorkers(ctx context.Context, tx *sql.Tx, permitID string, userIDs []string) error {
	for _, id := range userIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permit_workers(permit_id, user_id) VALUES (?,?)`, permitID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListPermitWorkers(ctx context.Context, permitID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM permit_workers WHERE permit_id=? ORDER BY user_id`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r Repo) IsPermitWorker(ctx context.Context, permitID, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM permit_workers WHERE permit_id=? AND user_id=? LIMIT 1`, permitID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// --- audit trail ---

// AppendAudit writes one immutable audit row. There is deliberately no
// update or delete counterpart.
func (r Repo) AppendAudit(ctx context.Context, tx *sql.Tx, e domain.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_audit(permit_id,action,actor_id,ts,comments) VALUES (?,?,?,?,?)`,
		e.PermitID, e.Action, e.ActorID, e.TS, nullable(e.Comments))
	return err
}

func (r Repo) ListAudit(ctx context.Context, permitID string) ([]domain.AuditEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,permit_id,action,actor_id,ts,comments FROM permit_audit WHERE permit_id=? ORDER BY id ASC`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var comments sql.NullString
		if err := rows.Scan(&e.ID, &e.PermitID, &e.Action, &e.ActorID, &e.TS, &comments); err != nil {
			return nil, err
		}
		if comments.Valid {
			e.Comments = comments.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- extensions ---

func (r Repo) InsertExtension(ctx context.Context, tx *sql.Tx, ext domain.Extension) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO permit_extensions(permit_id,old_end,new_end,reason,requested_by,created_at) VALUES (?,?,?,?,?,?)`,
		ext.PermitID, ext.OldEnd, ext.NewEnd, ext.Reason, ext.RequestedBy, ext.CreatedAt)
	return err
}

func (r Repo) ListExtensions(ctx context.Context, permitID string) ([]domain.Extension, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,permit_id,old_end,new_end,reason,requested_by,created_at FROM permit_extensions WHERE permit_id=? ORDER BY id ASC`, permitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Extension
	for rows.Next() {
		var ext domain.Extension
		if err := rows.Scan(&ext.ID, &ext.PermitID, &ext.OldEnd, &ext.NewEnd, &ext.Reason, &ext.RequestedBy, &ext.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, ext)
	}
	return res, rows.Err()
}
