package repo

import (
	"context"
	"database/sql"

	"safeline/internal/domain"
)

const processCols = `id,eight_d_id,incident_id,problem_statement,champion_id,current_discipline,status,overall_progress,target_completion_date,created_at,updated_at,completed_at`

func (r Repo) InsertProcess(ctx context.Context, tx *sql.Tx, p domain.Process) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_processes(`+processCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.EightDID, p.IncidentID, p.ProblemStatement, p.ChampionID, p.CurrentDiscipline, p.Status,
		p.OverallProgress, nullable(p.TargetCompletionDate), p.CreatedAt, p.UpdatedAt, nullableStringPtr(p.CompletedAt))
	return err
}

func scanProcess(scan func(...any) error) (domain.Process, error) {
	var p domain.Process
	var target, completed sql.NullString
	err := scan(&p.ID, &p.EightDID, &p.IncidentID, &p.ProblemStatement, &p.ChampionID, &p.CurrentDiscipline,
		&p.Status, &p.OverallProgress, &target, &p.CreatedAt, &p.UpdatedAt, &completed)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if target.Valid {
		p.TargetCompletionDate = target.String
	}
	if completed.Valid {
		p.CompletedAt = &completed.String
	}
	return p, nil
}

func (r Repo) GetProcess(ctx context.Context, id string) (domain.Process, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+processCols+` FROM eightd_processes WHERE id=?`, id)
	return scanProcess(row.Scan)
}

func (r Repo) GetProcessTx(ctx context.Context, tx *sql.Tx, id string) (domain.Process, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+processCols+` FROM eightd_processes WHERE id=?`, id)
	return scanProcess(row.Scan)
}

func (r Repo) GetProcessByIncident(ctx context.Context, incidentID string) (domain.Process, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+processCols+` FROM eightd_processes WHERE incident_id=?`, incidentID)
	return scanProcess(row.Scan)
}

func (r Repo) ListProcesses(ctx context.Context, status string) ([]domain.Process, error) {
	query := `SELECT ` + processCols + ` FROM eightd_processes`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Process
	for rows.Next() {
		p, err := scanProcess(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProcess(ctx context.Context, tx *sql.Tx, p domain.Process) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_processes SET current_discipline=?, status=?, overall_progress=?, updated_at=?, completed_at=? WHERE id=?`,
		p.CurrentDiscipline, p.Status, p.OverallProgress, p.UpdatedAt, nullableStringPtr(p.CompletedAt), p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- team members ---

const memberCols = `id,process_id,user_id,role,expertise_area,responsibilities,is_active,is_recognized,recognized_date,recognition_notes,created_at`

func (r Repo) InsertTeamMember(ctx context.Context, tx *sql.Tx, m domain.TeamMember) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_team_members(`+memberCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.ProcessID, m.UserID, m.Role, nullable(m.ExpertiseArea), nullable(m.Responsibilities),
		boolToInt(m.IsActive), boolToInt(m.IsRecognized), nullableStringPtr(m.RecognizedDate), nullable(m.RecognitionNotes), m.CreatedAt)
	return err
}

func scanTeamMember(scan func(...any) error) (domain.TeamMember, error) {
	var m domain.TeamMember
	var expertise, responsibilities, recognizedDate, notes sql.NullString
	var active, recognized int
	err := scan(&m.ID, &m.ProcessID, &m.UserID, &m.Role, &expertise, &responsibilities, &active, &recognized, &recognizedDate, &notes, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.IsActive = active != 0
	m.IsRecognized = recognized != 0
	if expertise.Valid {
		m.ExpertiseArea = expertise.String
	}
	if responsibilities.Valid {
		m.Responsibilities = responsibilities.String
	}
	if recognizedDate.Valid {
		m.RecognizedDate = &recognizedDate.String
	}
	if notes.Valid {
		m.RecognitionNotes = notes.String
	}
	return m, nil
}

func (r Repo) GetTeamMember(ctx context.Context, id string) (domain.TeamMember, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+memberCols+` FROM eightd_team_members WHERE id=?`, id)
	return scanTeamMember(row.Scan)
}

func (r Repo) ListTeamMembers(ctx context.Context, processID string) ([]domain.TeamMember, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+memberCols+` FROM eightd_team_members WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TeamMember
	for rows.Next() {
		m, err := scanTeamMember(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) HasTeamMember(ctx context.Context, processID, userID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM eightd_team_members WHERE process_id=? AND user_id=? LIMIT 1`, processID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (r Repo) CountActiveTeamMembers(ctx context.Context, processID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_team_members WHERE process_id=? AND is_active=1`, processID).Scan(&n)
	return n, err
}

func (r Repo) CountUnrecognizedActiveMembers(ctx context.Context, processID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_team_members WHERE process_id=? AND is_active=1 AND is_recognized=0`, processID).Scan(&n)
	return n, err
}

func (r Repo) RecognizeTeamMember(ctx context.Context, tx *sql.Tx, memberID, notes, recognizedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_team_members SET is_recognized=1, recognized_date=?, recognition_notes=? WHERE id=?`,
		recognizedAt, nullable(notes), memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeactivateTeamMember(ctx context.Context, tx *sql.Tx, memberID string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_team_members SET is_active=0 WHERE id=?`, memberID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- problem description ---

func (r Repo) UpsertProblemDescription(ctx context.Context, tx *sql.Tx, d domain.ProblemDescription) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_problem_descriptions(process_id,what,where_detail,when_detail,who_detail,how_many,impact,updated_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(process_id) DO UPDATE SET what=excluded.what, where_detail=excluded.where_detail, when_detail=excluded.when_detail,
who_detail=excluded.who_detail, how_many=excluded.how_many, impact=excluded.impact, updated_by=excluded.updated_by, updated_at=excluded.updated_at`,
		d.ProcessID, d.What, nullable(d.Where), nullable(d.When), nullable(d.Who), nullable(d.HowMany), nullable(d.Impact),
		d.UpdatedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) GetProblemDescription(ctx context.Context, processID string) (domain.ProblemDescription, error) {
	var d domain.ProblemDescription
	var where, when, who, howMany, impact sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT process_id,what,where_detail,when_detail,who_detail,how_many,impact,updated_by,created_at,updated_at
FROM eightd_problem_descriptions WHERE process_id=?`, processID).
		Scan(&d.ProcessID, &d.What, &where, &when, &who, &howMany, &impact, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	if err != nil {
		return d, err
	}
	if where.Valid {
		d.Where = where.String
	}
	if when.Valid {
		d.When = when.String
	}
	if who.Valid {
		d.Who = who.String
	}
	if howMany.Valid {
		d.HowMany = howMany.String
	}
	if impact.Valid {
		d.Impact = impact.String
	}
	return d, nil
}

func (r Repo) HasProblemDescription(ctx context.Context, processID string) (bool, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT 1 FROM eightd_problem_descriptions WHERE process_id=? LIMIT 1`, processID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// --- containment actions ---

func (r Repo) InsertContainmentAction(ctx context.Context, tx *sql.Tx, a domain.ContainmentAction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_containment_actions(id,process_id,description,responsible_id,implemented_at,effectiveness,created_at) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.ProcessID, a.Description, a.ResponsibleID, nullableStringPtr(a.ImplementedAt), nullable(a.Effectiveness), a.CreatedAt)
	return err
}

func (r Repo) ListContainmentActions(ctx context.Context, processID string) ([]domain.ContainmentAction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,process_id,description,responsible_id,implemented_at,effectiveness,created_at
FROM eightd_containment_actions WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ContainmentAction
	for rows.Next() {
		var a domain.ContainmentAction
		var implemented, effectiveness sql.NullString
		if err := rows.Scan(&a.ID, &a.ProcessID, &a.Description, &a.ResponsibleID, &implemented, &effectiveness, &a.CreatedAt); err != nil {
			return nil, err
		}
		if implemented.Valid {
			a.ImplementedAt = &implemented.String
		}
		if effectiveness.Valid {
			a.Effectiveness = effectiveness.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountContainmentActions(ctx context.Context, processID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_containment_actions WHERE process_id=?`, processID).Scan(&n)
	return n, err
}

// --- root causes ---

const rootCauseCols = `id,process_id,description,category,analysis_method,is_verified,verified_by,verified_at,created_at`

func (r Repo) InsertRootCause(ctx context.Context, tx *sql.Tx, rc domain.RootCause) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_root_causes(`+rootCauseCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		rc.ID, rc.ProcessID, rc.Description, rc.Category, nullable(rc.AnalysisMethod), boolToInt(rc.IsVerified),
		nullableStringPtr(rc.VerifiedBy), nullableStringPtr(rc.VerifiedAt), rc.CreatedAt)
	return err
}

func scanRootCause(scan func(...any) error) (domain.RootCause, error) {
	var rc domain.RootCause
	var method, verifiedBy, verifiedAt sql.NullString
	var verified int
	err := scan(&rc.ID, &rc.ProcessID, &rc.Description, &rc.Category, &method, &verified, &verifiedBy, &verifiedAt, &rc.CreatedAt)
	if err == sql.ErrNoRows {
		return rc, ErrNotFound
	}
	if err != nil {
		return rc, err
	}
	rc.IsVerified = verified != 0
	if method.Valid {
		rc.AnalysisMethod = method.String
	}
	if verifiedBy.Valid {
		rc.VerifiedBy = &verifiedBy.String
	}
	if verifiedAt.Valid {
		rc.VerifiedAt = &verifiedAt.String
	}
	return rc, nil
}

func (r Repo) GetRootCause(ctx context.Context, id string) (domain.RootCause, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+rootCauseCols+` FROM eightd_root_causes WHERE id=?`, id)
	return scanRootCause(row.Scan)
}

func (r Repo) ListRootCauses(ctx context.Context, processID string) ([]domain.RootCause, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+rootCauseCols+` FROM eightd_root_causes WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RootCause
	for rows.Next() {
		rc, err := scanRootCause(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

func (r Repo) CountVerifiedRootCauses(ctx context.Context, processID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_root_causes WHERE process_id=? AND is_verified=1`, processID).Scan(&n)
	return n, err
}

func (r Repo) VerifyRootCause(ctx context.Context, tx *sql.Tx, id, verifiedBy, verifiedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_root_causes SET is_verified=1, verified_by=?, verified_at=? WHERE id=?`, verifiedBy, verifiedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- corrective actions ---

const correctiveCols = `id,process_id,root_cause_id,description,action_type,responsible_id,target_date,verification_method,status,implemented_at,created_at`

func (r Repo) InsertCorrectiveAction(ctx context.Context, tx *sql.Tx, a domain.CorrectiveAction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_corrective_actions(`+correctiveCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProcessID, a.RootCauseID, a.Description, a.ActionType, a.ResponsibleID, nullable(a.TargetDate),
		nullable(a.VerificationMethod), a.Status, nullableStringPtr(a.ImplementedAt), a.CreatedAt)
	return err
}

func scanCorrectiveAction(scan func(...any) error) (domain.CorrectiveAction, error) {
	var a domain.CorrectiveAction
	var target, method, implemented sql.NullString
	err := scan(&a.ID, &a.ProcessID, &a.RootCauseID, &a.Description, &a.ActionType, &a.ResponsibleID, &target, &method, &a.Status, &implemented, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if target.Valid {
		a.TargetDate = target.String
	}
	if method.Valid {
		a.VerificationMethod = method.String
	}
	if implemented.Valid {
		a.ImplementedAt = &implemented.String
	}
	return a, nil
}

func (r Repo) GetCorrectiveAction(ctx context.Context, id string) (domain.CorrectiveAction, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+correctiveCols+` FROM eightd_corrective_actions WHERE id=?`, id)
	return scanCorrectiveAction(row.Scan)
}

func (r Repo) ListCorrectiveActions(ctx context.Context, processID string) ([]domain.CorrectiveAction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+correctiveCols+` FROM eightd_corrective_actions WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CorrectiveAction
	for rows.Next() {
		a, err := scanCorrectiveAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountCorrectiveActions(ctx context.Context, processID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_corrective_actions WHERE process_id=?`, processID).Scan(&n)
	return n, err
}

func (r Repo) CountCorrectiveActionsByStatus(ctx context.Context, processID string, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]byte, 0, len(statuses)*2)
	args := []any{processID}
	for i, s := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, s)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_corrective_actions WHERE process_id=? AND status IN (`+string(placeholders)+`)`, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdateCorrectiveActionStatus(ctx context.Context, tx *sql.Tx, id, status string, implementedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_corrective_actions SET status=?, implemented_at=COALESCE(?, implemented_at) WHERE id=?`,
		status, nullableStringPtr(implementedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- implementation records ---

func (r Repo) InsertImplementationRecord(ctx context.Context, tx *sql.Tx, rec domain.ImplementationRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_implementation_records(id,process_id,corrective_action_id,summary,evidence_ref,recorded_by,created_at) VALUES (?,?,?,?,?,?,?)`,
		rec.ID, rec.ProcessID, rec.CorrectiveActionID, rec.Summary, nullable(rec.EvidenceRef), rec.RecordedBy, rec.CreatedAt)
	return err
}

func (r Repo) ListImplementationRecords(ctx context.Context, processID string) ([]domain.ImplementationRecord, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,process_id,corrective_action_id,summary,evidence_ref,recorded_by,created_at
FROM eightd_implementation_records WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ImplementationRecord
	for rows.Next() {
		var rec domain.ImplementationRecord
		var evidence sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ProcessID, &rec.CorrectiveActionID, &rec.Summary, &evidence, &rec.RecordedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if evidence.Valid {
			rec.EvidenceRef = evidence.String
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// --- prevention actions ---

const preventionCols = `id,process_id,description,action_type,responsible_id,target_date,rollout_scope,similar_processes,status,implemented_at,effectiveness_notes,verified_by,verified_at,created_at`

func (r Repo) InsertPreventionAction(ctx context.Context, tx *sql.Tx, a domain.PreventionAction) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO eightd_prevention_actions(`+preventionCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProcessID, a.Description, a.ActionType, a.ResponsibleID, nullable(a.TargetDate), nullable(a.RolloutScope),
		nullable(a.SimilarProcesses), a.Status, nullableStringPtr(a.ImplementedAt), nullable(a.EffectivenessNotes),
		nullableStringPtr(a.VerifiedBy), nullableStringPtr(a.VerifiedAt), a.CreatedAt)
	return err
}

func scanPreventionAction(scan func(...any) error) (domain.PreventionAction, error) {
	var a domain.PreventionAction
	var target, scope, similar, implemented, notes, verifiedBy, verifiedAt sql.NullString
	err := scan(&a.ID, &a.ProcessID, &a.Description, &a.ActionType, &a.ResponsibleID, &target, &scope, &similar,
		&a.Status, &implemented, &notes, &verifiedBy, &verifiedAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if target.Valid {
		a.TargetDate = target.String
	}
	if scope.Valid {
		a.RolloutScope = scope.String
	}
	if similar.Valid {
		a.SimilarProcesses = similar.String
	}
	if implemented.Valid {
		a.ImplementedAt = &implemented.String
	}
	if notes.Valid {
		a.EffectivenessNotes = notes.String
	}
	if verifiedBy.Valid {
		a.VerifiedBy = &verifiedBy.String
	}
	if verifiedAt.Valid {
		a.VerifiedAt = &verifiedAt.String
	}
	return a, nil
}

func (r Repo) GetPreventionAction(ctx context.Context, id string) (domain.PreventionAction, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+preventionCols+` FROM eightd_prevention_actions WHERE id=?`, id)
	return scanPreventionAction(row.Scan)
}

func (r Repo) ListPreventionActions(ctx context.Context, processID string) ([]domain.PreventionAction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+preventionCols+` FROM eightd_prevention_actions WHERE process_id=? ORDER BY created_at ASC, id ASC`, processID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PreventionAction
	for rows.Next() {
		a, err := scanPreventionAction(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountPreventionActionsByStatus(ctx context.Context, processID string, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]byte, 0, len(statuses)*2)
	args := []any{processID}
	for i, s := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, s)
	}
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM eightd_prevention_actions WHERE process_id=? AND status IN (`+string(placeholders)+`)`, args...).Scan(&n)
	return n, err
}

func (r Repo) UpdatePreventionActionStatus(ctx context.Context, tx *sql.Tx, id, status string, implementedAt *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_prevention_actions SET status=?, implemented_at=COALESCE(?, implemented_at) WHERE id=?`,
		status, nullableStringPtr(implementedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkPreventionActionEffectiveness(ctx context.Context, tx *sql.Tx, id, status, notes, verifiedBy, verifiedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE eightd_prevention_actions SET status=?, effectiveness_notes=?, verified_by=?, verified_at=? WHERE id=?`,
		status, notes, verifiedBy, verifiedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
