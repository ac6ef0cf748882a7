package repo

import (
	"context"
	"database/sql"

	"machinepulse/internal/domain"
)

func (r Repo) InsertAlert(ctx context.Context, tx *sql.Tx, a domain.Alert) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO alerts(id,machine_id,message,level,resolved,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.MachineID, a.Message, a.Level, boolToInt(a.Resolved), a.CreatedAt)
	return err
}

// ListAlerts returns alerts filtered by an optional inclusive created_at
// range, most recent first. Consumers rely on this ordering contract.
func (r Repo) ListAlerts(ctx context.Context, start, end string) ([]domain.Alert, error) {
	query := `SELECT id,machine_id,message,level,resolved,created_at FROM alerts`
	where, args := timeRange(start, end)
	query += where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var resolved int
		if err := rows.Scan(&a.ID, &a.MachineID, &a.Message, &a.Level, &resolved, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Resolved = resolved != 0
		res = append(res, a)
	}
	return res, rows.Err()
}

// ResolveAlert flips the resolved flag. No core command calls this yet; it is
// the extension point for a future resolution surface.
func (r Repo) ResolveAlert(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE alerts SET resolved=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestEvents returns the newest audit events, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var clauses []string
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
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
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
