package repo

import (
	"context"
	"database/sql"
	"strings"

	"machinepulse/internal/domain"
)

func (r Repo) InsertProduction(ctx context.Context, tx *sql.Tx, rec domain.ProductionRecord) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO production_records(id,machine_id,operator_id,quantity,defects,start_time,end_time,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.MachineID, rec.OperatorID, rec.Quantity, rec.Defects, rec.StartTime, rec.EndTime, rec.CreatedAt)
	return err
}

// ListProduction returns records filtered by an optional inclusive created_at
// range, most recent first. Empty bounds are open.
func (r Repo) ListProduction(ctx context.Context, start, end string) ([]domain.ProductionRecord, error) {
	query := `SELECT id,machine_id,operator_id,quantity,defects,start_time,end_time,created_at FROM production_records`
	where, args := timeRange(start, end)
	query += where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProductionRecord
	for rows.Next() {
		var rec domain.ProductionRecord
		if err := rows.Scan(&rec.ID, &rec.MachineID, &rec.OperatorID, &rec.Quantity, &rec.Defects, &rec.StartTime, &rec.EndTime, &rec.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListProductionViews joins machine and operator references, most recent first.
func (r Repo) ListProductionViews(ctx context.Context) ([]domain.ProductionView, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT p.id, p.quantity, p.defects, p.start_time, p.end_time, p.created_at,
m.id, m.name, m.line, o.id, o.name
FROM production_records p
JOIN machines m ON m.id = p.machine_id
JOIN operators o ON o.id = p.operator_id
ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProductionView
	for rows.Next() {
		var v domain.ProductionView
		if err := rows.Scan(&v.ID, &v.Quantity, &v.Defects, &v.StartTime, &v.EndTime, &v.CreatedAt,
			&v.Machine.ID, &v.Machine.Name, &v.Machine.Line, &v.Operator.ID, &v.Operator.Name); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

func timeRange(start, end string) (string, []any) {
	var clauses []string
	var args []any
	if start != "" {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, start)
	}
	if end != "" {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, end)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
