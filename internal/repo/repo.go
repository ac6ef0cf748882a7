package repo

import (
	"context"
	"database/sql"
	"errors"

	"machinepulse/internal/domain"
)

// Repo is the entity store adapter. It is the sole owner of persisted state;
// engines work on the snapshots it returns and never retain them across calls.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertMachine(ctx context.Context, tx *sql.Tx, m domain.Machine) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO machines(id,name,line,status,last_heartbeat,created_at) VALUES (?,?,?,?,?,?)`,
		m.ID, m.Name, m.Line, m.Status, m.LastHeartbeat, m.CreatedAt)
	return err
}

func (r Repo) GetMachine(ctx context.Context, id string) (domain.Machine, error) {
	var m domain.Machine
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,line,status,last_heartbeat,created_at FROM machines WHERE id=?`, id).
		Scan(&m.ID, &m.Name, &m.Line, &m.Status, &m.LastHeartbeat, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) ListMachines(ctx context.Context) ([]domain.Machine, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,line,status,last_heartbeat,created_at FROM machines ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Machine
	for rows.Next() {
		var m domain.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Line, &m.Status, &m.LastHeartbeat, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpdateMachineStatus sets status and heartbeat in one atomic write; this is
// the serialization point for concurrent status commands on the same machine.
func (r Repo) UpdateMachineStatus(ctx context.Context, tx *sql.Tx, id, status, heartbeat string) error {
	res, err := tx.ExecContext(ctx, `UPDATE machines SET status=?, last_heartbeat=? WHERE id=?`, status, heartbeat, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOperator keeps the operator's display name current without failing
// repeat ingestion from the same operator.
func (r Repo) UpsertOperator(ctx context.Context, tx *sql.Tx, op domain.Operator) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO operators(id,name,created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name`, op.ID, op.Name, op.CreatedAt)
	return err
}

func (r Repo) GetOperator(ctx context.Context, id string) (domain.Operator, error) {
	var op domain.Operator
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM operators WHERE id=?`, id).
		Scan(&op.ID, &op.Name, &op.CreatedAt)
	if err == sql.ErrNoRows {
		return op, ErrNotFound
	}
	return op, err
}
