package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// ActivityFilters defines list filters.
type ActivityFilters struct {
	ShipmentID string
	Action     string
	Since      time.Time // zero time = no lower bound
	Limit      int
}

// ActivityRepo handles the activity journal.
type ActivityRepo struct {
	db *sql.DB
}

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Insert(ctx context.Context, a Activity) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO activity(id, shipment_id, action, ok, message, created_at)
	VALUES(?, ?, ?, ?, ?, ?);
	`, a.ID, a.ShipmentID, a.Action, a.OK, a.Message, a.CreatedAt)
	return err
}

func (r *ActivityRepo) List(ctx context.Context, f ActivityFilters) ([]Activity, error) {
	var where []string
	var args []interface{}

	if f.ShipmentID != "" {
		where = append(where, "shipment_id = ?")
		args = append(args, f.ShipmentID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since)
	}

	query := "SELECT id, shipment_id, action, ok, message, created_at FROM activity"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.ShipmentID, &a.Action, &a.OK, &a.Message, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Prune deletes journal rows older than cutoff and returns how many went.
func (r *ActivityRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM activity WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
