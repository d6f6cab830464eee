package repository

import (
	"context"
	"database/sql"
	"errors"
)

// ShipmentCacheRepo keeps the last fetched shipment list for offline display.
type ShipmentCacheRepo struct {
	db *sql.DB
}

func NewShipmentCacheRepo(db *sql.DB) *ShipmentCacheRepo { return &ShipmentCacheRepo{db: db} }

// ReplaceAll swaps the cached set for rows in a single transaction.
func (r *ShipmentCacheRepo) ReplaceAll(ctx context.Context, rows []CachedShipment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM shipment_cache`); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, c := range rows {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO shipment_cache(id, status, payload, fetched_at) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload, fetched_at=excluded.fetched_at;
		`, c.ID, c.Status, string(c.Payload), c.FetchedAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Upsert stores or refreshes one cached shipment.
func (r *ShipmentCacheRepo) Upsert(ctx context.Context, c CachedShipment) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO shipment_cache(id, status, payload, fetched_at) VALUES(?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET status=excluded.status, payload=excluded.payload, fetched_at=excluded.fetched_at;
	`, c.ID, c.Status, string(c.Payload), c.FetchedAt)
	return err
}

func (r *ShipmentCacheRepo) Get(ctx context.Context, id string) (*CachedShipment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, status, payload, fetched_at FROM shipment_cache WHERE id = ?`, id)
	c, err := scanCached(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List returns cached shipments, optionally restricted to one status.
func (r *ShipmentCacheRepo) List(ctx context.Context, status string) ([]CachedShipment, error) {
	query := `SELECT id, status, payload, fetched_at FROM shipment_cache`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY rowid`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CachedShipment
	for rows.Next() {
		c, err := scanCached(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCached(s scanner) (CachedShipment, error) {
	var c CachedShipment
	var payload string
	if err := s.Scan(&c.ID, &c.Status, &payload, &c.FetchedAt); err != nil {
		return CachedShipment{}, err
	}
	c.Payload = []byte(payload)
	return c, nil
}
