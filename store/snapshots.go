package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// DraftEntry is one row of the draft index.
type DraftEntry struct {
	OrderNo   string `json:"orderNo"`
	UpdatedAt int64  `json:"updatedAt"`
}

// SaveSnapshot upserts a snapshot document and its draft-index entry in one
// transaction, so the index never references a missing snapshot.
func (db *DB) SaveSnapshot(orderNo string, body []byte, createdAt, updatedAt int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO snapshots (order_no, body, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(order_no) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		orderNo, string(body), createdAt, updatedAt); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO draft_index (order_no, updated_at) VALUES (?, ?)
		ON CONFLICT(order_no) DO UPDATE SET updated_at = excluded.updated_at`,
		orderNo, updatedAt); err != nil {
		return fmt.Errorf("save draft index: %w", err)
	}
	return tx.Commit()
}

// GetSnapshot returns the raw snapshot body for an order, or nil if absent.
func (db *DB) GetSnapshot(orderNo string) ([]byte, error) {
	var body string
	err := db.QueryRow(`SELECT body FROM snapshots WHERE order_no = ?`, orderNo).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

// DeleteSnapshot removes a snapshot and its draft-index entry.
func (db *DB) DeleteSnapshot(orderNo string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM snapshots WHERE order_no = ?`, orderNo); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM draft_index WHERE order_no = ?`, orderNo); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDrafts returns draft-index entries, most recently updated first.
func (db *DB) ListDrafts() ([]DraftEntry, error) {
	rows, err := db.Query(`SELECT order_no, updated_at FROM draft_index ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drafts []DraftEntry
	for rows.Next() {
		var d DraftEntry
		if err := rows.Scan(&d.OrderNo, &d.UpdatedAt); err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}
