package store

import (
	"database/sql"
	"errors"
)

// PhotoRecord is a full-resolution photo blob keyed by photo id.
type PhotoRecord struct {
	ID        string `json:"id"`
	OrderNo   string `json:"orderNo"`
	ItemIndex int    `json:"itemIndex"`
	Blob      []byte `json:"-"`
	Mime      string `json:"mime"`
	Timestamp int64  `json:"timestamp"`
}

// PhotoStats summarizes the blob store plus device-wide storage figures.
// Usage and Quota degrade to zero when unavailable.
type PhotoStats struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
	Usage int64 `json:"usage"`
	Quota int64 `json:"quota"`
}

// SavePhoto stores a photo blob record, replacing any record with the same id.
func (db *DB) SavePhoto(rec PhotoRecord) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO photos (id, order_no, item_index, blob, mime, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.OrderNo, rec.ItemIndex, rec.Blob, rec.Mime, rec.Timestamp)
	return err
}

// GetPhoto returns a photo record by id, or nil if absent.
func (db *DB) GetPhoto(id string) (*PhotoRecord, error) {
	var rec PhotoRecord
	err := db.QueryRow(`SELECT id, order_no, item_index, blob, mime, timestamp FROM photos WHERE id = ?`, id).
		Scan(&rec.ID, &rec.OrderNo, &rec.ItemIndex, &rec.Blob, &rec.Mime, &rec.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// DeletePhoto removes a photo record by id.
func (db *DB) DeletePhoto(id string) error {
	_, err := db.Exec(`DELETE FROM photos WHERE id = ?`, id)
	return err
}

// DeletePhotosByOrder bulk-deletes all photo records for an order and
// returns how many were removed.
func (db *DB) DeletePhotosByOrder(orderNo string) (int64, error) {
	res, err := db.Exec(`DELETE FROM photos WHERE order_no = ?`, orderNo)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountPhotosByOrder returns the number of photo records for an order.
func (db *DB) CountPhotosByOrder(orderNo string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM photos WHERE order_no = ?`, orderNo).Scan(&n)
	return n, err
}

// Stats returns blob store totals. Usage reports the database file size;
// quota comes from the caller's configured budget.
func (db *DB) Stats(quota int64) (PhotoStats, error) {
	var st PhotoStats
	err := db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(blob)), 0) FROM photos`).
		Scan(&st.Count, &st.Bytes)
	if err != nil {
		return PhotoStats{}, err
	}
	st.Usage = db.FileSize()
	st.Quota = quota
	return st, nil
}
