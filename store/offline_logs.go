package store

// OfflineLog is a queued, not-yet-delivered log payload.
type OfflineLog struct {
	ID        int64  `json:"id"`
	Payload   []byte `json:"payload"`
	Retries   int    `json:"retries"`
	CreatedAt string `json:"created_at"`
}

func (db *DB) EnqueueOfflineLog(payload []byte) (int64, error) {
	res, err := db.Exec(`INSERT INTO offline_logs (payload) VALUES (?)`, payload)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListOfflineLogs returns pending payloads in FIFO order.
func (db *DB) ListOfflineLogs(limit int) ([]OfflineLog, error) {
	rows, err := db.Query(`SELECT id, payload, retries, created_at FROM offline_logs ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []OfflineLog
	for rows.Next() {
		var l OfflineLog
		if err := rows.Scan(&l.ID, &l.Payload, &l.Retries, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// DeleteOfflineLog removes a payload after confirmed delivery.
func (db *DB) DeleteOfflineLog(id int64) error {
	_, err := db.Exec(`DELETE FROM offline_logs WHERE id = ?`, id)
	return err
}

func (db *DB) IncrementOfflineLogRetries(id int64) error {
	_, err := db.Exec(`UPDATE offline_logs SET retries = retries + 1 WHERE id = ?`, id)
	return err
}

func (db *DB) CountOfflineLogs() (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM offline_logs`).Scan(&n)
	return n, err
}
