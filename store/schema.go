package store

const schema = `
CREATE TABLE IF NOT EXISTS admin_users (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS snapshots (
    order_no   TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS draft_index (
    order_no   TEXT PRIMARY KEY,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS photos (
    id         TEXT PRIMARY KEY,
    order_no   TEXT NOT NULL,
    item_index INTEGER NOT NULL,
    blob       BLOB NOT NULL,
    mime       TEXT NOT NULL DEFAULT 'image/jpeg',
    timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_photos_order ON photos(order_no);
CREATE INDEX IF NOT EXISTS idx_photos_order_item ON photos(order_no, item_index);

CREATE TABLE IF NOT EXISTS offline_logs (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    payload    BLOB NOT NULL,
    retries    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
`

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}
