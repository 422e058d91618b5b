package sqlite

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

var migrations = []migration{
	{1, "create_records_table", createRecordsTable},
	{2, "create_record_fields_table", createRecordFieldsTable},
	{3, "create_media_table", createMediaTable},
	{4, "create_sync_outcomes_table", createSyncOutcomesTable},
	{5, "create_indices", createIndices},
}

// applyMigrations applies all database migrations in order.
func applyMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return err
	}

	for _, m := range migrations {
		applied, err := isMigrationApplied(db, m.version)
		if err != nil {
			return fmt.Errorf("could not check migration %d: %w", m.version, err)
		}
		if applied {
			continue
		}

		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("could not apply migration %d (%s): %w", m.version, m.name, err)
		}
		if err := recordMigration(db, m.version, m.name); err != nil {
			return fmt.Errorf("could not record migration %d: %w", m.version, err)
		}
	}

	return nil
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func isMigrationApplied(db *sql.DB, version int) (bool, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *sql.DB, version int, name string) error {
	_, err := db.Exec("INSERT INTO migrations (version, name) VALUES (?, ?)", version, name)
	return err
}

const createRecordsTable = `
CREATE TABLE records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	entity TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const createRecordFieldsTable = `
CREATE TABLE record_fields (
	record_id TEXT NOT NULL,
	key TEXT NOT NULL,
	tag TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (record_id, key),
	FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
);
`

const createMediaTable = `
CREATE TABLE media (
	id TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	data BLOB NOT NULL,
	alt_text TEXT,
	is_primary BOOLEAN DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
);
`

const createSyncOutcomesTable = `
CREATE TABLE sync_outcomes (
	key TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

const createIndices = `
CREATE INDEX IF NOT EXISTS idx_records_entity ON records(entity);
CREATE INDEX IF NOT EXISTS idx_record_fields_lookup ON record_fields(key, tag, value);
CREATE INDEX IF NOT EXISTS idx_media_record ON media(record_id);
CREATE INDEX IF NOT EXISTS idx_sync_outcomes_status ON sync_outcomes(status);
`
