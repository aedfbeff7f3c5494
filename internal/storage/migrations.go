package storage

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				email TEXT UNIQUE NOT NULL,
				role TEXT NOT NULL DEFAULT 'researcher',
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				description TEXT,
				owner_id TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE CASCADE
			);

			-- Collaborator set; the owner is implied by projects.owner_id
			CREATE TABLE IF NOT EXISTS project_users (
				project_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				joined_at INTEGER NOT NULL,
				PRIMARY KEY (project_id, user_id),
				FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE,
				FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			);

			CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id);
			CREATE INDEX IF NOT EXISTS idx_project_users_user ON project_users(user_id);
		`,
	},
	{
		Version: 2,
		Name:    "collaborations",
		Up: `
			CREATE TABLE IF NOT EXISTS collaborations (
				id TEXT PRIMARY KEY,
				sender_id TEXT NOT NULL,
				receiver_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				type TEXT NOT NULL CHECK (type IN ('invite', 'application')),
				status TEXT NOT NULL DEFAULT 'Pending' CHECK (status IN ('Pending', 'Accepted', 'Declined')),
				message TEXT,
				responded_at INTEGER,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_collaborations_receiver ON collaborations(receiver_id, type);
			CREATE INDEX IF NOT EXISTS idx_collaborations_sender ON collaborations(sender_id, type);
			CREATE INDEX IF NOT EXISTS idx_collaborations_project ON collaborations(project_id);

			-- At most one open request per pair, project and direction
			CREATE UNIQUE INDEX IF NOT EXISTS idx_collaborations_pending
				ON collaborations(sender_id, receiver_id, project_id, type)
				WHERE status = 'Pending';
		`,
	},
	{
		Version: 3,
		Name:    "messages",
		Up: `
			CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				sender_id TEXT NOT NULL,
				receiver_id TEXT,
				project_id TEXT,
				content TEXT NOT NULL DEFAULT '',
				file_data BLOB,
				file_type TEXT,
				file_name TEXT,
				delivered INTEGER NOT NULL DEFAULT 0,
				read INTEGER NOT NULL DEFAULT 0,
				delivered_at INTEGER,
				read_at INTEGER,
				created_at INTEGER NOT NULL,
				CHECK (receiver_id IS NOT NULL OR project_id IS NOT NULL)
			);

			CREATE INDEX IF NOT EXISTS idx_messages_project ON messages(project_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, created_at);
			CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, read);
		`,
	},
	{
		Version: 4,
		Name:    "notifications_and_outbox",
		Up: `
			CREATE TABLE IF NOT EXISTS notifications (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				message TEXT NOT NULL,
				type TEXT NOT NULL,
				read INTEGER NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);

			CREATE TABLE IF NOT EXISTS outbox_events (
				id TEXT PRIMARY KEY,
				event_type TEXT NOT NULL,
				aggregate_id TEXT NOT NULL,
				payload_json BLOB NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				attempt_count INTEGER NOT NULL DEFAULT 0,
				next_attempt_at INTEGER NOT NULL,
				lease_expires_at INTEGER,
				last_error TEXT,
				processed_at INTEGER,
				created_at INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_outbox_due ON outbox_events(status, next_attempt_at);
		`,
	},
	{
		Version: 5,
		Name:    "project_delete_clears_collaborations",
		Up: `
			CREATE TRIGGER IF NOT EXISTS trg_projects_delete_collaborations
			AFTER DELETE ON projects
			BEGIN
				DELETE FROM collaborations WHERE project_id = OLD.id;
			END;
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB, log *zap.Logger) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, toNanos(time.Now()),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		log.Info("migration applied", zap.Int("version", m.Version), zap.String("name", m.Name))
	}

	return nil
}
