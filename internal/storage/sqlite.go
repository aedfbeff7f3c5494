package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	// Pure Go SQLite driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	log  *zap.Logger
	db   *sql.DB

	repos *repos
}

// repos binds every repository to one connection or transaction.
type repos struct {
	users          *sqliteUserRepo
	projects       *sqliteProjectRepo
	collaborations *sqliteCollaborationRepo
	messages       *sqliteMessageRepo
	notifications  *sqliteNotificationRepo
	outbox         *sqliteOutboxRepo
}

func newRepos(db dbtx) *repos {
	return &repos{
		users:          &sqliteUserRepo{db: db},
		projects:       &sqliteProjectRepo{db: db},
		collaborations: &sqliteCollaborationRepo{db: db},
		messages:       &sqliteMessageRepo{db: db},
		notifications:  &sqliteNotificationRepo{db: db},
		outbox:         &sqliteOutboxRepo{db: db},
	}
}

func (r *repos) Users() UserRepository                   { return r.users }
func (r *repos) Projects() ProjectRepository             { return r.projects }
func (r *repos) Collaborations() CollaborationRepository { return r.collaborations }
func (r *repos) Messages() MessageRepository             { return r.messages }
func (r *repos) Notifications() NotificationRepository   { return r.notifications }
func (r *repos) Outbox() OutboxRepository                { return r.outbox }

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string, log *zap.Logger) *SQLiteStorage {
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLiteStorage{
		path: path,
		log:  log.Named("storage"),
	}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	dsn := "file:" + s.path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// SQLite is single-writer. Callers inside InTx must only use the tx repositories.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	s.db = db
	s.repos = newRepos(db)

	s.log.Debug("database opened", zap.String("path", s.path))
	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db, s.log)
}

// InTx runs fn inside one transaction.
func (s *SQLiteStorage) InTx(ctx context.Context, fn func(tx Repositories) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errs.Combine(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// EnsureAdminUser creates a default admin if no users exist and returns it.
// Returns nil when users are already present.
func (s *SQLiteStorage) EnsureAdminUser(ctx context.Context) (*models.User, error) {
	count, err := s.Users().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil, nil
	}

	admin := models.NewUser("admin", "admin@localhost", models.RoleAdmin)
	admin.ID = uuid.New().String()

	if err := s.Users().Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin user: %w", err)
	}

	s.log.Info("default admin user created",
		zap.String("id", admin.ID),
		zap.String("username", admin.Username))
	return admin, nil
}

// Users returns the user repository.
func (s *SQLiteStorage) Users() UserRepository {
	return s.repos.Users()
}

// Projects returns the project repository.
func (s *SQLiteStorage) Projects() ProjectRepository {
	return s.repos.Projects()
}

// Collaborations returns the collaboration repository.
func (s *SQLiteStorage) Collaborations() CollaborationRepository {
	return s.repos.Collaborations()
}

// Messages returns the message repository.
func (s *SQLiteStorage) Messages() MessageRepository {
	return s.repos.Messages()
}

// Notifications returns the notification repository.
func (s *SQLiteStorage) Notifications() NotificationRepository {
	return s.repos.Notifications()
}

// Outbox returns the outbox repository.
func (s *SQLiteStorage) Outbox() OutboxRepository {
	return s.repos.Outbox()
}

// Timestamps are stored as UTC unix nanoseconds so ordering is numeric.
func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation matches the driver's constraint error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
