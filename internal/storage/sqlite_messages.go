package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

type sqliteMessageRepo struct {
	db dbtx
}

const messageColumns = `id, sender_id, receiver_id, project_id, content, file_data, file_type, file_name,
	delivered, read, delivered_at, read_at, created_at`

func scanMessage(scan func(dest ...any) error) (*models.Message, error) {
	m := &models.Message{}
	var (
		receiverID, projectID, fileType, fileName sql.NullString
		fileData                                  []byte
		deliveredAt, readAt                       sql.NullInt64
		createdAt                                 int64
	)
	err := scan(
		&m.ID, &m.SenderID, &receiverID, &projectID, &m.Content, &fileData, &fileType, &fileName,
		&m.Delivered, &m.Read, &deliveredAt, &readAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	m.ReceiverID = receiverID.String
	m.ProjectID = projectID.String
	if len(fileData) > 0 {
		m.File = &models.Attachment{
			Data:        fileData,
			ContentType: fileType.String,
			Name:        fileName.String,
		}
	}
	m.DeliveredAt = fromNullNanos(deliveredAt)
	m.ReadAt = fromNullNanos(readAt)
	m.CreatedAt = fromNanos(createdAt)
	return m, nil
}

func (r *sqliteMessageRepo) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *sqliteMessageRepo) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, project_id, content, file_data, file_type, file_name,
			delivered, read, delivered_at, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var fileData []byte
	var fileType, fileName sql.NullString
	if m.File != nil {
		fileData = m.File.Data
		fileType = nullString(m.File.ContentType)
		fileName = nullString(m.File.Name)
	}
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.SenderID, nullString(m.ReceiverID), nullString(m.ProjectID), m.Content,
		fileData, fileType, fileName,
		boolToInt(m.Delivered), boolToInt(m.Read), nullNanos(m.DeliveredAt), nullNanos(m.ReadAt),
		toNanos(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *sqliteMessageRepo) GetByID(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message by id: %w", err)
	}
	return m, nil
}

// Ties on created_at fall back to insertion order.

func (r *sqliteMessageRepo) ListByProject(ctx context.Context, projectID string) ([]*models.Message, error) {
	messages, err := r.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE project_id = ? ORDER BY created_at ASC, rowid ASC`,
		projectID)
	if err != nil {
		return nil, fmt.Errorf("list project messages: %w", err)
	}
	return messages, nil
}

func (r *sqliteMessageRepo) ListByUser(ctx context.Context, userID string) ([]*models.Message, error) {
	messages, err := r.queryMessages(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE sender_id = ? OR receiver_id = ? ORDER BY created_at DESC, rowid DESC`,
		userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user messages: %w", err)
	}
	return messages, nil
}

func (r *sqliteMessageRepo) ListBetween(ctx context.Context, userA, userB string) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, rowid ASC
	`
	messages, err := r.queryMessages(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return messages, nil
}

// setFlag only ever sets the flag; the first timestamp is kept.
func (r *sqliteMessageRepo) setFlag(ctx context.Context, flag, stamp, id string, at time.Time) (bool, error) {
	query := `UPDATE messages SET ` + flag + ` = 1, ` + stamp + ` = COALESCE(` + stamp + `, ?) WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, toNanos(at), id)
	if err != nil {
		return false, fmt.Errorf("mark message %s: %w", flag, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark message %s: %w", flag, err)
	}
	return rows > 0, nil
}

func (r *sqliteMessageRepo) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setFlag(ctx, "read", "read_at", id, at)
}

func (r *sqliteMessageRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.setFlag(ctx, "delivered", "delivered_at", id, at)
}

func (r *sqliteMessageRepo) UnreadCounts(ctx context.Context, receiverID string) ([]*models.UnreadCount, error) {
	query := `
		SELECT sender_id, COUNT(*)
		FROM messages
		WHERE receiver_id = ? AND read = 0
		GROUP BY sender_id
		ORDER BY sender_id
	`
	rows, err := r.db.QueryContext(ctx, query, receiverID)
	if err != nil {
		return nil, fmt.Errorf("count unread messages: %w", err)
	}
	defer rows.Close()

	var counts []*models.UnreadCount
	for rows.Next() {
		c := &models.UnreadCount{}
		if err := rows.Scan(&c.SenderID, &c.Count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (r *sqliteMessageRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete message: %w", err)
	}
	return rows > 0, nil
}

func (r *sqliteMessageRepo) DeleteConversation(ctx context.Context, userA, userB string) (int64, error) {
	query := `
		DELETE FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
	`
	result, err := r.db.ExecContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete conversation: %w", err)
	}
	return rows, nil
}
