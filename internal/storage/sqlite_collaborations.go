package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

type sqliteCollaborationRepo struct {
	db dbtx
}

const collaborationColumns = `c.id, c.sender_id, c.receiver_id, c.project_id, c.type, c.status,
	c.message, c.responded_at, c.created_at, c.updated_at`

func scanCollaboration(scan func(dest ...any) error, extra ...any) (*models.Collaboration, error) {
	c := &models.Collaboration{}
	var message sql.NullString
	var respondedAt sql.NullInt64
	var createdAt, updatedAt int64

	dest := []any{
		&c.ID, &c.SenderID, &c.ReceiverID, &c.ProjectID, &c.Type, &c.Status,
		&message, &respondedAt, &createdAt, &updatedAt,
	}
	if err := scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	c.Message = message.String
	c.RespondedAt = fromNullNanos(respondedAt)
	c.CreatedAt = fromNanos(createdAt)
	c.UpdatedAt = fromNanos(updatedAt)
	return c, nil
}

func (r *sqliteCollaborationRepo) Create(ctx context.Context, c *models.Collaboration) error {
	query := `
		INSERT INTO collaborations (id, sender_id, receiver_id, project_id, type, status,
			message, responded_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.SenderID, c.ReceiverID, c.ProjectID, c.Type, c.Status,
		nullString(c.Message), nullNanos(c.RespondedAt), toNanos(c.CreatedAt), toNanos(c.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert collaboration: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert collaboration: %w", err)
	}
	return nil
}

func (r *sqliteCollaborationRepo) GetByID(ctx context.Context, id string) (*models.Collaboration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+collaborationColumns+` FROM collaborations c WHERE c.id = ?`, id)
	c, err := scanCollaboration(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get collaboration by id: %w", err)
	}
	return c, nil
}

// Update overwrites every mutable field.
func (r *sqliteCollaborationRepo) Update(ctx context.Context, c *models.Collaboration) error {
	query := `
		UPDATE collaborations
		SET sender_id = ?, receiver_id = ?, project_id = ?, type = ?, status = ?,
			message = ?, responded_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		c.SenderID, c.ReceiverID, c.ProjectID, c.Type, c.Status,
		nullString(c.Message), nullNanos(c.RespondedAt), toNanos(c.UpdatedAt),
		c.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("update collaboration: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("update collaboration: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("collaboration not found: %s", c.ID)
	}
	return nil
}

func (r *sqliteCollaborationRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM collaborations WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete collaboration: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete collaboration: %w", err)
	}
	return rows > 0, nil
}

func (r *sqliteCollaborationRepo) List(ctx context.Context) ([]*models.Collaboration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+collaborationColumns+` FROM collaborations c ORDER BY c.created_at DESC, c.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list collaborations: %w", err)
	}
	defer rows.Close()

	var list []*models.Collaboration
	for rows.Next() {
		c, err := scanCollaboration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan collaboration: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// detailQuery expands collaborations with project and sender summaries.
// Joins are LEFT so dangling references still list.
const detailQuery = `
	SELECT ` + collaborationColumns + `,
		COALESCE(p.name, ''), COALESCE(u.username, ''), COALESCE(u.email, '')
	FROM collaborations c
	LEFT JOIN projects p ON p.id = c.project_id
	LEFT JOIN users u ON u.id = c.sender_id
`

func (r *sqliteCollaborationRepo) listDetails(ctx context.Context, where string, args ...any) ([]*models.CollaborationDetail, error) {
	rows, err := r.db.QueryContext(ctx, detailQuery+" WHERE "+where+" ORDER BY c.created_at DESC, c.rowid DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.CollaborationDetail
	for rows.Next() {
		d := &models.CollaborationDetail{}
		c, err := scanCollaboration(rows.Scan, &d.ProjectName, &d.SenderUsername, &d.SenderEmail)
		if err != nil {
			return nil, fmt.Errorf("scan collaboration detail: %w", err)
		}
		d.Collaboration = *c
		list = append(list, d)
	}
	return list, rows.Err()
}

func (r *sqliteCollaborationRepo) ListInvitesForReceiver(ctx context.Context, userID string) ([]*models.CollaborationDetail, error) {
	list, err := r.listDetails(ctx, "c.receiver_id = ? AND c.type = ?", userID, models.CollaborationInvite)
	if err != nil {
		return nil, fmt.Errorf("list invites for receiver: %w", err)
	}
	return list, nil
}

func (r *sqliteCollaborationRepo) ListApplicationsForUser(ctx context.Context, userID string) ([]*models.CollaborationDetail, error) {
	list, err := r.listDetails(ctx, "(c.sender_id = ? OR c.receiver_id = ?) AND c.type = ?",
		userID, userID, models.CollaborationApplication)
	if err != nil {
		return nil, fmt.Errorf("list applications for user: %w", err)
	}
	return list, nil
}

// Transition is a compare-and-swap on status = 'Pending'.
func (r *sqliteCollaborationRepo) Transition(ctx context.Context, id string, status models.CollaborationStatus, at time.Time) (bool, error) {
	query := `
		UPDATE collaborations
		SET status = ?, responded_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		status, toNanos(at), toNanos(at),
		id, models.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("transition collaboration: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition collaboration: %w", err)
	}
	return rows == 1, nil
}
