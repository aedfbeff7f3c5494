package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

type sqliteProjectRepo struct {
	db dbtx
}

const projectColumns = `p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at`

func scanProject(scan func(dest ...any) error) (*models.Project, error) {
	project := &models.Project{}
	var description sql.NullString
	var createdAt, updatedAt int64
	err := scan(&project.ID, &project.Name, &description, &project.OwnerID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	project.Description = description.String
	project.CreatedAt = fromNanos(createdAt)
	project.UpdatedAt = fromNanos(updatedAt)
	return project, nil
}

func (r *sqliteProjectRepo) queryProjects(ctx context.Context, query string, args ...any) ([]*models.Project, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (r *sqliteProjectRepo) Create(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (id, name, description, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		project.ID, project.Name, nullString(project.Description), project.OwnerID,
		toNanos(project.CreatedAt), toNanos(project.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert project: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (r *sqliteProjectRepo) getOne(ctx context.Context, column string, arg any) (*models.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.`+column+` = ?`, arg)
	project, err := scanProject(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		//nolint:nilnil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project by %s: %w", column, err)
	}
	return project, nil
}

func (r *sqliteProjectRepo) GetByID(ctx context.Context, id string) (*models.Project, error) {
	return r.getOne(ctx, "id", id)
}

func (r *sqliteProjectRepo) GetByName(ctx context.Context, name string) (*models.Project, error) {
	return r.getOne(ctx, "name", name)
}

func (r *sqliteProjectRepo) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects SET name = ?, description = ?, owner_id = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		project.Name, nullString(project.Description), project.OwnerID, toNanos(project.UpdatedAt),
		project.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("update project: %w", ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project not found: %s", project.ID)
	}
	return nil
}

func (r *sqliteProjectRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("project not found: %s", id)
	}
	return nil
}

func (r *sqliteProjectRepo) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := r.queryProjects(ctx, `SELECT `+projectColumns+` FROM projects p ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (r *sqliteProjectRepo) ListForUser(ctx context.Context, userID string) ([]*models.Project, error) {
	query := `
		SELECT ` + projectColumns + `
		FROM projects p
		WHERE p.owner_id = ?
		   OR EXISTS (SELECT 1 FROM project_users pu WHERE pu.project_id = p.id AND pu.user_id = ?)
		ORDER BY p.name
	`
	projects, err := r.queryProjects(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user projects: %w", err)
	}
	return projects, nil
}

func (r *sqliteProjectRepo) AddCollaborator(ctx context.Context, projectID, userID string, joinedAt time.Time) (bool, error) {
	query := `
		INSERT OR IGNORE INTO project_users (project_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query, projectID, userID, toNanos(joinedAt))
	if err != nil {
		return false, fmt.Errorf("add collaborator: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add collaborator: %w", err)
	}
	return rows > 0, nil
}

func (r *sqliteProjectRepo) RemoveCollaborator(ctx context.Context, projectID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM project_users WHERE project_id = ? AND user_id = ?",
		projectID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove collaborator: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user not in project")
	}
	return nil
}

func (r *sqliteProjectRepo) ListMembers(ctx context.Context, projectID string) ([]*models.ProjectMember, error) {
	query := `
		SELECT u.id, u.username, u.email, 'owner', p.created_at, 0
		FROM projects p
		INNER JOIN users u ON u.id = p.owner_id
		WHERE p.id = ?
		UNION ALL
		SELECT u.id, u.username, u.email, 'collaborator', pu.joined_at, 1
		FROM project_users pu
		INNER JOIN users u ON u.id = pu.user_id
		WHERE pu.project_id = ?
		ORDER BY 6, 5
	`
	rows, err := r.db.QueryContext(ctx, query, projectID, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	var members []*models.ProjectMember
	for rows.Next() {
		member := &models.ProjectMember{}
		var joinedAt int64
		var rank int
		err := rows.Scan(&member.UserID, &member.Username, &member.Email, &member.Role, &joinedAt, &rank)
		if err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		member.JoinedAt = fromNanos(joinedAt)
		members = append(members, member)
	}
	return members, rows.Err()
}

func (r *sqliteProjectRepo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	query := `
		SELECT EXISTS (SELECT 1 FROM projects WHERE id = ? AND owner_id = ?)
		    OR EXISTS (SELECT 1 FROM project_users WHERE project_id = ? AND user_id = ?)
	`
	var member bool
	err := r.db.QueryRowContext(ctx, query, projectID, userID, projectID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check project member: %w", err)
	}
	return member, nil
}
