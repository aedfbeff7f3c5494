package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

// openDatabase opens the SQLite database. create allows a missing file,
// which is then created and migrated.
func openDatabase(path string, create bool) (*storage.SQLiteStorage, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if !create {
			return nil, fmt.Errorf("database file not found: %s", path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store := storage.NewSQLiteStorage(path, zap.NewNop())
	if err := store.Open(); err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// resolveUser finds a user by username or ID.
func resolveUser(ctx context.Context, repo storage.UserRepository, username, id string) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch {
	case id != "":
		user, err = repo.GetByID(ctx, id)
	case username != "":
		user, err = repo.GetByUsername(ctx, username)
	default:
		return nil, fmt.Errorf("--username or --user-id is required")
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found: %s%s", username, id)
	}
	return user, nil
}

// resolveProject finds a project by name or ID.
func resolveProject(ctx context.Context, repo storage.ProjectRepository, name, id string) (*models.Project, error) {
	var (
		project *models.Project
		err     error
	)
	switch {
	case id != "":
		project, err = repo.GetByID(ctx, id)
	case name != "":
		project, err = repo.GetByName(ctx, name)
	default:
		return nil, fmt.Errorf("--name or --id is required")
	}
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	if project == nil {
		return nil, fmt.Errorf("project not found: %s%s", name, id)
	}
	return project, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 2 {
		return s[:n]
	}
	return s[:n-2] + ".."
}
