package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/collabhub/internal/api/projects"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

var (
	projectName  string
	projectID    string
	projectDesc  string
	projectOwner string
)

// projectCmd represents the project command group
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project management commands",
	Long: `Commands for inspecting and seeding projects.

Collaborators join projects by accepting invites or applications through
the API; these commands only read the resulting collaborator set.

Examples:
  hubctl project list
  hubctl project create --name "Coral Reef Survey" --owner marie
  hubctl project collaborators --name "Coral Reef Survey"`,
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		list, err := store.Projects().List(ctx)
		if err != nil {
			return fmt.Errorf("list projects: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			if list == nil {
				list = []*models.Project{}
			}
			return printJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No projects found.")
			return nil
		}

		w := newTable(out)
		fmt.Fprintln(w, "ID\tNAME\tOWNER\tMEMBERS\tCREATED")
		for _, p := range list {
			members, err := store.Projects().ListMembers(ctx, p.ID)
			if err != nil {
				printVerbose(cmd, "Warning: could not fetch members for %s: %v", p.Name, err)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				p.ID, truncate(p.Name, 30), p.OwnerID, len(members), p.CreatedAt.Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTotal: %d project(s)\n", len(list))
		return nil
	},
}

var projectCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new project",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := projects.ValidateName(projectName); err != nil {
			return err
		}

		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		owner, err := resolveUser(ctx, store.Users(), projectOwner, "")
		if err != nil {
			return err
		}

		project := models.NewProject(strings.TrimSpace(projectName), strings.TrimSpace(projectDesc), owner.ID)
		project.ID = uuid.New().String()
		if err := store.Projects().Create(ctx, project); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("project name already exists: %s", project.Name)
			}
			return fmt.Errorf("create project: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, project)
		}
		fmt.Fprintf(out, "Project created successfully:\n")
		fmt.Fprintf(out, "  ID:          %s\n", project.ID)
		fmt.Fprintf(out, "  Name:        %s\n", project.Name)
		fmt.Fprintf(out, "  Owner:       %s\n", owner.Username)
		fmt.Fprintf(out, "  Description: %s\n", project.Description)
		return nil
	},
}

var projectCollaboratorsCmd = &cobra.Command{
	Use:     "collaborators",
	Aliases: []string{"members"},
	Short:   "List the owner and collaborators of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		project, err := resolveProject(ctx, store.Projects(), projectName, projectID)
		if err != nil {
			return err
		}
		members, err := store.Projects().ListMembers(ctx, project.ID)
		if err != nil {
			return fmt.Errorf("list collaborators: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			if members == nil {
				members = []*models.ProjectMember{}
			}
			return printJSON(out, members)
		}

		fmt.Fprintf(out, "Collaborators of project '%s':\n\n", project.Name)
		w := newTable(out)
		fmt.Fprintln(w, "USER ID\tUSERNAME\tEMAIL\tROLE\tJOINED")
		for _, m := range members {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				m.UserID, m.Username, m.Email, m.Role, m.JoinedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectCreateCmd)
	projectCmd.AddCommand(projectCollaboratorsCmd)

	projectCreateCmd.Flags().StringVar(&projectName, "name", "", "project name (required)")
	projectCreateCmd.Flags().StringVar(&projectDesc, "description", "", "project description")
	projectCreateCmd.Flags().StringVar(&projectOwner, "owner", "", "username of the owner (required)")
	_ = projectCreateCmd.MarkFlagRequired("name")
	_ = projectCreateCmd.MarkFlagRequired("owner")

	projectCollaboratorsCmd.Flags().StringVar(&projectName, "name", "", "project name")
	projectCollaboratorsCmd.Flags().StringVar(&projectID, "id", "", "project ID")
}
