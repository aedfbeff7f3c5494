package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/collabhub/internal/api/users"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/storage"
)

var (
	userUsername string
	userEmail    string
	userRole     string
)

// userCmd represents the user command group
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
	Long: `Commands for managing collabhub accounts.

Accounts carry no credentials; callers authenticate with tokens minted
by "hubctl token".

Examples:
  hubctl user list
  hubctl user create --username marie --email marie@example.org --role researcher`,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDatabase(dbPath, false)
		if err != nil {
			return err
		}
		defer store.Close()

		list, err := store.Users().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			if list == nil {
				list = []*models.User{}
			}
			return printJSON(out, list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No users found.")
			return nil
		}

		w := newTable(out)
		fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tROLE\tCREATED")
		for _, u := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				u.ID, u.Username, u.Email, u.Role, u.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\nTotal: %d user(s)\n", len(list))
		return nil
	},
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user",
	Long: `Create a new user in the database. The database is created if missing.

Available roles:
  - admin: manages users and may act on any record
  - researcher: owns projects and collaborates (default)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := users.ValidateUsername(userUsername); err != nil {
			return fmt.Errorf("invalid username: %w", err)
		}
		if err := users.ValidateEmail(userEmail); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
		role, err := users.ValidateRole(userRole)
		if err != nil {
			return fmt.Errorf("invalid role: %w", err)
		}

		store, err := openDatabase(dbPath, true)
		if err != nil {
			return err
		}
		defer store.Close()

		user := models.NewUser(strings.TrimSpace(userUsername), strings.TrimSpace(userEmail), role)
		user.ID = uuid.New().String()
		if err := store.Users().Create(cmd.Context(), user); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return fmt.Errorf("username or email already exists")
			}
			return fmt.Errorf("create user: %w", err)
		}

		out := cmd.OutOrStdout()
		if output == "json" {
			return printJSON(out, user)
		}
		fmt.Fprintf(out, "User created successfully:\n")
		fmt.Fprintf(out, "  ID:       %s\n", user.ID)
		fmt.Fprintf(out, "  Username: %s\n", user.Username)
		fmt.Fprintf(out, "  Email:    %s\n", user.Email)
		fmt.Fprintf(out, "  Role:     %s\n", user.Role)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userCreateCmd)

	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "username for the new user (required)")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email for the new user (required)")
	userCreateCmd.Flags().StringVar(&userRole, "role", "researcher", "role: admin or researcher")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
}
