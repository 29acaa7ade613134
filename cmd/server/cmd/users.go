package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/Togather-Foundation/places/internal/auth"
	"github.com/Togather-Foundation/places/internal/config"
	"github.com/Togather-Foundation/places/internal/domain/users"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	userName    string
	userEmail   string
	userID      string
	usersFormat string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users and issue access tokens",
	Long: `Create and list users, and issue bearer tokens for the places API.

Users are only created here; the HTTP API exposes a read-only listing.

Examples:
  # Register a user
  server users create --name "Ada" --email ada@example.com

  # List users with their place counts
  server users list --format json

  # Issue a token for a user
  server users token --id 01HYX3KQW7ZV2J8N4R5T6Y7M8V`,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd, func(ctx context.Context, svc *users.Service, _ config.Config) error {
			return createUser(ctx, cmd.OutOrStdout(), svc, users.CreateParams{Name: userName, Email: userEmail})
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd, func(ctx context.Context, svc *users.Service, _ config.Config) error {
			return listUsers(ctx, cmd.OutOrStdout(), svc, usersFormat)
		})
	},
}

var usersTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for an existing user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(cmd, func(ctx context.Context, svc *users.Service, cfg config.Config) error {
			if cfg.Auth.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required to issue tokens")
			}
			manager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
			return issueToken(ctx, cmd.OutOrStdout(), svc, manager, userID)
		})
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "display name")
	usersCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address (unique)")
	_ = usersCreateCmd.MarkFlagRequired("name")
	_ = usersCreateCmd.MarkFlagRequired("email")

	usersListCmd.Flags().StringVar(&usersFormat, "format", "table", "output format (table, json)")

	usersTokenCmd.Flags().StringVar(&userID, "id", "", "user id")
	_ = usersTokenCmd.MarkFlagRequired("id")

	usersCmd.AddCommand(usersCreateCmd, usersListCmd, usersTokenCmd)
}

// withUsers opens PostgreSQL storage and runs fn against a user service.
// The memory driver is rejected since nothing would outlive the command.
func withUsers(cmd *cobra.Command, fn func(ctx context.Context, svc *users.Service, cfg config.Config) error) error {
	cfg, err := loadDatabaseConfig()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	logger := config.NewLogger(cfg.Logging).Level(zerolog.WarnLevel)
	return fn(ctx, users.NewService(b.users, logger), cfg)
}

func createUser(ctx context.Context, out io.Writer, svc *users.Service, params users.CreateParams) error {
	user, err := svc.Create(ctx, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created user %s (%s)\n", user.ID, user.Email)
	return nil
}

type userRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Places int    `json:"places"`
}

func listUsers(ctx context.Context, out io.Writer, svc *users.Service, format string) error {
	list, err := svc.List(ctx)
	if err != nil {
		return err
	}

	rows := make([]userRow, 0, len(list))
	for _, u := range list {
		rows = append(rows, userRow{ID: u.ID, Name: u.Name, Email: u.Email, Places: len(u.PlaceIDs)})
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "table", "":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tEMAIL\tPLACES")
		fmt.Fprintln(w, "--\t----\t-----\t------")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", r.ID, r.Name, r.Email, r.Places)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d user(s)\n", len(rows))
		return nil
	default:
		return fmt.Errorf("unknown format %q (use table or json)", format)
	}
}

func issueToken(ctx context.Context, out io.Writer, svc *users.Service, manager *auth.JWTManager, id string) error {
	user, err := svc.Get(ctx, strings.ToUpper(strings.TrimSpace(id)))
	if err != nil {
		return err
	}
	token, err := manager.Generate(user.ID, user.Name)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
