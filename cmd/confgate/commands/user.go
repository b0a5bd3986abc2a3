package commands

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/confgate/internal/auth"
	"git.home.luguber.info/inful/confgate/internal/config"
	"git.home.luguber.info/inful/confgate/internal/store"
)

// UserCmd groups user management subcommands.
type UserCmd struct {
	Add  UserAddCmd  `cmd:"" help:"Create a service user"`
	List UserListCmd `cmd:"" help:"List service users"`
}

// UserAddCmd creates a user directly in the metadata store.
type UserAddCmd struct {
	Username string `arg:"" help:"Login name"`
	Password string `required:"" help:"Initial password (minimum 8 characters)"`
	Role     string `default:"viewer" enum:"admin,editor,viewer" help:"Role: admin, editor or viewer"`
}

func (u *UserAddCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.Database.Path, nil)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = st.Close() }()

	svc := auth.NewService(st, cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
	user, err := svc.CreateUser(context.Background(), u.Username, u.Password, u.Role)
	if err != nil {
		return err
	}
	slog.Info("User created",
		slog.String("username", user.Username),
		slog.String("role", user.Role),
		slog.String("id", user.ID))
	return nil
}

// UserListCmd prints the registered users.
type UserListCmd struct{}

func (u *UserListCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.Database.Path, nil)
	if err != nil {
		return fmt.Errorf("open metadata store: %w", err)
	}
	defer func() { _ = st.Close() }()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		return err
	}
	for _, user := range users {
		fmt.Printf("%-20s %-8s %s\n", user.Username, user.Role, user.ID)
	}
	return nil
}
