package commands

import (
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/confgate/internal/config"
	"git.home.luguber.info/inful/confgate/internal/logfields"
)

// InitConfigCmd implements the 'init-config' command.
type InitConfigCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitConfigCmd) Run(_ *Global, root *CLI) error {
	if err := config.Init(root.Config, i.Force); err != nil {
		return fmt.Errorf("init config: %w", err)
	}
	slog.Info("Configuration file written", logfields.Path(root.Config))
	fmt.Println("Remember to replace auth.token_secret before starting the service.")
	return nil
}
