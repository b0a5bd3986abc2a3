package commands

import (
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/confgate/internal/config"
)

// Global carries state shared across subcommands.
type Global struct {
	// LogLevel is the mutable level behind the default logger; the serve
	// command points the config watcher at it.
	LogLevel *slog.LevelVar
}

// CLI defines the root command and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"confgate.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve      ServeCmd      `cmd:"" help:"Run the configuration governance service"`
	InitConfig InitConfigCmd `cmd:"" name:"init-config" help:"Write a default configuration file"`
	User       UserCmd       `cmd:"" help:"Manage service users"`
}

// AfterApply runs after flag parsing; set up a default logger before any
// command executes. Serve reconfigures it from the loaded configuration.
func (c *CLI) AfterApply(kctx *kong.Context) error {
	level := &slog.LevelVar{}
	if c.Verbose {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	kctx.Bind(&Global{LogLevel: level})
	return nil
}

// configureLogging applies the logging section of the configuration to the
// process-wide logger. The verbose flag always wins for the level.
func configureLogging(cfg *config.Config, verbose bool, level *slog.LevelVar) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(parseLevel(cfg.Logging.Level))
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
