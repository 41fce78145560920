package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GoCodeAlone/modloader"
	"github.com/GoCodeAlone/modloader/cmd/modloader/internal/demo"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand creates the root command for the modloader application
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "modloader",
		Short: "Module loader - inspect and serve a dependency-resolved module set",
		Long: `modloader registers a module set, resolves its dependencies and loads it.
It can print a status snapshot or serve status, health and metrics over HTTP.`,
		Version:       fmt.Sprintf("%s (commit: %s, built on: %s)", Version, Commit, Date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (yaml, toml or json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "Log format: console or json")

	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	return cmd
}

// newLogger builds a zap logger for the given level and encoding.
func newLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config
	if level == "debug" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	if format == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	} else {
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

// setup builds the logger, config and loader shared by every subcommand.
func setup(opts *rootOptions) (*modloader.Loader, *modloader.Config, *modloader.ZapLogger, error) {
	zl, err := newLogger(opts.logLevel, opts.logFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := modloader.NewZapLogger(zl)

	cfg := modloader.DefaultConfig()
	if opts.configPath != "" {
		if cfg, err = modloader.LoadConfigFile(opts.configPath); err != nil {
			return nil, nil, nil, err
		}
	} else if err := modloader.ApplyEnvOverrides(cfg, modloader.EnvPrefix); err != nil {
		return nil, nil, nil, err
	}

	l := modloader.New(modloader.WithLogger(logger), modloader.WithConfig(cfg))
	if err := demo.Register(l); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to register modules: %w", err)
	}
	if err := l.ApplyConfig(cfg); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to apply config: %w", err)
	}
	return l, cfg, logger, nil
}
