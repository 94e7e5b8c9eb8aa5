package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/packetwire/internal/config"
	"github.com/danmuck/packetwire/internal/logging"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "cmd/packetd/config.toml"

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "packetd",
		Short:         "Decode framed packets from inbound TCP streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			configureLogging(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return newService(cfg).Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.toml (defaults are used when empty)")
	cmd.AddCommand(newInitConfigCommand(), newValidateCommand())
	return cmd
}

func newInitConfigCommand() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteTemplate(output, force); err != nil {
				return err
			}
			cmd.Printf("wrote config template to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", defaultConfigPath, "output path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			cmd.Printf("validated config at %s\n", path)
			return nil
		},
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// configureLogging installs the runtime logger. PACKETWIRE_LOG_LEVEL wins
// unless the config file sets log_level.
func configureLogging(cfg config.Config) {
	logging.ConfigureRuntime()
	if cfg.LogLevel == "" {
		return
	}
	if !logging.SetLevel(cfg.LogLevel) {
		logger := logging.Component("packetd")
		logger.Warn().Str("level", cfg.LogLevel).Msg("ignoring unknown log level")
	}
}
