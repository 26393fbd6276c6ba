package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/0xcro3dile/ragchat/internal/app"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/logger"
)

type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
	logJSON    bool
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:          "ragchat",
		Short:        "Retrieval-augmented chatbot over CSV and JSON documents",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&flags.envFile, "env-file", ".env", "Env file applied before reading the environment")
	pf.StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")
	pf.BoolVar(&flags.logJSON, "log-json", false, "Emit JSON logs")

	root.AddCommand(
		serveCmd(flags),
		indexCmd(flags),
		askCmd(flags),
	)
	return root
}

// setup loads the configuration, installs the logger and builds the services.
// The returned context carries the logger.
func setup(ctx context.Context, flags *globalFlags) (context.Context, *app.App, error) {
	cfg, err := config.Load(config.LoadOptions{File: flags.configFile, EnvFile: flags.envFile})
	if err != nil {
		return ctx, nil, err
	}
	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logJSON {
		cfg.Log.JSON = true
	}

	log := logger.Init(&logger.Config{
		Level:      logger.LogLevel(cfg.Log.Level),
		Output:     os.Stderr,
		JSON:       cfg.Log.JSON,
		TimeFormat: "15:04:05",
	})
	ctx = logger.ContextWithLogger(ctx, log)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, a, nil
}
