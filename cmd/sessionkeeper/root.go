package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring/tracing"
	"sessionkeeper-go/internal/version"
)

const defaultConfigPath = "config.yaml"

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envFile    string
	mode       string
	debug      bool

	cfg           *config.Config
	traceShutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "sessionkeeper",
		Short:         "Keeps JD web session cookies fresh by logging accounts in with a real browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return opts.load(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			opts.shutdownTracing()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (yaml or json); defaults to ./config.yaml when present")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	root.PersistentFlags().StringVar(&opts.mode, "mode", "", "interactive or cron; cron never prompts for codes")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug logging")

	root.AddCommand(newRunCmd(opts), newServeCmd(opts), newCheckCmd(opts), newMigrateCmd(opts), newVersionCmd())
	return root
}

func (o *options) resolvedConfigPath() string {
	if o.configPath != "" {
		return o.configPath
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

func (o *options) load(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	config.LoadDotEnv(o.envFile)
	path := o.resolvedConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	o.apply(cfg)
	if err := logging.Setup(cfg); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	o.cfg = cfg

	shutdown, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	o.traceShutdown = shutdown
	log.WithFields(log.Fields{
		"config":  path,
		"mode":    cfg.Mode,
		"version": version.Version,
	}).Info("sessionkeeper starting")
	return nil
}

// apply lays the command-line overrides over a loaded config.
func (o *options) apply(cfg *config.Config) {
	switch o.mode {
	case config.ModeCron, config.ModeInteractive:
		cfg.Mode = o.mode
	case "":
	default:
		log.WithField("mode", o.mode).Warn("unknown --mode ignored")
	}
	if o.debug {
		cfg.Log.Debug = true
	}
}

func (o *options) shutdownTracing() {
	if o.traceShutdown == nil {
		return
	}
	if err := o.traceShutdown(context.Background()); err != nil {
		log.WithError(err).Warn("failed to shutdown tracing")
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sessionkeeper", version.String())
		},
	}
}
