package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/corebind"
	"github.com/wippyai/corebind/config"
)

// rootOptions holds global flags and what PersistentPreRunE derives from
// them.
type rootOptions struct {
	cfg        *config.Config
	log        *zap.Logger
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "corebind",
		Short:         "Inspect tagged values and exercise the storage binding",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "storage configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level, overrides the configuration")

	cmd.AddCommand(newValueCommand())
	cmd.AddCommand(newOIDCommand())
	cmd.AddCommand(newDemoCommand(opts))
	return cmd
}

func (o *rootOptions) load() error {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	log, err := cfg.Log.Build()
	if err != nil {
		return err
	}
	corebind.SetLogger(log)
	o.cfg, o.log = cfg, log
	return nil
}
