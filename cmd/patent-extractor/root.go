package main

import (
	"fmt"
	"text/tabwriter"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"patent-biblio/internal/config"
	"patent-biblio/internal/logger"
	"patent-biblio/internal/profile"
	"patent-biblio/internal/store"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logJSON    bool
	logSource  bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "patent-extractor",
		Short:         "Extract bibliographic records from USPTO bulk archives",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the YAML config file (default $CONFIG_PATH or ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Write logs as JSON")
	root.PersistentFlags().BoolVar(&opts.logSource, "log-source", false, "Include caller file and line in logs")

	root.AddCommand(
		newRunCmd(opts),
		newFormatsCmd(),
		newCheckConfigCmd(opts),
	)
	return root
}

// loadConfig reads file and environment settings and applies the global
// flags the user set explicitly.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = opts.logJSON
	}
	if flags.Changed("log-source") {
		cfg.Log.Source = opts.logSource
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg *config.Config) *charmlog.Logger {
	lc := logger.DefaultConfig()
	lc.Level = cfg.Log.Level
	lc.JSON = cfg.Log.JSON
	lc.AddSource = cfg.Log.Source
	lc.Output = cmd.ErrOrStderr()
	return logger.New(lc)
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the supported document formats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := profile.Builtin()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FORMAT\tENTRIES\tDESCRIPTION")
			for _, f := range reg.Formats() {
				p, err := reg.Lookup(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%v\t%s\n", f, p.EntrySuffixes, p.Description)
			}
			return tw.Flush()
		},
	}
}

func newCheckConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			reg, err := profile.Builtin()
			if err != nil {
				return err
			}
			if _, err := reg.Lookup(profile.Format(cfg.Extract.Format)); err != nil {
				return err
			}
			if cfg.Database.Enabled {
				if err := store.Check(cmd.Context(), cfg.Database); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: format=%s workers=%d extract_workers=%d database=%t\n",
				cfg.Extract.Format, cfg.Extract.Workers, cfg.Extract.ExtractWorkers, cfg.Database.Enabled)
			return nil
		},
	}
}
