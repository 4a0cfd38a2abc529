// Package cli implements the hieratime command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VanDung-dev/HieraTime-Engine/internal/config"
	"github.com/VanDung-dev/HieraTime-Engine/internal/logging"
)

// Version information, overridable with -ldflags.
var (
	Version = "0.1.0.dev1"
	Name    = "HieraTime-Engine"
)

// app carries state shared by the subcommands of one root command.
type app struct {
	v        *viper.Viper
	cfg      config.Config
	logger   *zap.Logger
	level    zap.AtomicLevel
	bindings []binding
}

type binding struct {
	cmd       *cobra.Command
	key, flag string
}

// NewRootCommand builds the hieratime command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "hieratime",
		Short: "Temporal arithmetic over Apache Arrow arrays",
		Long: "hieratime evaluates calendar and duration arithmetic on Arrow timestamp, time and date " +
			"columns, one-shot from JSON or as a TCP/ZeroMQ compute server.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default hieratime.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (logfmt, json, console)")
	a.bind(root, "log.level", "log-level")
	a.bind(root, "log.format", "log-format")

	root.AddCommand(
		newServeCommand(a),
		newComputeCommand(a),
		newOpsCommand(),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// bind maps a flag of cmd onto a config key. Bindings take effect only
// when cmd, or the root for persistent flags, is the command being run, so
// subcommands may share a key.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	a.bindings = append(a.bindings, binding{cmd: cmd, key: key, flag: flag})
}

func (a *app) bindFlags(cmd *cobra.Command) error {
	for _, b := range a.bindings {
		if b.cmd != cmd && b.cmd != cmd.Root() {
			continue
		}
		f := cmd.Flags().Lookup(b.flag)
		if f == nil {
			return fmt.Errorf("unknown flag %q for %s", b.flag, b.key)
		}
		if err := a.v.BindPFlag(b.key, f); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) init(cmd *cobra.Command) error {
	if err := a.bindFlags(cmd); err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	if err := config.Init(a.v, cfgFile); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(a.v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	a.level, err = logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger, err := logging.Build(cmd.ErrOrStderr(), a.level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// watchConfig applies log level changes made to the config file while the
// command runs. It returns a stop function, a no-op when no file is in use.
func (a *app) watchConfig() (func(), error) {
	if a.v.ConfigFileUsed() == "" {
		return func() {}, nil
	}

	w, err := config.NewWatcher(a.v, func(cfg config.Config) {
		if lvl, err := logging.ParseLevel(cfg.Log.Level); err == nil && lvl.Level() != a.level.Level() {
			a.level.SetLevel(lvl.Level())
			a.logger.Info("log level changed", zap.Stringer("level", lvl.Level()))
		}
	}, a.logger.Named("config"))
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, fmt.Errorf("failed to watch config: %w", err)
	}
	return w.Stop, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
