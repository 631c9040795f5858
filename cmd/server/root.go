package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/logger"
	"github.com/warp/ledger-engine/store/sqlite"
)

// app is the state shared by every command once the root pre-run has
// loaded configuration.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger consistency engine",
		Long: `ledger serves and maintains a personal-finance ledger file.

Every write keeps per-account running balances consistent with the
(date, id) order of line items.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Log.Level, cfg.Log.Pretty)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (yaml, json or toml)")
	flags.String("db", "", "ledger file path (use :memory: for a scratch ledger)")
	flags.Bool("read-only", false, "open the ledger read-only")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("pretty", false, "human-readable console logs")
	must(a.v.BindPFlag("ledger.path", flags.Lookup("db")))
	must(a.v.BindPFlag("ledger.read_only", flags.Lookup("read-only")))
	must(a.v.BindPFlag("log.level", flags.Lookup("log-level")))
	must(a.v.BindPFlag("log.pretty", flags.Lookup("pretty")))

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newRecalcCmd(a),
		newSeedCmd(a),
	)
	return root
}

// openStore opens the configured ledger file.
func (a *app) openStore() (*sqlite.Store, error) {
	store, err := sqlite.Open(a.cfg.Ledger.Path, sqlite.Options{ReadOnly: a.cfg.Ledger.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", a.cfg.Ledger.Path, err)
	}
	a.log.Debug().
		Str("path", a.cfg.Ledger.Path).
		Bool("read_only", store.ReadOnly()).
		Msg("ledger opened")
	return store, nil
}

// must panics on flag-binding errors, which only occur for a nil flag.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
