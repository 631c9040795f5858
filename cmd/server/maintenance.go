package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/logger"
	"github.com/warp/ledger-engine/transactions"
)

var errReadOnlyFlag = errors.New("command writes to the ledger; drop --read-only")

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.ReadOnly {
				return errReadOnlyFlag
			}
			// Opening read-write applies pending migrations.
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			a.log.Info().Str("ledger", a.cfg.Ledger.Path).Msg("ledger schema up to date")
			return nil
		},
	}
}

func newRecalcCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Rebuild running balances for every account",
		Long: `Recompute every line item's running balance from the (date, id)
ordering of its account. Safe to run repeatedly; rows that already hold the
right value are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.ReadOnly {
				return errReadOnlyFlag
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := logger.WithContext(cmd.Context(), a.log)
			n, err := transactions.New(store).RecalculateAll(ctx)
			if err != nil {
				return err
			}
			a.log.Info().Int("accounts", n).Msg("running balances recalculated")
			fmt.Fprintf(cmd.OutOrStdout(), "recalculated %d accounts\n", n)
			return nil
		},
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var scenario string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demo scenario into an empty ledger",
		Example: `  ledger seed --db demo.ledger --scenario household
  ledger seed --db demo.ledger --scenario recurring-bills`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Ledger.ReadOnly {
				return errReadOnlyFlag
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := logger.WithContext(cmd.Context(), a.log)
			if err := api.NewHandler(store).LoadScenarioByID(ctx, scenario); err != nil {
				return err
			}
			a.log.Info().Str("scenario", scenario).Msg("scenario loaded")
			return nil
		},
	}
	cmd.Flags().StringVar(&scenario, "scenario", "household", "scenario id (household, recurring-bills)")
	return cmd
}
