package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/store"
)

func sweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reject stale offers and retry karma settlement once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := c.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			svc := &services{cancel: func() {}}
			defer svc.close()
			ledger, err := newLedger(ctx, c.cfg, database, svc)
			if err != nil {
				return err
			}

			res, err := exchange.NewSweeper(database, ledger).Reconcile(ctx)
			cmd.Printf("stale items: %d, unsettled offers: %d, failed: %d\n",
				res.StaleItems, res.UnsettledOffers, res.Failed)
			if err != nil {
				return err
			}

			n, err := store.PurgeRevokedTokens(ctx, database, time.Now())
			if err != nil {
				return err
			}
			cmd.Printf("purged revoked tokens: %d\n", n)
			return nil
		},
	}
}
