package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/onnwee/tradematch/internal/config"
	"github.com/onnwee/tradematch/internal/feedback"
)

// swipeOutput is printed after a swipe is recorded.
type swipeOutput struct {
	Event           feedback.SwipeEvent `json:"event"`
	State           feedback.SwipeState `json:"state"`
	Factors         feedback.Factors    `json:"factors"`
	NewlySuppressed bool                `json:"newly_suppressed"`
}

func (c *cli) swipeCmd() *cobra.Command {
	var (
		inputs    catalogFlags
		storeOpts storeFlags
	)

	cmd := &cobra.Command{
		Use:   "swipe EXPORTER_ID BUYER_ID left|right",
		Short: "Record one swipe in the feedback store",
		Long: `Applies a single swipe to the persistent feedback store and prints the updated
pair state and the factors the next ranking run will use. The store defaults to
SQLite so the swipe survives between runs.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs.apply(cmd, c.cfg)
			storeOpts.apply(cmd, c.cfg)
			if err := c.validate(); err != nil {
				return err
			}

			exporterID, buyerID := args[0], args[1]
			dir, err := feedback.ParseDirection(args[2])
			if err != nil {
				return err
			}

			catalog, err := c.loadCatalog()
			if err != nil {
				return err
			}
			if _, ok := catalog.Exporter(exporterID); !ok {
				return fmt.Errorf("unknown exporter %q", exporterID)
			}
			buyer, ok := catalog.Buyer(buyerID)
			if !ok {
				return fmt.Errorf("unknown buyer %q", buyerID)
			}

			ctx := cmd.Context()
			store, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			engine, err := c.newEngine(store)
			if err != nil {
				return err
			}
			result, err := engine.ProcessSwipe(ctx, exporterID, buyer, dir)
			if err != nil {
				return err
			}
			_, factors, err := engine.PairFactors(ctx, exporterID, buyer)
			if err != nil {
				return err
			}

			c.logger.Info("swipe recorded",
				"exporter_id", exporterID,
				"buyer_id", buyerID,
				"direction", dir,
				"store", store.Backend)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(swipeOutput{
				Event:           result.Event,
				State:           result.State,
				Factors:         factors,
				NewlySuppressed: result.NewlySuppressed,
			})
		},
	}

	inputs.register(cmd)
	storeOpts.register(cmd, config.StoreSQLite)
	return cmd
}
