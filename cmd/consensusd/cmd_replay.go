package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"consensus-engine/logging"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <recording>",
	Short: "Drive the controller from a recorded run",
	Long: `replay feeds the snapshots of a recording through the configured pipeline.
Set server.record (or CONSENSUS_RECORD) to record the replayed commands, then
compare both runs with verify.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bridge, cleanup, err := newBridge(cfg, logger, nil)
		if err != nil {
			logging.Fatal(logger, err, "setup failed")
		}
		defer cleanup()

		st, err := bridge.Replay(ctx, args[0], replaySpeed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ticks: %d dropped: %d recorded run: %s span: %s\n",
			st.Ticks, st.Dropped, st.Recorded, st.Recording.Duration())
		return nil
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "replay speed multiplier (0 for max speed)")
}
