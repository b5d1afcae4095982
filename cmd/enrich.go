package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/business-finder/internal/runs"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Look up missing websites for a stored run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("enrich"); err != nil {
			return err
		}
		runID, _ := cmd.Flags().GetString("run")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mgr := runs.NewManager(buildPipeline(), st)
		defer mgr.Close()

		if _, err := mgr.Enrich(ctx, runID); err != nil {
			return err
		}
		if events, ok := mgr.Events(runID); ok {
			go printProgress(os.Stderr, events)
		}

		// Interrupting stops the batch; whatever was found is still saved.
		go func() {
			<-ctx.Done()
			_ = mgr.Cancel(runID)
		}()
		if err := mgr.Wait(cmd.Context(), runID); err != nil {
			return err
		}

		run, err := mgr.Get(cmd.Context(), runID)
		if err != nil {
			return err
		}
		formatBusinesses(os.Stdout, run.Businesses)
		if res := run.Result(); res != nil {
			formatSummary(os.Stderr, res)
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().String("run", "", "run ID to enrich")
	_ = enrichCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(enrichCmd)
}
