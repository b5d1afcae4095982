package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a stored run's businesses to a file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		runID, _ := cmd.Flags().GetString("run")
		outPath, _ := cmd.Flags().GetString("out")
		format, incompleteOnly, err := exportFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, runID)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		rows := export.Filter(run.Businesses, incompleteOnly)
		if err := export.WriteFile(outPath, format, rows); err != nil {
			return err
		}
		zap.L().Info("exported run",
			zap.String("run_id", runID),
			zap.String("path", outPath),
			zap.String("format", string(format)),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("run", "", "run ID to export")
	exportCmd.Flags().String("out", "businesses.csv", "output path")
	exportCmd.Flags().String("format", "csv", "export format: csv, xlsx or shp")
	exportCmd.Flags().Bool("incomplete-only", false, "export only businesses without a website")
	_ = exportCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(exportCmd)
}
