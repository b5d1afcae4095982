package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/discovery"
	"github.com/sells-group/business-finder/internal/export"
	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/internal/store"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find named businesses around a location",
	Long:  "Geocodes --location, lists named points within --radius km and optionally looks up missing websites.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		location, _ := cmd.Flags().GetString("location")
		radius, _ := cmd.Flags().GetFloat64("radius")
		typ, _ := cmd.Flags().GetString("type")
		enrich, _ := cmd.Flags().GetBool("enrich")
		outPath, _ := cmd.Flags().GetString("export")

		bt, err := model.ParseBusinessType(typ)
		if err != nil {
			return err
		}
		params := model.SearchParameters{LocationQuery: location, RadiusKM: radius, BusinessType: bt}
		if err := params.Validate(); err != nil {
			return err
		}

		format, incompleteOnly, err := exportFlags(cmd)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		res, enriched, err := runDiscovery(ctx, buildPipeline(), st, params, enrich)
		if err != nil {
			return err
		}

		formatBusinesses(os.Stdout, res.Businesses)
		formatSummary(os.Stderr, res)

		if outPath != "" && !res.NoResultsInArea() {
			rows := export.Filter(res.Businesses, incompleteOnly)
			if err := export.WriteFile(outPath, format, rows); err != nil {
				return err
			}
			zap.L().Info("exported results", zap.String("path", outPath), zap.Int("rows", len(rows)), zap.Int("enriched", enriched))
		}
		return nil
	},
}

// runDiscovery runs discovery (and enrichment when asked) in the foreground,
// printing progress to stderr. With a store, the run and its result are saved.
func runDiscovery(ctx context.Context, p *discovery.Pipeline, st store.Store, params model.SearchParameters, enrich bool) (*model.DiscoveryResult, int, error) {
	var run *model.Run
	if st != nil {
		var err error
		if run, err = st.CreateRun(ctx, params); err != nil {
			return nil, 0, err
		}
	}

	task := p.StartDiscovery(ctx, params)
	printProgress(os.Stderr, task.Events())
	res, err := task.Wait()
	if err != nil {
		recordFailure(st, run, err)
		return nil, 0, err
	}

	found := 0
	var enrichErr error
	if enrich && res.MissingWebsites() > 0 {
		et := p.StartEnrichment(ctx, res.Businesses)
		printProgress(os.Stderr, et.Events())
		er, eerr := et.Wait()
		res = &model.DiscoveryResult{Businesses: er.Businesses, Center: res.Center}
		found = er.Found
		if eerr != nil {
			zap.L().Warn("enrichment stopped early", zap.Int("found", found), zap.Error(eerr))
			enrichErr = eerr
		}
	}

	if run != nil {
		status := model.RunStatusComplete
		if res.NoResultsInArea() {
			status = model.RunStatusNoResults
		}
		if err := st.SaveResult(context.WithoutCancel(ctx), run.ID, status, res, found); err != nil {
			return nil, 0, eris.Wrap(err, "save result")
		}
		if enrichErr != nil {
			recordFailure(st, run, enrichErr)
		}
		zap.L().Info("run saved", zap.String("run_id", run.ID))
	}
	return res, found, nil
}

func recordFailure(st store.Store, run *model.Run, err error) {
	if run == nil {
		return
	}
	status := model.RunStatusFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = model.RunStatusCancelled
	}
	if uerr := st.UpdateRunStatus(context.Background(), run.ID, status, err.Error()); uerr != nil {
		zap.L().Error("record run failure", zap.String("run_id", run.ID), zap.Error(uerr))
	}
}

// exportFlags resolves --format and --incomplete-only against config defaults.
func exportFlags(cmd *cobra.Command) (export.Format, bool, error) {
	formatStr := cfg.Export.Format
	if cmd.Flags().Changed("format") {
		formatStr, _ = cmd.Flags().GetString("format")
	}
	format, err := export.ParseFormat(formatStr)
	if err != nil {
		return "", false, err
	}

	incompleteOnly := cfg.Export.IncompleteOnly
	if cmd.Flags().Changed("incomplete-only") {
		incompleteOnly, _ = cmd.Flags().GetBool("incomplete-only")
	}
	return format, incompleteOnly, nil
}

func init() {
	discoverCmd.Flags().String("location", "", "place to search around (e.g. \"Boulder\" or \"Pearl St, Boulder, CO\")")
	discoverCmd.Flags().Float64("radius", 5, "search radius in km")
	discoverCmd.Flags().String("type", "all", "business type: all, restaurants or shops")
	discoverCmd.Flags().Bool("enrich", false, "look up websites for businesses without one")
	discoverCmd.Flags().String("export", "", "write results to this path")
	discoverCmd.Flags().String("format", "csv", "export format: csv, xlsx or shp")
	discoverCmd.Flags().Bool("incomplete-only", false, "export only businesses without a website")
	_ = discoverCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(discoverCmd)
}
