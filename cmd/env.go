package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/discovery"
	"github.com/sells-group/business-finder/internal/resilience"
	"github.com/sells-group/business-finder/internal/store"
	"github.com/sells-group/business-finder/internal/website"
	"github.com/sells-group/business-finder/pkg/geocode"
	"github.com/sells-group/business-finder/pkg/overpass"
)

// initStore opens the configured store and migrates it. It returns nil
// when the driver is "none".
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{MaxConns: cfg.Store.MaxConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// buildPipeline wires the geocoder, spatial client and website finder from cfg.
func buildPipeline() *discovery.Pipeline {
	gc := cfg.Geocode
	var geocoder geocode.Geocoder = geocode.NewNominatimClient(
		geocode.WithBaseURL(gc.BaseURL),
		geocode.WithUserAgent(gc.UserAgent),
		geocode.WithTimeout(time.Duration(gc.TimeoutSecs)*time.Second),
		geocode.WithRateLimit(gc.RateLimit),
	)
	if gc.CacheTTLMins > 0 {
		geocoder = geocode.NewCache(geocoder, time.Duration(gc.CacheTTLMins)*time.Minute)
	}

	oc := cfg.Overpass
	retry := resilience.FromRetryConfig(oc.MaxAttempts, oc.InitialBackoffSecs, oc.Multiplier)
	retry.OnRetry = resilience.RetryLogger("overpass", "query")
	points := overpass.NewClient(
		overpass.WithBaseURL(oc.BaseURL),
		overpass.WithQueryTimeout(oc.QueryTimeoutSecs),
		overpass.WithHTTPClient(&http.Client{Timeout: time.Duration(oc.HTTPTimeoutSecs) * time.Second}),
		overpass.WithRetry(retry),
	)

	sc := cfg.Search
	finderOpts := []website.Option{
		website.WithSearchURL(sc.BaseURL),
		website.WithTimeout(time.Duration(sc.TimeoutSecs) * time.Second),
		website.WithMaxResults(sc.MaxResults),
	}
	if len(sc.UserAgents) > 0 {
		finderOpts = append(finderOpts, website.WithUserAgents(sc.UserAgents))
	}
	if cbCfg, ok := resilience.FromCircuitConfig(sc.BreakerThreshold, sc.BreakerResetSecs); ok {
		cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("website search breaker", zap.String("from", from.String()), zap.String("to", to.String()))
		}
		finderOpts = append(finderOpts, website.WithBreaker(resilience.NewCircuitBreaker(cbCfg)))
	}

	return discovery.NewPipeline(
		geocode.NewResolver(geocoder),
		points,
		website.NewFinder(finderOpts...),
		discovery.WithRegion(geocode.RegionHint{Abbrev: gc.RegionAbbrev, Full: gc.RegionFull}),
		discovery.WithEnrichDelay(cfg.Enrich.Delay()),
	)
}
