// Package discovery runs the business discovery pipeline: resolve a place,
// query named points around it, normalize them into businesses, and
// optionally look up missing websites.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/metrics"
	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/pkg/geocode"
)

// Resolver resolves a place query to a Location.
type Resolver interface {
	Resolve(ctx context.Context, query string, hint geocode.RegionHint) (model.Location, error)
}

// PointSource returns named points around a center.
type PointSource interface {
	QueryNamedPoints(ctx context.Context, center model.Location, radiusKM float64) ([]model.RawPointRecord, error)
}

// WebsiteFinder guesses a business's website. It reports failure as ok=false.
type WebsiteFinder interface {
	FindWebsite(ctx context.Context, name, address string) (string, bool)
}

// discoverStages is the number of stage boundaries Discover reports.
const discoverStages = 3

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRegion sets the region hint used for bare place names.
func WithRegion(h geocode.RegionHint) Option {
	return func(p *Pipeline) {
		p.region = h
	}
}

// WithEnrichDelay sets the pause between consecutive website lookups.
func WithEnrichDelay(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.enrichDelay = d
		}
	}
}

// WithSleep replaces the function used to pause between website lookups.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// Pipeline wires the resolver, point source, normalizer and website finder.
// Stages always run one after another; the pipeline never issues two
// network calls at once.
type Pipeline struct {
	resolver    Resolver
	points      PointSource
	finder      WebsiteFinder
	normalizer  *Normalizer
	region      geocode.RegionHint
	enrichDelay time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewPipeline creates a Pipeline. finder may be nil when enrichment is not used.
func NewPipeline(r Resolver, points PointSource, finder WebsiteFinder, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:    r,
		points:      points,
		finder:      finder,
		normalizer:  NewNormalizer(),
		region:      geocode.DefaultRegion,
		enrichDelay: time.Second,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Discover resolves params.LocationQuery, queries named points within the
// radius and normalizes them. Errors from the resolver and point source
// are returned unchanged so callers can match them with errors.Is/As.
//
// Cancelling ctx is honored between stages only. A call already sent to a
// backend runs to completion or its own timeout.
func (p *Pipeline) Discover(ctx context.Context, params model.SearchParameters, progress model.ProgressFunc) (*model.DiscoveryResult, error) {
	start := time.Now()
	res, err := p.discover(ctx, params, progress)
	metrics.DiscoveryRunsTotal.WithLabelValues(discoverOutcome(res, err)).Inc()
	metrics.DiscoveryDuration.Observe(time.Since(start).Seconds())
	return res, err
}

func (p *Pipeline) discover(ctx context.Context, params model.SearchParameters, progress model.ProgressFunc) (*model.DiscoveryResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	log := zap.L().With(
		zap.String("location", params.LocationQuery),
		zap.Float64("radius_km", params.RadiusKM),
		zap.String("business_type", string(params.BusinessType)),
	)
	detached := context.WithoutCancel(ctx)

	if err := stageCheck(ctx, "geocode"); err != nil {
		return nil, err
	}
	progress.Emit(0, discoverStages, "Getting location coordinates...")
	center, err := p.resolver.Resolve(detached, params.LocationQuery, p.region)
	if err != nil {
		log.Warn("discovery: geocode failed", zap.Error(err))
		return nil, err
	}

	if err := stageCheck(ctx, "query"); err != nil {
		return nil, err
	}
	progress.Emit(1, discoverStages, "Searching for businesses...")
	records, err := p.points.QueryNamedPoints(detached, center, params.RadiusKM)
	if err != nil {
		log.Warn("discovery: spatial query failed", zap.Error(err))
		return nil, err
	}

	if err := stageCheck(ctx, "normalize"); err != nil {
		return nil, err
	}
	progress.Emit(2, discoverStages, fmt.Sprintf("Processing %d results...", len(records)))
	businesses := p.normalizer.Normalize(records, progress)

	result := &model.DiscoveryResult{Businesses: businesses, Center: center}
	if result.NoResultsInArea() {
		log.Info("discovery: no businesses in area")
		progress.Emit(discoverStages, discoverStages, model.ErrNoResultsInArea.Error())
		return result, nil
	}

	log.Info("discovery: complete",
		zap.Int("records", len(records)),
		zap.Int("businesses", len(businesses)),
		zap.Int("missing_websites", result.MissingWebsites()),
	)
	progress.Emit(discoverStages, discoverStages, fmt.Sprintf("Found %d businesses", len(businesses)))
	return result, nil
}

// EnrichMissingWebsites looks up a website for every business without one,
// one lookup at a time, pausing the configured delay between lookups. It
// works on a copy of businesses and returns the number of websites found
// together with the updated copy. Lookup failures are skipped. A cancelled
// ctx stops the batch before the next lookup; the partial copy is returned
// with the context error.
func (p *Pipeline) EnrichMissingWebsites(ctx context.Context, businesses []model.Business, progress model.ProgressFunc) (int, []model.Business, error) {
	out := append([]model.Business(nil), businesses...)
	if p.finder == nil {
		return 0, out, eris.New("discovery: no website finder configured")
	}

	var pending []int
	for i := range out {
		if !out[i].HasWebsite() {
			pending = append(pending, i)
		}
	}
	total := len(pending)
	detached := context.WithoutCancel(ctx)
	found := 0

	for n, idx := range pending {
		if n > 0 && p.enrichDelay > 0 {
			if err := p.sleep(ctx, p.enrichDelay); err != nil {
				return found, out, eris.Wrap(err, "discovery: enrichment cancelled")
			}
		}
		if err := stageCheck(ctx, "enrich"); err != nil {
			return found, out, err
		}

		b := &out[idx]
		progress.Emit(n+1, total, fmt.Sprintf("Searching for website: %s", b.Name))
		site, ok := p.finder.FindWebsite(detached, b.Name, b.Address)
		if !ok {
			continue
		}
		b.SetWebsite(&site)
		found++
	}

	zap.L().Info("discovery: enrichment complete", zap.Int("searched", total), zap.Int("found", found))
	return found, out, nil
}

func stageCheck(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrapf(err, "discovery: cancelled before %s", stage)
	}
	return nil
}

func discoverOutcome(res *model.DiscoveryResult, err error) string {
	switch {
	case err == nil && res.NoResultsInArea():
		return string(model.RunStatusNoResults)
	case err == nil:
		return string(model.RunStatusComplete)
	case errors.Is(err, model.ErrLocationNotFound):
		return "location_not_found"
	case errors.Is(err, model.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return string(model.RunStatusCancelled)
	default:
		return string(model.RunStatusFailed)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
