package geocode

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/metrics"
	"github.com/sells-group/business-finder/internal/model"
)

// Resolver turns a place query into one best-guess Location.
type Resolver struct {
	geocoder Geocoder
}

// NewResolver creates a Resolver backed by g.
func NewResolver(g Geocoder) *Resolver {
	return &Resolver{geocoder: g}
}

// Resolve looks up each candidate from hint.Candidates in order and returns
// the first match. Lookups are not retried. A backend error ends resolution
// immediately. Every failure is a *model.LocationNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, query string, hint RegionHint) (model.Location, error) {
	log := zap.L().With(zap.String("query", query))
	candidates := hint.Candidates(query)

	var tried []string
	for _, q := range candidates {
		tried = append(tried, q)
		m, err := r.geocoder.Lookup(ctx, q)
		if err != nil {
			metrics.GeocodeLookupsTotal.WithLabelValues("error").Inc()
			log.Warn("geocode: lookup failed", zap.String("lookup", q), zap.Error(err))
			return model.Location{}, &model.LocationNotFoundError{Query: query, Attempts: tried, Err: err}
		}
		if m == nil {
			metrics.GeocodeLookupsTotal.WithLabelValues("miss").Inc()
			continue
		}
		metrics.GeocodeLookupsTotal.WithLabelValues("hit").Inc()
		log.Info("geocode: resolved",
			zap.String("lookup", q),
			zap.Float64("lat", m.Latitude),
			zap.Float64("lon", m.Longitude),
		)
		return model.Location{Query: query, Latitude: m.Latitude, Longitude: m.Longitude}, nil
	}

	log.Warn("geocode: no match", zap.Strings("attempts", tried))
	return model.Location{}, &model.LocationNotFoundError{Query: query, Attempts: tried}
}
