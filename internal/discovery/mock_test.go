package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/pkg/geocode"
)

type mockResolver struct {
	loc     model.Location
	err     error
	calls   int
	ctxErrs []error
	onCall  func()
}

func (m *mockResolver) Resolve(ctx context.Context, query string, _ geocode.RegionHint) (model.Location, error) {
	m.calls++
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.onCall != nil {
		m.onCall()
	}
	if m.err != nil {
		return model.Location{}, m.err
	}
	loc := m.loc
	loc.Query = query
	return loc, nil
}

type mockPoints struct {
	records []model.RawPointRecord
	err     error
	calls   int
	center  model.Location
	radius  float64
}

func (m *mockPoints) QueryNamedPoints(_ context.Context, center model.Location, radiusKM float64) ([]model.RawPointRecord, error) {
	m.calls++
	m.center = center
	m.radius = radiusKM
	return m.records, m.err
}

type mockFinder struct {
	mu      sync.Mutex
	sites   map[string]string
	queries []string
	block   chan struct{}
}

func (m *mockFinder) FindWebsite(_ context.Context, name, _ string) (string, bool) {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, name)
	site, ok := m.sites[name]
	return site, ok
}

func (m *mockFinder) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

// sleepRecorder records requested pauses without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func node(id int64, tags map[string]string) model.RawPointRecord {
	return model.RawPointRecord{ID: id, Latitude: 40 + float64(id)/1000, Longitude: -105, Tags: tags}
}

func strPtr(s string) *string { return &s }
