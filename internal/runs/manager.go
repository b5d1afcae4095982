// Package runs owns discovery and enrichment runs on behalf of the CLI and
// HTTP API: it starts pipeline tasks, tracks their live progress and
// persists their outcome.
package runs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/business-finder/internal/discovery"
	"github.com/sells-group/business-finder/internal/geoindex"
	"github.com/sells-group/business-finder/internal/model"
	"github.com/sells-group/business-finder/internal/store"
)

var (
	// ErrBusy means a discovery is already running; only one runs at a time.
	ErrBusy = eris.New("runs: a discovery is already running")

	// ErrRunActive means the run has a task in flight.
	ErrRunActive = eris.New("runs: run has an active task")

	// ErrNotActive means there is nothing to cancel.
	ErrNotActive = eris.New("runs: run has no active task")

	// ErrNoResult means the run never produced a discovery result.
	ErrNoResult = eris.New("runs: run has no discovery result")
)

const persistTimeout = 30 * time.Second

// Engine starts pipeline work. *discovery.Pipeline satisfies it.
type Engine interface {
	StartDiscovery(ctx context.Context, params model.SearchParameters) *discovery.Task[*model.DiscoveryResult]
	StartEnrichment(ctx context.Context, businesses []model.Business) *discovery.Task[discovery.EnrichResult]
}

type taskKind string

const (
	kindDiscovery  taskKind = "discovery"
	kindEnrichment taskKind = "enrichment"
)

type activeTask struct {
	kind     taskKind
	cancel   func()
	latest   func() *model.Progress
	events   <-chan model.Progress
	finished chan struct{}
}

// Manager tracks in-flight tasks in memory and everything else in the store.
type Manager struct {
	engine Engine
	store  store.Store

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu          sync.Mutex
	active      map[string]*activeTask
	discovering string
}

// NewManager creates a Manager. Tasks outlive the request that started them
// and stop only through Cancel or Close.
func NewManager(engine Engine, st store.Store) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		engine: engine,
		store:  st,
		ctx:    ctx,
		stop:   stop,
		active: make(map[string]*activeTask),
	}
}

// Start records a new run and begins discovery on its own goroutine.
func (m *Manager) Start(ctx context.Context, params model.SearchParameters) (*model.Run, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discovering != "" {
		return nil, eris.Wrapf(ErrBusy, "run %s", m.discovering)
	}

	run, err := m.store.CreateRun(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "runs: create run")
	}
	if err := m.store.UpdateRunStatus(ctx, run.ID, model.RunStatusGeocoding, ""); err != nil {
		return nil, eris.Wrap(err, "runs: mark run started")
	}
	run.Status = model.RunStatusGeocoding

	task := m.engine.StartDiscovery(m.ctx, params)
	at := m.track(run.ID, kindDiscovery, task.Cancel, task.Latest, task.Events())
	m.discovering = run.ID

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res, err := task.Wait()
		m.finishDiscovery(run.ID, res, err)
		m.untrack(run.ID, at)
	}()

	zap.L().Info("runs: discovery started",
		zap.String("run_id", run.ID),
		zap.String("location", params.LocationQuery),
		zap.Float64("radius_km", params.RadiusKM),
	)
	return run, nil
}

// Enrich looks up websites for the run's businesses that have none.
func (m *Manager) Enrich(ctx context.Context, runID string) (*model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[runID]; ok {
		return nil, eris.Wrapf(ErrRunActive, "run %s", runID)
	}

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Result() == nil {
		return nil, eris.Wrapf(ErrNoResult, "run %s", runID)
	}
	if err := m.store.UpdateRunStatus(ctx, runID, model.RunStatusEnriching, ""); err != nil {
		return nil, eris.Wrap(err, "runs: mark run enriching")
	}
	run.Status = model.RunStatusEnriching

	task := m.engine.StartEnrichment(m.ctx, run.Businesses)
	at := m.track(runID, kindEnrichment, task.Cancel, task.Latest, task.Events())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res, err := task.Wait()
		m.finishEnrichment(run, res, err)
		m.untrack(runID, at)
	}()

	zap.L().Info("runs: enrichment started",
		zap.String("run_id", runID),
		zap.Int("missing", run.Result().MissingWebsites()),
	)
	return run, nil
}

// track must be called with m.mu held.
func (m *Manager) track(runID string, kind taskKind, cancel func(), latest func() *model.Progress, events <-chan model.Progress) *activeTask {
	at := &activeTask{
		kind:     kind,
		cancel:   cancel,
		latest:   latest,
		events:   events,
		finished: make(chan struct{}),
	}
	m.active[runID] = at
	return at
}

func (m *Manager) untrack(runID string, at *activeTask) {
	m.mu.Lock()
	if m.active[runID] == at {
		delete(m.active, runID)
	}
	if at.kind == kindDiscovery && m.discovering == runID {
		m.discovering = ""
	}
	m.mu.Unlock()
	close(at.finished)
}

func (m *Manager) persistContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(m.ctx), persistTimeout)
}

func (m *Manager) finishDiscovery(runID string, res *model.DiscoveryResult, err error) {
	ctx, cancel := m.persistContext()
	defer cancel()
	log := zap.L().With(zap.String("run_id", runID))

	if err != nil {
		status := failureStatus(err)
		log.Warn("runs: discovery ended", zap.String("status", string(status)), zap.Error(err))
		if uerr := m.store.UpdateRunStatus(ctx, runID, status, err.Error()); uerr != nil {
			log.Error("runs: persist failure", zap.Error(uerr))
		}
		return
	}

	status := model.RunStatusComplete
	if res.NoResultsInArea() {
		status = model.RunStatusNoResults
	}
	if serr := m.store.SaveResult(ctx, runID, status, res, 0); serr != nil {
		log.Error("runs: persist result", zap.Error(serr))
		return
	}
	log.Info("runs: discovery finished",
		zap.String("status", string(status)),
		zap.Int("businesses", len(res.Businesses)),
	)
}

// finishEnrichment saves whatever was found, including a partial batch
// from a cancelled task.
func (m *Manager) finishEnrichment(run *model.Run, res discovery.EnrichResult, err error) {
	ctx, cancel := m.persistContext()
	defer cancel()
	log := zap.L().With(zap.String("run_id", run.ID))

	businesses := res.Businesses
	if businesses == nil {
		businesses = run.Businesses
	}
	result := &model.DiscoveryResult{Businesses: businesses, Center: *run.Center}
	if serr := m.store.SaveResult(ctx, run.ID, model.RunStatusComplete, result, run.Enriched+res.Found); serr != nil {
		log.Error("runs: persist enrichment", zap.Error(serr))
		return
	}

	if err != nil {
		status := failureStatus(err)
		log.Warn("runs: enrichment ended early", zap.Int("found", res.Found), zap.Error(err))
		if uerr := m.store.UpdateRunStatus(ctx, run.ID, status, err.Error()); uerr != nil {
			log.Error("runs: persist enrichment status", zap.Error(uerr))
		}
		return
	}
	log.Info("runs: enrichment finished", zap.Int("found", res.Found))
}

func failureStatus(err error) model.RunStatus {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return model.RunStatusCancelled
	}
	return model.RunStatusFailed
}

// Cancel asks the run's active task to stop at its next stage boundary.
func (m *Manager) Cancel(runID string) error {
	m.mu.Lock()
	at, ok := m.active[runID]
	m.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrNotActive, "run %s", runID)
	}
	at.cancel()
	zap.L().Info("runs: cancel requested", zap.String("run_id", runID), zap.String("task", string(at.kind)))
	return nil
}

// Wait blocks until the run's active task has finished and its outcome is
// stored. It returns immediately when nothing is running.
func (m *Manager) Wait(ctx context.Context, runID string) error {
	m.mu.Lock()
	at, ok := m.active[runID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-at.finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the live progress stream of the run's active task. The
// stream has a single consumer; it is closed when the task finishes.
func (m *Manager) Events(runID string) (<-chan model.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.active[runID]
	if !ok {
		return nil, false
	}
	return at.events, true
}

// Active reports whether the run has a task in flight.
func (m *Manager) Active(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[runID]
	return ok
}

// Get loads a run and attaches live progress when a task is in flight.
func (m *Manager) Get(ctx context.Context, runID string) (*model.Run, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	at, ok := m.active[runID]
	m.mu.Unlock()
	if ok {
		run.Progress = at.latest()
	}
	return run, nil
}

// List returns stored runs, newest first.
func (m *Manager) List(ctx context.Context, filter store.RunFilter) ([]model.Run, error) {
	return m.store.ListRuns(ctx, filter)
}

// SetWebsite records a manually found website. An empty or nil website
// clears it. Complete is recomputed either way.
func (m *Manager) SetWebsite(ctx context.Context, runID, name string, website *string) (*model.Business, error) {
	m.mu.Lock()
	if _, ok := m.active[runID]; ok {
		m.mu.Unlock()
		return nil, eris.Wrapf(ErrRunActive, "run %s", runID)
	}
	// Enrich snapshots businesses under m.mu.
	err := m.store.UpdateWebsite(ctx, runID, name, website)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	idx := run.FindBusiness(name)
	if idx < 0 {
		return nil, eris.Wrapf(store.ErrNotFound, "business %q", name)
	}
	b := run.Businesses[idx]
	zap.L().Info("runs: website updated",
		zap.String("run_id", runID),
		zap.String("business", name),
		zap.Bool("complete", b.Complete),
	)
	return &b, nil
}

// Nearby returns the k businesses of a run closest to (lat, lon).
func (m *Manager) Nearby(ctx context.Context, runID string, lat, lon float64, k int) ([]geoindex.Neighbor, error) {
	run, err := m.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Center == nil {
		return nil, eris.Wrapf(ErrNoResult, "run %s", runID)
	}
	return geoindex.New(*run.Center, run.Businesses).Nearest(lat, lon, k), nil
}

// Close cancels every active task and waits for their outcomes to be stored.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}
