package discovery

import (
	"context"
	"sync"

	"github.com/sells-group/business-finder/internal/model"
)

// progressBuffer bounds queued progress events. Events beyond it are
// dropped rather than blocking the worker.
const progressBuffer = 64

// Task is work running on its own goroutine. The caller follows it through
// Events and collects the outcome with Wait.
type Task[T any] struct {
	events chan model.Progress
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	latest *model.Progress
	result T
	err    error
}

func startTask[T any](ctx context.Context, fn func(ctx context.Context, progress model.ProgressFunc) (T, error)) *Task[T] {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task[T]{
		events: make(chan model.Progress, progressBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go func() {
		defer close(t.done)
		defer close(t.events)
		defer cancel()
		res, err := fn(ctx, t.emit)
		t.mu.Lock()
		t.result, t.err = res, err
		t.mu.Unlock()
	}()
	return t
}

func (t *Task[T]) emit(p model.Progress) {
	t.mu.Lock()
	t.latest = &p
	t.mu.Unlock()
	select {
	case t.events <- p:
	default:
	}
}

// Events streams progress. The channel is closed when the task finishes.
func (t *Task[T]) Events() <-chan model.Progress { return t.events }

// Done is closed when the task finishes.
func (t *Task[T]) Done() <-chan struct{} { return t.done }

// Latest returns the most recent progress event, or nil before the first.
func (t *Task[T]) Latest() *model.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return nil
	}
	p := *t.latest
	return &p
}

// Cancel asks the task to stop at its next stage boundary. It does not wait.
func (t *Task[T]) Cancel() { t.cancel() }

// Wait blocks until the task finishes and returns its outcome.
func (t *Task[T]) Wait() (T, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// EnrichResult is the outcome of an enrichment batch.
type EnrichResult struct {
	Found      int
	Businesses []model.Business
}

// StartDiscovery runs Discover on a dedicated goroutine.
func (p *Pipeline) StartDiscovery(ctx context.Context, params model.SearchParameters) *Task[*model.DiscoveryResult] {
	return startTask(ctx, func(ctx context.Context, progress model.ProgressFunc) (*model.DiscoveryResult, error) {
		return p.Discover(ctx, params, progress)
	})
}

// StartEnrichment runs EnrichMissingWebsites on a dedicated goroutine. The
// businesses slice is copied before the goroutine starts; the enriched copy
// is handed back through Wait.
func (p *Pipeline) StartEnrichment(ctx context.Context, businesses []model.Business) *Task[EnrichResult] {
	in := append([]model.Business(nil), businesses...)
	return startTask(ctx, func(ctx context.Context, progress model.ProgressFunc) (EnrichResult, error) {
		found, out, err := p.EnrichMissingWebsites(ctx, in, progress)
		return EnrichResult{Found: found, Businesses: out}, err
	})
}
