// Package proxy wraps a query engine so every answer reflects the full set
// of declarations resolved by the time the answer is produced.
//
// Declaration fetches triggered by a query (the engine probing a file it
// does not have) complete concurrently with the query itself. Instead of
// blocking every call until all fetching in the universe finishes, the proxy
// re-checks the cache's world version after each execution and re-runs the
// operation against a freshly built engine until the version is stable. The
// loop terminates because a project references a finite set of declaration
// files, so the version can only grow a bounded number of times.
package proxy

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/typewell/typewell/ata"
	"github.com/typewell/typewell/engine"
	"github.com/typewell/typewell/errors"
)

// Proxy is the consistency-preserving façade in front of a query engine.
// It implements engine.QueryOps; callers never touch an engine instance
// directly.
type Proxy struct {
	cache    *ata.Cache
	factory  engine.Factory
	accessor engine.FileAccessor
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	current  engine.Instance
	inFlight int
	disposal []engine.Instance // superseded instances, released when idle
}

// New creates a proxy with an initial engine instance
func New(cache *ata.Cache, factory engine.Factory, accessor engine.FileAccessor, logger *zap.SugaredLogger) *Proxy {
	return &Proxy{
		cache:    cache,
		factory:  factory,
		accessor: accessor,
		logger:   logger,
		current:  factory.Create(accessor),
	}
}

// Hover answers a hover query with freshness guarantees
func (p *Proxy) Hover(ctx context.Context, path string, offset int) (*engine.HoverResult, error) {
	return run(ctx, p, func(inst engine.Instance) (*engine.HoverResult, error) {
		return inst.Hover(ctx, path, offset)
	})
}

// Completions answers a completion query with freshness guarantees
func (p *Proxy) Completions(ctx context.Context, path string, prefix string) ([]engine.CompletionItem, error) {
	return run(ctx, p, func(inst engine.Instance) ([]engine.CompletionItem, error) {
		return inst.Completions(ctx, path, prefix)
	})
}

// Diagnostics answers a diagnostics query with freshness guarantees
func (p *Proxy) Diagnostics(ctx context.Context, path string) ([]engine.Diagnostic, error) {
	return run(ctx, p, func(inst engine.Instance) ([]engine.Diagnostic, error) {
		return inst.Diagnostics(ctx, path)
	})
}

// SnapshotID forwards the current instance's identifier. Pure data, not
// affected by declaration freshness, so no retry loop. Empty after Close.
func (p *Proxy) SnapshotID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.SnapshotID()
}

// run executes op with the per-call consistency algorithm:
//
//  1. enter (inFlight++), capture the current instance
//  2. read the world version, draining pending fetches registered so far
//  3. execute op
//  4. re-read the version; while it moved, supersede the instance, rebuild,
//     re-execute, and check again
//  5. exit (inFlight--); at zero, release every superseded instance
//
// Engine-level errors propagate to the caller unmodified and are never
// retried; only staleness triggers re-execution. The exit decrement is
// guaranteed on all paths.
func run[T any](ctx context.Context, p *Proxy, op func(engine.Instance) (T, error)) (T, error) {
	inst := p.enter()
	defer p.exit()

	if inst == nil {
		var zero T
		return zero, errors.Wrap(errors.ErrServiceUnavailable, "proxy closed")
	}

	oldVersion := p.cache.CurrentVersion(ctx)

	result, err := op(inst)
	if err != nil {
		var zero T
		return zero, err
	}

	for {
		newVersion := p.cache.CurrentVersion(ctx)
		if newVersion == oldVersion {
			return result, nil
		}

		p.logger.Debugw("world version moved, re-running query",
			"world_version", newVersion)

		oldVersion = newVersion
		inst = p.refresh(inst)

		result, err = op(inst)
		if err != nil {
			var zero T
			return zero, err
		}
	}
}

// enter registers an in-flight call and returns the instance it runs against
func (p *Proxy) enter() engine.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight++
	return p.current
}

// exit deregisters a call. The last call out releases every superseded
// instance: a superseded instance may still back another in-flight call's
// result production, so disposal waits for full idleness.
func (p *Proxy) exit() {
	p.mu.Lock()
	p.inFlight--
	var release []engine.Instance
	if p.inFlight == 0 && len(p.disposal) > 0 {
		release = p.disposal
		p.disposal = nil
	}
	p.mu.Unlock()

	for _, inst := range release {
		inst.Dispose()
	}
}

// refresh supersedes stale and returns the instance to re-run against.
// Another call may have already replaced the same stale instance; in that
// case the existing current instance is fresh enough and is reused, so one
// instance is never queued for disposal twice.
func (p *Proxy) refresh(stale engine.Instance) engine.Instance {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == stale {
		p.disposal = append(p.disposal, p.current)
		p.current = p.factory.Create(p.accessor)
	}
	return p.current
}

// Close releases the current instance and any pending disposals. Callers
// must ensure no queries are in flight.
func (p *Proxy) Close() {
	p.mu.Lock()
	release := p.disposal
	p.disposal = nil
	current := p.current
	p.current = nil
	p.mu.Unlock()

	for _, inst := range release {
		inst.Dispose()
	}
	if current != nil {
		current.Dispose()
	}
}
