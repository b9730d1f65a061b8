// Package ata implements lazy, memoized acquisition of declaration files
// from a package CDN.
//
// The cache is append-only for the process lifetime: a path is registered as
// Pending exactly once, resolves to exactly one terminal state (Resolved or
// Absent), and is never evicted. The universe of declaration files referenced
// by a project is bounded and small relative to memory.
package ata

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/typewell/typewell/fetcher"
	"github.com/typewell/typewell/registry"
)

// Observer is invoked once per successfully fetched declaration file.
type Observer func(path, text string)

// entry is one declaration-cache slot. done is closed exactly once when the
// entry reaches a terminal state; text/ok are written before the close and
// never mutated after.
type entry struct {
	done chan struct{}
	text string
	ok   bool
}

func (e *entry) settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *entry) settle(text string, ok bool) {
	e.text = text
	e.ok = ok
	close(e.done)
}

// Cache lazily resolves and memoizes declaration text per logical path.
type Cache struct {
	cdnBaseURL string
	fetcher    fetcher.ByteFetcher
	index      *registry.FileIndex
	observer   Observer
	logger     *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache creates a declaration cache. observer may be nil.
func NewCache(cdnBaseURL string, f fetcher.ByteFetcher, index *registry.FileIndex, observer Observer, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		cdnBaseURL: cdnBaseURL,
		fetcher:    f,
		index:      index,
		observer:   observer,
		logger:     logger,
		entries:    make(map[string]*entry),
	}
}

// ensure registers a Pending entry for path on first reference and starts
// its background resolution. Concurrent callers share the same entry, so a
// path is fetched at most once.
func (c *Cache) ensure(path string) *entry {
	c.mu.Lock()
	e, ok := c.entries[path]
	if !ok {
		e = &entry{done: make(chan struct{})}
		c.entries[path] = e
		go c.resolve(path, e)
	}
	c.mu.Unlock()
	return e
}

// Read resolves path to its terminal value, blocking until resolution
// settles. A cancelled context aborts only this caller's wait; the background
// resolution always runs to completion.
func (c *Cache) Read(ctx context.Context, path string) (string, bool) {
	e := c.ensure(path)
	select {
	case <-e.done:
		return e.text, e.ok
	case <-ctx.Done():
		return "", false
	}
}

// Lookup is the non-blocking read used by the engine-facing file accessor.
// On first reference it registers the path (starting a fetch) and reports
// settled=false; once the entry is terminal it returns the settled value.
func (c *Cache) Lookup(path string) (text string, ok bool, settled bool) {
	e := c.ensure(path)
	if !e.settled() {
		return "", false, false
	}
	return e.text, e.ok, true
}

// SettledPaths returns the paths of entries that resolved to text.
func (c *Cache) SettledPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.entries))
	for path, e := range c.entries {
		if e.settled() && e.ok {
			paths = append(paths, path)
		}
	}
	return paths
}

// CurrentVersion drains all currently-pending entries and returns the settled
// entry count. Resolving one file can register another (a shim consults its
// original's manifest), so draining repeats until the registered count stops
// growing between two successive drains.
//
// The count is a coarse change signal, not a content hash: two distinct
// terminal states can leave the same count. Callers tolerate that.
func (c *Cache) CurrentVersion(ctx context.Context) int {
	prev := -1
	for {
		pending, count := c.snapshot()
		if count == prev && len(pending) == 0 {
			return count
		}
		prev = count

		for _, e := range pending {
			select {
			case <-e.done:
			case <-ctx.Done():
				return count
			}
		}
	}
}

// snapshot returns the currently-pending entries and the total entry count
func (c *Cache) snapshot() ([]*entry, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []*entry
	for _, e := range c.entries {
		if !e.settled() {
			pending = append(pending, e)
		}
	}
	return pending, len(c.entries)
}

// resolve computes the terminal state for path. It runs in its own goroutine
// with a background context: acquisition is never cancelled once registered.
func (c *Cache) resolve(path string, e *entry) {
	ctx := context.Background()

	pkg, rel, ok := PackageOf(path)
	if !ok {
		e.settle("", false)
		return
	}

	// Self-referential shim names never exist upstream; skip all network
	if IsKnownInvalidPackage(pkg) {
		c.logger.Debugw("declaration absent, known-invalid package",
			"path", path,
			"package", pkg)
		e.settle("", false)
		return
	}

	// A shim is redundant when the original package ships its own types
	if original, isShim := ShimTarget(pkg); isShim && c.shipsOwnTypes(ctx, original) {
		c.logger.Debugw("declaration absent, shim redundant",
			"path", path,
			"package", original)
		e.settle("", false)
		return
	}

	// Skip fetches the registry listing already rules out. An unavailable
	// listing (empty) never blocks the fetch.
	if files := c.index.FilesOf(ctx, pkg); len(files) > 0 && !contains(files, rel) {
		c.logger.Debugw("declaration absent, not in package listing",
			"path", path,
			"package", pkg)
		e.settle("", false)
		return
	}

	url := c.urlFor(pkg, rel)
	text, fetched := c.fetcher.Fetch(ctx, url)
	if !fetched {
		c.logger.Debugw("declaration absent",
			"path", path,
			"url", url)
		e.settle("", false)
		return
	}

	e.settle(text, true)
	c.logger.Debugw("declaration resolved",
		"path", path,
		"bytes", len(text))

	if c.observer != nil {
		c.observer(path, text)
	}
}

// urlFor builds the CDN request URL, rewriting the package path segment to
// pkg@version when a pin exists for the package.
func (c *Cache) urlFor(pkg, rel string) string {
	segment := pkg
	if version, pinned := c.index.PinnedVersion(pkg); pinned {
		segment = pkg + "@" + version
	}
	return c.cdnBaseURL + "/" + segment + rel
}

// manifest models the two declaration-pointer fields of a package manifest
type manifest struct {
	Types   string `json:"types"`
	Typings string `json:"typings"`
}

// shipsOwnTypes reports whether pkg publishes its own type information,
// either via the manifest's types/typings fields or a conventional top-level
// declaration file. Malformed manifest content is treated as no signal.
func (c *Cache) shipsOwnTypes(ctx context.Context, pkg string) bool {
	manifestPath := NodeModulesPrefix + pkg + "/" + ManifestName
	if text, ok := c.Read(ctx, manifestPath); ok {
		var m manifest
		if err := json.Unmarshal([]byte(text), &m); err == nil {
			if m.Types != "" || m.Typings != "" {
				return true
			}
		}
	}

	return c.index.Contains(ctx, pkg, "/index"+DeclarationSuffix)
}

func contains(files []string, rel string) bool {
	for _, f := range files {
		if f == rel {
			return true
		}
	}
	return false
}
