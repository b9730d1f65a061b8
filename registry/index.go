package registry

import (
	"context"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileIndex memoizes, per bare package name, the list of file paths that
// exist inside that package at the resolved version. The memo lives for the
// process lifetime: at most one registry round-trip happens per package no
// matter how many callers ask, and the settled value (including "unavailable",
// represented as an empty listing) is never re-fetched.
type FileIndex struct {
	lookup Lookup
	pins   map[string]string // package name -> pinned version, immutable
	logger *zap.SugaredLogger

	mu       sync.Mutex
	listings map[string][]string
	flight   singleflight.Group
}

// NewFileIndex creates a file index over the given lookup. Pins that are not
// valid semver are dropped with a warning so a typo cannot poison every fetch
// for that package.
func NewFileIndex(lookup Lookup, pins map[string]string, logger *zap.SugaredLogger) *FileIndex {
	validated := make(map[string]string, len(pins))
	for pkg, version := range pins {
		if _, err := semver.NewVersion(version); err != nil {
			logger.Warnw("ignoring unparseable version pin",
				"package", pkg,
				"version", version)
			continue
		}
		validated[pkg] = version
	}

	return &FileIndex{
		lookup:   lookup,
		pins:     validated,
		logger:   logger,
		listings: make(map[string][]string),
	}
}

// PinnedVersion returns the pinned version for pkg, if any.
func (x *FileIndex) PinnedVersion(pkg string) (string, bool) {
	version, ok := x.pins[pkg]
	return version, ok
}

// FilesOf returns the relative file paths known to exist in pkg. The result
// is empty when version resolution or the listing fetch failed; that settled
// failure is memoized like any other result.
func (x *FileIndex) FilesOf(ctx context.Context, pkg string) []string {
	x.mu.Lock()
	if listing, ok := x.listings[pkg]; ok {
		x.mu.Unlock()
		return listing
	}
	x.mu.Unlock()

	// Concurrent first callers share one resolution
	result, _, _ := x.flight.Do(pkg, func() (interface{}, error) {
		listing := x.resolve(ctx, pkg)

		x.mu.Lock()
		if settled, ok := x.listings[pkg]; ok {
			// Another flight settled first; keep the settled value
			x.mu.Unlock()
			return settled, nil
		}
		x.listings[pkg] = listing
		x.mu.Unlock()

		return listing, nil
	})

	return result.([]string)
}

// Contains reports whether rel (e.g. "/index.d.ts") is listed in pkg.
func (x *FileIndex) Contains(ctx context.Context, pkg, rel string) bool {
	for _, f := range x.FilesOf(ctx, pkg) {
		if f == rel {
			return true
		}
	}
	return false
}

// resolve performs the registry round-trip for one package
func (x *FileIndex) resolve(ctx context.Context, pkg string) []string {
	version, pinned := x.pins[pkg]
	if !pinned {
		var ok bool
		version, ok = x.lookup.ResolveLatestVersion(ctx, pkg)
		if !ok {
			x.logger.Debugw("version resolution failed",
				"package", pkg)
			return []string{}
		}
	}

	files, ok := x.lookup.ListFlatFiles(ctx, pkg, version)
	if !ok {
		x.logger.Debugw("file listing unavailable",
			"package", pkg,
			"version", version)
		return []string{}
	}

	x.logger.Debugw("package files resolved",
		"package", pkg,
		"version", version,
		"files", len(files))
	return files
}
