package vfs

import (
	"sort"

	"github.com/typewell/typewell/ata"
)

// Accessor combines the live overlay with the declaration cache. Editable
// sources win; declaration-namespace paths fall back to the cache, and the
// lookup itself registers unseen paths for acquisition — probing a file is
// what starts its fetch.
type Accessor struct {
	overlay *Overlay
	cache   *ata.Cache
}

// NewAccessor creates an accessor over the given overlay and cache
func NewAccessor(overlay *Overlay, cache *ata.Cache) *Accessor {
	return &Accessor{
		overlay: overlay,
		cache:   cache,
	}
}

// ListFiles returns every path currently visible: open documents plus
// declaration files that have resolved.
func (a *Accessor) ListFiles() []string {
	seen := make(map[string]struct{})
	var paths []string

	for _, path := range a.overlay.Paths() {
		seen[path] = struct{}{}
		paths = append(paths, path)
	}
	for _, path := range a.cache.SettledPaths() {
		if _, dup := seen[path]; !dup {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)
	return paths
}

// Read returns file content, consulting live editable-source state first and
// falling back to the declaration cache. A declaration file that has not yet
// resolved reads as absent now and will be present once acquisition settles.
func (a *Accessor) Read(path string) (string, bool) {
	if text, ok := a.overlay.Read(path); ok {
		return text, ok
	}

	if !ata.IsDeclarationPath(path) {
		return "", false
	}

	text, ok, settled := a.cache.Lookup(path)
	if !settled {
		return "", false
	}
	return text, ok
}

// Exists reports whether path is currently visible
func (a *Accessor) Exists(path string) bool {
	_, ok := a.Read(path)
	return ok
}
