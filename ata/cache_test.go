package ata

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/typewell/typewell/registry"
)

const testCDN = "https://cdn.test/npm"

// fakeFetcher serves canned responses and records every requested URL
type fakeFetcher struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string
	gate      chan struct{} // when non-nil, Fetch blocks until closed
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, bool) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.calls = append(f.calls, url)
	text, ok := f.responses[url]
	f.mu.Unlock()
	return text, ok
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) calledURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeLookup backs the file index without a network
type fakeLookup struct {
	latest map[string]string
	files  map[string][]string
}

func (f *fakeLookup) ResolveLatestVersion(ctx context.Context, pkg string) (string, bool) {
	v, ok := f.latest[pkg]
	return v, ok
}

func (f *fakeLookup) ListFlatFiles(ctx context.Context, pkg, version string) ([]string, bool) {
	files, ok := f.files[pkg+"@"+version]
	return files, ok
}

func newTestCache(f *fakeFetcher, lookup *fakeLookup, pins map[string]string, observer Observer) *Cache {
	if lookup == nil {
		lookup = &fakeLookup{}
	}
	log := zap.NewNop().Sugar()
	idx := registry.NewFileIndex(lookup, pins, log)
	return NewCache(testCDN, f, idx, observer, log)
}

func TestRead_ResolvesText(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/lodash/index.d.ts": "export declare const VERSION: string;",
	}}
	c := newTestCache(f, nil, nil, nil)

	text, ok := c.Read(context.Background(), "/node_modules/lodash/index.d.ts")
	require.True(t, ok)
	assert.Equal(t, "export declare const VERSION: string;", text)
}

func TestRead_AbsentOnFetchFailure(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{}}
	c := newTestCache(f, nil, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/lodash/index.d.ts")
	assert.False(t, ok)
}

func TestRead_SingleFetchForConcurrentReaders(t *testing.T) {
	f := &fakeFetcher{
		responses: map[string]string{testCDN + "/react/index.d.ts": "declare module react;"},
		gate:      make(chan struct{}),
	}
	c := newTestCache(f, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text, ok := c.Read(context.Background(), "/node_modules/react/index.d.ts")
			require.True(t, ok)
			results[i] = text
		}(i)
	}

	close(f.gate)
	wg.Wait()

	assert.Equal(t, 1, f.callCount(), "concurrent readers share one fetch")
	for _, r := range results {
		assert.Equal(t, "declare module react;", r)
	}
}

func TestRead_PinRewritesURL(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/lodash@4.17.21/package.json": `{"name": "lodash"}`,
	}}
	c := newTestCache(f, nil, map[string]string{"lodash": "4.17.21"}, nil)

	text, ok := c.Read(context.Background(), "/node_modules/lodash/package.json")
	require.True(t, ok)
	assert.Equal(t, `{"name": "lodash"}`, text)

	urls := f.calledURLs()
	require.Len(t, urls, 1)
	assert.True(t, strings.HasSuffix(urls[0], "lodash@4.17.21/package.json"),
		"pin rewrites the package path segment, got %s", urls[0])
}

func TestRead_ShimRedundantWhenManifestDeclaresTypes(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/foo/package.json": `{"name": "foo", "types": "index.d.ts"}`,
	}}
	c := newTestCache(f, nil, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/@types/foo/index.d.ts")
	assert.False(t, ok, "redundant shim resolves Absent")

	for _, url := range f.calledURLs() {
		assert.NotContains(t, url, "@types/foo", "no fetch to the shim's own CDN path")
	}
}

func TestRead_ShimRedundantViaTopLevelDeclaration(t *testing.T) {
	// foo's manifest carries no types field, but the registry listing shows
	// a conventional top-level declaration file
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/foo/package.json": `{"name": "foo"}`,
	}}
	lookup := &fakeLookup{
		latest: map[string]string{"foo": "1.0.0"},
		files:  map[string][]string{"foo@1.0.0": {"/package.json", "/index.d.ts"}},
	}
	c := newTestCache(f, lookup, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/@types/foo/index.d.ts")
	assert.False(t, ok)

	for _, url := range f.calledURLs() {
		assert.NotContains(t, url, "@types/foo")
	}
}

func TestRead_ShimFetchedWhenOriginalShipsNoTypes(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/foo/package.json":      `{"name": "foo"}`,
		testCDN + "/@types/foo/index.d.ts": "declare const foo: any;",
	}}
	c := newTestCache(f, nil, nil, nil)

	text, ok := c.Read(context.Background(), "/node_modules/@types/foo/index.d.ts")
	require.True(t, ok)
	assert.Equal(t, "declare const foo: any;", text)
}

func TestRead_MalformedManifestIsNoSignal(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/foo/package.json":      `{not json`,
		testCDN + "/@types/foo/index.d.ts": "declare const foo: any;",
	}}
	c := newTestCache(f, nil, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/@types/foo/index.d.ts")
	assert.True(t, ok, "malformed manifest proceeds to fetch normally")
}

func TestRead_KnownInvalidPackageNeverFetches(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{}}
	c := newTestCache(f, nil, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/@types/@types/index.d.ts")
	assert.False(t, ok)
	assert.Equal(t, 0, f.callCount(), "zero network access for known-invalid packages")
}

func TestRead_ListingShortCircuitsDoomedFetch(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{}}
	lookup := &fakeLookup{
		latest: map[string]string{"lodash": "4.17.21"},
		files:  map[string][]string{"lodash@4.17.21": {"/package.json", "/index.d.ts"}},
	}
	c := newTestCache(f, lookup, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/lodash/fp/nope.d.ts")
	assert.False(t, ok)
	assert.Equal(t, 0, f.callCount(), "listed package without the file skips the fetch")
}

func TestRead_UnavailableListingStillFetches(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/lodash/index.d.ts": "declare const _: any;",
	}}
	// registry resolution fails entirely; the fetch must proceed
	c := newTestCache(f, &fakeLookup{}, nil, nil)

	_, ok := c.Read(context.Background(), "/node_modules/lodash/index.d.ts")
	assert.True(t, ok)
}

func TestLookup_RegistersThenSettles(t *testing.T) {
	f := &fakeFetcher{
		responses: map[string]string{testCDN + "/lodash/index.d.ts": "x"},
		gate:      make(chan struct{}),
	}
	c := newTestCache(f, nil, nil, nil)

	_, _, settled := c.Lookup("/node_modules/lodash/index.d.ts")
	assert.False(t, settled, "first reference reports in-flight")

	close(f.gate)
	c.CurrentVersion(context.Background())

	text, ok, settled := c.Lookup("/node_modules/lodash/index.d.ts")
	assert.True(t, settled)
	assert.True(t, ok)
	assert.Equal(t, "x", text)
}

func TestCurrentVersion_EmptyCache(t *testing.T) {
	c := newTestCache(&fakeFetcher{}, nil, nil, nil)
	assert.Equal(t, 0, c.CurrentVersion(context.Background()))
}

func TestCurrentVersion_DrainsChainedRegistrations(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/foo/package.json": `{"name": "foo", "types": "index.d.ts"}`,
	}}
	c := newTestCache(f, nil, nil, nil)

	// Registering the shim triggers registration of the original's manifest
	c.Lookup("/node_modules/@types/foo/index.d.ts")

	version := c.CurrentVersion(context.Background())
	assert.Equal(t, 2, version, "drain continues until the registered count stops growing")
}

func TestCurrentVersion_MonotonicAcrossResolutions(t *testing.T) {
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/a/index.d.ts": "a",
		testCDN + "/b/index.d.ts": "b",
	}}
	c := newTestCache(f, nil, nil, nil)
	ctx := context.Background()

	c.Lookup("/node_modules/a/index.d.ts")
	v1 := c.CurrentVersion(ctx)

	c.Lookup("/node_modules/b/index.d.ts")
	v2 := c.CurrentVersion(ctx)

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)
	assert.GreaterOrEqual(t, v2, v1)
}

func TestObserver_InvokedOncePerResolvedFile(t *testing.T) {
	var observed int32
	f := &fakeFetcher{responses: map[string]string{
		testCDN + "/lodash/index.d.ts": "declare const _: any;",
	}}
	c := newTestCache(f, nil, nil, func(path, text string) {
		atomic.AddInt32(&observed, 1)
		assert.Equal(t, "/node_modules/lodash/index.d.ts", path)
		assert.Equal(t, "declare const _: any;", text)
	})
	ctx := context.Background()

	c.Read(ctx, "/node_modules/lodash/index.d.ts")
	c.Read(ctx, "/node_modules/lodash/index.d.ts")
	// absent files never reach the observer
	c.Read(ctx, "/node_modules/lodash/missing.d.ts")

	assert.Equal(t, int32(1), atomic.LoadInt32(&observed))
}

func TestRead_CancelledWaitDoesNotAbortResolution(t *testing.T) {
	f := &fakeFetcher{
		responses: map[string]string{testCDN + "/lodash/index.d.ts": "x"},
		gate:      make(chan struct{}),
	}
	c := newTestCache(f, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := c.Read(ctx, "/node_modules/lodash/index.d.ts")
	assert.False(t, ok, "cancelled wait returns absent to this caller")

	close(f.gate)
	require.Eventually(t, func() bool {
		_, ok, settled := c.Lookup("/node_modules/lodash/index.d.ts")
		return settled && ok
	}, time.Second, 5*time.Millisecond, "background resolution runs to completion")
}
