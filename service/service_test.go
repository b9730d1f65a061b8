package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/vfs"
)

func testConfig() *config.Config {
	return &config.Config{
		Fetch: config.FetchConfig{
			CDNBaseURL:        "https://cdn.test/npm",
			TimeoutSeconds:    5,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Registry: config.RegistryConfig{
			BaseURL:        "https://registry.test/v1",
			TimeoutSeconds: 5,
		},
		Pins: map[string]string{"lodash": "4.17.21"},
	}
}

func TestNew_AssemblesPipeline(t *testing.T) {
	svc := New(testConfig(), nil, nil, zap.NewNop().Sugar())
	defer svc.Close()

	require.NotNil(t, svc.Overlay)
	require.NotNil(t, svc.Index)
	require.NotNil(t, svc.Cache)
	require.NotNil(t, svc.Proxy)

	version, pinned := svc.Index.PinnedVersion("lodash")
	require.True(t, pinned)
	assert.Equal(t, "4.17.21", version)

	assert.NotEmpty(t, svc.Proxy.SnapshotID())
}

func TestNew_SharedOverlaySurvivesRebuild(t *testing.T) {
	overlay := vfs.NewOverlay()
	overlay.Open("/src/app.ts", "const a = 1;")

	first := New(testConfig(), overlay, nil, zap.NewNop().Sugar())
	defer first.Close()
	second := New(testConfig(), overlay, nil, zap.NewNop().Sugar())
	defer second.Close()

	text, ok := second.Overlay.Read("/src/app.ts")
	require.True(t, ok)
	assert.Equal(t, "const a = 1;", text)
	assert.Same(t, first.Overlay, second.Overlay)
}
