// Package service assembles the acquisition pipeline: fetcher, registry
// index, declaration cache, file view and consistency proxy, built from one
// configuration snapshot.
//
// Version pins are baked into the registry index at construction, so a pin
// change requires a fresh Service. The document overlay can be shared across
// rebuilds to keep client edits alive.
package service

import (
	"go.uber.org/zap"

	"github.com/typewell/typewell/ata"
	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/engine"
	"github.com/typewell/typewell/fetcher"
	"github.com/typewell/typewell/internal/httpclient"
	"github.com/typewell/typewell/proxy"
	"github.com/typewell/typewell/registry"
	"github.com/typewell/typewell/vfs"
)

// Service is one assembled acquisition pipeline
type Service struct {
	Config  *config.Config
	Overlay *vfs.Overlay
	Index   *registry.FileIndex
	Cache   *ata.Cache
	Proxy   *proxy.Proxy
}

// New builds a service from cfg. overlay may be nil, in which case a fresh
// one is created; observer may be nil.
func New(cfg *config.Config, overlay *vfs.Overlay, observer ata.Observer, logger *zap.SugaredLogger) *Service {
	if overlay == nil {
		overlay = vfs.NewOverlay()
	}

	registryClient := registry.NewClient(
		cfg.Registry.BaseURL,
		httpclient.NewSaferClient(cfg.Registry.Timeout()),
		logger,
	)
	index := registry.NewFileIndex(registryClient, cfg.Pins, logger)

	cdn := fetcher.NewCDNFetcher(
		httpclient.NewSaferClient(cfg.Fetch.Timeout()),
		cfg.Fetch.RequestsPerSecond,
		cfg.Fetch.Burst,
		logger,
	)
	cache := ata.NewCache(cfg.Fetch.CDNBaseURL, cdn, index, observer, logger)

	accessor := vfs.NewAccessor(overlay, cache)

	return &Service{
		Config:  cfg,
		Overlay: overlay,
		Index:   index,
		Cache:   cache,
		Proxy:   proxy.New(cache, engine.NewDeclScanner(), accessor, logger),
	}
}

// Close releases the proxy's engine instances. Callers must ensure no
// queries are in flight.
func (s *Service) Close() {
	s.Proxy.Close()
}
