package config

import (
	"github.com/spf13/viper"
)

// Default endpoints. jsDelivr serves raw npm package files and exposes a
// metadata API with resolved versions and flat file listings.
const (
	DefaultCDNBaseURL      = "https://cdn.jsdelivr.net/npm"
	DefaultRegistryBaseURL = "https://data.jsdelivr.com/v1"

	// DefaultServerPort is above the privileged range and easy to type
	DefaultServerPort = 8790
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Fetch defaults
	v.SetDefault("fetch.cdn_base_url", DefaultCDNBaseURL)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.requests_per_second", 8.0) // polite toward the public CDN
	v.SetDefault("fetch.burst", 16)

	// Registry defaults
	v.SetDefault("registry.base_url", DefaultRegistryBaseURL)
	v.SetDefault("registry.timeout_seconds", 10)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_docs_per_client", 100)
	v.SetDefault("server.write_timeout_seconds", 10)

	// Log defaults
	v.SetDefault("log.json", false)
}
