// Package config loads typewell configuration via Viper.
//
// Precedence (lowest to highest): defaults < system < user < project < env vars.
// Env vars use the TYPEWELL_ prefix with dots replaced by underscores,
// e.g. TYPEWELL_FETCH_CDN_BASE_URL.
package config

import (
	"time"
)

// Config represents the typewell configuration
type Config struct {
	Fetch    FetchConfig       `mapstructure:"fetch"`
	Registry RegistryConfig    `mapstructure:"registry"`
	Pins     map[string]string `mapstructure:"pins"` // package name -> pinned version
	Server   ServerConfig      `mapstructure:"server"`
	Log      LogConfig         `mapstructure:"log"`
}

// FetchConfig configures declaration-file fetching from the CDN
type FetchConfig struct {
	CDNBaseURL        string  `mapstructure:"cdn_base_url"`        // e.g. "https://cdn.jsdelivr.net/npm"
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`     // per-request timeout
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // outbound rate limit
	Burst             int     `mapstructure:"burst"`               // rate limiter burst
}

// Timeout returns the fetch timeout as a duration
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// RegistryConfig configures the package registry lookup endpoints
type RegistryConfig struct {
	BaseURL        string `mapstructure:"base_url"` // e.g. "https://data.jsdelivr.com/v1"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// Timeout returns the registry timeout as a duration
func (r RegistryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// ServerConfig configures the typewell query server
type ServerConfig struct {
	Port               int      `mapstructure:"port"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	MaxDocsPerClient   int      `mapstructure:"max_docs_per_client"`
	WriteTimeoutSecond int      `mapstructure:"write_timeout_seconds"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}
