// Package registry resolves package versions and file listings from a
// jsDelivr-style metadata API. Resolution failures are soft: the index
// degrades to an empty listing and acquisition proceeds without the
// short-circuit it would otherwise provide.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/typewell/typewell/internal/httpclient"
)

// Lookup resolves published versions and flat file listings for packages.
type Lookup interface {
	// ResolveLatestVersion returns the version the registry currently
	// publishes as latest, or false if resolution failed.
	ResolveLatestVersion(ctx context.Context, pkg string) (string, bool)

	// ListFlatFiles returns the relative file paths that exist inside the
	// package at the exact version, or false if the listing is unavailable.
	ListFlatFiles(ctx context.Context, pkg, version string) ([]string, bool)
}

// Client talks to the registry metadata API
type Client struct {
	baseURL string
	client  *httpclient.SaferClient
	logger  *zap.SugaredLogger
}

// NewClient creates a registry client. baseURL is the API root without a
// trailing slash, e.g. "https://data.jsdelivr.com/v1".
func NewClient(baseURL string, client *httpclient.SaferClient, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// resolvedResponse is the shape of the resolved-version endpoint
type resolvedResponse struct {
	Version string `json:"version"`
}

// flatFilesResponse is the shape of the flat file-listing endpoint
type flatFilesResponse struct {
	Files []struct {
		Name string `json:"name"`
	} `json:"files"`
}

// ResolveLatestVersion asks the registry which version "latest" points at.
func (c *Client) ResolveLatestVersion(ctx context.Context, pkg string) (string, bool) {
	url := fmt.Sprintf("%s/packages/npm/%s/resolved?specifier=latest", c.baseURL, pkg)

	var resolved resolvedResponse
	if !c.getJSON(ctx, url, &resolved) {
		return "", false
	}

	if _, err := semver.NewVersion(resolved.Version); err != nil {
		c.logger.Warnw("registry returned unparseable version",
			"package", pkg,
			"version", resolved.Version)
		return "", false
	}

	return resolved.Version, true
}

// ListFlatFiles fetches the flat file listing for pkg at the exact version.
func (c *Client) ListFlatFiles(ctx context.Context, pkg, version string) ([]string, bool) {
	url := fmt.Sprintf("%s/packages/npm/%s@%s?structure=flat", c.baseURL, pkg, version)

	var listing flatFilesResponse
	if !c.getJSON(ctx, url, &listing) {
		return nil, false
	}

	files := make([]string, 0, len(listing.Files))
	for _, f := range listing.Files {
		files = append(files, f.Name)
	}
	return files, true
}

// getJSON performs one GET and decodes the body; any failure maps to false
func (c *Client) getJSON(ctx context.Context, url string, out interface{}) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debugw("registry request failed",
			"url", url,
			"error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debugw("registry returned non-OK status",
			"url", url,
			"status", resp.StatusCode)
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.logger.Debugw("registry response unmarshal failed",
			"url", url,
			"error", err)
		return false
	}

	return true
}
