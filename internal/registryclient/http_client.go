package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/pkg/errors"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/specfile"
)

// DefaultTimeout is the reference per-request timeout (spec §5).
const DefaultTimeout = 30 * time.Second

// HTTPClient is the reference PackageClient implementation: it fetches the
// registry index and per-version spec files over HTTP and stores downloaded
// archives into a content-addressed cache.Cache, mirroring golang-dep's
// internal/gps/registry.go registrySource almost field-for-field.
type HTTPClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      *cache.Cache
}

// NewHTTPClient builds an HTTPClient with the reference 30s per-request
// timeout.
func NewHTTPClient(baseURL string, c *cache.Cache) *HTTPClient {
	return &HTTPClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Cache:      c,
	}
}

type rawManifestEntry struct {
	Version    string `json:"version"`
	SpecURL    string `json:"spec_url"`
	ArchiveURL string `json:"archive_url"`
}

type rawManifest struct {
	Packages map[string][]rawManifestEntry `json:"packages"`
}

// FetchManifest fetches the registry's name -> version-records index.
func (c *HTTPClient) FetchManifest(ctx context.Context) (Registry, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, lurockerrors.NewPath(c.BaseURL, "invalid registry base URL")
	}
	u.Path = path.Join(u.Path, "api/v1/manifest")

	body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var raw rawManifest
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, lurockerrors.WrapPackage(err, "decoding registry manifest")
	}

	reg := make(Registry, len(raw.Packages))
	for name, entries := range raw.Packages {
		records := make([]PackageVersionRecord, 0, len(entries))
		for _, e := range entries {
			records = append(records, PackageVersionRecord{
				Version:    e.Version,
				SpecURL:    e.SpecURL,
				ArchiveURL: e.ArchiveURL,
			})
		}
		reg[name] = records
	}
	return reg, nil
}

// DownloadSpec fetches the raw spec text at url.
func (c *HTTPClient) DownloadSpec(ctx context.Context, specURL string) (string, error) {
	body, err := c.get(ctx, specURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ParseSpec delegates to specfile.Parse.
func (c *HTTPClient) ParseSpec(text string) (specfile.PackageSpec, error) {
	return specfile.Parse(text)
}

// DownloadSource stores the archive at url into the cache and returns the
// cache path; idempotent if already present (spec §4.C).
func (c *HTTPClient) DownloadSource(ctx context.Context, sourceURL string) (string, error) {
	dest := c.Cache.SourcePath(sourceURL)
	if c.Cache.Exists(dest) {
		return dest, nil
	}

	body, err := c.get(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	if err := c.Cache.Write(dest, body); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *HTTPClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, lurockerrors.NewPath(rawURL, "invalid URL")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &lurockerrors.HTTPError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &lurockerrors.HTTPError{URL: rawURL, StatusCode: resp.StatusCode, Cause: errors.New(http.StatusText(http.StatusNotFound))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &lurockerrors.HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &lurockerrors.HTTPError{URL: rawURL, Cause: err}
	}
	return body, nil
}

var _ PackageClient = (*HTTPClient)(nil)

// VerifySpecURL checks that specURL resolves (SearchProvider.verify_spec_url,
// spec §6), via a HEAD request.
func (c *HTTPClient) VerifySpecURL(ctx context.Context, specURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, specURL, nil)
	if err != nil {
		return false, lurockerrors.NewPath(specURL, "invalid URL")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, &lurockerrors.HTTPError{URL: specURL, Cause: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// GetSpecURL builds the canonical spec URL for name@version (spec §6
// SearchProvider.get_spec_url).
func (c *HTTPClient) GetSpecURL(name, version string) string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Sprintf("%s/specs/%s-%s.spec", c.BaseURL, name, version)
	}
	u.Path = path.Join(u.Path, "specs", fmt.Sprintf("%s-%s.spec", name, version))
	return u.String()
}
