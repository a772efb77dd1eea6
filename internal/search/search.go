// Package search implements the SearchProvider external collaborator (spec
// §6): get_latest_version, get_spec_url, verify_spec_url, backed by a
// registryclient.PackageClient's fetched manifest.
package search

import (
	"context"

	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/version"
)

// Provider is the reference SearchProvider implementation.
type Provider struct {
	client registryclient.PackageClient
}

// New builds a Provider over client.
func New(client registryclient.PackageClient) *Provider {
	return &Provider{client: client}
}

// GetLatestVersion returns the highest published version of name.
func (p *Provider) GetLatestVersion(ctx context.Context, name string) (string, error) {
	reg, err := p.client.FetchManifest(ctx)
	if err != nil {
		return "", err
	}
	records, ok := reg[name]
	if !ok || len(records) == 0 {
		return "", lurockerrors.NewPackage("no versions available for %q", name)
	}

	var best string
	var bestVersion version.Version
	haveBest := false
	for _, r := range records {
		v, err := version.RegistryToSemver(r.Version)
		if err != nil {
			continue
		}
		if !haveBest || bestVersion.Less(v) {
			best, bestVersion, haveBest = r.Version, v, true
		}
	}
	if !haveBest {
		return "", lurockerrors.NewPackage("no parseable versions available for %q", name)
	}
	return best, nil
}

// GetSpecURL resolves the spec URL for name@version, looking it up in the
// manifest optionally scoped by a hinted registry base (the manifest
// parameter from spec §6 is the caller's already-fetched Manifest, passed
// here as the pre-fetched Registry to avoid a second round trip).
func (p *Provider) GetSpecURL(ctx context.Context, name, version string, reg registryclient.Registry) (string, error) {
	if reg == nil {
		fetched, err := p.client.FetchManifest(ctx)
		if err != nil {
			return "", err
		}
		reg = fetched
	}

	for _, r := range reg[name] {
		if r.Version == version {
			return r.SpecURL, nil
		}
	}
	return "", lurockerrors.NewPackage("no spec URL found for %s@%s", name, version)
}

// VerifySpecURL checks that url resolves to existing content.
func (p *Provider) VerifySpecURL(ctx context.Context, specURL string) (bool, error) {
	type verifier interface {
		VerifySpecURL(ctx context.Context, specURL string) (bool, error)
	}
	if v, ok := p.client.(verifier); ok {
		return v.VerifySpecURL(ctx, specURL)
	}
	// fall back to a download attempt for clients that don't expose a
	// dedicated verification method.
	if _, err := p.client.DownloadSpec(ctx, specURL); err != nil {
		return false, nil
	}
	return true, nil
}
