// Package registryclient defines the PackageClient interface the resolver
// and installer consume (spec §4.C, §6) plus a parallel fan-out helper, and
// ships a concrete HTTP-backed implementation grounded almost directly on
// golang-dep's internal/gps/registry.go.
package registryclient

import (
	"context"

	"github.com/lurock/lurock/internal/specfile"
)

// PackageVersionRecord is one entry in a Registry's per-package version
// list.
type PackageVersionRecord struct {
	Version    string
	SpecURL    string
	ArchiveURL string
}

// Registry maps a package name to its published version records.
type Registry map[string][]PackageVersionRecord

// PackageClient is the registry interface the resolver and installer
// consume (spec §4.C).
type PackageClient interface {
	FetchManifest(ctx context.Context) (Registry, error)
	DownloadSpec(ctx context.Context, url string) (string, error)
	ParseSpec(text string) (specfile.PackageSpec, error)
	// DownloadSource stores the archive at url into the cache and returns
	// the cache path; idempotent if already present.
	DownloadSource(ctx context.Context, url string) (string, error)
}

// DownloadTask is one unit of work for DownloadPackages.
type DownloadTask struct {
	Name string
	URL  string
}

// DownloadResult is the outcome of one DownloadTask.
type DownloadResult struct {
	Name string
	Path string
	Err  error
}
