// Package lockfile implements the deterministic, checksum-bearing record of
// a resolved dependency graph (spec §4.G), ported from golang-dep's
// lock.go/toml.go JSON/TOML shape to YAML per SPEC_FULL.md §2.
package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-yaml"
	flock "github.com/theckman/go-flock"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/fs"
	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/manifest"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/resolver"
	"github.com/lurock/lurock/internal/specfile"
	"github.com/lurock/lurock/internal/version"
)

// FileName is the lockfile's default filename under the project root.
const FileName = "lurock.lock"

// SchemaVersion is the lockfile wire format's schema tag (spec §6).
const SchemaVersion = 1

// LockedPackage is one resolved package entry (spec §3).
type LockedPackage struct {
	Version      string            `yaml:"version"`
	SourceTag    string            `yaml:"source,omitempty"`
	SpecURL      string            `yaml:"spec_url,omitempty"`
	SourceURL    string            `yaml:"source_url,omitempty"`
	Checksum     string            `yaml:"checksum"`
	Size         int64             `yaml:"size,omitempty"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
	Build        *specfile.Build   `yaml:"build,omitempty"`
}

// Lockfile is the on-disk wire shape (spec §6).
type Lockfile struct {
	SchemaVersion int                       `yaml:"version"`
	Packages      map[string]*LockedPackage `yaml:"packages"`
}

// New returns an empty, schema-tagged Lockfile.
func New() *Lockfile {
	return &Lockfile{SchemaVersion: SchemaVersion, Packages: map[string]*LockedPackage{}}
}

// Load reads the lockfile at <projectRoot>/<FileName>. It returns (nil, nil)
// if the file does not exist, and fails only on malformed YAML.
func Load(projectRoot string) (*Lockfile, error) {
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lurockerrors.WrapPackage(err, "reading lockfile %s", path)
	}

	var l Lockfile
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, lurockerrors.WrapPackage(err, "parsing lockfile %s", path)
	}
	if l.Packages == nil {
		l.Packages = map[string]*LockedPackage{}
	}
	return &l, nil
}

// Save atomically writes l to <projectRoot>/<FileName>, including a
// trailing newline, using the same write-to-temp-then-rename protocol as
// internal/cache.Cache.Write (internal/fs.RenameWithFallback).
func (l *Lockfile) Save(projectRoot string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return lurockerrors.WrapPackage(err, "marshaling lockfile")
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	path := filepath.Join(projectRoot, FileName)
	tmp, err := os.CreateTemp(projectRoot, ".lurock.lock.tmp-*")
	if err != nil {
		return lurockerrors.WrapPackage(err, "creating temp lockfile")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "writing temp lockfile")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "closing temp lockfile")
	}
	if err := fs.RenameWithFallback(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "renaming temp lockfile into place")
	}
	return nil
}

// GetPackage returns the locked entry for name, or nil.
func (l *Lockfile) GetPackage(name string) *LockedPackage {
	return l.Packages[name]
}

// HasPackage reports whether name is locked.
func (l *Lockfile) HasPackage(name string) bool {
	_, ok := l.Packages[name]
	return ok
}

// AddPackage stores locked under name.
func (l *Lockfile) AddPackage(name string, locked *LockedPackage) {
	l.Packages[name] = locked
}

// SortedNames returns every locked package name in lexicographic order
// (spec §5 "Lockfile serialization orders packages by name lexicographically").
func (l *Lockfile) SortedNames() []string {
	names := make([]string, 0, len(l.Packages))
	for n := range l.Packages {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ValidateClosure checks that every name referenced in any package's
// Dependencies also appears as a top-level entry, and that every entry has
// a non-empty checksum and a parseable version (spec §3 "Invariants").
func (l *Lockfile) ValidateClosure() error {
	for name, pkg := range l.Packages {
		if pkg.Checksum == "" {
			return lurockerrors.NewPackage("locked package %q has an empty checksum", name)
		}
		if _, err := version.ParseVersion(pkg.Version); err != nil {
			return lurockerrors.WrapPackage(err, "locked package %q has an unparseable version", name)
		}
		for dep := range pkg.Dependencies {
			if !l.HasPackage(dep) {
				return lurockerrors.NewPackage("locked package %q depends on %q, which has no top-level lock entry", name, dep)
			}
		}
	}
	return nil
}

// AdvisoryLock acquires a project-root-level advisory file lock (spec §5:
// "a reasonable implementation choice but not required"), using
// github.com/theckman/go-flock so concurrent lurock processes don't race on
// a single project's lockfile/manifest pair.
func AdvisoryLock(projectRoot string) (*flock.Flock, error) {
	lockPath := filepath.Join(projectRoot, ".lurock.advisory.lock")
	fl := flock.NewFlock(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, lurockerrors.NewCache(err, "acquiring advisory lock %s", lockPath)
	}
	if !locked {
		return nil, lurockerrors.NewPackage("another lurock process holds the advisory lock on %s", projectRoot)
	}
	return fl, nil
}

// strategyFor converts a manifest's resolution_strategy string into a
// resolver.Strategy, defaulting to Highest.
func strategyFor(m *manifest.Manifest) resolver.Strategy {
	if m.ResolutionStrategy == manifest.StrategyLowest {
		return resolver.Lowest
	}
	return resolver.Highest
}

// BuildLockfile resolves m's effective dependency set from scratch, downloads
// every resolved package's source archive (fanned out at
// registryclient.DefaultConcurrency), hashes it into store, and returns a
// fully populated Lockfile.
func BuildLockfile(ctx context.Context, client registryclient.PackageClient, store *cache.Cache, m *manifest.Manifest, excludeDev bool) (*Lockfile, error) {
	return buildOrUpdate(ctx, client, store, m, excludeDev, nil)
}

// UpdateLockfile re-resolves m's effective dependency set and reuses any
// existing entry whose resolved version is unchanged and whose cached
// archive still verifies, so an incremental "nothing changed" update
// downloads nothing beyond the resolve itself; each reused entry's cached
// archive is rehashed once to confirm it still matches its checksum.
func UpdateLockfile(ctx context.Context, client registryclient.PackageClient, store *cache.Cache, m *manifest.Manifest, excludeDev bool, existing *Lockfile) (*Lockfile, error) {
	return buildOrUpdate(ctx, client, store, m, excludeDev, existing)
}

func buildOrUpdate(ctx context.Context, client registryclient.PackageClient, store *cache.Cache, m *manifest.Manifest, excludeDev bool, existing *Lockfile) (*Lockfile, error) {
	deps := m.EffectiveDependencies(excludeDev)

	r := resolver.New(client, strategyFor(m))
	detailed, err := r.ResolveDetailed(ctx, deps)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(detailed))
	for name := range detailed {
		names = append(names, name)
	}
	sort.Strings(names)

	lf := New()

	var tasks []registryclient.DownloadTask
	for _, name := range names {
		entry := detailed[name]
		if reused := tryReuse(existing, store, name, entry); reused != nil {
			lf.AddPackage(name, reused)
			continue
		}
		tasks = append(tasks, registryclient.DownloadTask{Name: name, URL: entry.Spec.Source.URL})
	}

	results := registryclient.DownloadPackages(ctx, client, tasks, registryclient.DefaultConcurrency)
	pathByName := make(map[string]string, len(results))
	for _, res := range results {
		if res.Err != nil {
			return nil, lurockerrors.WrapPackage(res.Err, "downloading source for %q", res.Name)
		}
		pathByName[res.Name] = res.Path
	}

	for _, name := range names {
		if lf.HasPackage(name) {
			continue // reused from existing lockfile above
		}
		entry := detailed[name]
		path, ok := pathByName[name]
		if !ok {
			return nil, lurockerrors.NewPackage("no downloaded source for %q", name)
		}

		checksum, err := store.Checksum(path)
		if err != nil {
			return nil, lurockerrors.WrapPackage(err, "checksumming %q", name)
		}
		size := int64(0)
		if fi, statErr := os.Stat(path); statErr == nil {
			size = fi.Size()
		}

		depMap := dependencyConstraints(entry.Spec)
		build := entry.Spec.Build

		lf.AddPackage(name, &LockedPackage{
			Version:      entry.Version.String(),
			SourceTag:    entry.Spec.Source.Tag,
			SpecURL:      entry.SpecURL,
			SourceURL:    entry.Spec.Source.URL,
			Checksum:     checksum,
			Size:         size,
			Dependencies: depMap,
			Build:        &build,
		})
	}

	if err := lf.ValidateClosure(); err != nil {
		return nil, err
	}
	return lf, nil
}

// tryReuse returns existing's locked entry for name unchanged if its version
// still matches the freshly resolved one and its cached archive still
// verifies against the recorded checksum. A reused entry is not downloaded
// again; its cached archive is rehashed for that check.
func tryReuse(existing *Lockfile, store *cache.Cache, name string, entry resolver.ResolvedEntry) *LockedPackage {
	if existing == nil {
		return nil
	}
	prior := existing.GetPackage(name)
	if prior == nil {
		return nil
	}
	if prior.Version != entry.Version.String() || prior.SpecURL != entry.SpecURL {
		return nil
	}

	path := store.SourcePath(prior.SourceURL)
	if !store.Exists(path) {
		return nil
	}
	ok, err := store.VerifyChecksum(path, prior.Checksum)
	if err != nil || !ok {
		return nil
	}
	return prior
}

// dependencyConstraints converts a spec's free-form dependency lines into a
// name -> constraint-string map, applying the same runtime-dependency skip
// rule the resolver uses so a lockfile entry never lists "lua" as a package.
func dependencyConstraints(spec specfile.PackageSpec) map[string]string {
	out := map[string]string{}
	for _, line := range spec.Dependencies {
		name, constraint, skip, err := resolver.ParseDependencyLine(line)
		if err != nil || skip {
			continue
		}
		out[name] = constraint.String()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
