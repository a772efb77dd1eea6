// Package manifest loads, validates, and saves the user-authored
// package.yaml manifest (spec §3), in the same "typed struct decoded from a
// tree then validated field-by-field" shape as golang-dep's manifest.go,
// ported from JSON/TOML to YAML.
package manifest

import (
	"os"
	"path/filepath"
	"regexp"

	"github.com/goccy/go-yaml"

	"github.com/lurock/lurock/internal/fs"
	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/specfile"
	"github.com/lurock/lurock/internal/version"
)

// FileName is the manifest's fixed filename under the project root.
const FileName = "package.yaml"

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ResolutionStrategy mirrors resolver.Strategy without importing it, so the
// manifest package has no dependency on the resolver.
type ResolutionStrategy string

const (
	StrategyHighest ResolutionStrategy = "highest"
	StrategyLowest  ResolutionStrategy = "lowest"
)

// Manifest is the authored project manifest (spec §3).
type Manifest struct {
	Name        string            `yaml:"name"`
	Version     string            `yaml:"version"`
	Description string            `yaml:"description,omitempty"`
	LuaVersion  string            `yaml:"lua_version,omitempty"`

	Dependencies    map[string]string `yaml:"dependencies,omitempty"`
	DevDependencies map[string]string `yaml:"dev_dependencies,omitempty"`

	ResolutionStrategy ResolutionStrategy `yaml:"resolution_strategy,omitempty"`

	Build   *specfile.Build   `yaml:"build,omitempty"`
	Scripts map[string]string `yaml:"scripts,omitempty"`
}

// Load reads and validates the manifest at <projectRoot>/package.yaml.
func Load(projectRoot string) (*Manifest, error) {
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, lurockerrors.WrapPackage(err, "reading manifest %s", path)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, lurockerrors.WrapPackage(err, "parsing manifest %s", path)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Save atomically writes m to <projectRoot>/package.yaml, via the same
// write-to-temp-then-rename protocol as internal/lockfile.Lockfile.Save.
func (m *Manifest) Save(projectRoot string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return lurockerrors.WrapPackage(err, "marshaling manifest")
	}

	path := filepath.Join(projectRoot, FileName)
	tmp, err := os.CreateTemp(projectRoot, ".package.yaml.tmp-*")
	if err != nil {
		return lurockerrors.WrapPackage(err, "creating temp manifest")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "writing temp manifest")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "closing temp manifest")
	}
	if err := fs.RenameWithFallback(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.WrapPackage(err, "renaming temp manifest into place")
	}
	return nil
}

// Validate checks the manifest invariants from spec §3: a valid package
// name, a parseable version, no overlap between dependencies and
// dev_dependencies, and parseable constraints.
func (m *Manifest) Validate() error {
	if !nameRegexp.MatchString(m.Name) {
		return lurockerrors.NewPackage("manifest name %q does not match [A-Za-z0-9][A-Za-z0-9_-]*", m.Name)
	}
	if _, err := version.ParseVersion(m.Version); err != nil {
		return lurockerrors.WrapPackage(err, "manifest version %q", m.Version)
	}

	for name, constraint := range m.Dependencies {
		if _, ok := m.DevDependencies[name]; ok {
			return lurockerrors.NewPackage("%q appears in both dependencies and dev_dependencies", name)
		}
		if _, err := version.ParseConstraint(constraint); err != nil {
			return lurockerrors.WrapPackage(err, "dependency %q constraint %q", name, constraint)
		}
	}
	for name, constraint := range m.DevDependencies {
		if _, err := version.ParseConstraint(constraint); err != nil {
			return lurockerrors.WrapPackage(err, "dev dependency %q constraint %q", name, constraint)
		}
	}

	if m.LuaVersion != "" {
		if _, err := version.ParseConstraint(m.LuaVersion); err != nil {
			return lurockerrors.WrapPackage(err, "lua_version %q", m.LuaVersion)
		}
	}

	if m.ResolutionStrategy != "" && m.ResolutionStrategy != StrategyHighest && m.ResolutionStrategy != StrategyLowest {
		return lurockerrors.NewPackage("resolution_strategy must be %q or %q, got %q", StrategyHighest, StrategyLowest, m.ResolutionStrategy)
	}

	return nil
}

// EffectiveDependencies returns dependencies, optionally merged with
// dev_dependencies (exclude_dev controls this, spec §4.G).
func (m *Manifest) EffectiveDependencies(excludeDev bool) map[string]string {
	out := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for n, c := range m.Dependencies {
		out[n] = c
	}
	if !excludeDev {
		for n, c := range m.DevDependencies {
			out[n] = c
		}
	}
	return out
}
