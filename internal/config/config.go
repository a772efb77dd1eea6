// Package config defines the ConfigProvider collaborator and a default
// implementation backed by a lurock.yaml file plus environment variable
// overrides, in the same raw-struct-then-convert shape golang-dep's
// registry_config.go uses for its own registry config file (readConfig,
// rawConfig/rawRegistry, toRaw), ported from TOML to YAML and widened from
// a single registry URL/token pair to the full settings surface a resolver,
// installer, and conflict checker need.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/lurockerrors"
)

// FileName is the optional project-local config file.
const FileName = "lurock.yaml"

const (
	defaultRegistryURL = "https://lurocks.example.org"
	defaultCacheDir    = ".lurock/cache"
)

// ResolutionStrategy mirrors resolver.Strategy without importing it, the
// same way internal/manifest keeps its own copy to avoid a dependency
// cycle (config is loaded before a resolver exists).
type ResolutionStrategy string

const (
	StrategyHighest ResolutionStrategy = "highest"
	StrategyLowest  ResolutionStrategy = "lowest"
)

// ConfigProvider is the read-only settings surface every core package
// depends on rather than reading files or the environment directly.
type ConfigProvider interface {
	RegistryURL() string
	CacheDir() string
	VerifyChecksums() bool
	ShowDiffsOnUpdate() bool
	ResolutionStrategy() ResolutionStrategy
	ChecksumAlgorithm() cache.Algorithm
	StrictConflicts() bool
	InterpreterURL() (string, bool)
	SupportedInterpreterVersions() []string
}

// Config is the default ConfigProvider: a typed struct populated from a
// YAML file and then overridden field-by-field by environment variables,
// mirroring the teacher's own "file defines it, flags may override it"
// posture in context.go/flags.go.
type Config struct {
	registryURL                  string
	cacheDir                     string
	verifyChecksums              bool
	showDiffsOnUpdate            bool
	resolutionStrategy           ResolutionStrategy
	checksumAlgorithm            cache.Algorithm
	strictConflicts              bool
	interpreterURL               string
	supportedInterpreterVersions []string
}

var _ ConfigProvider = (*Config)(nil)

func (c *Config) RegistryURL() string                     { return c.registryURL }
func (c *Config) CacheDir() string                        { return c.cacheDir }
func (c *Config) VerifyChecksums() bool                   { return c.verifyChecksums }
func (c *Config) ShowDiffsOnUpdate() bool                 { return c.showDiffsOnUpdate }
func (c *Config) ResolutionStrategy() ResolutionStrategy  { return c.resolutionStrategy }
func (c *Config) ChecksumAlgorithm() cache.Algorithm      { return c.checksumAlgorithm }
func (c *Config) StrictConflicts() bool                   { return c.strictConflicts }
func (c *Config) SupportedInterpreterVersions() []string  { return c.supportedInterpreterVersions }

func (c *Config) InterpreterURL() (string, bool) {
	return c.interpreterURL, c.interpreterURL != ""
}

// rawConfig is the YAML-decoded shape of lurock.yaml, kept separate from
// Config the way registry_config.go's rawConfig is kept separate from
// registryConfig: the file's field names and optional-ness shouldn't leak
// into the typed accessor surface the rest of the core consumes.
type rawConfig struct {
	RegistryURL                  string   `yaml:"registry_url,omitempty"`
	CacheDir                     string   `yaml:"cache_dir,omitempty"`
	VerifyChecksums              *bool    `yaml:"verify_checksums,omitempty"`
	ShowDiffsOnUpdate            *bool    `yaml:"show_diffs_on_update,omitempty"`
	ResolutionStrategy           string   `yaml:"resolution_strategy,omitempty"`
	ChecksumAlgorithm            string   `yaml:"checksum_algorithm,omitempty"`
	StrictConflicts               *bool   `yaml:"strict_conflicts,omitempty"`
	InterpreterURL                string  `yaml:"interpreter_url,omitempty"`
	SupportedInterpreterVersions  []string `yaml:"supported_interpreter_versions,omitempty"`
}

// defaults returns the built-in baseline Load starts from before the file
// and environment are applied.
func defaults() *Config {
	return &Config{
		registryURL:        defaultRegistryURL,
		cacheDir:           defaultCacheDir,
		verifyChecksums:    true,
		showDiffsOnUpdate:  true,
		resolutionStrategy: StrategyHighest,
		checksumAlgorithm:  cache.Blake3,
		strictConflicts:    false,
	}
}

// Load builds a Config for projectRoot: defaults, then lurock.yaml if
// present, then environment variable overrides. A missing file is not an
// error — an all-default, env-overridden Config is returned.
func Load(projectRoot string) (*Config, error) {
	cfg := defaults()

	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var raw rawConfig
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, lurockerrors.WrapPackage(err, "parsing config %s", path)
		}
		applyRaw(cfg, &raw)
	case os.IsNotExist(err):
		// no project config file; defaults plus environment stand alone.
	default:
		return nil, lurockerrors.WrapPackage(err, "reading config %s", path)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyRaw(cfg *Config, raw *rawConfig) {
	if raw.RegistryURL != "" {
		cfg.registryURL = raw.RegistryURL
	}
	if raw.CacheDir != "" {
		cfg.cacheDir = raw.CacheDir
	}
	if raw.VerifyChecksums != nil {
		cfg.verifyChecksums = *raw.VerifyChecksums
	}
	if raw.ShowDiffsOnUpdate != nil {
		cfg.showDiffsOnUpdate = *raw.ShowDiffsOnUpdate
	}
	if raw.ResolutionStrategy != "" {
		cfg.resolutionStrategy = ResolutionStrategy(raw.ResolutionStrategy)
	}
	if raw.ChecksumAlgorithm != "" {
		cfg.checksumAlgorithm = cache.Algorithm(raw.ChecksumAlgorithm)
	}
	if raw.StrictConflicts != nil {
		cfg.strictConflicts = *raw.StrictConflicts
	}
	if raw.InterpreterURL != "" {
		cfg.interpreterURL = raw.InterpreterURL
	}
	if len(raw.SupportedInterpreterVersions) > 0 {
		cfg.supportedInterpreterVersions = raw.SupportedInterpreterVersions
	}
}

// envPrefix namespaces every override so a host environment full of
// unrelated variables can't accidentally collide.
const envPrefix = "LUROCK_"

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(envPrefix + "REGISTRY_URL"); ok {
		cfg.registryURL = v
	}
	if v, ok := os.LookupEnv(envPrefix + "CACHE_DIR"); ok {
		cfg.cacheDir = v
	}
	if v, ok := os.LookupEnv(envPrefix + "VERIFY_CHECKSUMS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return lurockerrors.NewConfig("LUROCK_VERIFY_CHECKSUMS", "must be a boolean")
		}
		cfg.verifyChecksums = b
	}
	if v, ok := os.LookupEnv(envPrefix + "SHOW_DIFFS_ON_UPDATE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return lurockerrors.NewConfig("LUROCK_SHOW_DIFFS_ON_UPDATE", "must be a boolean")
		}
		cfg.showDiffsOnUpdate = b
	}
	if v, ok := os.LookupEnv(envPrefix + "RESOLUTION_STRATEGY"); ok {
		cfg.resolutionStrategy = ResolutionStrategy(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "CHECKSUM_ALGORITHM"); ok {
		cfg.checksumAlgorithm = cache.Algorithm(v)
	}
	if v, ok := os.LookupEnv(envPrefix + "STRICT_CONFLICTS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return lurockerrors.NewConfig("LUROCK_STRICT_CONFLICTS", "must be a boolean")
		}
		cfg.strictConflicts = b
	}
	if v, ok := os.LookupEnv(envPrefix + "INTERPRETER_URL"); ok {
		cfg.interpreterURL = v
	}
	if v, ok := os.LookupEnv(envPrefix + "SUPPORTED_INTERPRETER_VERSIONS"); ok {
		cfg.supportedInterpreterVersions = splitAndTrim(v)
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.resolutionStrategy != StrategyHighest && c.resolutionStrategy != StrategyLowest {
		return lurockerrors.NewConfig("resolution_strategy", "must be \"highest\" or \"lowest\"")
	}
	if c.checksumAlgorithm != cache.Blake3 && c.checksumAlgorithm != cache.SHA256 {
		return lurockerrors.NewConfig("checksum_algorithm", "must be \"blake3\" or \"sha256\"")
	}
	if c.registryURL == "" {
		return lurockerrors.NewConfig("registry_url", "must not be empty")
	}
	if c.cacheDir == "" {
		return lurockerrors.NewConfig("cache_dir", "must not be empty")
	}
	return nil
}
