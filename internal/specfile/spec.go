// Package specfile parses the registry's per-version spec files — a small
// assignment-style text format — into a typed PackageSpec (spec §4.D).
//
// The defensive, sticky-error parse style is carried over from golang-dep's
// toml.go (tomlMapper/readTableAsProjects): once a parse error occurs later
// fields are skipped rather than producing a cascade of unrelated errors.
package specfile

// BuildType enumerates the build dispatch strategies spec §4.H switches on.
type BuildType string

const (
	BuildBuiltin BuildType = "builtin"
	BuildNone    BuildType = "none"
	BuildMake    BuildType = "make"
	BuildCMake   BuildType = "cmake"
	BuildCommand BuildType = "command"
	BuildRust    BuildType = "rust"
	BuildRustMlua BuildType = "rust-mlua"
)

// Build is the build section of a PackageSpec or a Manifest's build
// override.
type Build struct {
	Type    BuildType
	Modules map[string]string // logical name -> source path
	Install InstallTable
}

// InstallTable is the four string->path maps a build section may declare.
type InstallTable struct {
	Bin  map[string]string
	Lua  map[string]string
	Lib  map[string]string
	Conf map[string]string
}

// Empty reports whether every map in the install table is empty, used by
// the installer's make/cmake/command fallback chain (spec §4.H step 6).
func (t InstallTable) Empty() bool {
	return len(t.Bin) == 0 && len(t.Lua) == 0 && len(t.Lib) == 0 && len(t.Conf) == 0
}

// Source is the spec's source section.
type Source struct {
	URL    string
	Tag    string
	Branch string
}

// PackageSpec is a per-(name, version) registry record (spec §3).
type PackageSpec struct {
	Package     string
	Version     string
	Source      Source
	Dependencies []string
	Build       Build

	Description string
	Homepage    string
	License     string
}
