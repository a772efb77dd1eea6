// Package installer implements the install/remove pipeline (spec §4.H):
// verify the spec URL, download spec and source, gate on the lockfile's
// checksum, extract the archive, dispatch the declared build, and place the
// resulting files under the project's module directory.
//
// The extraction and checksum-gate shape is ported from golang-dep's
// internal/gps/registry.go (execDownloadDependency + extractDependency,
// sha256-over-a-tee-reader), generalized to also accept zip archives and to
// require a caller-supplied lockfile checksum rather than an HTTP response
// header. Build dispatch is grounded on cmd.go's monitoredCmd/activityBuffer,
// and "builtin"/"none" file placement reuses go-shutil the same way
// vcs_source.go's exportVersionTo and project_manager.go already do.
package installer

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	shutil "github.com/termie/go-shutil"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/lockfile"
	"github.com/lurock/lurock/internal/lurockerrors"
	"github.com/lurock/lurock/internal/lurocklog"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/search"
	"github.com/lurock/lurock/internal/specfile"
)

// DefaultBuildTimeout is the reference activity timeout for build-tool
// subprocesses (spec §5, same value as golang-dep's runFromCwd).
const DefaultBuildTimeout = 2 * time.Minute

// ModulesDirName is the project-relative directory packages are installed
// into, one subdirectory per package name.
const ModulesDirName = "lua_modules"

// Installer drives one project's install/remove operations.
type Installer struct {
	Client       registryclient.PackageClient
	Search       *search.Provider
	Store        *cache.Cache
	ProjectRoot  string
	BuildTimeout time.Duration
	Log          *lurocklog.Logger
}

// New builds an Installer with the reference build timeout.
func New(client registryclient.PackageClient, store *cache.Cache, projectRoot string) *Installer {
	return &Installer{
		Client:       client,
		Search:       search.New(client),
		Store:        store,
		ProjectRoot:  projectRoot,
		BuildTimeout: DefaultBuildTimeout,
		Log:          lurocklog.Default(false),
	}
}

func (in *Installer) modulesDir() string {
	return filepath.Join(in.ProjectRoot, ModulesDirName)
}

func (in *Installer) packageDir(name string) string {
	return filepath.Join(in.modulesDir(), name)
}

// InstallPackage runs the full pipeline for one already-resolved, locked
// package.
func (in *Installer) InstallPackage(ctx context.Context, name string, locked *lockfile.LockedPackage) error {
	specURL := locked.SpecURL
	if specURL == "" {
		resolved, err := in.Search.GetSpecURL(ctx, name, locked.Version, nil)
		if err != nil {
			return err
		}
		specURL = resolved
	}

	if ok, err := in.Search.VerifySpecURL(ctx, specURL); err != nil {
		return err
	} else if !ok {
		return lurockerrors.NewPackage("spec URL %s for %q does not resolve", specURL, name)
	}

	specText, err := in.Client.DownloadSpec(ctx, specURL)
	if err != nil {
		return err
	}
	spec, err := in.Client.ParseSpec(specText)
	if err != nil {
		return err
	}

	sourcePath, err := in.Client.DownloadSource(ctx, locked.SourceURL)
	if err != nil {
		return err
	}

	ok, err := in.Store.VerifyChecksum(sourcePath, locked.Checksum)
	if err != nil {
		return lurockerrors.WrapPackage(err, "verifying checksum for %q", name)
	}
	if !ok {
		return lurockerrors.NewPackage("checksum mismatch for %q: expected %s", name, locked.Checksum)
	}

	extractRoot, err := os.MkdirTemp("", "lurock-extract-"+name+"-*")
	if err != nil {
		return lurockerrors.WrapPackage(err, "creating extraction directory for %q", name)
	}
	defer os.RemoveAll(extractRoot)

	if err := extractArchive(sourcePath, extractRoot); err != nil {
		return lurockerrors.WrapPackage(err, "extracting %q", name)
	}
	srcRoot, err := resolveSourceRoot(extractRoot)
	if err != nil {
		return lurockerrors.WrapPackage(err, "locating source root for %q", name)
	}

	dest := in.packageDir(name)
	if err := os.RemoveAll(dest); err != nil {
		return lurockerrors.WrapPackage(err, "clearing install directory for %q", name)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return lurockerrors.WrapPackage(err, "creating install directory for %q", name)
	}

	result, err := in.runBuild(ctx, name, srcRoot, dest, spec.Build)
	if err != nil {
		return lurockerrors.WrapPackage(err, "building %q", name)
	}

	if err := in.place(dest, result, spec.Build); err != nil {
		return lurockerrors.WrapPackage(err, "placing files for %q", name)
	}

	in.Log.Infof("installed %s %s", name, locked.Version)
	return nil
}

// RemovePackage deletes an installed package's directory. It is a no-op if
// the package is not installed.
func (in *Installer) RemovePackage(name string) error {
	dir := in.packageDir(name)
	if err := os.RemoveAll(dir); err != nil {
		return lurockerrors.WrapPackage(err, "removing %q", name)
	}
	return nil
}

// extractArchive extracts a tar.gz, tgz, or zip archive at srcPath into
// destDir, following golang-dep's extractDependency shape but dispatching on
// extension and supporting zip as a second branch.
func extractArchive(srcPath, destDir string) error {
	lower := strings.ToLower(srcPath)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return extractZip(srcPath, destDir)
	default:
		return extractTarGz(srcPath, destDir)
	}
}

func extractTarGz(srcPath, destDir string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		target := filepath.Join(destDir, header.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return lurockerrors.NewPath(header.Name, "archive entry escapes extraction root")
		}

		info := header.FileInfo()
		if info.IsDir() {
			if err := os.MkdirAll(target, info.Mode()); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		file, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode())
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, tr); err != nil {
			file.Close()
			return err
		}
		file.Close()
	}
	return nil
}

func extractZip(srcPath, destDir string) error {
	r, err := zip.OpenReader(srcPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) && target != filepath.Clean(destDir) {
			return lurockerrors.NewPath(f.Name, "archive entry escapes extraction root")
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		out.Close()
		rc.Close()
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

// resolveSourceRoot requires the archive to have produced exactly one
// top-level directory (spec §4.H step 5, §8 "a zip with no top-level
// directory fails extraction"): if extractRoot contains anything other than
// a single directory entry, the archive has files at the root with no
// single top-level directory and extraction fails.
func resolveSourceRoot(extractRoot string) (string, error) {
	entries, err := os.ReadDir(extractRoot)
	if err != nil {
		return "", err
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return "", lurockerrors.NewPackage("no root directory")
	}
	return filepath.Join(extractRoot, entries[0].Name()), nil
}

// buildResult carries what runBuild learned back to place(): whether the
// build tool's own install step already populated dest (spec §4.H "make
// install PREFIX=<dest>" / "cmake --install . --prefix <dest>"), and which
// directory any fallback placement should resolve relative paths against
// (the cmake build directory rather than the source root, since cmake's own
// build products land there).
type buildResult struct {
	placed  bool
	baseDir string
}

// runBuild dispatches on the spec's build type (spec §4.H step 5), grounded
// on original_source/src/package/installer.rs's build_with_make/
// build_with_cmake/build_with_command/build_with_rust.
func (in *Installer) runBuild(ctx context.Context, name, srcRoot, dest string, build specfile.Build) (buildResult, error) {
	switch build.Type {
	case specfile.BuildBuiltin, specfile.BuildNone, "":
		return buildResult{baseDir: srcRoot}, nil

	case specfile.BuildMake:
		if err := in.runMonitored(ctx, srcRoot, "make"); err != nil {
			return buildResult{}, err
		}
		if err := in.runMonitoredEnv(ctx, srcRoot, []string{"PREFIX=" + dest}, "make", "install"); err == nil {
			return buildResult{placed: true}, nil
		}
		return buildResult{baseDir: srcRoot}, nil

	case specfile.BuildCMake:
		buildDir := filepath.Join(srcRoot, "build")
		if err := os.MkdirAll(buildDir, 0o755); err != nil {
			return buildResult{}, err
		}
		if err := in.runMonitoredIn(ctx, buildDir, "cmake", ".."); err != nil {
			return buildResult{}, lurockerrors.WrapPackage(err, "cmake configure")
		}
		if err := in.runMonitoredIn(ctx, buildDir, "cmake", "--build", "."); err != nil {
			return buildResult{}, lurockerrors.WrapPackage(err, "cmake build")
		}
		if err := in.runMonitoredIn(ctx, buildDir, "cmake", "--install", ".", "--prefix", dest); err == nil {
			return buildResult{placed: true}, nil
		}
		return buildResult{baseDir: buildDir}, nil

	case specfile.BuildCommand:
		script := filepath.Join(srcRoot, "build.sh")
		if _, err := os.Stat(script); err != nil {
			return buildResult{}, lurockerrors.NewPackage("command build type requires a build script in package source")
		}
		if err := in.runMonitored(ctx, srcRoot, "sh", script); err != nil {
			return buildResult{}, lurockerrors.WrapPackage(err, "custom build command failed")
		}
		return buildResult{baseDir: srcRoot}, nil

	case specfile.BuildRust, specfile.BuildRustMlua:
		if _, err := os.Stat(filepath.Join(srcRoot, "Cargo.toml")); err != nil {
			return buildResult{}, lurockerrors.NewPackage("rust build type requires Cargo.toml in package source")
		}
		if err := in.runMonitored(ctx, srcRoot, "cargo", "build", "--release"); err != nil {
			return buildResult{}, lurockerrors.WrapPackage(err, "cargo build failed")
		}
		if err := copyRustLibrary(srcRoot, dest); err != nil {
			return buildResult{}, err
		}
		return buildResult{baseDir: srcRoot}, nil

	default:
		return buildResult{}, lurockerrors.NewNotImplemented(fmt.Sprintf("build type %q", build.Type))
	}
}

// copyRustLibrary looks in srcRoot/target/release for the one compiled
// library matching this platform's extension and copies it into dest by
// filename (spec §4.H step 6; installer.rs's build_with_rust). A release
// directory with no matching file is not an error: the modules/install-table
// copies that follow may be the package's only placement.
func copyRustLibrary(srcRoot, dest string) error {
	targetDir := filepath.Join(srcRoot, "target", "release")
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		return nil
	}

	ext := rustLibExt()
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		if strings.HasSuffix(n, ext) {
			return copyFile(filepath.Join(targetDir, n), filepath.Join(dest, n))
		}
	}
	return nil
}

// rustLibExt mirrors installer.rs's cfg!(target_os) dispatch via runtime.GOOS.
func rustLibExt() string {
	switch runtime.GOOS {
	case "windows":
		return ".dll"
	case "darwin":
		return ".dylib"
	default:
		return ".so"
	}
}

func (in *Installer) runMonitored(ctx context.Context, dir, name string, args ...string) error {
	return in.runMonitoredIn(ctx, dir, name, args...)
}

func (in *Installer) runMonitoredIn(ctx context.Context, dir, name string, args ...string) error {
	return in.runMonitoredEnv(ctx, dir, nil, name, args...)
}

func (in *Installer) runMonitoredEnv(ctx context.Context, dir string, extraEnv []string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	mc := newMonitoredCmd(ctx, cmd, in.BuildTimeout)
	out, err := mc.combinedOutput()
	if err != nil {
		return lurockerrors.NewPackage("%s: %s", string(out), err)
	}
	return nil
}

// place copies build outputs into dest (spec §4.H step 6). builtin/none
// branches on whether the spec declares explicit modules; every other build
// type falls back install-table -> modules -> whole-tree, skipped entirely
// when the build tool's own install step (runBuild's buildResult.placed)
// already populated dest.
func (in *Installer) place(dest string, result buildResult, build specfile.Build) error {
	if result.placed {
		return nil
	}
	base := result.baseDir

	switch build.Type {
	case specfile.BuildBuiltin, specfile.BuildNone, "":
		if len(build.Modules) > 0 {
			return copyModules(base, dest, build.Modules)
		}
		return copyWholeTree(base, dest)
	default:
		if !build.Install.Empty() {
			return copyInstallTable(base, dest, build.Install)
		}
		if len(build.Modules) > 0 {
			return copyModules(base, dest, build.Modules)
		}
		return copyWholeTree(base, dest)
	}
}

// copyInstallTable copies the Install table's bin/lua/lib/conf entries from
// base into dest, preserving each map's logical name as the destination
// filename.
func copyInstallTable(base, dest string, install specfile.InstallTable) error {
	categories := []struct {
		name    string
		mapping map[string]string
	}{
		{"bin", install.Bin},
		{"lua", install.Lua},
		{"lib", install.Lib},
		{"conf", install.Conf},
	}

	for _, cat := range categories {
		category, mapping := cat.name, cat.mapping

		names := make([]string, 0, len(mapping))
		for n := range mapping {
			names = append(names, n)
		}
		sort.Strings(names)

		for _, logicalName := range names {
			src := filepath.Join(base, mapping[logicalName])
			out := filepath.Join(dest, category, logicalName)
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
			if err := copyFile(src, out); err != nil {
				return lurockerrors.WrapPackage(err, "placing %s/%s", category, logicalName)
			}
		}
	}
	return nil
}

// copyModules copies exactly modules.values() from base into dest,
// preserving each entry's relative path (spec §4.H step 6; installer.rs's
// install_builtin).
func copyModules(base, dest string, modules map[string]string) error {
	names := make([]string, 0, len(modules))
	for m := range modules {
		names = append(names, m)
	}
	sort.Strings(names)

	for _, m := range names {
		relPath := modules[m]
		src := filepath.Join(base, relPath)
		if _, err := os.Stat(src); err != nil {
			return lurockerrors.NewPackage("module file not found in source: %s", relPath)
		}
		out := filepath.Join(dest, relPath)
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		if err := copyFile(src, out); err != nil {
			return lurockerrors.WrapPackage(err, "placing module %q", m)
		}
	}
	return nil
}

// copyWholeTree recursively copies base into dest. go-shutil's CopyTree
// requires dest not to already exist (it creates dest itself), so any
// directory InstallPackage pre-created for the build step is cleared first.
func copyWholeTree(base, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	cfg := &shutil.CopyTreeOptions{
		Symlinks:     true,
		CopyFunction: shutil.Copy,
		Ignore: func(src string, contents []os.FileInfo) (ignore []string) {
			for _, fi := range contents {
				if fi.IsDir() && fi.Name() == ".git" {
					ignore = append(ignore, fi.Name())
				}
			}
			return
		},
	}
	return shutil.CopyTree(base, dest, cfg)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// monitoredCmd wraps a cmd and keeps monitoring the process until it
// finishes, the context is canceled, or no activity is observed for timeout
// (ported from golang-dep's cmd.go).
type monitoredCmd struct {
	cmd     *exec.Cmd
	timeout time.Duration
	ctx     context.Context
	stdout  *activityBuffer
	stderr  *activityBuffer
}

func newMonitoredCmd(ctx context.Context, cmd *exec.Cmd, timeout time.Duration) *monitoredCmd {
	stdout, stderr := newActivityBuffer(), newActivityBuffer()
	cmd.Stdout, cmd.Stderr = stdout, stderr
	return &monitoredCmd{cmd: cmd, timeout: timeout, ctx: ctx, stdout: stdout, stderr: stderr}
}

func (c *monitoredCmd) run() error {
	ticker := time.NewTicker(c.timeout)
	defer ticker.Stop()
	done := make(chan error, 1)
	go func() { done <- c.cmd.Run() }()

	for {
		select {
		case <-ticker.C:
			if c.hasTimedOut() {
				if err := c.cmd.Process.Kill(); err != nil {
					return fmt.Errorf("error killing command: %w", err)
				}
				return fmt.Errorf("command killed after %s of no activity", c.timeout)
			}
		case <-c.ctx.Done():
			if c.cmd.Process != nil {
				c.cmd.Process.Kill()
			}
			return c.ctx.Err()
		case err := <-done:
			return err
		}
	}
}

func (c *monitoredCmd) hasTimedOut() bool {
	t := time.Now().Add(-c.timeout)
	return c.stderr.lastActivity().Before(t) && c.stdout.lastActivity().Before(t)
}

func (c *monitoredCmd) combinedOutput() ([]byte, error) {
	if err := c.run(); err != nil {
		return c.stderr.buf.Bytes(), err
	}
	return c.stdout.buf.Bytes(), nil
}

type activityBuffer struct {
	sync.Mutex
	buf               *bytes.Buffer
	lastActivityStamp time.Time
}

func newActivityBuffer() *activityBuffer {
	return &activityBuffer{buf: bytes.NewBuffer(nil), lastActivityStamp: time.Now()}
}

func (b *activityBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	b.lastActivityStamp = time.Now()
	return b.buf.Write(p)
}

func (b *activityBuffer) lastActivity() time.Time {
	b.Lock()
	defer b.Unlock()
	return b.lastActivityStamp
}
