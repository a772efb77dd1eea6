package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/lockfile"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/specfile"
)

// fakeClient is a minimal in-memory registryclient.PackageClient plus the
// optional VerifySpecURL method search.Provider looks for.
type fakeClient struct {
	specs       map[string]specfile.PackageSpec
	sourcePaths map[string]string
	verifyOK    bool
}

func (f *fakeClient) FetchManifest(ctx context.Context) (registryclient.Registry, error) {
	return registryclient.Registry{}, nil
}

func (f *fakeClient) DownloadSpec(ctx context.Context, url string) (string, error) {
	return url, nil
}

func (f *fakeClient) ParseSpec(text string) (specfile.PackageSpec, error) {
	return f.specs[text], nil
}

func (f *fakeClient) DownloadSource(ctx context.Context, url string) (string, error) {
	return f.sourcePaths[url], nil
}

func (f *fakeClient) VerifySpecURL(ctx context.Context, specURL string) (bool, error) {
	return f.verifyOK, nil
}

func buildTarGz(t *testing.T, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gzw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// BuiltinBuild without a modules map copies the whole extracted tree; its
// install table is not consulted (spec §4.H step 6).
func TestInstallPackageBuiltinIgnoresInstallTable(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{
		"foo-1.0.0/init.lua": "return {}\n",
		"foo-1.0.0/README":   "hi\n",
	})

	store := cache.New(t.TempDir(), cache.Blake3)
	checksum, err := store.Checksum(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		specs: map[string]specfile.PackageSpec{
			"foo@1.0.0-1": {
				Package: "foo",
				Version: "1.0.0-1",
				Build: specfile.Build{
					Type: specfile.BuildBuiltin,
					Install: specfile.InstallTable{
						Lua: map[string]string{"foo.lua": "foo-1.0.0/init.lua"},
					},
				},
			},
		},
		sourcePaths: map[string]string{"https://example.invalid/foo.tar.gz": archivePath},
		verifyOK:    true,
	}

	projectRoot := t.TempDir()
	in := New(client, store, projectRoot)

	locked := &lockfile.LockedPackage{
		Version:   "1.0.0",
		SpecURL:   "foo@1.0.0-1",
		SourceURL: "https://example.invalid/foo.tar.gz",
		Checksum:  checksum,
	}

	if err := in.InstallPackage(context.Background(), "foo", locked); err != nil {
		t.Fatalf("InstallPackage: %s", err)
	}

	installed := filepath.Join(projectRoot, ModulesDirName, "foo", "init.lua")
	data, err := os.ReadFile(installed)
	if err != nil {
		t.Fatalf("expected installed file: %s", err)
	}
	if string(data) != "return {}\n" {
		t.Errorf("installed content = %q", data)
	}
}

func TestInstallPackageChecksumMismatch(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{"foo-1.0.0/init.lua": "return {}\n"})
	store := cache.New(t.TempDir(), cache.Blake3)

	client := &fakeClient{
		specs: map[string]specfile.PackageSpec{
			"foo@1.0.0-1": {Package: "foo", Build: specfile.Build{Type: specfile.BuildNone}},
		},
		sourcePaths: map[string]string{"https://example.invalid/foo.tar.gz": archivePath},
		verifyOK:    true,
	}

	in := New(client, store, t.TempDir())
	locked := &lockfile.LockedPackage{
		Version:   "1.0.0",
		SpecURL:   "foo@1.0.0-1",
		SourceURL: "https://example.invalid/foo.tar.gz",
		Checksum:  "blake3:0000000000000000000000000000000000000000000000000000000000000000",
	}

	err := in.InstallPackage(context.Background(), "foo", locked)
	if err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
}

func TestInstallPackageRejectsUnverifiableSpecURL(t *testing.T) {
	store := cache.New(t.TempDir(), cache.Blake3)
	client := &fakeClient{specs: map[string]specfile.PackageSpec{}, verifyOK: false}

	in := New(client, store, t.TempDir())
	locked := &lockfile.LockedPackage{Version: "1.0.0", SpecURL: "foo@1.0.0-1", Checksum: "blake3:ab"}

	if err := in.InstallPackage(context.Background(), "foo", locked); err == nil {
		t.Fatal("expected spec URL verification failure")
	}
}

// An archive with more than one top-level entry has no single root
// directory to install from; extraction must fail rather than silently
// installing from the extraction root (spec §4.H step 5, §8).
func TestInstallPackageRejectsArchiveWithNoSingleRootDir(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{
		"foo-1.0.0/init.lua": "return {}\n",
		"bar-1.0.0/init.lua": "return {}\n",
	})

	store := cache.New(t.TempDir(), cache.Blake3)
	checksum, err := store.Checksum(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		specs: map[string]specfile.PackageSpec{
			"foo@1.0.0-1": {Package: "foo", Build: specfile.Build{Type: specfile.BuildNone}},
		},
		sourcePaths: map[string]string{"https://example.invalid/foo.tar.gz": archivePath},
		verifyOK:    true,
	}

	in := New(client, store, t.TempDir())
	locked := &lockfile.LockedPackage{
		Version:   "1.0.0",
		SpecURL:   "foo@1.0.0-1",
		SourceURL: "https://example.invalid/foo.tar.gz",
		Checksum:  checksum,
	}

	if err := in.InstallPackage(context.Background(), "foo", locked); err == nil {
		t.Fatal("expected an error for an archive with no single root directory")
	}
}

// BuildBuiltin with a non-empty modules map copies exactly those files,
// preserving their relative path, instead of the whole extracted tree
// (spec §4.H step 6).
func TestInstallPackageBuiltinModulesCopiesOnlyListedFiles(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{
		"foo-1.0.0/init.lua":  "return {}\n",
		"foo-1.0.0/extra.lua": "return 1\n",
		"foo-1.0.0/README":    "hi\n",
	})

	store := cache.New(t.TempDir(), cache.Blake3)
	checksum, err := store.Checksum(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		specs: map[string]specfile.PackageSpec{
			"foo@1.0.0-1": {
				Package: "foo",
				Build: specfile.Build{
					Type:    specfile.BuildBuiltin,
					Modules: map[string]string{"foo": "init.lua"},
				},
			},
		},
		sourcePaths: map[string]string{"https://example.invalid/foo.tar.gz": archivePath},
		verifyOK:    true,
	}

	projectRoot := t.TempDir()
	in := New(client, store, projectRoot)

	locked := &lockfile.LockedPackage{
		Version:   "1.0.0",
		SpecURL:   "foo@1.0.0-1",
		SourceURL: "https://example.invalid/foo.tar.gz",
		Checksum:  checksum,
	}

	if err := in.InstallPackage(context.Background(), "foo", locked); err != nil {
		t.Fatalf("InstallPackage: %s", err)
	}

	if _, err := os.Stat(filepath.Join(projectRoot, ModulesDirName, "foo", "init.lua")); err != nil {
		t.Errorf("expected listed module to be installed: %s", err)
	}
	if _, err := os.Stat(filepath.Join(projectRoot, ModulesDirName, "foo", "extra.lua")); !os.IsNotExist(err) {
		t.Errorf("expected unlisted module to be absent, got err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(projectRoot, ModulesDirName, "foo", "README")); !os.IsNotExist(err) {
		t.Errorf("expected unlisted file to be absent, got err=%v", err)
	}
}

// BuildCommand without a build.sh in the extracted root fails outright
// rather than trying to run anything (spec §4.H step 6;
// original_source/src/package/installer.rs's build_with_command).
func TestInstallPackageCommandBuildRequiresScript(t *testing.T) {
	archivePath := buildTarGz(t, map[string]string{"foo-1.0.0/init.lua": "return {}\n"})
	store := cache.New(t.TempDir(), cache.Blake3)
	checksum, err := store.Checksum(archivePath)
	if err != nil {
		t.Fatal(err)
	}

	client := &fakeClient{
		specs: map[string]specfile.PackageSpec{
			"foo@1.0.0-1": {Package: "foo", Build: specfile.Build{Type: specfile.BuildCommand}},
		},
		sourcePaths: map[string]string{"https://example.invalid/foo.tar.gz": archivePath},
		verifyOK:    true,
	}

	in := New(client, store, t.TempDir())
	locked := &lockfile.LockedPackage{
		Version:   "1.0.0",
		SpecURL:   "foo@1.0.0-1",
		SourceURL: "https://example.invalid/foo.tar.gz",
		Checksum:  checksum,
	}

	if err := in.InstallPackage(context.Background(), "foo", locked); err == nil {
		t.Fatal("expected an error for a command build with no build.sh")
	}
}

func TestRemovePackageDeletesDirectory(t *testing.T) {
	projectRoot := t.TempDir()
	dir := filepath.Join(projectRoot, ModulesDirName, "foo")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	in := New(&fakeClient{}, cache.New(t.TempDir(), cache.Blake3), projectRoot)
	if err := in.RemovePackage("foo"); err != nil {
		t.Fatalf("RemovePackage: %s", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected package directory to be removed")
	}
}

func TestRemovePackageNoOpWhenAbsent(t *testing.T) {
	in := New(&fakeClient{}, cache.New(t.TempDir(), cache.Blake3), t.TempDir())
	if err := in.RemovePackage("never-installed"); err != nil {
		t.Errorf("expected no error removing an absent package, got %s", err)
	}
}
