package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/config"
	"github.com/lurock/lurock/internal/installer"
	"github.com/lurock/lurock/internal/lockfile"
	"github.com/lurock/lurock/internal/lurocklog"
	"github.com/lurock/lurock/internal/manifest"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/specfile"
)

// fakeClient is an in-memory registryclient.PackageClient, the same shape
// internal/resolver's and internal/installer's own test doubles use, so an
// Install/Update round trip can run without a real registry (spec §8 S1).
// DownloadSource writes through the real cache, exactly like
// registryclient.HTTPClient.DownloadSource, so internal/lockfile's
// reuse-on-update path (spec §8 S6) is genuinely exercised rather than
// short-circuited by a test double.
type fakeClient struct {
	store    *cache.Cache
	registry registryclient.Registry
	specs    map[string]specfile.PackageSpec
	archives map[string][]byte
}

func newFakeClient(store *cache.Cache) *fakeClient {
	return &fakeClient{
		store:    store,
		registry: registryclient.Registry{},
		specs:    map[string]specfile.PackageSpec{},
		archives: map[string][]byte{},
	}
}

func (f *fakeClient) addVersion(name, registryVersion, sourceURL string, archive []byte, deps ...string) {
	specURL := name + "@" + registryVersion
	f.registry[name] = append(f.registry[name], registryclient.PackageVersionRecord{
		Version: registryVersion,
		SpecURL: specURL,
	})
	f.specs[specURL] = specfile.PackageSpec{
		Package:      name,
		Version:      registryVersion,
		Source:       specfile.Source{URL: sourceURL},
		Dependencies: deps,
		Build:        specfile.Build{Type: specfile.BuildNone},
	}
	f.archives[sourceURL] = archive
}

func (f *fakeClient) FetchManifest(ctx context.Context) (registryclient.Registry, error) {
	return f.registry, nil
}

func (f *fakeClient) DownloadSpec(ctx context.Context, url string) (string, error) {
	return url, nil
}

func (f *fakeClient) ParseSpec(text string) (specfile.PackageSpec, error) {
	return f.specs[text], nil
}

func (f *fakeClient) DownloadSource(ctx context.Context, url string) (string, error) {
	path := f.store.SourcePath(url)
	if f.store.Exists(path) {
		return path, nil
	}
	if err := f.store.Write(path, f.archives[url]); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeClient) VerifySpecURL(ctx context.Context, specURL string) (bool, error) {
	_, ok := f.specs[specURL]
	return ok, nil
}

func buildTarGz(t *testing.T, topDir string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	for name, content := range files {
		hdr := &tar.Header{Name: filepath.Join(topDir, name), Mode: 0o644, Size: int64(len(content))}
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
	return buf.Bytes()
}

// newTestApp builds an App by hand rather than through app.New, so a
// fakeClient can stand in for the real HTTP registry client while every
// other collaborator (config, cache, installer) is the genuine
// implementation.
func newTestApp(t *testing.T) (*App, *fakeClient, string) {
	t.Helper()
	root := t.TempDir()

	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("config.Load: %s", err)
	}
	store := cache.New(filepath.Join(root, ".cache"), cfg.ChecksumAlgorithm())
	client := newFakeClient(store)
	in := installer.New(client, store, root)

	return &App{
		ProjectRoot: root,
		Config:      cfg,
		Client:      client,
		Store:       store,
		Installer:   in,
		Log:         lurocklog.Default(false),
	}, client, root
}

func writeManifest(t *testing.T, root string, m *manifest.Manifest) {
	t.Helper()
	if err := m.Save(root); err != nil {
		t.Fatalf("Save manifest: %s", err)
	}
}

// S1: first install, single package (spec §8).
func TestInstallFirstTime(t *testing.T) {
	archive := buildTarGz(t, "foo-1.1.0", map[string]string{"init.lua": "return {}\n"})

	a, client, root := newTestApp(t)
	client.addVersion("foo", "1.0.0-1", "https://example.invalid/foo-1.0.0.tar.gz", archive)
	client.addVersion("foo", "1.1.0-1", "https://example.invalid/foo-1.1.0.tar.gz", archive)
	client.addVersion("foo", "2.0.0-1", "https://example.invalid/foo-2.0.0.tar.gz", archive)

	writeManifest(t, root, &manifest.Manifest{
		Name:         "myproject",
		Version:      "0.1.0",
		Dependencies: map[string]string{"foo": "^1.0.0"},
	})

	result, err := a.Install(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"foo"}, result.Installed)

	lf, err := lockfile.Load(root)
	require.NoError(t, err)
	require.NotNil(t, lf)
	assert.True(t, lf.HasPackage("foo"))
	assert.Equal(t, "1.1.0", lf.GetPackage("foo").Version, "highest version satisfying ^1.0.0")

	installedFile := filepath.Join(root, installer.ModulesDirName, "foo", "init.lua")
	assert.FileExists(t, installedFile)
}

// S3: unsatisfiable constraint leaves no lockfile behind (rollback has
// nothing to undo since none was ever written).
func TestInstallUnsatisfiableLeavesNoLockfile(t *testing.T) {
	a, client, root := newTestApp(t)
	client.addVersion("foo", "2.0.0-1", "https://example.invalid/foo-2.0.0.tar.gz", nil)

	writeManifest(t, root, &manifest.Manifest{
		Name:         "myproject",
		Version:      "0.1.0",
		Dependencies: map[string]string{"foo": "^1.0.0"},
	})

	_, err := a.Install(context.Background())
	assert.Error(t, err, "expected an unsatisfiable-constraint error")

	_, err = os.Stat(filepath.Join(root, lockfile.FileName))
	assert.True(t, os.IsNotExist(err), "expected no lockfile to be written on a failed install")
}

// S6: update with nothing changed reuses the existing lock entry verbatim
// rather than re-downloading and re-hashing the archive.
func TestUpdateReusesUnchangedLockEntry(t *testing.T) {
	archive := buildTarGz(t, "foo-1.0.0", map[string]string{"init.lua": "return {}\n"})

	a, client, root := newTestApp(t)
	client.addVersion("foo", "1.0.0-1", "https://example.invalid/foo-1.0.0.tar.gz", archive)

	writeManifest(t, root, &manifest.Manifest{
		Name:         "myproject",
		Version:      "0.1.0",
		Dependencies: map[string]string{"foo": "^1.0.0"},
	})

	_, err := a.Install(context.Background())
	require.NoError(t, err)
	before, err := lockfile.Load(root)
	require.NoError(t, err)

	_, err = a.Update(context.Background())
	require.NoError(t, err)
	after, err := lockfile.Load(root)
	require.NoError(t, err)

	assert.Equal(t, before.GetPackage("foo").Checksum, after.GetPackage("foo").Checksum,
		"update changed the checksum of an unchanged dependency")
}

func TestRemoveThenInstalledDirectoryAbsent(t *testing.T) {
	a, _, root := newTestApp(t)

	dir := filepath.Join(root, installer.ModulesDirName, "foo")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, a.Remove("foo"))

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "expected package directory to be removed")
}
