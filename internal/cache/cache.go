// Package cache implements lurock's content-addressed cache (spec §4.B): a
// pure function from a key (URL, or name+version, or build coordinates) to a
// filesystem path, atomic writes, and checksum computation/verification.
//
// Atomic writes reuse internal/fs.RenameWithFallback directly: write to a
// sibling temp path, then rename into place, so a reader sees either the old
// content, the new content, or not-exists, never a partial write.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"lukechampine.com/blake3"

	"github.com/lurock/lurock/internal/fs"
	"github.com/lurock/lurock/internal/lurockerrors"
)

// Algorithm selects the checksum algorithm (spec: "blake3" or "sha256").
type Algorithm string

const (
	Blake3 Algorithm = "blake3"
	SHA256 Algorithm = "sha256"
)

// Cache is a content-addressed store rooted at a single directory.
type Cache struct {
	root string
	algo Algorithm
}

// New returns a Cache rooted at root, computing checksums with algo. An
// empty algo defaults to Blake3.
func New(root string, algo Algorithm) *Cache {
	if algo == "" {
		algo = Blake3
	}
	return &Cache{root: root, algo: algo}
}

// SpecPath returns <root>/specs/<name>-<version>.spec.
func (c *Cache) SpecPath(name, version string) string {
	return filepath.Join(c.root, "specs", fmt.Sprintf("%s-%s.spec", name, version))
}

// SourcePath returns <root>/sources/<hex-hash-of-url>.<extension>. The hash
// used for the path need not be cryptographic; it only needs to be a stable
// function of the URL, so it reuses sha256 for simplicity rather than
// reaching for a second hash family.
func (c *Cache) SourcePath(rawURL string) string {
	h := sha256.Sum256([]byte(rawURL))
	return filepath.Join(c.root, "sources", hex.EncodeToString(h[:])+extensionOf(rawURL))
}

// BuildPath returns <root>/builds/<name>-<version>-<interpreterVersion>-<target>.
func (c *Cache) BuildPath(name, version, interpreterVersion, target string) string {
	return filepath.Join(c.root, "builds", fmt.Sprintf("%s-%s-%s-%s", name, version, interpreterVersion, target))
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	path := rawURL
	if err == nil {
		path = u.Path
	}
	if strings.HasSuffix(path, ".tar.gz") {
		return ".tar.gz"
	}
	if strings.HasSuffix(path, ".tgz") {
		return ".tgz"
	}
	ext := filepath.Ext(path)
	if ext == "" {
		return ".tar.gz"
	}
	return ext
}

// Exists reports whether p is present on disk.
func (c *Cache) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Read returns the exact bytes last written to p.
func (c *Cache) Read(p string) ([]byte, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, lurockerrors.NewCache(err, "read %s", p)
	}
	return b, nil
}

// Write stores b at p atomically: it writes to a sibling temp file, then
// renames over p, so concurrent readers never observe a partial write.
func (c *Cache) Write(p string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return lurockerrors.NewCache(err, "mkdir for %s", p)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return lurockerrors.NewCache(err, "create temp file for %s", p)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return lurockerrors.NewCache(err, "write temp file for %s", p)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.NewCache(err, "close temp file for %s", p)
	}

	if err := fs.RenameWithFallback(tmpPath, p); err != nil {
		os.Remove(tmpPath)
		return lurockerrors.NewCache(err, "rename into place for %s", p)
	}
	return nil
}

// Checksum computes "<algo>:<hex>" over the bytes of the file at p, using
// the cache's configured algorithm.
func (c *Cache) Checksum(p string) (string, error) {
	return c.checksumWith(p, c.algo)
}

func (c *Cache) checksumWith(p string, algo Algorithm) (string, error) {
	if dir, err := isDir(p); err == nil && dir {
		return c.checksumDir(p, algo)
	}

	f, err := os.Open(p)
	if err != nil {
		return "", lurockerrors.NewCache(err, "open %s for checksum", p)
	}
	defer f.Close()

	h := newHash(algo)
	if _, err := io.Copy(h, f); err != nil {
		return "", lurockerrors.NewCache(err, "hash %s", p)
	}
	return formatChecksum(algo, h), nil
}

// checksumDir hashes a directory-shaped build artifact by walking its tree
// in a stable order and feeding each relative path and file's bytes into the
// digest, using godirwalk for the traversal (vendored by the teacher
// transitively, adopted here directly for the recursive scan).
func (c *Cache) checksumDir(root string, algo Algorithm) (string, error) {
	h := newHash(algo)

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(path string, de *godirwalk.Dirent) error {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			h.Write([]byte(rel))
			if de.IsDir() {
				return nil
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(h, f)
			return err
		},
	})
	if err != nil {
		return "", lurockerrors.NewCache(err, "hash directory %s", root)
	}
	return formatChecksum(algo, h), nil
}

func isDir(p string) (bool, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}

func newHash(algo Algorithm) hash.Hash {
	if algo == SHA256 {
		return sha256.New()
	}
	h, err := blake3.New(32, nil)
	if err != nil {
		// only fails for an invalid key length, and we never pass a key.
		panic(err)
	}
	return h
}

func formatChecksum(algo Algorithm, h hash.Hash) string {
	return fmt.Sprintf("%s:%s", algo, hex.EncodeToString(h.Sum(nil)))
}

// VerifyChecksum recomputes the checksum of p and compares it byte-for-byte
// against expected, which carries its own "<algo>:<hex>" prefix.
func (c *Cache) VerifyChecksum(p, expected string) (bool, error) {
	algo, _, ok := splitChecksum(expected)
	if !ok {
		return false, lurockerrors.NewCache(nil, "malformed checksum %q: missing algo prefix", expected)
	}
	got, err := c.checksumWith(p, Algorithm(algo))
	if err != nil {
		return false, err
	}
	return got == expected, nil
}

// splitChecksum splits "<algo>:<hex>" into its parts.
func splitChecksum(s string) (algo, hexDigest string, ok bool) {
	i := strings.Index(s, ":")
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
