package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, Blake3)

	p := c.SourcePath("https://registry.example.com/foo-1.0.0.tar.gz")
	if err := c.Write(p, []byte("hello world")); err != nil {
		t.Fatalf("Write: %s", err)
	}

	if !c.Exists(p) {
		t.Fatalf("Exists(%s) = false after write", p)
	}

	got, err := c.Read(p)
	if err != nil {
		t.Fatalf("Read: %s", err)
	}
	if string(got) != "hello world" {
		t.Errorf("Read = %q, want %q", got, "hello world")
	}
}

func TestChecksumDeterministic(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, Blake3)

	p := filepath.Join(dir, "f")
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	sum1, err := c.Checksum(p)
	if err != nil {
		t.Fatal(err)
	}
	sum2, err := c.Checksum(p)
	if err != nil {
		t.Fatal(err)
	}
	if sum1 != sum2 {
		t.Errorf("checksum not deterministic: %s != %s", sum1, sum2)
	}
	if sum1[:7] != "blake3:" {
		t.Errorf("checksum %q missing blake3: prefix", sum1)
	}
}

func TestVerifyChecksum(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, SHA256)

	p := filepath.Join(dir, "f")
	if err := os.WriteFile(p, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	sum, err := c.Checksum(p)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := c.VerifyChecksum(p, sum)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("VerifyChecksum should succeed against freshly computed checksum")
	}

	ok, err = c.VerifyChecksum(p, "sha256:deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("VerifyChecksum should fail against a mismatched checksum")
	}

	if _, err := c.VerifyChecksum(p, "not-a-checksum"); err == nil {
		t.Error("VerifyChecksum should error on malformed expected checksum")
	}
}

func TestSpecAndBuildPaths(t *testing.T) {
	c := New("/cacheroot", Blake3)

	if got, want := c.SpecPath("foo", "1.0.0"), "/cacheroot/specs/foo-1.0.0.spec"; got != want {
		t.Errorf("SpecPath = %s, want %s", got, want)
	}
	if got, want := c.BuildPath("foo", "1.0.0", "5.1", "linux-amd64"), "/cacheroot/builds/foo-1.0.0-5.1-linux-amd64"; got != want {
		t.Errorf("BuildPath = %s, want %s", got, want)
	}
}
