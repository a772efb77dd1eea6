// Package verifier implements verify_all (spec §4.K): for every locked
// package, recompute its cached source archive's checksum and compare it
// against the lockfile's recorded value. Verification never mutates state.
//
// The rehash-and-compare shape is modeled on golang-dep's
// internal/fs/hash.go (HashFromNode); the rehash itself is
// internal/cache.VerifyChecksum, and the per-project loop is modeled on
// status.go's per-project status-check pass.
package verifier

import (
	"context"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/lockfile"
)

// Failure is one package that failed verification, with a human-readable
// reason (spec §4.K).
type Failure struct {
	Name   string
	Reason string
}

// Result is verify_all's output.
type Result struct {
	Successful []string
	Failed     []Failure
}

// VerifyAll checks every locked package in lf against store, in
// lexicographic order for deterministic output.
func VerifyAll(ctx context.Context, lf *lockfile.Lockfile, store *cache.Cache) Result {
	var res Result

	for _, name := range lf.SortedNames() {
		if ctx.Err() != nil {
			res.Failed = append(res.Failed, Failure{Name: name, Reason: ctx.Err().Error()})
			continue
		}
		pkg := lf.GetPackage(name)

		if _, _, ok := splitChecksum(pkg.Checksum); !ok {
			res.Failed = append(res.Failed, Failure{Name: name, Reason: "invalid checksum syntax: missing algo prefix"})
			continue
		}

		path := store.SourcePath(pkg.SourceURL)
		if !store.Exists(path) {
			res.Failed = append(res.Failed, Failure{Name: name, Reason: "source file not found"})
			continue
		}

		ok, err := store.VerifyChecksum(path, pkg.Checksum)
		if err != nil {
			res.Failed = append(res.Failed, Failure{Name: name, Reason: err.Error()})
			continue
		}
		if !ok {
			res.Failed = append(res.Failed, Failure{Name: name, Reason: "checksum mismatch"})
			continue
		}

		res.Successful = append(res.Successful, name)
	}

	return res
}

// splitChecksum mirrors internal/cache's own parsing so verifier can report
// a malformed checksum as a failure before ever touching the filesystem.
func splitChecksum(s string) (algo, hexDigest string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}
