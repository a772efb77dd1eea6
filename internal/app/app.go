// Package app wires the core subsystems (config, registry client, cache,
// resolver, lockfile, installer, conflict checker, rollback, verifier) into
// the handful of whole-project operations the CLI collaborator (cmd/lurock)
// calls, one per spec §2 "Control flow for an install" paragraph.
//
// This layer is itself out of spec scope (§1 excludes "the command-line
// surface" but an install still needs *something* to drive the installer
// with a manifest, project root, and service handles) — it is grounded on
// golang-dep's own cmd/dep/ensure.go and root.go, which perform exactly this
// kind of orchestration outside the gps solver package itself.
package app

import (
	"context"

	"github.com/lurock/lurock/internal/cache"
	"github.com/lurock/lurock/internal/conflict"
	"github.com/lurock/lurock/internal/config"
	"github.com/lurock/lurock/internal/installer"
	"github.com/lurock/lurock/internal/lockfile"
	"github.com/lurock/lurock/internal/lurocklog"
	"github.com/lurock/lurock/internal/manifest"
	"github.com/lurock/lurock/internal/registryclient"
	"github.com/lurock/lurock/internal/resolver"
	"github.com/lurock/lurock/internal/rollback"
	"github.com/lurock/lurock/internal/verifier"
)

// App holds the long-lived, construct-once-per-process collaborators (spec
// §9 "Shared ownership") for one project root.
type App struct {
	ProjectRoot string
	Config      config.ConfigProvider
	Client      registryclient.PackageClient
	Store       *cache.Cache
	Installer   *installer.Installer
	Log         *lurocklog.Logger
}

// New loads lurock.yaml (or its defaults/environment-only equivalent) for
// projectRoot and builds every collaborator that hangs off it.
func New(projectRoot string, verbose bool) (*App, error) {
	cfg, err := config.Load(projectRoot)
	if err != nil {
		return nil, err
	}

	store := cache.New(cfg.CacheDir(), cfg.ChecksumAlgorithm())
	client := registryclient.NewHTTPClient(cfg.RegistryURL(), store)
	log := lurocklog.Default(verbose)

	in := installer.New(client, store, projectRoot)
	in.Log = log

	return &App{
		ProjectRoot: projectRoot,
		Config:      cfg,
		Client:      client,
		Store:       store,
		Installer:   in,
		Log:         log,
	}, nil
}

// InstallResult summarizes one Install/Update call for the CLI to report.
type InstallResult struct {
	Installed []string
	Warnings  []string
}

// Install runs spec §2's full control flow: load the manifest, build (or
// reuse) the lockfile, install every locked package, and report strict-mode
// conflict warnings — all inside with_rollback so a failure anywhere leaves
// the manifest and lockfile byte-identical to their pre-call state (spec §4.J,
// §8 testable property 6).
func (a *App) Install(ctx context.Context) (*InstallResult, error) {
	var result *InstallResult
	err := rollback.WithRollbackContext(ctx, a.ProjectRoot, a.Log, func(ctx context.Context) error {
		m, err := manifest.Load(a.ProjectRoot)
		if err != nil {
			return err
		}

		existing, err := lockfile.Load(a.ProjectRoot)
		if err != nil {
			return err
		}

		var lf *lockfile.Lockfile
		if existing != nil {
			lf = existing
		} else {
			lf, err = lockfile.BuildLockfile(ctx, a.Client, a.Store, m, false)
			if err != nil {
				return err
			}
		}

		warnings, err := a.reportConflicts(ctx, m)
		if err != nil {
			return err
		}

		installed, err := a.installAll(ctx, lf)
		if err != nil {
			return err
		}

		if err := lf.Save(a.ProjectRoot); err != nil {
			return err
		}

		result = &InstallResult{Installed: installed, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update re-resolves the manifest's dependency set, reusing unchanged
// entries from the existing lockfile (spec §4.G update_lockfile, §8 S6),
// installs whatever changed, and writes the refreshed lockfile. Also
// rollback-guarded per spec §4.J.
func (a *App) Update(ctx context.Context) (*InstallResult, error) {
	var result *InstallResult
	err := rollback.WithRollbackContext(ctx, a.ProjectRoot, a.Log, func(ctx context.Context) error {
		m, err := manifest.Load(a.ProjectRoot)
		if err != nil {
			return err
		}

		existing, err := lockfile.Load(a.ProjectRoot)
		if err != nil {
			return err
		}

		lf, err := lockfile.UpdateLockfile(ctx, a.Client, a.Store, m, false, existing)
		if err != nil {
			return err
		}

		warnings, err := a.reportConflicts(ctx, m)
		if err != nil {
			return err
		}

		installed, err := a.installAll(ctx, lf)
		if err != nil {
			return err
		}

		if err := lf.Save(a.ProjectRoot); err != nil {
			return err
		}

		result = &InstallResult{Installed: installed, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// installAll places every locked package's files under the project's module
// directory, in lexicographic order for deterministic log output.
func (a *App) installAll(ctx context.Context, lf *lockfile.Lockfile) ([]string, error) {
	names := lf.SortedNames()
	for _, name := range names {
		locked := lf.GetPackage(name)
		if err := a.Installer.InstallPackage(ctx, name, locked); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// reportConflicts re-resolves m with graph tracking enabled and runs the
// strict-mode checker (spec §4.I), returning an empty slice (not an error)
// when strict mode is off or nothing is flagged.
func (a *App) reportConflicts(ctx context.Context, m *manifest.Manifest) ([]string, error) {
	if !a.Config.StrictConflicts() {
		return nil, nil
	}

	strategy := resolver.Highest
	if a.Config.ResolutionStrategy() == config.StrategyLowest {
		strategy = resolver.Lowest
	}
	r := resolver.New(a.Client, strategy)
	deps := m.EffectiveDependencies(false)

	_, graph, rootNames, err := r.ResolveWithGraph(ctx, deps)
	if err != nil {
		return nil, err
	}
	return conflict.Check(graph, rootNames), nil
}

// Remove deletes an installed package's on-disk files. Spec §4.H: missing
// directories are not an error.
func (a *App) Remove(name string) error {
	return a.Installer.RemovePackage(name)
}

// Verify re-checks every locked package's on-disk checksum (spec §4.K). It
// never mutates state, so it is not wrapped in rollback.
func (a *App) Verify(ctx context.Context) (verifier.Result, error) {
	lf, err := lockfile.Load(a.ProjectRoot)
	if err != nil {
		return verifier.Result{}, err
	}
	if lf == nil {
		lf = lockfile.New()
	}
	return verifier.VerifyAll(ctx, lf, a.Store), nil
}
