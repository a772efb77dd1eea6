package registryclient

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the reference fan-out width (spec §4.C, §5).
const DefaultConcurrency = 10

// DownloadPackages runs DownloadSource for every task with at most
// concurrency in-flight downloads, collecting a per-task result without
// cancelling siblings when one task fails (spec §4.C, §5 "Cancellation").
//
// golang-dep's own registry fetch (internal/gps/registry.go) is strictly
// sequential — 2016-era dep resolved one project at a time. This fan-out is
// enrichment from SeleniaProject-Orizon's golang.org/x/sync stack, applied
// in the teacher's error-handling idiom (collect, don't abort).
func DownloadPackages(ctx context.Context, client PackageClient, tasks []DownloadTask, concurrency int) []DownloadResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]DownloadResult, len(tasks))
	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(context.Background()) // siblings must not be cancelled by one failure

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results[i] = DownloadResult{Name: task.Name, Err: err}
				return nil
			}
			defer sem.Release(1)

			path, err := client.DownloadSource(ctx, task.URL)
			results[i] = DownloadResult{Name: task.Name, Path: path, Err: err}
			return nil
		})
	}

	// g.Wait() only ever returns nil here: every goroutine records its error
	// into results instead of returning it, precisely so one failure never
	// cancels the others via errgroup's built-in first-error cancellation.
	_ = g.Wait()
	return results
}
