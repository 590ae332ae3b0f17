// Package processor fans batches of compression work across a worker pool,
// preserving input order and isolating per-item failures.
package processor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/plumed-nebula/yana/internal/global"
	"github.com/plumed-nebula/yana/task"
)

const tempDirName = "com.yana.dev"

// TempDir resolves the process-scoped temp directory for batch artifacts.
func TempDir(gCtx global.Context) string {
	if dir := gCtx.Config().Worker.TempDir; dir != "" {
		return dir
	}

	return filepath.Join(os.TempDir(), tempDirName)
}

// EnsureTempDir creates the temp directory on first use.
func EnsureTempDir(gCtx global.Context) (string, error) {
	dir := TempDir(gCtx)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed at create temp dir %s: %w", dir, err)
	}

	return dir, nil
}

// PurgeTempDir wipes every accumulated batch artifact and recreates the
// directory. Cleanup is an explicit operation, never per item.
func PurgeTempDir(gCtx global.Context) error {
	dir := TempDir(gCtx)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed at remove temp dir %s: %w", dir, err)
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed at recreate temp dir %s: %w", dir, err)
	}

	zap.S().Infow("temp dir purged",
		"dir", dir,
	)

	return nil
}

// ProcessBatch compresses every item in parallel. The returned result holds
// exactly one entry per input item, sorted back into input order; a failed
// item keeps its original source path so the batch never shrinks.
//
// Cross-cutting failures (temp dir allocation) abort the whole call.
func ProcessBatch(gCtx global.Context, items []task.Item, settings task.Settings) (task.Result, error) {
	settings = settings.Clamped()

	result := task.Result{StartedAt: time.Now()}

	tmpDir, err := EnsureTempDir(gCtx)
	if err != nil {
		return result, err
	}

	finish := gCtx.Inst().Prometheus.StartBatch()

	zap.S().Infow("batch started",
		"count", len(items),
		"quality", settings.Quality,
		"mode", settings.Mode.String(),
		"png_mode", settings.PngMode.String(),
		"png_optimization", settings.PngOptimization.String(),
	)

	jobCount := gCtx.Config().Worker.Jobs
	if jobCount <= 0 {
		jobCount = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan task.Item)
	results := make(chan task.ItemResult)

	wg := sync.WaitGroup{}
	for i := 0; i < jobCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			w := Worker{}
			for item := range jobs {
				results <- w.Work(gCtx, tmpDir, item, settings)
			}
		}()
	}

	go func() {
		for _, item := range items {
			jobs <- item
		}
		close(jobs)

		wg.Wait()
		close(results)
	}()

	collected := make([]task.ItemResult, 0, len(items))
	for r := range results {
		if r.Fallback {
			result.FailedCount++
		}

		collected = append(collected, r)
	}

	// Workers finish out of order; the sort is the ordering guarantee.
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Index < collected[j].Index
	})

	result.Items = collected
	result.FinishedAt = time.Now()

	switch result.FailedCount {
	case 0:
		result.State = task.ResultStateSuccess
	case len(items):
		result.State = task.ResultStateFailed
	default:
		result.State = task.ResultStatePartial
	}

	gCtx.Inst().Prometheus.TotalItemsProcessed(len(items))
	finish(result.State != task.ResultStateFailed)

	zap.S().Infow("batch finished",
		"count", len(result.Items),
		"failed", result.FailedCount,
		"state", result.State.String(),
	)

	return result, nil
}

// ProcessData compresses a single in-memory buffer (clipboard paste path).
// Unlike a batch there is no original path to fall back to, so failures are
// returned to the caller.
func ProcessData(gCtx global.Context, data []byte, settings task.Settings) (string, error) {
	settings = settings.Clamped()

	tmpDir, err := EnsureTempDir(gCtx)
	if err != nil {
		return "", err
	}

	w := Worker{}
	r := w.Work(gCtx, tmpDir, task.Item{Data: data}, settings)
	if r.Fallback {
		return "", fmt.Errorf("failed at compress data: %s", r.Message)
	}

	return r.OutputPath, nil
}

// SaveData persists raw bytes to a fresh temp artifact without re-encoding.
func SaveData(gCtx global.Context, data []byte) (string, error) {
	tmpDir, err := EnsureTempDir(gCtx)
	if err != nil {
		return "", err
	}

	out, err := newArtifact(tmpDir, "yana_raw_", "")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(out, data, 0600); err != nil {
		return "", fmt.Errorf("failed at write %s: %w", out, err)
	}

	return out, nil
}

// SaveFiles copies produced artifacts to their destinations pairwise and
// returns how many copies succeeded. Per-pair failures are logged, not fatal.
func SaveFiles(sources, dests []string) (int, error) {
	if len(sources) != len(dests) {
		return 0, fmt.Errorf("sources/dests length mismatch: %d vs %d", len(sources), len(dests))
	}

	ok := 0
	for i, src := range sources {
		if err := copyFile(src, dests[i]); err != nil {
			zap.S().Errorw("save failed",
				"source", src,
				"dest", dests[i],
				"error", err,
			)

			continue
		}

		ok++
	}

	return ok, nil
}

// FileSizes returns the byte size of each path, zero for unreadable entries,
// in input order.
func FileSizes(paths []string) []int64 {
	sizes := make([]int64, len(paths))
	for i, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			zap.S().Errorw("stat failed",
				"path", p,
				"error", err,
			)

			continue
		}

		sizes[i] = info.Size()
	}

	return sizes
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0600)
}
