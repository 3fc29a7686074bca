package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cassette/internal/formatter"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/desertthunder/cassette/internal/tasks"
)

// CacheList prints the cached resolutions in the requested format.
func (r *Runner) CacheList(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	entries := st.cache.Entries()
	switch format {
	case formatter.JSON:
		return r.writeJSON(entries, true)
	case formatter.CSV:
		data, err := formatter.CacheToCSV(entries)
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		return r.writePlain("%s", formatter.CacheToText(entries))
	}
}

// CacheClear drops every cached resolution, in memory and in the key/value store.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	n := st.cache.Len()
	st.cache.Clear(ctx)
	return r.writePlain("✓ Cleared %d cached resolutions\n", n)
}

// CacheWarm resolves every track of a queue file so later playback starts from a local tier.
func (r *Runner) CacheWarm(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("queue")
	if path == "" {
		return fmt.Errorf("%w: queue file", shared.ErrMissingArgument)
	}
	queue, err := loadQueue(path)
	if err != nil {
		return err
	}

	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, _, holder, bootstrap := r.openResolver(ctx, st)
	// Resolution clamps against the account, so capabilities are fetched up front.
	bootstrap.Delay = 0
	bootstrap.Run(ctx)
	r.logger.Debug("capabilities ready", "fetched", holder.Fetched())

	prog := make(chan tasks.ProgressUpdate, 32)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for u := range prog {
			r.writePlain("%s\n", u.Message)
		}
	}()

	result, err := tasks.Prefetch(ctx, prog, res, queue.Queue, tasks.PrefetchOpts{
		Context:      queue.Context,
		NumWorkers:   int(cmd.Int("workers")),
		RateLimit:    cmd.Float("rate"),
		ManifestPath: cmd.String("manifest"),
		Logger:       r.logger,
	})
	close(prog)
	wg.Wait()
	if err != nil {
		return err
	}

	r.writePlainHeader("Cache warm complete")
	r.writePlain("Resolved: %d\nFailed:   %d\nSkipped:  %d\n", result.Resolved, result.Failed, result.Skipped)
	if result.ManifestPath != "" {
		r.writePlain("Manifest: %s\n", result.ManifestPath)
	}
	return nil
}
