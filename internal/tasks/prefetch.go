package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/cassette/internal/formatter"
	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/resolver"
	"github.com/desertthunder/cassette/internal/shared"
)

const (
	DefaultPrefetchWorkers = 3
	MaxPrefetchWorkers     = 8
	DefaultPrefetchRate    = 4.0
)

// PrefetchOpts configures a [Prefetch] run.
type PrefetchOpts struct {
	Context      *models.PlayContext // Context passed to every resolution
	NumWorkers   int                 // Concurrent resolutions (default: 3, max: 8)
	RateLimit    float64             // Resolutions started per second (default: 4)
	ManifestPath string              // Optional JSON manifest destination
	Logger       *log.Logger
}

// PrefetchItem is the outcome for one queue entry.
type PrefetchItem struct {
	Index   int            `json:"index"`
	TrackID int64          `json:"track_id"`
	Title   string         `json:"title"`
	Artist  string         `json:"artist"`
	Tier    resolver.Tier  `json:"tier,omitempty"`
	Quality models.Quality `json:"quality,omitempty"`
	URL     string         `json:"url,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// PrefetchResult summarizes a [Prefetch] run.
type PrefetchResult struct {
	Total        int            `json:"total"`
	Resolved     int            `json:"resolved"`
	Failed       int            `json:"failed"`
	Skipped      int            `json:"skipped"`
	Results      []PrefetchItem `json:"results"`
	ManifestPath string         `json:"-"`
}

type prefetchJob struct {
	index int
	track models.Track
}

// Prefetch resolves every record of a queue without playing anything.
//
// Successful resolutions land in the resolution cache, so a later play of the same
// track starts from the cache or one of the download tiers. Individual failures are
// recorded in the result; the returned error is reserved for cancellation and
// manifest IO.
func Prefetch(
	ctx context.Context,
	prog chan<- ProgressUpdate,
	res Resolver,
	records []models.Record,
	opts PrefetchOpts,
) (*PrefetchResult, error) {
	if res == nil {
		return nil, fmt.Errorf("%w: resolver not initialized", shared.ErrServiceUnavailable)
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = DefaultPrefetchWorkers
	}
	if opts.NumWorkers > MaxPrefetchWorkers {
		opts.NumWorkers = MaxPrefetchWorkers
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultPrefetchRate
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NopLogger()
	}

	total := len(records)
	result := &PrefetchResult{
		Total:   total,
		Results: make([]PrefetchItem, 0, total),
	}
	sendProgress(prog, prefetchStartUpdate(total))

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan prefetchJob, total)
	results := make(chan PrefetchItem, total)

	var wg sync.WaitGroup
	for i := 0; i < opts.NumWorkers; i++ {
		wg.Add(1)
		go prefetchWorker(ctx, &wg, res, opts.Context, jobs, results)
	}

	completed := 0
	go func() {
		defer close(jobs)
		for i, rec := range records {
			track, ok := identity.Normalize(rec)
			if !ok || !track.HasID() {
				results <- PrefetchItem{Index: i, Title: track.Title, Artist: track.Artist, Error: "skipped"}
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			jobs <- prefetchJob{index: i, track: track}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for item := range results {
		completed++
		result.Results = append(result.Results, item)
		switch {
		case item.TrackID == 0:
			result.Skipped++
			sendProgress(prog, prefetchSkippedUpdate(completed, total))
		case item.Error != "":
			result.Failed++
			sendProgress(prog, prefetchFailedUpdate(completed, total, item))
		default:
			result.Resolved++
			sendProgress(prog, prefetchResolvedUpdate(completed, total, item))
		}
	}
	// Workers finish out of order.
	slices.SortFunc(result.Results, func(a, b PrefetchItem) int { return a.Index - b.Index })
	logger.Info("prefetch finished", "total", total, "resolved", result.Resolved, "failed", result.Failed, "skipped", result.Skipped)

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if opts.ManifestPath != "" {
		if err := formatter.WriteJSONFile(result, opts.ManifestPath); err != nil {
			return result, fmt.Errorf("prefetch completed but failed to write manifest: %w", err)
		}
		result.ManifestPath = opts.ManifestPath
	}
	return result, nil
}

func prefetchWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	res Resolver,
	pc *models.PlayContext,
	jobs <-chan prefetchJob,
	results chan<- PrefetchItem,
) {
	defer wg.Done()

	for job := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}
		results <- prefetchOne(ctx, res, pc, job)
	}
}

func prefetchOne(ctx context.Context, res Resolver, pc *models.PlayContext, job prefetchJob) PrefetchItem {
	item := PrefetchItem{
		Index:   job.index,
		TrackID: job.track.ID,
		Title:   job.track.Title,
		Artist:  job.track.Artist,
	}

	resolution, err := res.Resolve(ctx, resolver.Request{Track: job.track, Context: pc})
	if err != nil {
		var failure *resolver.Failure
		if errors.As(err, &failure) {
			item.Error = failure.Reason
		} else {
			item.Error = err.Error()
		}
		return item
	}

	item.Tier = resolution.Tier
	item.Quality = resolution.Quality
	item.URL = resolution.URL
	return item
}
