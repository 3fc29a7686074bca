package tasks

import "fmt"

// ProgressUpdate represents a progress event during a background job.
type ProgressUpdate struct {
	Phase   Phase  // Job phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when open ended
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Phase enumerates the stages a job reports.
type Phase int

const (
	PrefetchStart Phase = iota
	PrefetchResolved
	PrefetchFailed
	PrefetchSkipped
	WatchStarted
	WatchForgot
	WatchError
)

func (p Phase) String() string {
	switch p {
	case PrefetchStart:
		return "prefetch_start"
	case PrefetchResolved:
		return "prefetch_resolved"
	case PrefetchFailed:
		return "prefetch_failed"
	case PrefetchSkipped:
		return "prefetch_skipped"
	case WatchStarted:
		return "watch_started"
	case WatchForgot:
		return "watch_forgot"
	case WatchError:
		return "watch_error"
	default:
		return ""
	}
}

func prefetchStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchStart,
		Total:   total,
		Message: fmt.Sprintf("Resolving %d tracks...", total),
	}
}

func prefetchResolvedUpdate(step, total int, item PrefetchItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchResolved,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s - %s (%s)", step, total, item.Artist, item.Title, item.Tier),
		Data:    item,
	}
}

func prefetchFailedUpdate(step, total int, item PrefetchItem) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s - %s: %s", step, total, item.Artist, item.Title, item.Error),
		Data:    item,
	}
}

func prefetchSkippedUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchSkipped,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] skipped a record without a track id", step, total),
	}
}

func watchStartedUpdate(dir string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WatchStarted,
		Message: fmt.Sprintf("Watching %s", dir),
	}
}

func watchForgotUpdate(path string, ids []int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WatchForgot,
		Total:   len(ids),
		Message: fmt.Sprintf("Removed %s (%d tracks)", path, len(ids)),
		Data:    ids,
	}
}

func watchErrorUpdate(err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WatchError,
		Message: fmt.Sprintf("watch error: %v", err),
	}
}
