package transport

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/shared"
)

// Failure is a resolution failure shown to the user, with enough of the track to say which one.
type Failure struct {
	TrackID    int64  `json:"trackId,omitempty"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	CoverURL   string `json:"coverUrl,omitempty"`
	Reason     string `json:"reason"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Reporter receives resolution failures.
type Reporter interface {
	Report(ctx context.Context, f Failure)
}

// LogReporter writes failures to a logger.
type LogReporter struct {
	logger *log.Logger
}

func NewLogReporter(logger *log.Logger) *LogReporter {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) Report(ctx context.Context, f Failure) {
	r.logger.Error(f.Reason, "track", f.TrackID, "title", f.Title, "artist", f.Artist, "diagnostic", f.Diagnostic)
}

// ReporterFunc adapts a function to [Reporter].
type ReporterFunc func(ctx context.Context, f Failure)

func (fn ReporterFunc) Report(ctx context.Context, f Failure) { fn(ctx, f) }
