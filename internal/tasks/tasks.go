package tasks

import (
	"context"

	"github.com/desertthunder/cassette/internal/resolver"
)

// Resolver resolves a track to a playable source.
//
// Implemented by [resolver.Resolver].
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Resolution, error)
}

// PathForgetter drops the download rows that point at a file.
//
// Implemented by repositories.Library.
type PathForgetter interface {
	ForgetDownloadPath(path string) ([]int64, error)
}

// sendProgress sends a progress update without blocking.
func sendProgress(prog chan<- ProgressUpdate, update ProgressUpdate) {
	if prog == nil {
		return
	}
	select {
	case prog <- update:
	default:
	}
}
