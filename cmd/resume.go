package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cassette/internal/formatter"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
)

// ResumeShow prints the saved resume snapshot.
func (r *Runner) ResumeShow(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	var snap *models.ResumeSnapshot
	var loaded models.ResumeSnapshot
	if st.store.LoadJSON(ctx, playback.ResumeKey, &loaded) {
		snap = &loaded
	}

	if cmd.Bool("json") {
		return r.writeJSON(snap, cmd.Bool("pretty"))
	}
	return r.writePlain("%s", formatter.ResumeToText(snap))
}

// ResumeClear deletes the saved resume snapshot.
func (r *Runner) ResumeClear(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	st.store.Delete(ctx, playback.ResumeKey)
	return r.writePlain("✓ Resume position cleared\n")
}

// Recent prints the listening history, newest first.
func (r *Runner) Recent(ctx context.Context, cmd *cli.Command) error {
	st, err := r.openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	recent, err := st.library.RecentTracks(int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(recent, true)
	}
	return r.writePlain("%s", formatter.RecentToText(recent))
}
