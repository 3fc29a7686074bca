package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cassette/internal/shared"
	"github.com/desertthunder/cassette/internal/transport"
	"github.com/desertthunder/cassette/internal/ui"
)

const defaultTUILog = "./tmp/cassette-tui.log"

// Play launches the interactive player.
//
// With a queue file or --url playback starts right away; otherwise the last session is
// restored paused.
func (r *Runner) Play(ctx context.Context, cmd *cli.Command) error {
	var queue *queueFile
	if path := cmd.StringArg("queue"); path != "" {
		q, err := loadQueue(path)
		if err != nil {
			return err
		}
		if cmd.IsSet("index") {
			i := int(cmd.Int("index"))
			if i < 0 || i >= len(q.Queue) {
				return fmt.Errorf("%w: index %d outside queue of %d", shared.ErrInvalidArgument, i, len(q.Queue))
			}
			q.Index = i
		}
		queue = q
	}
	url := cmd.String("url")

	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := r.config.Log.File
	if logPath == "" {
		logPath = defaultTUILog
	}
	fileLogger, err := shared.NewFileLogger(filepath.Clean(logPath), r.config.Log)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	view := ui.NewProgramView()
	eng, err := r.openEngine(ctx, view)
	if err != nil {
		return err
	}
	defer eng.Close()

	if queue == nil && url == "" {
		eng.controller.Restore(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eng.start(runCtx, r.config.Playback.ProgressTick())

	model := ui.NewModel(runCtx, eng.controller, eng.likes, eng.settings.Normalize())
	p := tea.NewProgram(model, tea.WithAltScreen())
	view.Bind(p)

	// Program.Send blocks until the event loop runs, so playback starts off this goroutine.
	started := make(chan struct{})
	go func() {
		defer close(started)
		switch {
		case url != "":
			eng.controller.PlayURL(runCtx, transport.AdHoc{URL: url, Title: cmd.String("title")})
		case queue != nil:
			eng.controller.SetQueueAndPlay(runCtx, queue.Queue, queue.Index, queue.Context)
		}
	}()

	_, err = p.Run()
	cancel()
	<-started
	if err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
