package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cassette/internal/audio"
	"github.com/desertthunder/cassette/internal/capabilities"
	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/repositories"
	"github.com/desertthunder/cassette/internal/resolver"
	"github.com/desertthunder/cassette/internal/services"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/desertthunder/cassette/internal/tasks"
	"github.com/desertthunder/cassette/internal/transport"
)

// storage is the persistence layer shared by every command.
type storage struct {
	db      *sql.DB
	kv      repositories.KV
	store   *repositories.BestEffort
	bus     *events.Bus
	library *repositories.Library
	cache   *resolver.Cache
}

func (s *storage) Close() error {
	if c, ok := s.kv.(io.Closer); ok {
		c.Close()
	}
	return s.db.Close()
}

// openStorage opens the database, the configured key/value backend and the resolution cache.
func (r *Runner) openStorage(ctx context.Context) (*storage, error) {
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	kv, err := repositories.OpenKV(ctx, r.config.KV, db, r.logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open key/value store: %w", err)
	}

	s := &storage{db: db, kv: kv, bus: events.NewBus(64)}
	s.store = repositories.NewBestEffort(kv, r.logger)
	s.library = repositories.NewLibrary(db, s.bus, r.logger)
	s.cache = resolver.NewCache(ctx, r.config.Cache.MaxEntries, s.store, r.logger)
	s.bus.Handle(events.KindTrackRemoved, s.cache.HandleTrackRemoved)
	return s, nil
}

// remote builds the service clients. Either may be nil when its URL is not configured.
func (r *Runner) remote() (services.DownloadService, services.CapabilitiesService) {
	conf := r.config.Services
	var downloads services.DownloadService
	var caps services.CapabilitiesService

	if conf.DownloadsURL != "" {
		downloads = services.NewDownloadClient(services.NewClient(conf.DownloadsURL, conf.APIToken, conf.Timeout()))
	}
	if conf.CapabilitiesURL != "" {
		caps = services.NewCapabilitiesClient(services.NewClient(conf.CapabilitiesURL, conf.APIToken, conf.Timeout()))
	}
	return downloads, caps
}

// engine is the fully wired player.
type engine struct {
	*storage
	settings   *transport.Settings
	holder     *capabilities.Holder
	bootstrap  *capabilities.Bootstrap
	resolver   *resolver.Resolver
	graph      *audio.Graph
	session    *playback.Session
	controller *transport.Controller
	likes      *transport.LikeController
	watcher    *tasks.DownloadWatcher
	logger     *log.Logger
}

// openResolver builds the resolver on top of st without any audio.
func (r *Runner) openResolver(ctx context.Context, st *storage) (*resolver.Resolver, *transport.Settings, *capabilities.Holder, *capabilities.Bootstrap) {
	downloads, capsService := r.remote()

	settings := transport.NewSettings(st.store, r.config.Playback)
	settings.Load(ctx)

	holder := capabilities.NewHolder()
	token := r.config.Services.APIToken
	bootstrap := &capabilities.Bootstrap{
		Service:       capsService,
		Holder:        holder,
		Delay:         r.config.Playback.CapabilityDelay(),
		Authenticated: func() bool { return token != "" },
		Timeout:       r.config.Services.Timeout(),
		Logger:        r.logger,
	}

	res := resolver.New(resolver.Options{
		Library:      st.library,
		Downloads:    downloads,
		Cache:        st.cache,
		Quality:      settings.Quality,
		Capabilities: holder.Get,
		Logger:       shared.WithLogger(r.logger, "component", "resolver"),
	})
	return res, settings, holder, bootstrap
}

// openEngine wires storage, resolution, audio and transport together. view receives every
// player update; nil discards them.
func (r *Runner) openEngine(ctx context.Context, view playback.View) (*engine, error) {
	st, err := r.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	if view == nil {
		view = playback.NopView{}
	}

	res, settings, holder, bootstrap := r.openResolver(ctx, st)
	downloads, _ := r.remote()
	conf := r.config.Playback

	output := r.audioOutput
	if output == nil {
		output = audio.Speaker{}
	}
	graph := audio.NewGraph(audio.GraphOptions{
		SampleRate: audio.DefaultSampleRate,
		Compressor: audio.CompressorOptions{ThresholdDB: conf.CompressorThreshold, Ratio: conf.CompressorRatio},
		OutputGain: conf.OutputGain,
		Locker:     output,
		Logger:     shared.WithLogger(r.logger, "component", "graph"),
	})
	graph.ApplyNormalizeRouting(settings.Normalize())

	sink := r.sink
	if sink == nil {
		sink = audio.NewSink(audio.SinkOptions{
			Output:     output,
			Graph:      graph,
			HTTPClient: r.httpClient,
			Logger:     shared.WithLogger(r.logger, "component", "sink"),
		})
	}

	state := playback.NewState()
	session := playback.NewSession(state, sink, st.store, playback.SessionOptions{
		View:            view,
		Logger:          shared.WithLogger(r.logger, "component", "session"),
		PersistInterval: conf.PersistInterval(),
	})
	controller := transport.NewController(transport.Options{
		State:     state,
		Session:   session,
		Resolver:  res,
		Library:   st.library,
		Publisher: st.bus,
		Reporter:  transport.NewLogReporter(r.logger),
		Effects:   graph,
		Settings:  settings,
		Logger:    shared.WithLogger(r.logger, "component", "transport"),
	})
	likes := transport.NewLikeController(transport.LikeOptions{
		State:     state,
		View:      view,
		Library:   st.library,
		Downloads: downloads,
		Quality:   func() models.Quality { return holder.Clamp(settings.Quality()) },
		Logger:    shared.WithLogger(r.logger, "component", "likes"),
	})

	e := &engine{
		storage:    st,
		settings:   settings,
		holder:     holder,
		bootstrap:  bootstrap,
		resolver:   res,
		graph:      graph,
		session:    session,
		controller: controller,
		likes:      likes,
		logger:     r.logger,
	}
	if dl := r.config.Downloads; dl.Watch && dl.Directory != "" {
		e.watcher = tasks.NewDownloadWatcher(dl.Directory, st.library, r.logger)
	}
	return e, nil
}

// start runs the background loops until ctx ends: progress ticks, the capability fetch
// and the downloads watcher.
func (e *engine) start(ctx context.Context, progressTick time.Duration) {
	go e.session.Run(ctx, progressTick)
	e.bootstrap.Start(ctx)
	if e.watcher != nil {
		go func() {
			if err := e.watcher.Run(ctx, nil); err != nil {
				e.logger.Warn("downloads watcher stopped", "error", err)
			}
		}()
	}
}

// Close saves the resume snapshot and releases storage.
func (e *engine) Close() error {
	e.likes.Wait()
	e.session.Persist(true)
	e.session.Stop()
	return e.storage.Close()
}
