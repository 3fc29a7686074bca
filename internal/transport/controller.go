// package transport drives the queue: selecting tracks, resolving them, and
// mapping failures to the disabled state.
//
// Public operations never return playback health as an error. Every call ends in a
// definite state: playing, paused, stopped or disabled with a reason.
package transport

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/resolver"
	"github.com/desertthunder/cassette/internal/shared"
)

// Resolver turns a track into a playable source.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Resolution, error)
}

// Library is the subset of the library store the transport uses.
type Library interface {
	IsTrackSaved(trackID int64) (bool, error)
	AddRecentTrack(t models.Track, pc *models.PlayContext) error
}

// Effects routes output through the loudness normalizer.
type Effects interface {
	ApplyNormalizeRouting(enabled bool) bool
}

// AdHoc describes a URL played outside the queue.
type AdHoc struct {
	URL      string  `json:"url"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	CoverURL string  `json:"cover"`
	Duration float64 `json:"duration"`
}

// Options configures a [Controller].
type Options struct {
	State     *playback.State
	Session   *playback.Session
	Resolver  Resolver
	Library   Library
	Publisher events.Publisher
	Reporter  Reporter
	Effects   Effects
	Settings  *Settings
	Logger    *log.Logger
}

// Controller is the transport state machine over a [playback.State].
type Controller struct {
	state     *playback.State
	session   *playback.Session
	view      playback.View
	resolver  Resolver
	library   Library
	publisher events.Publisher
	reporter  Reporter
	effects   Effects
	settings  *Settings
	logger    *log.Logger
}

// NewController wires the controller to the session's events: a finished source advances
// the queue and every play, pause or track change publishes [events.PlayerStateChanged].
func NewController(opts Options) *Controller {
	c := &Controller{
		state:     opts.State,
		session:   opts.Session,
		view:      opts.Session.View(),
		resolver:  opts.Resolver,
		library:   opts.Library,
		publisher: opts.Publisher,
		reporter:  opts.Reporter,
		effects:   opts.Effects,
		settings:  opts.Settings,
		logger:    opts.Logger,
	}
	if c.state == nil {
		c.state = opts.Session.State()
	}
	if c.logger == nil {
		c.logger = shared.NopLogger()
	}
	if c.reporter == nil {
		c.reporter = NewLogReporter(c.logger)
	}

	c.session.OnEnded(func() { c.PlayNext(context.Background()) })
	c.session.OnChange(c.publishState)
	return c
}

// Snapshot returns a copy of the playback state.
func (c *Controller) Snapshot() playback.Snapshot { return c.state.Snapshot() }

// Progress returns the playhead position and duration in seconds.
func (c *Controller) Progress() (position, duration float64) {
	return c.session.Position(), c.session.Duration()
}

// Session returns the playback session.
func (c *Controller) Session() *playback.Session { return c.session }

func (c *Controller) publishState() {
	if c.publisher == nil {
		return
	}
	track, _ := c.state.Current()
	c.publisher.Publish(events.KindPlayerStateChanged, events.PlayerStateChanged{
		TrackID:   track.ID,
		IsPlaying: c.state.Playing(),
		Title:     track.Title,
		Artist:    track.Artist,
	})
}

func (c *Controller) disabled() bool {
	disabled, _ := c.state.Disabled()
	return disabled
}

// SetQueueAndPlay replaces the queue and context and plays the entry at index.
func (c *Controller) SetQueueAndPlay(ctx context.Context, queue []models.Record, index int, pc *models.PlayContext) {
	c.state.SetQueue(queue, pc)
	c.view.Disabled(false, "")
	c.PlayIndex(ctx, index)
}

// PlayIndex starts the queue entry at i. Out of range indexes are ignored.
//
// A resolution failure stops output and disables the transport instead of skipping ahead.
func (c *Controller) PlayIndex(ctx context.Context, i int) {
	queue, _ := c.state.Queue()
	if i < 0 || i >= len(queue) {
		c.logger.Debug("play index out of range", "index", i, "queue", len(queue))
		return
	}

	track, ok := identity.Normalize(queue[i])
	if !ok {
		track = models.Track{Raw: queue[i]}
	}

	c.session.Stop()
	gen := c.state.BeginTrack(i, track)
	c.announce(track)

	if !ok {
		c.fail(ctx, gen, track, "This track cannot be played", "record has no id, title or source")
		return
	}
	c.start(ctx, gen, track, 0)
}

// announce pushes a newly selected track to the view.
func (c *Controller) announce(track models.Track) {
	c.view.NowPlaying(track)
	c.view.Disabled(false, "")
	c.view.Progress(0, track.Duration)
	c.refreshLiked(track)
	c.publishState()
}

func (c *Controller) refreshLiked(track models.Track) {
	liked := false
	if track.HasID() && c.library != nil {
		saved, err := c.library.IsTrackSaved(track.ID)
		if err != nil {
			c.logger.Debug("liked lookup failed", "track", track.ID, "error", err)
		}
		liked = saved
	}
	c.state.SetLiked(liked)
	c.view.Liked(liked)
}

// start resolves track and hands the source to the session, unless a newer track was
// selected while resolution was in flight. Ad hoc tracks skip resolution.
func (c *Controller) start(ctx context.Context, gen uint64, track models.Track, startTime float64) {
	if url, ok := adHocURL(track); ok {
		c.startURL(ctx, gen, track, url, startTime)
		return
	}

	res, err := c.resolver.Resolve(ctx, resolver.Request{
		Track:     track,
		Context:   c.state.Context(),
		StartTime: startTime,
		AutoPlay:  true,
	})

	if !c.state.IsCurrent(gen) {
		c.logger.Debug("discarding stale resolution", "track", track.ID, "generation", gen)
		return
	}

	if err != nil {
		var failure *resolver.Failure
		if !errors.As(err, &failure) {
			c.fail(ctx, gen, track, "Could not load this track", err.Error())
			return
		}
		if failure.Kind == resolver.Unavailable {
			c.logger.Info("track unavailable", "track", track.ID, "reason", failure.Reason)
			c.session.Stop()
			c.state.SetPhase(playback.PhaseIdle)
			c.publishState()
			return
		}
		c.fail(ctx, gen, track, failure.Reason, failure.Diagnostic)
		return
	}

	corr := res.Correlation
	if corr.IsZero() && res.Token != "" {
		if parsed, err := models.ParseCorrelation(res.Token); err == nil {
			corr = parsed
		}
	}
	if !c.state.IsCurrent(gen) {
		return
	}
	c.state.SetToken(res.Token, corr)

	err = c.session.SetSource(ctx, res.URL, track, playback.SourceOptions{
		StartTime:  res.StartTime,
		AutoPlay:   res.AutoPlay,
		Generation: gen,
	})
	if err != nil {
		if !c.state.IsCurrent(gen) {
			return
		}
		c.fail(ctx, gen, track, "Could not play this track", err.Error())
		return
	}

	if c.library != nil && (track.HasID() || track.Title != "") {
		if err := c.library.AddRecentTrack(track, c.state.Context()); err != nil {
			c.logger.Debug("failed to record recent track", "track", track.ID, "error", err)
		}
	}
}

// adHocURL reports the direct stream URL carried by a track without a catalog id.
func adHocURL(track models.Track) (string, bool) {
	if track.HasID() {
		return "", false
	}
	url, _ := track.Raw["url"].(string)
	return url, url != ""
}

// startURL hands a direct stream URL to the session.
func (c *Controller) startURL(ctx context.Context, gen uint64, track models.Track, url string, startTime float64) {
	err := c.session.SetSource(ctx, url, track, playback.SourceOptions{StartTime: startTime, AutoPlay: true, Generation: gen})
	if err != nil {
		c.fail(ctx, gen, track, "Could not play this stream", err.Error())
	}
}

// fail stops output, disables the transport and reports the failure.
func (c *Controller) fail(ctx context.Context, gen uint64, track models.Track, reason, diagnostic string) {
	if !c.state.IsCurrent(gen) {
		return
	}

	c.session.Stop()
	c.state.Disable(reason, diagnostic)
	c.view.Disabled(true, reason)
	c.publishState()

	c.reporter.Report(ctx, Failure{
		TrackID:    track.ID,
		Title:      track.Title,
		Artist:     track.Artist,
		CoverURL:   track.CoverURL,
		Reason:     reason,
		Diagnostic: diagnostic,
	})
}

// PlayNext plays the following queue entry. It does nothing while disabled or at the end.
func (c *Controller) PlayNext(ctx context.Context) {
	if c.disabled() {
		return
	}
	queue, index := c.state.Queue()
	if index+1 >= len(queue) {
		return
	}
	c.PlayIndex(ctx, index+1)
}

// PlayPrev plays the previous queue entry. It does nothing while disabled or at the start.
func (c *Controller) PlayPrev(ctx context.Context) {
	if c.disabled() {
		return
	}
	_, index := c.state.Queue()
	if index <= 0 {
		return
	}
	c.PlayIndex(ctx, index-1)
}

// Enqueue appends records to the queue. An ad hoc current track becomes the first entry.
func (c *Controller) Enqueue(records ...models.Record) int {
	filtered := make([]models.Record, 0, len(records))
	for _, r := range records {
		if len(r) > 0 {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		queue, _ := c.state.Queue()
		return len(queue)
	}

	if track, ok := c.state.Current(); ok {
		seed := track.Raw
		if len(seed) == 0 {
			seed = identity.MinimalRecord(track)
		}
		if c.state.SeedQueue(seed) {
			c.logger.Debug("seeded queue from current track", "track", track.ID)
		}
	}

	c.state.AppendQueue(filtered...)
	queue, _ := c.state.Queue()
	return len(queue)
}

// PlayURL plays a URL directly, bypassing resolution. The queue and context are cleared.
func (c *Controller) PlayURL(ctx context.Context, a AdHoc) {
	if a.URL == "" {
		return
	}

	track := models.Track{
		Title:    a.Title,
		Artist:   a.Artist,
		CoverURL: a.CoverURL,
		Duration: a.Duration,
	}
	track.Raw = identity.MinimalRecord(track)
	track.Raw["url"] = a.URL

	c.session.Stop()
	c.state.ResetQueue()
	gen := c.state.BeginTrack(-1, track)
	c.announce(track)
	c.startURL(ctx, gen, track, a.URL, 0)
}

// TogglePlayPause pauses or resumes playback. Without a loaded source, as after a restored
// session, the current track is resolved again and starts at the resume offset.
func (c *Controller) TogglePlayPause(ctx context.Context) {
	if c.disabled() {
		return
	}
	if c.session.HasSource() {
		c.session.Toggle()
		return
	}

	track, ok := c.state.Current()
	if !ok {
		return
	}

	offset := c.state.ResumeOffset()
	_, index := c.state.Queue()
	gen := c.state.BeginTrack(index, track)
	c.state.SetResumeOffset(offset)
	c.refreshLiked(track)
	c.start(ctx, gen, track, offset)
}

// Seek moves the playhead. Seeking is a transport button and is ignored while disabled.
func (c *Controller) Seek(seconds float64) {
	if c.disabled() {
		return
	}
	c.session.Seek(seconds)
}

// Restore loads the resume snapshot without playing.
func (c *Controller) Restore(ctx context.Context) bool {
	if !c.session.Restore(ctx) {
		return false
	}
	track, _ := c.state.Current()
	c.refreshLiked(track)
	c.publishState()
	return true
}

// SetNormalize stores the normalize setting and reroutes output. It reports whether the
// routing was applied; false means normalization is unavailable on this output.
func (c *Controller) SetNormalize(ctx context.Context, enabled bool) bool {
	if c.settings != nil {
		c.settings.SetNormalize(ctx, enabled)
	}
	if c.effects == nil {
		return false
	}
	return c.effects.ApplyNormalizeRouting(enabled)
}

// SetQuality stores the preferred quality used by later resolutions.
func (c *Controller) SetQuality(ctx context.Context, q models.Quality) {
	if c.settings != nil {
		c.settings.SetQuality(ctx, q)
	}
}
