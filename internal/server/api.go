package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/cassette/internal/identity"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/playback"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/desertthunder/cassette/internal/transport"
)

const maxBodyBytes = 4 << 20

// Player is the transport surface the control API drives.
//
// Implemented by [transport.Controller].
type Player interface {
	Snapshot() playback.Snapshot
	Progress() (position, duration float64)
	SetQueueAndPlay(ctx context.Context, queue []models.Record, index int, pc *models.PlayContext)
	PlayIndex(ctx context.Context, i int)
	PlayNext(ctx context.Context)
	PlayPrev(ctx context.Context)
	TogglePlayPause(ctx context.Context)
	Seek(seconds float64)
	Enqueue(records ...models.Record) int
	PlayURL(ctx context.Context, a transport.AdHoc)
	SetNormalize(ctx context.Context, enabled bool) bool
}

// Liker toggles the favorite flag of the current track.
//
// Implemented by [transport.LikeController].
type Liker interface {
	ToggleLike(ctx context.Context) (bool, error)
}

// StateResponse is the body of GET /api/state and of every transport response.
type StateResponse struct {
	Track          *models.Track       `json:"track,omitempty"`
	Index          int                 `json:"index"`
	QueueLength    int                 `json:"queueLength"`
	Context        *models.PlayContext `json:"context,omitempty"`
	Phase          playback.Phase      `json:"phase"`
	Playing        bool                `json:"playing"`
	Liked          bool                `json:"liked"`
	Disabled       bool                `json:"disabled"`
	DisabledReason string              `json:"disabledReason,omitempty"`
	Failure        *playback.Failure   `json:"failure,omitempty"`
	Token          string              `json:"token,omitempty"`
	Correlation    *models.Correlation `json:"correlation,omitempty"`
	Position       float64             `json:"position"`
	Duration       float64             `json:"duration"`
}

type queueRequest struct {
	Queue   []models.Record     `json:"queue"`
	Index   int                 `json:"index"`
	Context *models.PlayContext `json:"context,omitempty"`
}

type playRequest struct {
	Index int `json:"index"`
}

type seekRequest struct {
	Seconds float64 `json:"seconds"`
}

type enqueueRequest struct {
	Records []models.Record `json:"records"`
}

type normalizeRequest struct {
	Enabled bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ControlHandler serves the control API.
type ControlHandler struct {
	player Player
	liker  Liker
	logger *log.Logger
	mux    *http.ServeMux
}

// NewControlHandler creates the control API for player. liker may be nil, in which case
// POST /api/like answers 503.
func NewControlHandler(player Player, liker Liker, logger *log.Logger) *ControlHandler {
	if logger == nil {
		logger = shared.NopLogger()
	}
	h := &ControlHandler{player: player, liker: liker, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("GET /api/state", h.state)
	h.mux.HandleFunc("POST /api/queue", h.queue)
	h.mux.HandleFunc("POST /api/play", h.play)
	h.mux.HandleFunc("POST /api/next", h.transport(func(ctx context.Context) { player.PlayNext(ctx) }))
	h.mux.HandleFunc("POST /api/prev", h.transport(func(ctx context.Context) { player.PlayPrev(ctx) }))
	h.mux.HandleFunc("POST /api/toggle", h.transport(func(ctx context.Context) { player.TogglePlayPause(ctx) }))
	h.mux.HandleFunc("POST /api/seek", h.seek)
	h.mux.HandleFunc("POST /api/like", h.like)
	h.mux.HandleFunc("POST /api/enqueue", h.enqueue)
	h.mux.HandleFunc("POST /api/url", h.url)
	h.mux.HandleFunc("POST /api/normalize", h.normalize)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *ControlHandler) Routes() []string {
	return []string{"/api/"}
}

func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Snapshot builds the state response.
func (h *ControlHandler) Snapshot() StateResponse {
	snap := h.player.Snapshot()
	position, duration := h.player.Progress()

	resp := StateResponse{
		Track:          snap.Track,
		Index:          snap.Index,
		QueueLength:    len(snap.Queue),
		Context:        snap.Context,
		Phase:          snap.Phase,
		Playing:        snap.Playing,
		Liked:          snap.Liked,
		Disabled:       snap.Disabled,
		DisabledReason: snap.DisabledReason,
		Failure:        snap.Failure,
		Token:          snap.Token,
		Position:       position,
		Duration:       duration,
	}
	if !snap.Correlation.IsZero() {
		c := snap.Correlation
		resp.Correlation = &c
	}
	return resp
}

func (h *ControlHandler) state(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

// playbackContext detaches playback from the request so a client hanging up does not
// abandon a resolution halfway.
func playbackContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (h *ControlHandler) transport(fn func(ctx context.Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(playbackContext(r))
		h.writeJSON(w, http.StatusOK, h.Snapshot())
	}
}

func (h *ControlHandler) queue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Queue) == 0 {
		h.writeError(w, http.StatusBadRequest, "queue is empty")
		return
	}
	if req.Index < 0 || req.Index >= len(req.Queue) {
		h.writeError(w, http.StatusBadRequest, "index out of range")
		return
	}
	if req.Context != nil && !req.Context.Valid() {
		req.Context = nil
	}

	h.player.SetQueueAndPlay(playbackContext(r), req.Queue, req.Index, req.Context)
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Index < 0 || req.Index >= len(h.player.Snapshot().Queue) {
		h.writeError(w, http.StatusBadRequest, "index out of range")
		return
	}

	h.player.PlayIndex(playbackContext(r), req.Index)
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Seconds < 0 {
		h.writeError(w, http.StatusBadRequest, "seconds must not be negative")
		return
	}

	h.player.Seek(req.Seconds)
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) like(w http.ResponseWriter, r *http.Request) {
	if h.liker == nil {
		h.writeError(w, http.StatusServiceUnavailable, "likes are not available")
		return
	}

	if _, err := h.liker.ToggleLike(r.Context()); err != nil {
		if errors.Is(err, shared.ErrInvalidInput) {
			h.writeError(w, http.StatusConflict, "nothing to like")
			return
		}
		h.logger.Warn("like failed", "error", err)
		h.writeError(w, http.StatusBadGateway, "could not update the library")
		return
	}
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !h.decode(w, r, &req) {
		return
	}

	valid := req.Records[:0]
	for _, rec := range req.Records {
		if _, ok := identity.Normalize(rec); ok {
			valid = append(valid, rec)
		}
	}
	if len(valid) == 0 {
		h.writeError(w, http.StatusBadRequest, "no playable records")
		return
	}

	h.player.Enqueue(valid...)
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) url(w http.ResponseWriter, r *http.Request) {
	var req transport.AdHoc
	if !h.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	h.player.PlayURL(playbackContext(r), req)
	h.writeJSON(w, http.StatusOK, h.Snapshot())
}

func (h *ControlHandler) normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	applied := h.player.SetNormalize(r.Context(), req.Enabled)
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled, "applied": applied})
}

func (h *ControlHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *ControlHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("failed to write response", "error", err)
	}
}

func (h *ControlHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
