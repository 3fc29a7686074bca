// package capabilities fetches the account's streaming entitlements once at startup and
// holds them for quality clamping.
package capabilities

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/services"
	"github.com/desertthunder/cassette/internal/shared"
)

// DefaultDelay is how long startup waits before asking for capabilities.
const DefaultDelay = 1500 * time.Millisecond

// Holder stores the current capabilities. The zero value is conservative.
type Holder struct {
	caps    atomic.Pointer[models.Capabilities]
	fetched atomic.Bool
}

func NewHolder() *Holder { return &Holder{} }

// Get returns the stored capabilities.
func (h *Holder) Get() models.Capabilities {
	if c := h.caps.Load(); c != nil {
		return *c
	}
	return models.ConservativeCapabilities()
}

// Set replaces the stored capabilities.
func (h *Holder) Set(c models.Capabilities) {
	h.caps.Store(&c)
	h.fetched.Store(true)
}

// Fetched reports whether capabilities were set at least once.
func (h *Holder) Fetched() bool { return h.fetched.Load() }

// Clamp lowers q to what the stored capabilities allow.
func (h *Holder) Clamp(q models.Quality) models.Quality {
	return models.Clamp(q, h.Get())
}

// Bootstrap performs the one-time capability fetch.
type Bootstrap struct {
	Service services.CapabilitiesService
	Holder  *Holder
	Delay   time.Duration
	// Authenticated gates the fetch. Nil means always authenticated.
	Authenticated func() bool
	Timeout       time.Duration
	Logger        *log.Logger
}

// Run waits for the delay and fetches capabilities once. A failed fetch stores the
// conservative capabilities, so startup never fails on it. Run returns early when ctx ends.
func (b *Bootstrap) Run(ctx context.Context) {
	logger := b.Logger
	if logger == nil {
		logger = shared.NopLogger()
	}

	if b.Delay > 0 {
		timer := time.NewTimer(b.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	if b.Authenticated != nil && !b.Authenticated() {
		logger.Debug("skipping capability fetch, not authenticated")
		return
	}
	if b.Service == nil {
		b.Holder.Set(models.ConservativeCapabilities())
		return
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	caps, err := b.Service.GetCapabilities(fctx)
	if err != nil {
		logger.Warn("capability fetch failed, using standard quality", "error", err)
		caps = models.ConservativeCapabilities()
	}
	b.Holder.Set(caps)
	logger.Info("capabilities loaded", "hq", caps.CanStreamHQ, "lossless", caps.CanStreamLossless)
}

// Start runs the bootstrap in the background and returns a channel closed when it is done.
func (b *Bootstrap) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	return done
}
