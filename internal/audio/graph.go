// package audio holds the output side of the player: the effects graph and a speaker
// backed sink.
package audio

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/shared"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

var (
	errInvalidRate  = errors.New("invalid sample rate")
	errInvalidRatio = errors.New("compressor ratio must be at least 1")
)

// GraphOptions configures a [Graph].
type GraphOptions struct {
	SampleRate beep.SampleRate
	Compressor CompressorOptions
	// OutputGain is the linear gain of the final stage, 1 is unity.
	OutputGain float64
	// Locker guards the streamers while the output is reading them.
	Locker sync.Locker
	Logger *log.Logger
}

// Graph is the processing chain source → [compressor] → gain → destination.
//
// Nodes are built lazily on first use. If the compressor cannot be built the graph keeps
// passing audio straight to the gain stage and normalization reports unavailable.
type Graph struct {
	opts   GraphOptions
	lock   sync.Locker
	logger *log.Logger

	once        sync.Once
	source      *sourceNode
	compressor  *Compressor
	gain        *effects.Gain
	unavailable bool

	mu        sync.Mutex
	normalize bool
}

func NewGraph(opts GraphOptions) *Graph {
	if opts.SampleRate == 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.OutputGain == 0 {
		opts.OutputGain = 1
	}
	if opts.Locker == nil {
		opts.Locker = &sync.Mutex{}
	}
	if opts.Logger == nil {
		opts.Logger = shared.NopLogger()
	}
	return &Graph{opts: opts, lock: opts.Locker, logger: opts.Logger}
}

func (g *Graph) build() {
	g.once.Do(func() {
		g.source = &sourceNode{}
		// effects.Gain scales by 1+Gain.
		g.gain = &effects.Gain{Streamer: g.source, Gain: g.opts.OutputGain - 1}

		c, err := NewCompressor(g.opts.SampleRate, g.opts.Compressor)
		if err != nil {
			g.logger.Warn("normalization unavailable", "error", err)
			g.unavailable = true
			return
		}
		g.compressor = c
	})
}

// Output returns the destination end of the graph.
func (g *Graph) Output() beep.Streamer {
	g.build()
	return g.gain
}

// SetSource replaces the source node input. Nil produces silence.
func (g *Graph) SetSource(s beep.Streamer) {
	g.build()
	g.lock.Lock()
	defer g.lock.Unlock()
	g.source.s = s
}

// Available reports whether normalization can be routed.
func (g *Graph) Available() bool {
	g.build()
	return !g.unavailable
}

// Normalizing reports whether the compressor stage is routed.
func (g *Graph) Normalizing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.normalize && !g.unavailable
}

// ApplyNormalizeRouting rebuilds the connections, routing through the compressor only
// when enabled. It is safe to call repeatedly and while audio is playing. It reports false
// when normalization is unavailable, in which case audio stays on the direct route.
func (g *Graph) ApplyNormalizeRouting(enabled bool) bool {
	g.build()

	g.mu.Lock()
	g.normalize = enabled
	g.mu.Unlock()

	g.lock.Lock()
	defer g.lock.Unlock()

	// disconnect everything, then reconnect
	g.gain.Streamer = nil
	if g.compressor != nil {
		g.compressor.Streamer = nil
	}

	if enabled && g.compressor != nil {
		g.compressor.Streamer = g.source
		g.gain.Streamer = g.compressor
	} else {
		g.gain.Streamer = g.source
	}

	if g.unavailable {
		return false
	}
	g.logger.Debug("normalize routing applied", "enabled", enabled)
	return true
}

// sourceNode feeds the graph from a replaceable input and never ends, so the output keeps
// running between tracks. An exhausted input is dropped and padded with silence.
type sourceNode struct {
	s beep.Streamer
}

func (n *sourceNode) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	if n.s != nil {
		got, ok := n.s.Stream(samples)
		filled = got
		if !ok {
			n.s = nil
		}
	}
	clear(samples[filled:])
	return len(samples), true
}

func (n *sourceNode) Err() error {
	if n.s == nil {
		return nil
	}
	return n.s.Err()
}
