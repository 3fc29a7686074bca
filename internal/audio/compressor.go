package audio

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// Compressor is a feed-forward dynamics compressor.
//
// It follows the peak envelope of the input with separate attack and release times and
// reduces everything above Threshold by Ratio.
type Compressor struct {
	Streamer beep.Streamer

	thresholdDB float64
	ratio       float64
	attack      float64
	release     float64
	env         float64
}

// CompressorOptions configures a [Compressor]. Zero values select the defaults.
type CompressorOptions struct {
	ThresholdDB float64
	Ratio       float64
	AttackSec   float64
	ReleaseSec  float64
}

// Defaults for [CompressorOptions].
const (
	DefaultThresholdDB = -24.0
	DefaultRatio       = 4.0
	DefaultAttackSec   = 0.003
	DefaultReleaseSec  = 0.25
)

// NewCompressor creates a compressor for streams at rate.
func NewCompressor(rate beep.SampleRate, opts CompressorOptions) (*Compressor, error) {
	if rate <= 0 {
		return nil, errInvalidRate
	}
	if opts.ThresholdDB == 0 {
		opts.ThresholdDB = DefaultThresholdDB
	}
	if opts.Ratio == 0 {
		opts.Ratio = DefaultRatio
	}
	if opts.Ratio < 1 {
		return nil, errInvalidRatio
	}
	if opts.AttackSec <= 0 {
		opts.AttackSec = DefaultAttackSec
	}
	if opts.ReleaseSec <= 0 {
		opts.ReleaseSec = DefaultReleaseSec
	}

	return &Compressor{
		thresholdDB: opts.ThresholdDB,
		ratio:       opts.Ratio,
		attack:      coefficient(opts.AttackSec, rate),
		release:     coefficient(opts.ReleaseSec, rate),
	}, nil
}

func coefficient(seconds float64, rate beep.SampleRate) float64 {
	return math.Exp(-1 / (seconds * float64(rate)))
}

// Stream implements [beep.Streamer]. Without an input it produces silence.
func (c *Compressor) Stream(samples [][2]float64) (n int, ok bool) {
	if c.Streamer == nil {
		clear(samples)
		return len(samples), true
	}

	n, ok = c.Streamer.Stream(samples)
	for i := range samples[:n] {
		peak := math.Max(math.Abs(samples[i][0]), math.Abs(samples[i][1]))
		coeff := c.release
		if peak > c.env {
			coeff = c.attack
		}
		c.env = coeff*c.env + (1-coeff)*peak

		g := c.gain(c.env)
		samples[i][0] *= g
		samples[i][1] *= g
	}
	return n, ok
}

// gain returns the linear gain applied at envelope level env.
func (c *Compressor) gain(env float64) float64 {
	if env <= 0 {
		return 1
	}
	level := 20 * math.Log10(env)
	over := level - c.thresholdDB
	if over <= 0 {
		return 1
	}
	reduction := over * (1 - 1/c.ratio)
	return math.Pow(10, -reduction/20)
}

// Err implements [beep.Streamer].
func (c *Compressor) Err() error {
	if c.Streamer == nil {
		return nil
	}
	return c.Streamer.Err()
}
