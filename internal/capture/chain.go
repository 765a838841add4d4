package capture

import (
	"encoding/binary"
	"math"
)

// Chain is the fixed signal-processing graph applied to captured audio
// before it reaches the recorder: high-pass filter, dynamics
// compressor, output gain. Coefficients are fixed and not data
// dependent; state carries across frames within one recording.
type Chain struct {
	hp   biquad
	comp compressor
	gain float64
}

const (
	highpassCutoffHz = 120.0
	highpassQ        = 0.7071

	compThresholdDB = -24.0
	compRatio       = 12.0
	compAttackSec   = 0.003
	compReleaseSec  = 0.25

	outputGain = 1.4
)

// NewChain builds the processing graph for the given sample rate.
func NewChain(sampleRate int) *Chain {
	return &Chain{
		hp:   newHighpass(float64(sampleRate), highpassCutoffHz, highpassQ),
		comp: newCompressor(float64(sampleRate)),
		gain: outputGain,
	}
}

// Process filters one little-endian 16-bit PCM frame in place and
// returns it.
func (c *Chain) Process(pcm []byte) []byte {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sample = c.hp.step(sample)
		sample = c.comp.step(sample)
		sample *= c.gain
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(sample*32767.0)))
	}
	return pcm
}

// biquad implements a direct form 1 second-order section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func newHighpass(sampleRate, cutoff, q float64) biquad {
	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2 * q)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cosw) / 2 / a0,
		b1: -(1 + cosw) / a0,
		b2: (1 + cosw) / 2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f *biquad) step(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// compressor is a feed-forward peak compressor with an envelope
// follower.
type compressor struct {
	threshold float64
	ratio     float64
	attack    float64
	release   float64
	envelope  float64
}

func newCompressor(sampleRate float64) compressor {
	return compressor{
		threshold: math.Pow(10, compThresholdDB/20),
		ratio:     compRatio,
		attack:    math.Exp(-1 / (compAttackSec * sampleRate)),
		release:   math.Exp(-1 / (compReleaseSec * sampleRate)),
	}
}

func (c *compressor) step(x float64) float64 {
	level := math.Abs(x)
	if level > c.envelope {
		c.envelope = c.attack*c.envelope + (1-c.attack)*level
	} else {
		c.envelope = c.release*c.envelope + (1-c.release)*level
	}
	if c.envelope <= c.threshold || c.envelope == 0 {
		return x
	}
	gain := (c.threshold + (c.envelope-c.threshold)/c.ratio) / c.envelope
	return x * gain
}
