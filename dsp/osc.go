// Package dsp implements the per-sample signal processors behind the module
// kinds. Every processor is a small struct advanced by a Step method. Step
// never allocates; buffers are allocated by the constructors only, and Reset
// zeroes state in place.
package dsp

import (
	"math"

	"github.com/brainwash-synth/brainwash"
)

// Osc is a phase-accumulator oscillator. The phase is a uint32 that wraps
// around once per period.
type Osc struct {
	phase uint32
	seed  uint32
}

const noiseSeed = 22222

func NewOsc() Osc { return Osc{seed: noiseSeed} }

func (o *Osc) Reset() { *o = NewOsc() }

// Step advances the oscillator by one sample and returns its output. freq is in
// Hz, shift in semitones; gain is clamped to [0, 1].
func (o *Osc) Step(wave int, freq, shift, gain float32) float32 {
	f := float64(freq) * math.Exp2(float64(shift)/12)
	o.phase += uint32(int64(f / brainwash.SampleRate * (1 << 32)))
	phase := float32(o.phase) / (1 << 32)
	var v float32
	switch wave {
	case brainwash.WaveSine:
		v = float32(math.Sin(2 * math.Pi * float64(phase)))
	case brainwash.WaveSquare:
		v = -1
		if phase < 0.5 {
			v = 1
		}
	case brainwash.WaveTriangle:
		if phase < 0.5 {
			v = -1 + 4*phase
		} else {
			v = 3 - 4*phase
		}
	case brainwash.WaveSaw:
		v = -1 + 2*phase
	case brainwash.WaveReverseSaw:
		v = 1 - 2*phase
	default:
		o.seed = o.seed*196314165 + 907633515
		v = float32(o.seed)/math.MaxUint32*2 - 1
	}
	return v * clamp(gain, 0, 1)
}

// Phase returns the current phase in [0, 1).
func (o *Osc) Phase() float32 { return float32(o.phase) / (1 << 32) }
