package dsp

import (
	"math"

	"github.com/brainwash-synth/brainwash"
)

const (
	flangerMinDelay = 2
	flangerMaxDelay = 800
)

// Flanger mixes the input with a copy of itself delayed by a sine LFO sweeping
// between 2 and 800 samples, scaled by depth.
type Flanger struct {
	line  DelayLine
	phase float64
}

func NewFlanger() *Flanger {
	return &Flanger{line: NewDelayLine(flangerMaxDelay)}
}

func (f *Flanger) Reset() {
	f.line.Reset()
	f.phase = 0
}

// Step advances the flanger. rate is the LFO frequency in Hz, depth in [0, 1]
// widens the sweep, feedback in [0, 0.95] feeds the delayed signal back.
func (f *Flanger) Step(in, rate, depth, feedback float32) float32 {
	rate = clamp(rate, 0.1, 10)
	depth = clamp(depth, 0, 1)
	feedback = clamp(feedback, 0, 0.95)
	f.phase += float64(rate) / brainwash.SampleRate
	f.phase -= math.Floor(f.phase)
	lfo := float32(math.Sin(2*math.Pi*f.phase)+1) / 2
	maxDelay := flangerMinDelay + (flangerMaxDelay-flangerMinDelay)*depth
	delay := flangerMinDelay + (maxDelay-flangerMinDelay)*lfo
	wet := f.line.Read(delay)
	f.line.Write(in + f.line.ReadInt(int(delay))*feedback)
	return in + wet
}
