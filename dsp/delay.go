package dsp

import "github.com/brainwash-synth/brainwash"

// MaxDelaySamples is the longest delay of a Delay module, one second.
const MaxDelaySamples = brainwash.SampleRate

// DelayLine is a circular buffer with fractional-sample reads.
type DelayLine struct {
	buffer []float32
	pos    int
}

// NewDelayLine allocates a line that can delay up to maxDelay samples.
func NewDelayLine(maxDelay int) DelayLine {
	return DelayLine{buffer: make([]float32, maxDelay+2)}
}

func (d *DelayLine) Reset() {
	clear(d.buffer)
	d.pos = 0
}

// Read returns the sample written delay samples before the most recent write,
// linearly interpolating between neighbouring samples for fractional delays.
// Read(0) is the most recent sample.
func (d *DelayLine) Read(delay float32) float32 {
	n := len(d.buffer)
	delay = clamp(delay, 0, float32(n-2))
	i := int(delay)
	frac := delay - float32(i)
	r := (d.pos - 1 - i + 2*n) % n
	a, b := d.buffer[r], d.buffer[(r-1+n)%n]
	return a + (b-a)*frac
}

// ReadInt is Read without interpolation.
func (d *DelayLine) ReadInt(delay int) float32 {
	n := len(d.buffer)
	delay = max(0, min(delay, n-2))
	return d.buffer[(d.pos-1-delay+2*n)%n]
}

func (d *DelayLine) Write(v float32) {
	d.buffer[d.pos] = v
	d.pos++
	if d.pos >= len(d.buffer) {
		d.pos = 0
	}
}

// Step writes the input, then reads the delayed sample, so a delay of zero
// passes the input through.
func (d *DelayLine) Step(in, delay float32) float32 {
	d.Write(in)
	return d.Read(delay)
}

// clamp limits v to [lo, hi]. NaN maps to lo, so a blown-up signal can never
// turn into an out-of-range index.
func clamp(v, lo, hi float32) float32 {
	if !(v >= lo) {
		return lo
	}
	return min(v, hi)
}
