package dsp

import "math"

// Biquad is a second order low- or highpass filter. The frequency is
// normalized: 1 is the Nyquist frequency. Coefficients are recomputed only
// when the frequency or Q change.
type Biquad struct {
	highpass       bool
	x1, x2, y1, y2 float32
	b0, b1, b2     float32
	a1, a2         float32
	freq, q        float32
}

func NewLowpass() Biquad  { return Biquad{} }
func NewHighpass() Biquad { return Biquad{highpass: true} }

// Reset clears the filter history, keeping the filter type.
func (b *Biquad) Reset() { *b = Biquad{highpass: b.highpass} }

func (b *Biquad) Step(in, freq, q float32) float32 {
	freq = clamp(freq, 0.001, 0.99)
	q = max(q, 0.1)
	if freq != b.freq || q != b.q {
		b.coefficients(freq, q)
	}
	out := b.b0*in + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, in
	b.y2, b.y1 = b.y1, out
	return out
}

func (b *Biquad) coefficients(freq, q float32) {
	b.freq, b.q = freq, q
	omega := math.Pi * float64(freq)
	sin, cos := math.Sincos(omega)
	alpha := sin / (2 * float64(q))
	a0 := 1 + alpha
	var b0, b1 float64
	if b.highpass {
		b0, b1 = (1+cos)/2, -(1 + cos)
	} else {
		b0, b1 = (1-cos)/2, 1-cos
	}
	b.b0 = float32(b0 / a0)
	b.b1 = float32(b1 / a0)
	b.b2 = float32(b0 / a0)
	b.a1 = float32(-2 * cos / a0)
	b.a2 = float32((1 - alpha) / a0)
}
