package dsp

import "github.com/brainwash-synth/brainwash"

// Breakpoints evaluates a breakpoint envelope at the given phase. The points
// must be sorted by time. A curve point eases the segments next to it: a curve
// start eases out, a curve end eases in, and curves at both ends give an
// ease-in-out.
func Breakpoints(points []brainwash.EnvPoint, phase float32) float32 {
	phase = clamp(phase, 0, 1)
	n := len(points)
	switch {
	case n == 0:
		return 0
	case n == 1 || phase <= points[0].Time:
		return points[0].Value
	case phase >= points[n-1].Time:
		return points[n-1].Value
	}
	for i := 0; i < n-1; i++ {
		p1, p2 := points[i], points[i+1]
		if phase < p1.Time || phase > p2.Time {
			continue
		}
		d := p2.Time - p1.Time
		if d < 1e-6 {
			return p1.Value
		}
		t := (phase - p1.Time) / d
		switch {
		case p1.Curve && p2.Curve:
			if t < 0.5 {
				t = 2 * t * t
			} else {
				t = 1 - 2*(1-t)*(1-t)
			}
		case p1.Curve:
			t = 1 - (1-t)*(1-t)
		case p2.Curve:
			t = t * t
		}
		return p1.Value + (p2.Value-p1.Value)*t
	}
	return points[n-1].Value
}
