package dsp

// Freeverb-style reverb: eight parallel damped comb filters feeding four
// series allpasses, once per channel. The right channel's delay lines are
// stereoSpread samples longer, which decorrelates the two tanks.

const (
	fixedGain    = 0.015
	scaleDamp    = 0.4
	scaleRoom    = 0.28
	offsetRoom   = 0.7
	stereoSpread = 23
	denormal     = 1e-15
)

var (
	combTunings    = [...]int{1116, 1188, 1277, 1356, 1422, 1491, 1557, 1617}
	allpassTunings = [...]int{556, 441, 341, 225}
)

type (
	comb struct {
		buffer      []float32
		pos         int
		filterstore float32
	}

	allpass struct {
		buffer []float32
		pos    int
	}

	tank struct {
		combs     [len(combTunings)]comb
		allpasses [len(allpassTunings)]allpass
	}

	// Reverb holds the two tanks of a stereo reverb.
	Reverb struct {
		tanks [2]tank
	}
)

func NewReverb() *Reverb {
	r := &Reverb{}
	for c := range r.tanks {
		spread := c * stereoSpread
		for i, t := range combTunings {
			r.tanks[c].combs[i].buffer = make([]float32, t+spread)
		}
		for i, t := range allpassTunings {
			r.tanks[c].allpasses[i].buffer = make([]float32, t+spread)
		}
	}
	return r
}

func (r *Reverb) Reset() {
	for c := range r.tanks {
		for i := range r.tanks[c].combs {
			cb := &r.tanks[c].combs[i]
			clear(cb.buffer)
			cb.pos, cb.filterstore = 0, 0
		}
		for i := range r.tanks[c].allpasses {
			ap := &r.tanks[c].allpasses[i]
			clear(ap.buffer)
			ap.pos = 0
		}
	}
}

// Step feeds one mono sample into both tanks and returns the left and right
// outputs. room and damp are in [0, 1]. The output only depends on what was
// fed in before this sample.
func (r *Reverb) Step(in, room, damp float32) (l, rr float32) {
	feedback := clamp(room, 0, 1)*scaleRoom + offsetRoom
	damp1 := clamp(damp, 0, 1) * scaleDamp
	input := in * fixedGain
	l = r.tanks[0].step(input, feedback, damp1)
	rr = r.tanks[1].step(input, feedback, damp1)
	return l, rr
}

func (t *tank) step(input, feedback, damp1 float32) float32 {
	var out float32
	for i := range t.combs {
		out += t.combs[i].step(input, feedback, damp1)
	}
	for i := range t.allpasses {
		out = t.allpasses[i].step(out)
	}
	return out
}

func (c *comb) step(input, feedback, damp1 float32) float32 {
	out := undenormalise(c.buffer[c.pos])
	c.filterstore = undenormalise(out*(1-damp1) + c.filterstore*damp1)
	c.buffer[c.pos] = input + c.filterstore*feedback
	if c.pos++; c.pos >= len(c.buffer) {
		c.pos = 0
	}
	return out
}

func (a *allpass) step(input float32) float32 {
	bufout := a.buffer[a.pos]
	out := bufout - input
	a.buffer[a.pos] = input + bufout*0.5
	if a.pos++; a.pos >= len(a.buffer) {
		a.pos = 0
	}
	return out
}

func undenormalise(v float32) float32 {
	if v < denormal && v > -denormal {
		return 0
	}
	return v
}
