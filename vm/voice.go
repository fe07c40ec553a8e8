package vm

import (
	"strconv"

	"github.com/brainwash-synth/brainwash/graph"
)

type (
	VoiceState int

	// voice plays its current note on one of two layers. When the voice is
	// stolen, the layer of the old note fades out while the new note fades in
	// on the other one. If both layers are still audible when the voice is
	// stolen again, both fade out and the new note waits for the first of them
	// to fall silent; the gains of the layers never add up to more than one,
	// so the wait is at most half a crossfade.
	voice struct {
		state      VoiceState
		id         int
		freq, gate float32
		age        int // samples since the last trigger or release
		cur        int // layer of the current note, -1 while it waits for one
		layers     [2]layer
		own        [2]*graph.Instance // instances of the synth's own program
	}

	// layer is an instance with a gain of level/CrossfadeSamples. The layer of
	// the current note ramps up to full gain, the others ramp down to silence.
	// A layer adopted from a synth with another topology keeps running the
	// program it was built for until it is silent.
	layer struct {
		in         *graph.Instance
		freq, gate float32 // of a fading layer; the current one follows the voice
		level      int
	}

	// VoiceInfo is a snapshot of a voice for display.
	VoiceInfo struct {
		State VoiceState
		ID    int
		Freq  float32
		Age   int
	}
)

const (
	Free VoiceState = iota
	Active
	Releasing
	Stealing
)

const fullLevel = CrossfadeSamples

func (s VoiceState) String() string {
	switch s {
	case Free:
		return "free"
	case Active:
		return "active"
	case Releasing:
		return "releasing"
	case Stealing:
		return "stealing"
	}
	return "VoiceState(" + strconv.Itoa(int(s)) + ")"
}

// held tells if the voice is sounding a note whose gate is still high.
func (v *voice) held() bool {
	return v.state == Active || v.state == Stealing
}

// free silences the voice at once.
func (v *voice) free() {
	v.state, v.cur = Free, -1
	for j := range v.layers {
		v.layers[j] = layer{in: v.own[j]}
	}
}

// fadeOut lets the layer of the current note fade out.
func (v *voice) fadeOut() {
	if v.cur < 0 {
		return
	}
	y := &v.layers[v.cur]
	y.freq, y.gate = v.freq, v.gate
	v.cur = -1
}

// start puts the current note on a silent layer. It reports false if both
// layers are still audible.
func (v *voice) start() bool {
	for j := range v.layers {
		y := &v.layers[j]
		if y.level == 0 {
			y.in = v.own[j]
			y.in.Reset()
			v.cur = j
			return true
		}
	}
	return false
}

// fading tells if a layer is still ramping, or the note waits for a layer.
func (v *voice) fading() bool {
	if v.cur < 0 {
		return true
	}
	for j := range v.layers {
		if l := v.layers[j].level; (j == v.cur && l < fullLevel) || (j != v.cur && l > 0) {
			return true
		}
	}
	return false
}

// rampLeft returns the number of samples until the next layer reaches the end
// of its ramp.
func (v *voice) rampLeft() int {
	n := fullLevel
	for j := range v.layers {
		l := v.layers[j].level
		switch {
		case j == v.cur && l < fullLevel:
			n = min(n, fullLevel-l)
		case j != v.cur && l > 0:
			n = min(n, l)
		}
	}
	return n
}

// done tells if a released voice has nothing left to play.
func (v *voice) done() bool {
	if v.state != Releasing {
		return false
	}
	for j := range v.layers {
		if j != v.cur && v.layers[j].level > 0 {
			return false
		}
	}
	return v.cur < 0 || v.layers[v.cur].in.ADSRIdle()
}

// Voice returns the state of the i-th voice.
func (s *Synth) Voice(i int) VoiceInfo {
	v := &s.voices[i]
	return VoiceInfo{State: v.state, ID: v.id, Freq: v.freq, Age: v.age}
}
