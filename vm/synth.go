// Package vm is the voice manager: a fixed pool of voices, each running its
// own instances of a compiled module graph, mixed to stereo.
//
// All allocation happens in New. Trigger, Release, Control and Render never
// allocate, never block and never fail, so they can be called from the audio
// thread.
package vm

import (
	"errors"
	"fmt"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/graph"
	"github.com/viterin/vek/vek32"
)

type (
	// Synth is a pool of voices playing one program.
	Synth struct {
		program *graph.Program
		voices  []voice
		master  float32
		width   float32
		stats   Stats

		// scratch buffers, one block long
		mixL, mixR      []float32
		voiceL, voiceR  []float32
		layerL, layerR  []float32
		fadeIn, fadeOut []float32
	}

	// Options of the final mix.
	Options struct {
		Master float32 // linear gain
		Width  float32 // 0 is mono, 1 keeps the stereo image, above 1 widens it
	}

	// Stats counts what the voice manager has done since it was created.
	Stats struct {
		Triggers uint64
		Steals   uint64
		Slides   uint64
		Releases uint64
		Active   int // voices that are not free
	}
)

// CrossfadeSamples is the length of the crossfade when a voice is stolen.
const CrossfadeSamples = 441

// MaxVoices is the largest pool New accepts.
const MaxVoices = 64

const blockSize = 256

var ErrTooManyVoices = errors.New("too many voices")

func DefaultOptions() Options {
	return Options{Master: 1, Width: 1}
}

// New allocates a pool of numVoices voices. A pool without voices could never
// play a note, so it is refused with brainwash.ErrNoFreeOrStealableVoice.
func New(program *graph.Program, numVoices int, opts Options) (*Synth, error) {
	if numVoices <= 0 {
		return nil, fmt.Errorf("%w: pool of %d voices", brainwash.ErrNoFreeOrStealableVoice, numVoices)
	}
	if numVoices > MaxVoices {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyVoices, numVoices, MaxVoices)
	}
	s := &Synth{
		program: program,
		voices:  make([]voice, numVoices),
		master:  opts.Master,
		width:   opts.Width,
		mixL:    make([]float32, blockSize),
		mixR:    make([]float32, blockSize),
		voiceL:  make([]float32, blockSize),
		voiceR:  make([]float32, blockSize),
		layerL:  make([]float32, blockSize),
		layerR:  make([]float32, blockSize),
		fadeIn:  make([]float32, CrossfadeSamples),
		fadeOut: make([]float32, CrossfadeSamples),
	}
	for i := range s.fadeIn {
		s.fadeIn[i] = float32(i+1) / CrossfadeSamples
		s.fadeOut[i] = 1 - s.fadeIn[i]
	}
	for i := range s.voices {
		v := &s.voices[i]
		for j := range v.own {
			v.own[j] = graph.NewInstance(program)
		}
		v.free()
	}
	return s, nil
}

func (s *Synth) Program() *graph.Program { return s.program }

func (s *Synth) NumVoices() int { return len(s.voices) }

func (s *Synth) Stats() Stats {
	ret := s.stats
	for i := range s.voices {
		if s.voices[i].state != Free {
			ret.Active++
		}
	}
	return ret
}

// Trigger starts a note. With legato set and a voice already holding a note
// with the same id, the note slides: only the frequency changes. Otherwise
// the note goes to the first free voice, or steals the oldest active voice,
// or failing that the oldest releasing voice. Among those, voices in the
// middle of a crossfade come last. Equally old voices are stolen lowest index
// first.
func (s *Synth) Trigger(id int, freq float32, legato bool) {
	s.stats.Triggers++
	if legato {
		if i := s.held(id); i >= 0 {
			v := &s.voices[i]
			v.freq = freq
			v.age = 0
			s.stats.Slides++
			return
		}
	}
	i := s.pick()
	v := &s.voices[i]
	if v.state == Free {
		v.start()
		v.layers[v.cur].level = fullLevel
		v.state = Active
	} else {
		v.fadeOut()
		v.start()
		v.state = Stealing
		s.stats.Steals++
	}
	v.id = id
	v.freq = freq
	v.gate = 1
	v.age = 0
}

// Release lets go of every held note with the given id.
func (s *Synth) Release(id int) {
	for i := range s.voices {
		v := &s.voices[i]
		if v.id == id && v.held() {
			v.state = Releasing
			v.gate = 0
			v.age = 0
			s.stats.Releases++
		}
	}
}

// Control drives the notes of id with live Freq and Gate values: a rising gate
// triggers, a falling gate releases and a frequency change while the gate is
// high slides.
func (s *Synth) Control(id int, freq, gate float32) {
	i := s.held(id)
	switch {
	case gate > 0 && i < 0:
		s.Trigger(id, freq, false)
	case gate > 0 && s.voices[i].freq != freq:
		s.Trigger(id, freq, true)
	case gate <= 0 && i >= 0:
		s.Release(id)
	}
}

// Panic silences every voice at once.
func (s *Synth) Panic() {
	for i := range s.voices {
		v := &s.voices[i]
		*v = voice{own: v.own}
		v.free()
	}
}

// Adopt takes over the voices of a synth this one replaces: held and
// releasing notes keep playing. If both play the same topology, the running
// DSP state moves over too, so a parameter-only change is seamless. Otherwise
// the old instances fade out with the program they were built for while the
// held notes fade in again on the new program.
func (s *Synth) Adopt(old *Synth) {
	if old == nil {
		return
	}
	keep := s.program.SameTopology(old.program)
	s.stats = old.stats
	s.stats.Active = 0
	for i := range s.voices {
		if i >= len(old.voices) {
			break
		}
		v, o := &s.voices[i], &old.voices[i]
		if keep {
			for j := range v.own {
				v.own[j], o.own[j] = o.own[j], v.own[j]
				v.own[j].SetProgram(s.program)
			}
		}
		v.state, v.id, v.freq, v.gate, v.age = o.state, o.id, o.freq, o.gate, o.age
		v.cur, v.layers = o.cur, o.layers
		if keep || v.state == Free {
			continue
		}
		v.fadeOut()
		if v.held() {
			v.state = Stealing
			v.start()
		}
	}
}

// Render fills the buffer with the mix of all voices.
func (s *Synth) Render(buf brainwash.AudioBuffer) {
	for len(buf) > 0 {
		n := min(len(buf), blockSize)
		s.renderBlock(buf[:n])
		buf = buf[n:]
	}
}

func (s *Synth) renderBlock(buf brainwash.AudioBuffer) {
	n := len(buf)
	mixL, mixR := s.mixL[:n], s.mixR[:n]
	clear(mixL)
	clear(mixR)
	for i := range s.voices {
		v := &s.voices[i]
		v.age += n
		if v.state == Free {
			continue
		}
		s.renderVoice(v, n)
		vek32.Add_Inplace(mixL, s.voiceL[:n])
		vek32.Add_Inplace(mixR, s.voiceR[:n])
	}
	direct := s.master * (1 + s.width) / 2
	cross := s.master * (1 - s.width) / 2
	for i := range buf {
		l, r := mixL[i], mixR[i]
		buf[i][0] = direct*l + cross*r
		buf[i][1] = cross*l + direct*r
	}
}

// renderVoice writes the voice output to voiceL and voiceR. The block is cut
// where a layer reaches the end of its ramp, so a waiting note starts on the
// exact sample a layer falls silent.
func (s *Synth) renderVoice(v *voice, n int) {
	l, r := s.voiceL[:n], s.voiceR[:n]
	clear(l)
	clear(r)
	for k := 0; k < n; {
		if v.cur < 0 && v.state != Releasing {
			v.start()
		}
		if v.done() {
			v.free()
			return
		}
		seg := n - k
		if v.fading() {
			seg = min(seg, v.rampLeft())
		}
		for j := range v.layers {
			s.renderLayer(v, j, l[k:k+seg], r[k:k+seg])
		}
		k += seg
		if v.state == Stealing && !v.fading() {
			v.state = Active
		}
	}
}

// renderLayer adds the output of a layer, scaled by its gain ramp, to l and r.
func (s *Synth) renderLayer(v *voice, j int, l, r []float32) {
	y := &v.layers[j]
	cur := j == v.cur
	if !cur && y.level == 0 {
		return
	}
	freq, gate := y.freq, y.gate
	if cur {
		freq, gate = v.freq, v.gate
	}
	n := len(l)
	yl, yr := s.layerL[:n], s.layerR[:n]
	for k := range yl {
		f := y.in.EvaluateSample(freq, gate)
		yl[k], yr[k] = f.L, f.R
	}
	var ramp []float32
	switch {
	case !cur:
		ramp = s.fadeOut[fullLevel-y.level:][:n]
		y.level -= n
	case y.level < fullLevel:
		ramp = s.fadeIn[y.level:][:n]
		y.level += n
	}
	if ramp != nil {
		vek32.Mul_Inplace(yl, ramp)
		vek32.Mul_Inplace(yr, ramp)
	}
	vek32.Add_Inplace(l, yl)
	vek32.Add_Inplace(r, yr)
}

// held returns the voice holding a note with the id, or -1.
func (s *Synth) held(id int) int {
	for i := range s.voices {
		if s.voices[i].id == id && s.voices[i].held() {
			return i
		}
	}
	return -1
}

// pick chooses the voice for a new note.
func (s *Synth) pick() int {
	for i := range s.voices {
		if s.voices[i].state == Free {
			return i
		}
	}
	for _, held := range [...]bool{true, false} {
		if i := s.oldest(held, false); i >= 0 {
			return i
		}
		if i := s.oldest(held, true); i >= 0 {
			return i
		}
	}
	return 0
}

// oldest returns the oldest voice that is held or not, or -1. Voices in the
// middle of a crossfade only count with crossfading set, so they are stolen
// again only if no steady voice of the same kind is left.
func (s *Synth) oldest(held, crossfading bool) int {
	ret, age := -1, -1
	for i := range s.voices {
		v := &s.voices[i]
		if v.held() == held && (crossfading || !v.fading()) && v.age > age {
			ret, age = i, v.age
		}
	}
	return ret
}
