package vm_test

import (
	"errors"
	"math"
	"testing"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/graph"
	"github.com/brainwash-synth/brainwash/vm"
)

type link struct {
	src, srcPort, dst, dstPort int
}

func program(t *testing.T, kinds []brainwash.ModuleKind, links []link) *graph.Program {
	t.Helper()
	g := graph.New()
	for _, k := range kinds {
		if _, err := g.AddNode(k, k.DefaultParams(), graph.Position{}); err != nil {
			t.Fatalf("AddNode(%v): %v", k, err)
		}
	}
	for _, l := range links {
		if err := g.Connect(graph.Handle(l.src), l.srcPort, graph.Handle(l.dst), l.dstPort); err != nil {
			t.Fatalf("Connect(%v): %v", l, err)
		}
	}
	return g.Compile()
}

// sine is Freq -> Osc -> Out
func sine(t *testing.T) *graph.Program {
	return program(t,
		[]brainwash.ModuleKind{brainwash.Freq, brainwash.Osc, brainwash.Out},
		[]link{{0, 0, 1, 0}, {1, 0, 2, 0}})
}

// enveloped multiplies the sine with an ADSR driven by the gate.
func enveloped(t *testing.T) *graph.Program {
	return program(t,
		[]brainwash.ModuleKind{brainwash.Freq, brainwash.Osc, brainwash.Gate, brainwash.ADSR, brainwash.Mul, brainwash.Out},
		[]link{{0, 0, 1, 0}, {2, 0, 3, 0}, {1, 0, 4, 0}, {3, 0, 4, 1}, {4, 0, 5, 0}})
}

func newSynth(t *testing.T, p *graph.Program, voices int) *vm.Synth {
	t.Helper()
	s, err := vm.New(p, voices, vm.DefaultOptions())
	if err != nil {
		t.Fatalf("vm.New: %v", err)
	}
	return s
}

func render(s *vm.Synth, n int) brainwash.AudioBuffer {
	buf := make(brainwash.AudioBuffer, n)
	s.Render(buf)
	return buf
}

func states(s *vm.Synth) []vm.VoiceState {
	ret := make([]vm.VoiceState, s.NumVoices())
	for i := range ret {
		ret[i] = s.Voice(i).State
	}
	return ret
}

func checkStates(t *testing.T, s *vm.Synth, want ...vm.VoiceState) {
	t.Helper()
	got := states(s)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("voice states = %v, want %v", got, want)
		}
	}
}

func TestEmptyPool(t *testing.T) {
	_, err := vm.New(sine(t), 0, vm.DefaultOptions())
	if !errors.Is(err, brainwash.ErrNoFreeOrStealableVoice) {
		t.Fatalf("New with 0 voices: got %v", err)
	}
	_, err = vm.New(sine(t), vm.MaxVoices+1, vm.DefaultOptions())
	if !errors.Is(err, vm.ErrTooManyVoices) {
		t.Fatalf("New with too many voices: got %v", err)
	}
}

func TestFreeVoicesFirst(t *testing.T) {
	s := newSynth(t, sine(t), 3)
	s.Trigger(1, 440, false)
	render(s, 10)
	s.Trigger(2, 550, false)
	checkStates(t, s, vm.Active, vm.Active, vm.Free)
	if id := s.Voice(1).ID; id != 2 {
		t.Fatalf("second note went to voice with id %v", id)
	}
	if st := s.Stats(); st.Steals != 0 || st.Active != 2 {
		t.Fatalf("stats %+v", st)
	}
}

func TestStealOldestActive(t *testing.T) {
	s := newSynth(t, sine(t), 2)
	s.Trigger(1, 440, false)
	render(s, 100)
	s.Trigger(2, 550, false)
	render(s, 100)
	s.Trigger(3, 660, false)
	checkStates(t, s, vm.Stealing, vm.Active)
	if id := s.Voice(0).ID; id != 3 {
		t.Fatalf("voice 0 id = %v, want 3", id)
	}
	if st := s.Stats(); st.Steals != 1 {
		t.Fatalf("steals = %v, want 1", st.Steals)
	}
}

func TestStealPrefersActiveOverReleasing(t *testing.T) {
	s := newSynth(t, enveloped(t), 2)
	s.Trigger(1, 440, false)
	render(s, 100)
	s.Release(1)
	render(s, 100)
	s.Trigger(2, 550, false)
	render(s, 10)
	checkStates(t, s, vm.Releasing, vm.Active)
	s.Trigger(3, 660, false)
	checkStates(t, s, vm.Releasing, vm.Stealing)
}

func TestStealOldestReleasing(t *testing.T) {
	s := newSynth(t, enveloped(t), 2)
	s.Trigger(1, 440, false)
	s.Trigger(2, 550, false)
	render(s, 100)
	s.Release(2)
	render(s, 10)
	s.Release(1)
	render(s, 10)
	checkStates(t, s, vm.Releasing, vm.Releasing)
	s.Trigger(3, 660, false)
	checkStates(t, s, vm.Releasing, vm.Stealing)
}

func TestStealTieLowestIndex(t *testing.T) {
	s := newSynth(t, sine(t), 2)
	s.Trigger(1, 440, false)
	s.Trigger(2, 550, false)
	s.Trigger(3, 660, false)
	checkStates(t, s, vm.Stealing, vm.Active)
}

func TestStealCrossfadeIsContinuous(t *testing.T) {
	const f1, f2 = 440, 660
	s := newSynth(t, sine(t), 1)
	s.Trigger(1, f1, false)
	prev := render(s, 1000)[999][0]
	s.Trigger(2, f2, false)
	maxSlew := 2 * math.Pi * f2 / brainwash.SampleRate
	bound := maxSlew + 2.0/vm.CrossfadeSamples + 1e-4
	for i := 0; i < vm.CrossfadeSamples; i++ {
		if st := s.Voice(0).State; st != vm.Stealing {
			t.Fatalf("state before sample %v of the crossfade = %v, want stealing", i, st)
		}
		v := render(s, 1)[0][0]
		if d := math.Abs(float64(v - prev)); d > bound {
			t.Fatalf("jump of %v at sample %v of the crossfade, bound %v", d, i, bound)
		}
		prev = v
	}
	if st := s.Voice(0).State; st != vm.Active {
		t.Fatalf("state after %v samples = %v, want active", vm.CrossfadeSamples, st)
	}
}

func TestCrossfadeAcrossBlocks(t *testing.T) {
	s := newSynth(t, sine(t), 1)
	s.Trigger(1, 440, false)
	render(s, 300)
	s.Trigger(2, 550, false)
	render(s, 440)
	checkStates(t, s, vm.Stealing)
	render(s, 1)
	checkStates(t, s, vm.Active)
}

func TestRestealDuringCrossfadeIsContinuous(t *testing.T) {
	const f1, f2, f3 = 440, 660, 880
	bound := 2*math.Pi*f3/brainwash.SampleRate + 2.0/vm.CrossfadeSamples + 1e-4
	for _, k := range []int{0, 1, 78, 200, 220, 221, 300, 440} {
		s := newSynth(t, sine(t), 1)
		s.Trigger(1, f1, false)
		prev := render(s, 1000)[999][0]
		s.Trigger(2, f2, false)
		for i, v := range render(s, k) {
			if d := math.Abs(float64(v[0] - prev)); d > bound {
				t.Fatalf("k=%v: jump of %v at sample %v of the first crossfade", k, d, i)
			}
			prev = v[0]
		}
		s.Trigger(3, f3, false)
		if v := s.Voice(0); v.State != vm.Stealing || v.ID != 3 || v.Freq != f3 {
			t.Fatalf("k=%v: voice after the second steal = %+v", k, v)
		}
		// the third note waits at most half a crossfade for a silent layer
		n := vm.CrossfadeSamples + vm.CrossfadeSamples/2
		for i, v := range render(s, n) {
			if d := math.Abs(float64(v[0] - prev)); d > bound {
				t.Fatalf("k=%v: jump of %v at sample %v after the second steal, bound %v", k, d, i, bound)
			}
			prev = v[0]
		}
		checkStates(t, s, vm.Active)
		if st := s.Stats(); st.Steals != 2 || st.Triggers != 3 {
			t.Fatalf("k=%v: stats %+v", k, st)
		}
	}
}

func TestRestealWaitingNoteCanBeReleased(t *testing.T) {
	s := newSynth(t, sine(t), 1)
	s.Trigger(1, 440, false)
	render(s, 1000)
	s.Trigger(2, 660, false)
	render(s, 100)
	s.Trigger(3, 880, false)
	s.Release(3)
	checkStates(t, s, vm.Releasing)
	// both layers fade out and the waiting note never starts
	render(s, vm.CrossfadeSamples-100)
	checkStates(t, s, vm.Releasing)
	render(s, 1)
	checkStates(t, s, vm.Free)
	for i, v := range render(s, 100) {
		if v != [2]float32{} {
			t.Fatalf("output %v at sample %v after the voice was freed", v, i)
		}
	}
	if st := s.Stats(); st.Releases != 1 || st.Steals != 2 {
		t.Fatalf("stats %+v", st)
	}
}

func TestStealAvoidsCrossfadingVoice(t *testing.T) {
	s := newSynth(t, sine(t), 2)
	s.Trigger(1, 440, false)
	s.Trigger(2, 550, false)
	render(s, 100)
	s.Trigger(3, 660, false)
	checkStates(t, s, vm.Stealing, vm.Active)
	render(s, 10)
	s.Trigger(2, 600, true)
	render(s, 5)
	// voice 0 is older, but still fading in
	s.Trigger(4, 770, false)
	checkStates(t, s, vm.Stealing, vm.Stealing)
	if id := s.Voice(1).ID; id != 4 {
		t.Fatalf("voice 1 id = %v, want 4", id)
	}
	if id := s.Voice(0).ID; id != 3 {
		t.Fatalf("voice 0 id = %v, want 3", id)
	}
}

func TestLegatoSlides(t *testing.T) {
	s := newSynth(t, sine(t), 1)
	s.Trigger(1, 440, false)
	prev := render(s, 100)[99][0]
	s.Trigger(1, 660, true)
	checkStates(t, s, vm.Active)
	if f := s.Voice(0).Freq; f != 660 {
		t.Fatalf("freq after slide = %v", f)
	}
	st := s.Stats()
	if st.Slides != 1 || st.Steals != 0 {
		t.Fatalf("stats after slide %+v", st)
	}
	if v := render(s, 1)[0][0]; math.Abs(float64(v-prev)) > 2*math.Pi*660/brainwash.SampleRate {
		t.Fatalf("slide jumped from %v to %v", prev, v)
	}
}

func TestLegatoWithoutHeldNoteTriggers(t *testing.T) {
	s := newSynth(t, sine(t), 2)
	s.Trigger(1, 440, true)
	checkStates(t, s, vm.Active, vm.Free)
	if st := s.Stats(); st.Slides != 0 {
		t.Fatalf("slides = %v", st.Slides)
	}
}

func TestReleaseFreesAfterEnvelope(t *testing.T) {
	s := newSynth(t, enveloped(t), 1)
	s.Trigger(1, 440, false)
	render(s, 1000)
	s.Release(1)
	checkStates(t, s, vm.Releasing)
	render(s, 1000)
	checkStates(t, s, vm.Releasing)
	render(s, brainwash.SampleRate)
	checkStates(t, s, vm.Free)
	for i, v := range render(s, 100) {
		if v != [2]float32{} {
			t.Fatalf("free voice output %v at %v", v, i)
		}
	}
}

func TestReleaseWithoutEnvelopeFreesImmediately(t *testing.T) {
	s := newSynth(t, sine(t), 1)
	s.Trigger(1, 440, false)
	render(s, 10)
	s.Release(1)
	render(s, 1)
	checkStates(t, s, vm.Free)
}

func TestControl(t *testing.T) {
	s := newSynth(t, sine(t), 2)
	s.Control(5, 440, 1)
	checkStates(t, s, vm.Active, vm.Free)
	s.Control(5, 440, 1)
	s.Control(5, 550, 1)
	st := s.Stats()
	if st.Triggers != 2 || st.Slides != 1 {
		t.Fatalf("stats %+v", st)
	}
	s.Control(5, 550, 0)
	checkStates(t, s, vm.Releasing, vm.Free)
	s.Control(5, 550, 0)
	if st := s.Stats(); st.Releases != 1 {
		t.Fatalf("releases = %v", st.Releases)
	}
}

func TestPanic(t *testing.T) {
	s := newSynth(t, sine(t), 3)
	s.Trigger(1, 440, false)
	s.Trigger(2, 440, false)
	render(s, 100)
	s.Panic()
	checkStates(t, s, vm.Free, vm.Free, vm.Free)
	for _, v := range render(s, 10) {
		if v != [2]float32{} {
			t.Fatalf("output after panic: %v", v)
		}
	}
}

func TestAdoptSameTopologyIsSeamless(t *testing.T) {
	g := graph.New()
	freq, _ := g.AddNode(brainwash.Freq, brainwash.Params{}, graph.Position{})
	osc, _ := g.AddNode(brainwash.Osc, brainwash.Osc.DefaultParams(), graph.Position{})
	out, _ := g.AddNode(brainwash.Out, brainwash.Params{}, graph.Position{})
	if err := g.Connect(freq, 0, osc, 0); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(osc, 0, out, 0); err != nil {
		t.Fatal(err)
	}
	old := newSynth(t, g.Compile(), 2)
	old.Trigger(7, 440, false)
	prev := render(old, 1000)[999][0]

	if err := g.SetParam(osc, 3, 0.5); err != nil {
		t.Fatal(err)
	}
	s := newSynth(t, g.Compile(), 2)
	s.Adopt(old)
	if v := s.Voice(0); v.State != vm.Active || v.ID != 7 {
		t.Fatalf("adopted voice %+v", v)
	}
	v := render(s, 1)[0][0]
	// half the gain, but the phase continues
	if math.Abs(float64(v-prev/2)) > 0.05 {
		t.Fatalf("first sample after adopt = %v, previous was %v", v, prev)
	}
	s.Release(7)
	if st := s.Stats(); st.Triggers != 1 || st.Releases != 1 {
		t.Fatalf("stats not carried over: %+v", st)
	}
}

func TestAdoptNewTopologyKeepsNotes(t *testing.T) {
	old := newSynth(t, sine(t), 2)
	old.Trigger(1, 440, false)
	old.Trigger(2, 550, false)
	old.Trigger(3, 660, false)
	render(old, 10)
	s := newSynth(t, enveloped(t), 2)
	s.Adopt(old)
	checkStates(t, s, vm.Stealing, vm.Stealing)
	if id := s.Voice(0).ID; id != 3 {
		t.Fatalf("voice 0 id = %v", id)
	}
	render(s, 100)
	nonzero := false
	for _, v := range render(s, 100) {
		if v[0] != 0 {
			nonzero = true
		}
	}
	if !nonzero {
		t.Fatalf("adopted notes are silent")
	}
	render(s, 300)
	checkStates(t, s, vm.Active, vm.Active)
	if st := s.Stats(); st.Triggers != 3 || st.Steals != 1 {
		t.Fatalf("stats not carried over: %+v", st)
	}
}

func TestAdoptNewTopologyIsContinuous(t *testing.T) {
	const f = 440
	old := newSynth(t, sine(t), 1)
	old.Trigger(1, f, false)
	prev := render(old, 1000)[999][0]
	s := newSynth(t, enveloped(t), 1)
	s.Adopt(old)
	// the attack of the new envelope rises by 1/441 per sample
	bound := 2*math.Pi*f/brainwash.SampleRate + 3.0/vm.CrossfadeSamples + 1e-4
	for i := 0; i < 2*vm.CrossfadeSamples; i++ {
		v := render(s, 1)[0][0]
		if d := math.Abs(float64(v - prev)); d > bound {
			t.Fatalf("jump of %v at sample %v after the topology change, bound %v", d, i, bound)
		}
		prev = v
	}
	checkStates(t, s, vm.Active)
}

func TestAdoptNewTopologyFadesReleasingNotes(t *testing.T) {
	old := newSynth(t, enveloped(t), 1)
	old.Trigger(1, 440, false)
	render(old, 1000)
	old.Release(1)
	render(old, 10)
	s := newSynth(t, sine(t), 1)
	s.Adopt(old)
	checkStates(t, s, vm.Releasing)
	render(s, vm.CrossfadeSamples)
	checkStates(t, s, vm.Releasing)
	render(s, 1)
	checkStates(t, s, vm.Free)
}

func TestWidthZeroIsMono(t *testing.T) {
	p := program(t,
		[]brainwash.ModuleKind{brainwash.Freq, brainwash.Osc, brainwash.Reverb, brainwash.Out},
		[]link{{0, 0, 1, 0}, {1, 0, 2, 0}, {2, 0, 3, 0}})
	s, err := vm.New(p, 1, vm.Options{Master: 0.5, Width: 0})
	if err != nil {
		t.Fatal(err)
	}
	s.Trigger(1, 440, false)
	for i, v := range render(s, 5000) {
		if v[0] != v[1] {
			t.Fatalf("sample %v not mono: %v", i, v)
		}
	}
}
