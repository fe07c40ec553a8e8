package tracker_test

import (
	"math"
	"testing"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/tracker"
)

func preset(t *testing.T, name string) brainwash.Patch {
	t.Helper()
	presets, err := tracker.BuiltinPresets()
	if err != nil {
		t.Fatalf("BuiltinPresets failed: %v", err)
	}
	p, err := presets.Find(name)
	if err != nil {
		t.Fatalf("Find(%q) failed: %v", name, err)
	}
	return p.Patch
}

func compile(t *testing.T, p brainwash.Patch) *tracker.Build {
	t.Helper()
	b, err := tracker.Compile(&p, tracker.DefaultSynthOptions())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return b
}

func energy(buf brainwash.AudioBuffer) float64 {
	var e float64
	for _, s := range buf {
		e += float64(s[0])*float64(s[0]) + float64(s[1])*float64(s[1])
	}
	return e
}

func lastReport(t *testing.T, b *tracker.Broker) tracker.PlayerReport {
	t.Helper()
	var ret tracker.PlayerReport
	found := false
	for {
		select {
		case msg := <-b.ToModel:
			if msg.HasReport {
				ret, found = msg.Report, true
			}
		default:
			if !found {
				t.Fatalf("player did not report")
			}
			return ret
		}
	}
}

func TestPlayerSilentWithoutSnapshot(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	player.Play()
	buf := make(brainwash.AudioBuffer, 512)
	for i := range buf {
		buf[i] = [2]float32{1, 1}
	}
	player.Process(buf, tracker.NullContext{})
	if e := energy(buf); e != 0 {
		t.Errorf("energy = %v, want silence", e)
	}
}

func TestPlayerPlaysTrack(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	b := compile(t, preset(t, "organ"))
	player.Publish(b.Snapshot)
	buf := make(brainwash.AudioBuffer, 1024)
	player.Process(buf, tracker.NullContext{})
	if e := energy(buf); e != 0 {
		t.Errorf("stopped player rendered energy %v, want silence", e)
	}
	player.Play()
	player.Process(buf, tracker.NullContext{})
	if e := energy(buf); e == 0 {
		t.Fatalf("playing player rendered silence")
	}
	r := lastReport(t, broker)
	if !r.Playing || r.Position != 1024 || r.Length != b.Snapshot.Length {
		t.Errorf("report = %+v, want playing at 1024 of %d", r, b.Snapshot.Length)
	}
	if r.Stats.Triggers != 1 {
		t.Errorf("triggers = %d, want 1", r.Stats.Triggers)
	}
}

func TestPlayerLoops(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	p.BPM = 240 * 4 // a bar lasts a quarter of a second
	b := compile(t, p)
	player.Publish(b.Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 4096)
	total := 0
	for total < 3*b.Snapshot.Length {
		player.Process(buf, tracker.NullContext{})
		total += len(buf)
		lastReport(t, broker)
	}
	player.Process(buf, tracker.NullContext{})
	processed := total + len(buf)
	r := lastReport(t, broker)
	if want := processed % b.Snapshot.Length; r.Position != want {
		t.Errorf("position = %d, want %d", r.Position, want)
	}
	var want uint64
	for _, c := range b.Snapshot.Cues {
		for f := c.Frame; c.On && f < processed; f += b.Snapshot.Length {
			want++
		}
	}
	if r.Stats.Triggers != want {
		t.Errorf("triggers = %d, want %d", r.Stats.Triggers, want)
	}
}

func TestPlayerStopMutes(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	player.Publish(compile(t, preset(t, "pluck")).Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 2048)
	player.Process(buf, tracker.NullContext{})
	if energy(buf) == 0 {
		t.Fatalf("playing player rendered silence")
	}
	player.Stop()
	player.Process(buf, tracker.NullContext{})
	if e := energy(buf); e != 0 {
		t.Errorf("stopped player rendered energy %v, want silence", e)
	}
	r := lastReport(t, broker)
	if r.Playing || r.Position != 0 || r.Stats.Active != 0 {
		t.Errorf("report after stop = %+v, want stopped at 0 with no active voices", r)
	}
}

func TestPlayerSwapKeepsPosition(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	first := compile(t, p)
	player.Publish(first.Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 1000)
	player.Process(buf, tracker.NullContext{})
	p.Master = 0.5
	second := *compile(t, p).Snapshot
	second.Cues = first.Snapshot.Cues
	player.Publish(&second)
	player.Process(buf, tracker.NullContext{})
	r := lastReport(t, broker)
	if r.Position != 2000 {
		t.Errorf("position = %d, want 2000", r.Position)
	}
	if r.Stats.Triggers != 1 || r.Stats.Active != 1 {
		t.Errorf("stats = %+v, want the held note carried over", r.Stats)
	}
}

func TestPlayerNewCuesReleaseNotes(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	player.Publish(compile(t, p).Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 1000)
	player.Process(buf, tracker.NullContext{})
	p.Track = "(_/0)"
	player.Publish(compile(t, p).Snapshot)
	player.Process(buf, tracker.NullContext{})
	r := lastReport(t, broker)
	if r.Position != 2000 {
		t.Errorf("position = %d, want 2000", r.Position)
	}
	if r.Stats.Releases != 1 || r.Stats.Active != 0 {
		t.Errorf("stats = %+v, want the note of the old track released", r.Stats)
	}
}

func TestPlayerParameterChangeIsHeard(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	b := compile(t, preset(t, "organ"))
	player.Publish(b.Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 1024)
	player.Process(buf, tracker.NullContext{})
	before := energy(buf)
	h, ok := b.Graph.Lookup(2) // the oscillator
	if !ok {
		t.Fatalf("oscillator not found")
	}
	b.Program.SetParam(h, 3, 0) // gain
	player.Process(buf, tracker.NullContext{})
	if after := energy(buf); before == 0 || after != 0 {
		t.Errorf("energy before %v after %v, want sound muted by the gain", before, after)
	}
}

func TestPlayerLiveNotes(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	p.Track = ""
	player.Publish(compile(t, p).Snapshot)
	buf := make(brainwash.AudioBuffer, 512)
	broker.ToPlayer <- tracker.NoteOnMsg{ID: -100, Freq: 440}
	player.Process(buf, tracker.NullContext{})
	if energy(buf) == 0 {
		t.Fatalf("live note rendered silence")
	}
	broker.ToPlayer <- tracker.NoteOffMsg{ID: -100}
	player.Process(buf, tracker.NullContext{})
	if r := lastReport(t, broker); r.Stats.Active != 0 {
		t.Errorf("active voices = %d after note off, want 0", r.Stats.Active)
	}
}

type midiEvents struct {
	events []tracker.MIDINoteEvent
	index  int
}

func (m *midiEvents) NextEvent(frame int) (tracker.MIDINoteEvent, bool) {
	if m.index >= len(m.events) {
		return tracker.MIDINoteEvent{}, false
	}
	m.index++
	return m.events[m.index-1], true
}

func (m *midiEvents) FinishBlock(frame int) {}

func TestPlayerMIDIIsSampleAccurate(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	p.Track = ""
	player.Publish(compile(t, p).Snapshot)
	buf := make(brainwash.AudioBuffer, 512)
	ctx := &midiEvents{events: []tracker.MIDINoteEvent{{Frame: 300, On: true, Note: 69, Velocity: 100}}}
	player.Process(buf, ctx)
	if e := energy(buf[:300]); e != 0 {
		t.Errorf("energy before the note = %v, want silence", e)
	}
	if e := energy(buf[300:]); e == 0 {
		t.Errorf("no sound after the note")
	}
}

func TestPlayerMIDILastKeyWins(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	p := preset(t, "organ")
	p.Track = ""
	player.Publish(compile(t, p).Snapshot)
	buf := make(brainwash.AudioBuffer, 256)
	ctx := &midiEvents{events: []tracker.MIDINoteEvent{
		{Frame: 0, On: true, Note: 60, Velocity: 100},
		{Frame: 10, On: true, Note: 64, Velocity: 100},
		{Frame: 20, On: false, Note: 64},
	}}
	player.Process(buf, ctx)
	r := lastReport(t, broker)
	if r.Stats.Triggers != 3 || r.Stats.Slides != 2 || r.Stats.Active != 1 {
		t.Errorf("stats = %+v, want one note sliding up and back", r.Stats)
	}
	ctx = &midiEvents{events: []tracker.MIDINoteEvent{{Frame: 0, On: false, Note: 60}}}
	player.Process(buf, ctx)
	if r := lastReport(t, broker); r.Stats.Active != 0 || r.Stats.Releases != 1 {
		t.Errorf("stats = %+v, want the note released", r.Stats)
	}
}

func TestPlayerSendsAudioToDetector(t *testing.T) {
	broker := tracker.NewBroker()
	player := tracker.NewPlayer(broker)
	player.Publish(compile(t, preset(t, "organ")).Snapshot)
	player.Play()
	buf := make(brainwash.AudioBuffer, 300)
	player.Process(buf, tracker.NullContext{})
	for {
		msg, ok := tracker.TimeoutReceive(broker.ToDetector, time.Second)
		if !ok {
			t.Fatalf("no audio sent to the detector")
		}
		if data, ok := msg.Data.(*brainwash.AudioBuffer); ok {
			if len(*data) != len(buf) || math.Abs(energy(*data)-energy(buf)) > 1e-9 {
				t.Errorf("detector got %d samples, want a copy of %d", len(*data), len(buf))
			}
			return
		}
	}
}
