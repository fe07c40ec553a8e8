package tracker_test

import (
	"testing"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/track"
	"github.com/brainwash-synth/brainwash/tracker"
)

func transport(t *testing.T) brainwash.Transport {
	t.Helper()
	scale, err := brainwash.ScaleByName("chromatic")
	if err != nil {
		t.Fatalf("ScaleByName failed: %v", err)
	}
	return brainwash.Transport{BPM: 120, Bars: 1, Scale: scale, Root: 60}
}

func cues(t *testing.T, text string) ([]tracker.Cue, int) {
	t.Helper()
	tr := transport(t)
	parsed, err := track.Parse(text)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", text, err)
	}
	events, err := track.Flatten(parsed, tr)
	if err != nil {
		t.Fatalf("Flatten(%q) failed: %v", text, err)
	}
	return tracker.BuildCues(events, tr)
}

func TestBuildCues(t *testing.T) {
	got, length := cues(t, "(0/1)")
	if length != 88200 {
		t.Fatalf("loop length = %d, want 88200", length)
	}
	want := []tracker.Cue{
		{Frame: 0, On: true, ID: 0, Freq: 261.62558},
		{Frame: 44100, ID: 0},
		{Frame: 44100, On: true, ID: 0, Freq: 277.18265},
		{Frame: 88200, ID: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d cues, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Frame != w.Frame || g.On != w.On || g.ID != w.ID || g.Legato != w.Legato {
			t.Errorf("cue %d = %+v, want %+v", i, g, w)
		}
		if w.On && (g.Freq < w.Freq-0.001 || g.Freq > w.Freq+0.001) {
			t.Errorf("cue %d frequency = %v, want %v", i, g.Freq, w.Freq)
		}
	}
}

func TestBuildCuesLegatoSkipsRelease(t *testing.T) {
	got, _ := cues(t, "(0~1)")
	if len(got) != 3 {
		t.Fatalf("got %d cues, want 3: %+v", len(got), got)
	}
	if !got[0].On || got[0].Legato {
		t.Errorf("first cue = %+v, want a plain note on", got[0])
	}
	if !got[1].On || !got[1].Legato || got[1].Frame != 44100 {
		t.Errorf("second cue = %+v, want a legato note on at 44100", got[1])
	}
	if got[2].On || got[2].Frame != 88200 {
		t.Errorf("third cue = %+v, want a note off at the loop end", got[2])
	}
}

func TestBuildCuesLayersUseOwnIDs(t *testing.T) {
	got, _ := cues(t, "{0 % 4 % 7}")
	ids := map[int]bool{}
	for _, c := range got {
		if c.On {
			ids[c.ID] = true
		}
	}
	if len(ids) != 3 {
		t.Errorf("note ons use ids %v, want three distinct ids", ids)
	}
}

func TestBuildCuesSorted(t *testing.T) {
	got, _ := cues(t, "{0/1<30>/2 % 3*/_/4~5}(6/7)")
	for i := 1; i < len(got); i++ {
		a, b := got[i-1], got[i]
		if a.Frame > b.Frame {
			t.Fatalf("cue %d at %d after cue %d at %d", i, b.Frame, i-1, a.Frame)
		}
		if a.Frame == b.Frame && a.On && !b.On {
			t.Errorf("note on before note off at frame %d", a.Frame)
		}
	}
}

func TestBuildCuesEmpty(t *testing.T) {
	got, length := tracker.BuildCues(nil, transport(t))
	if len(got) != 0 || length != 88200 {
		t.Errorf("BuildCues(nil) = %v, %d; want no cues and a loop of 88200", got, length)
	}
}
