package tracker

import (
	"math"
	"sort"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/track"
)

type (
	// Cue is a note on or off the sequencer fires when the loop reaches
	// Frame. The voice id of a cue is the layer of its note.
	Cue struct {
		Frame  int
		On     bool
		ID     int
		Freq   float32
		Legato bool // slide into the note instead of retriggering
	}
)

// BuildCues turns note events into sample accurate cues. The loop is length
// samples long; a note that ends at the end of the loop is released at frame
// length, before the loop wraps. Notes that round to zero samples are
// skipped. The cues are sorted by frame, with the offs before the ons of the
// same frame, so a voice is released before it is retriggered.
func BuildCues(events []track.NoteEvent, tr brainwash.Transport) (cues []Cue, length int) {
	length = toFrames(tr.LoopDuration())
	tied := map[int]bool{}
	for _, e := range events {
		start, end := toFrames(e.Start), toFrames(e.End)
		if end <= start {
			if tied[e.Layer] {
				cues = append(cues, Cue{Frame: start, ID: e.Layer})
				tied[e.Layer] = false
			}
			continue
		}
		cues = append(cues, Cue{
			Frame:  start,
			On:     true,
			ID:     e.Layer,
			Freq:   float32(tr.Frequency(e.Degree, e.Shift)),
			Legato: tied[e.Layer],
		})
		tied[e.Layer] = e.LegatoInto
		if !e.LegatoInto {
			cues = append(cues, Cue{Frame: end, ID: e.Layer})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool {
		if cues[i].Frame != cues[j].Frame {
			return cues[i].Frame < cues[j].Frame
		}
		return !cues[i].On && cues[j].On
	})
	return cues, length
}

func toFrames(seconds float64) int {
	return int(math.Round(seconds * brainwash.SampleRate))
}
