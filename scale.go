package brainwash

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type (
	// Scale lists the semitone offsets of one octave of a scale, starting
	// from 0 and strictly increasing below 12.
	Scale struct {
		Name  string
		Steps []int
	}

	// Transport is the timing and tuning configuration read by the track
	// compiler and the scale resolver. It changes only between compilations.
	Transport struct {
		BPM   float64
		Bars  int
		Scale Scale
		Root  int // MIDI note number of degree 0
	}
)

// BeatsPerBar is fixed; a bar always has four beats.
const BeatsPerBar = 4

// Scales lists the built-in scales. The first name of each entry is the
// canonical one written to .bw files.
var Scales = []Scale{
	{Name: "chromatic", Steps: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
	{Name: "major", Steps: []int{0, 2, 4, 5, 7, 9, 11}},
	{Name: "minor", Steps: []int{0, 2, 3, 5, 7, 8, 10}},
	{Name: "harmonic-minor", Steps: []int{0, 2, 3, 5, 7, 8, 11}},
	{Name: "melodic-minor", Steps: []int{0, 2, 3, 5, 7, 9, 11}},
	{Name: "dorian", Steps: []int{0, 2, 3, 5, 7, 9, 10}},
	{Name: "phrygian", Steps: []int{0, 1, 3, 5, 7, 8, 10}},
	{Name: "lydian", Steps: []int{0, 2, 4, 6, 7, 9, 11}},
	{Name: "mixolydian", Steps: []int{0, 2, 4, 5, 7, 9, 10}},
	{Name: "locrian", Steps: []int{0, 1, 3, 5, 6, 8, 10}},
	{Name: "major-pentatonic", Steps: []int{0, 2, 4, 7, 9}},
	{Name: "minor-pentatonic", Steps: []int{0, 3, 5, 7, 10}},
	{Name: "blues", Steps: []int{0, 3, 5, 6, 7, 10}},
	{Name: "whole-tone", Steps: []int{0, 2, 4, 6, 8, 10}},
}

var scaleAliases = map[string]string{
	"chrom": "chromatic",
	"maj":   "major",
	"min":   "minor",
	"aeolian": "minor",
	"ionian":  "major",
}

// ScaleByName finds a built-in scale by its name or a short alias.
func ScaleByName(name string) (Scale, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := scaleAliases[n]; ok {
		n = alias
	}
	for _, s := range Scales {
		if s.Name == n {
			return s, nil
		}
	}
	return Scale{}, fmt.Errorf("unknown scale %q", name)
}

func (s Scale) Len() int { return len(s.Steps) }

// Degree splits a signed scale degree into an index within the scale and an
// octave, using floored division so that negative degrees land in the octaves
// below: for a seven note scale, -1 is index 6 of octave -1.
func (s Scale) Degree(degree int) (index, octave int) {
	l := len(s.Steps)
	if l == 0 {
		return 0, 0
	}
	octave = degree / l
	index = degree % l
	if index < 0 {
		index += l
		octave--
	}
	return index, octave
}

// Note returns the MIDI note number of a degree with a chromatic shift, with
// degree 0 at root.
func (s Scale) Note(root, degree, shift int) int {
	if len(s.Steps) == 0 {
		return root + shift
	}
	index, octave := s.Degree(degree)
	return root + s.Steps[index] + 12*octave + shift
}

// Resolve turns a scale degree into a frequency in Hz.
func Resolve(s Scale, root, degree, shift int) float64 {
	return NoteFrequency(float64(s.Note(root, degree, shift)))
}

// NoteFrequency converts a (possibly fractional) MIDI note number to Hz, with
// A4 = note 69 = 440 Hz.
func NoteFrequency(note float64) float64 {
	return 440 * math.Exp2((note-69)/12)
}

var noteOffsets = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

var noteNames = [...]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// ParseNote parses a note name such as "C4", "F#3", "Db5" or "A-1" into a MIDI
// note number, C4 being 60.
func ParseNote(s string) (int, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid note name %q", s)
	}
	offset, ok := noteOffsets[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("invalid note name %q", s)
	}
	rest := s[1:]
	switch rest[0] {
	case '#':
		offset++
		rest = rest[1:]
	case 'b':
		offset--
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("invalid octave in note name %q: %w", s, err)
	}
	return (octave+1)*12 + offset, nil
}

// NoteName formats a MIDI note number, e.g. 61 becomes "C#4".
func NoteName(note int) string {
	octave := note/12 - 1
	i := note % 12
	if i < 0 {
		i += 12
		octave--
	}
	return noteNames[i] + strconv.Itoa(octave)
}

// BarDuration is the length of one bar in seconds.
func (t Transport) BarDuration() float64 {
	return BeatsPerBar * 60 / t.BPM
}

// LoopDuration is the length of the whole track loop in seconds.
func (t Transport) LoopDuration() float64 {
	return float64(t.Bars) * t.BarDuration()
}

// Frequency resolves a degree with the transport's scale and root.
func (t Transport) Frequency(degree, shift int) float64 {
	return Resolve(t.Scale, t.Root, degree, shift)
}
