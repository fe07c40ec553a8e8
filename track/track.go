// Package track compiles the rhythmic notation of a patch into note events.
//
// A track is a sequence of bars. Each bar splits its share of the loop into
// divisions proportionally to their weights; divisions nest, and a layer group
// plays several sequences at the same time:
//
//	(0/2/4/7)         four equally long notes
//	(0*/1)            the first note is twice as long
//	(0~1~2)           legato: no gate drop between the notes
//	(0<50>/1)         the boundary moves later by half of the shorter note
//	{0/4 % 7}         two layers played simultaneously
//	(0/(1/2)/_/-1+)   nesting, a rest and a sharpened note below the root
package track

import (
	"strconv"
	"strings"
)

type (
	// Track is the parsed rhythm tree: one section per bar.
	Track struct {
		Bars []Section
	}

	// Section is a node of the rhythm tree. Tied, NudgeBefore and NudgeAfter
	// describe the separator that follows the section in its parent; they are
	// zero for the last child.
	Section struct {
		Kind        SectionKind
		Weight      int // 1 + number of asterisks
		Degree      int
		Shift       int // -1, 0 or +1 semitones
		Tied        bool
		NudgeBefore int // percent, written before the separator: moves the boundary later
		NudgeAfter  int // percent, written after the separator: moves the boundary earlier
		Children    []Section
	}

	SectionKind int

	// NoteEvent is a flattened note. Times are in seconds from the start of
	// the loop. NudgeIn and NudgeOut tell how much the start and the end were
	// moved from the weighted boundaries by nudges.
	NoteEvent struct {
		Layer      int
		Start, End float64
		Degree     int
		Shift      int
		LegatoInto bool
		NudgeIn    float64
		NudgeOut   float64
	}
)

const (
	Rest SectionKind = iota
	Note
	Division
	Layers
)

// MaxNudge is the largest nudge, in percent of the shorter neighbour.
const MaxNudge = 100

func (k SectionKind) String() string {
	switch k {
	case Rest:
		return "rest"
	case Note:
		return "note"
	case Division:
		return "division"
	case Layers:
		return "layers"
	}
	return "SectionKind(" + strconv.Itoa(int(k)) + ")"
}

func (e NoteEvent) Duration() float64 { return e.End - e.Start }

// String formats the track back to notation. Parsing the result gives an
// equal tree.
func (t *Track) String() string {
	var b strings.Builder
	for i := range t.Bars {
		t.Bars[i].format(&b)
	}
	return b.String()
}

func (s *Section) String() string {
	var b strings.Builder
	s.format(&b)
	return b.String()
}

func (s *Section) format(b *strings.Builder) {
	switch s.Kind {
	case Rest:
		b.WriteByte('_')
	case Note:
		b.WriteString(strconv.Itoa(s.Degree))
		switch {
		case s.Shift > 0:
			b.WriteByte('+')
		case s.Shift < 0:
			b.WriteByte('-')
		}
	case Division:
		b.WriteByte('(')
		formatSequence(b, s.Children)
		b.WriteByte(')')
	case Layers:
		b.WriteByte('{')
		for i := range s.Children {
			if i > 0 {
				b.WriteString(" % ")
			}
			formatLayer(b, &s.Children[i])
		}
		b.WriteByte('}')
	}
	for i := 1; i < s.Weight; i++ {
		b.WriteByte('*')
	}
}

// formatLayer writes a layer of a group. Layers that are plain sequences are
// written without parentheses.
func formatLayer(b *strings.Builder, s *Section) {
	if s.Kind == Division && s.Weight <= 1 {
		formatSequence(b, s.Children)
		return
	}
	s.format(b)
}

func formatSequence(b *strings.Builder, children []Section) {
	for i := range children {
		c := &children[i]
		c.format(b)
		if i == len(children)-1 {
			break
		}
		if c.NudgeBefore > 0 {
			b.WriteString("<" + strconv.Itoa(c.NudgeBefore) + ">")
		}
		if c.Tied {
			b.WriteByte('~')
		} else {
			b.WriteByte('/')
		}
		if c.NudgeAfter > 0 {
			b.WriteString("<" + strconv.Itoa(c.NudgeAfter) + ">")
		}
	}
}
