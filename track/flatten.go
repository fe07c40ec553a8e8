package track

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brainwash-synth/brainwash"
)

var ErrTransport = errors.New("invalid transport")

type (
	flattener struct {
		events []NoteEvent
		layers map[layerKey]int
	}

	// layerKey identifies the k-th layer of a group nested depth groups deep
	// inside the given parent layer. Groups sharing a key never overlap in
	// time, so their layers continue the same event stream.
	layerKey struct {
		parent, depth, k int
	}

	span struct {
		start, end       float64
		nudgeIn, nudgeOut float64
		tie               bool
	}
)

// Flatten turns the track into note events. The loop lasts tr.Bars bars of
// four beats; the bars of the track split it equally. The events are sorted
// by start time, then by layer. Within a layer, events never overlap, and a
// legato event ends exactly where the next one starts.
func Flatten(t *Track, tr brainwash.Transport) ([]NoteEvent, error) {
	if tr.BPM <= 0 || tr.Bars <= 0 {
		return nil, fmt.Errorf("%w: bpm %v, bars %v", ErrTransport, tr.BPM, tr.Bars)
	}
	loop := tr.LoopDuration()
	f := &flattener{layers: map[layerKey]int{}}
	n := len(t.Bars)
	for i := range t.Bars {
		start := loop * float64(i) / float64(n)
		end := loop * float64(i+1) / float64(n)
		if i == n-1 {
			end = loop
		}
		f.section(&t.Bars[i], 0, 0, span{start: start, end: end})
	}
	sort.SliceStable(f.events, func(i, j int) bool {
		a, b := &f.events[i], &f.events[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Layer < b.Layer
	})
	f.untieDangling()
	return f.events, nil
}

// NumLayers returns the number of distinct layers in the events.
func NumLayers(events []NoteEvent) int {
	n := 0
	for _, e := range events {
		n = max(n, e.Layer+1)
	}
	return n
}

func (f *flattener) section(s *Section, layer, depth int, sp span) {
	switch s.Kind {
	case Note:
		f.events = append(f.events, NoteEvent{
			Layer:      layer,
			Start:      sp.start,
			End:        sp.end,
			Degree:     s.Degree,
			Shift:      s.Shift,
			LegatoInto: sp.tie,
			NudgeIn:    sp.nudgeIn,
			NudgeOut:   sp.nudgeOut,
		})
	case Division:
		f.divide(s.Children, layer, depth, sp)
	case Layers:
		for k := range s.Children {
			l := layer
			if k > 0 {
				l = f.layer(layerKey{parent: layer, depth: depth + 1, k: k})
			}
			f.section(&s.Children[k], l, depth+1, sp)
		}
	}
}

// divide splits the span between the children by weight. The boundaries are
// computed from cumulative weights, so the children always add up to the
// span. A nudge moves a boundary by a percentage of the shorter of the two
// neighbours; boundaries never cross, so no duration becomes negative.
func (f *flattener) divide(children []Section, layer, depth int, sp span) {
	n := len(children)
	if n == 0 {
		return
	}
	total := 0
	for i := range children {
		total += max(children[i].Weight, 1)
	}
	length := sp.end - sp.start
	nominal := make([]float64, n+1)
	cum := 0
	for i := range children {
		nominal[i] = sp.start + length*float64(cum)/float64(total)
		cum += max(children[i].Weight, 1)
	}
	nominal[0], nominal[n] = sp.start, sp.end
	bounds := make([]float64, n+1)
	bounds[0], bounds[n] = sp.start, sp.end
	for i := 1; i < n; i++ {
		c := &children[i-1]
		left, right := nominal[i]-nominal[i-1], nominal[i+1]-nominal[i]
		shift := float64(c.NudgeBefore-c.NudgeAfter) / 100 * min(left, right)
		bounds[i] = min(max(nominal[i]+shift, bounds[i-1]), sp.end)
	}
	for i := range children {
		child := span{start: bounds[i], end: bounds[i+1], tie: children[i].Tied}
		child.nudgeIn = bounds[i] - nominal[i]
		child.nudgeOut = bounds[i+1] - nominal[i+1]
		if i == 0 {
			child.nudgeIn = sp.nudgeIn
		}
		if i == n-1 {
			child.nudgeOut, child.tie = sp.nudgeOut, sp.tie
		}
		f.section(&children[i], layer, depth, child)
	}
}

func (f *flattener) layer(key layerKey) int {
	if l, ok := f.layers[key]; ok {
		return l
	}
	l := len(f.layers) + 1
	f.layers[key] = l
	return l
}

// untieDangling clears the legato flag of events that are not followed in
// their layer by an event starting exactly where they end, e.g. ties into a
// rest.
func (f *flattener) untieDangling() {
	starts := make(map[[2]float64]bool, len(f.events))
	for _, e := range f.events {
		starts[[2]float64{float64(e.Layer), e.Start}] = true
	}
	for i := range f.events {
		e := &f.events[i]
		if e.LegatoInto && !starts[[2]float64{float64(e.Layer), e.End}] {
			e.LegatoInto = false
		}
	}
}
