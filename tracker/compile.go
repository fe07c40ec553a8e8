package tracker

import (
	"fmt"
	"strings"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/graph"
	"github.com/brainwash-synth/brainwash/track"
	"github.com/brainwash-synth/brainwash/vm"
)

type (
	// Build is a patch compiled for playing: the module graph traced from
	// the grid, the flattened track and the snapshot for the player.
	Build struct {
		Graph    *graph.Graph
		Program  *graph.Program
		Rejected []graph.RejectedEdge
		Track    *track.Track
		Events   []track.NoteEvent
		Snapshot *Snapshot
	}

	// SynthOptions are the settings of the voice pool a patch is played with.
	SynthOptions struct {
		Voices int
		Mix    vm.Options
	}

	compiledTrack struct {
		track  *track.Track
		events []track.NoteEvent
		cues   []Cue
		length int
		layers int
	}
)

const DefaultVoices = 8

func DefaultSynthOptions() SynthOptions {
	return SynthOptions{Voices: DefaultVoices, Mix: vm.DefaultOptions()}
}

// Compile builds everything needed to play the patch. An empty track plays
// no notes, leaving the voices to live input. Edges the layout
// implies but the graph refuses are reported in Rejected, not as an error.
func Compile(p *brainwash.Patch, opts SynthOptions) (*Build, error) {
	g, prog, rejected, err := compileGraph(p)
	if err != nil {
		return nil, err
	}
	t, err := compileTrack(p)
	if err != nil {
		return nil, err
	}
	synth, err := newSynth(prog, p, opts)
	if err != nil {
		return nil, err
	}
	return &Build{
		Graph:    g,
		Program:  prog,
		Rejected: rejected,
		Track:    t.track,
		Events:   t.events,
		Snapshot: &Snapshot{Synth: synth, Cues: t.cues, Length: t.length, Layers: t.layers},
	}, nil
}

func compileGraph(p *brainwash.Patch) (*graph.Graph, *graph.Program, []graph.RejectedEdge, error) {
	g, rejected, err := graph.FromPatch(p)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("graph: %w", err)
	}
	return g, g.Compile(), rejected, nil
}

func compileTrack(p *brainwash.Patch) (*compiledTrack, error) {
	tr, err := p.Transport()
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	if strings.TrimSpace(p.Track) == "" {
		_, length := BuildCues(nil, tr)
		return &compiledTrack{track: &track.Track{}, length: length}, nil
	}
	t, err := track.Parse(p.Track)
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	events, err := track.Flatten(t, tr)
	if err != nil {
		return nil, fmt.Errorf("track: %w", err)
	}
	cues, length := BuildCues(events, tr)
	return &compiledTrack{track: t, events: events, cues: cues, length: length, layers: track.NumLayers(events)}, nil
}

func newSynth(prog *graph.Program, p *brainwash.Patch, opts SynthOptions) (*vm.Synth, error) {
	mix := opts.Mix
	mix.Master *= p.Master
	synth, err := vm.New(prog, opts.Voices, mix)
	if err != nil {
		return nil, fmt.Errorf("voices: %w", err)
	}
	return synth, nil
}
