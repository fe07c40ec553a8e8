// Package brainwash holds the data model of the brainwash synthesizer: the
// module kinds a patch is built from, the patch itself with its .bw text
// format, the scale resolver that turns scale degrees into frequencies, and
// the audio buffer types shared by the renderers and the audio outputs.
package brainwash

import (
	"fmt"
	"slices"
)

type (
	// Patch is everything stored in a .bw file: the transport settings, the
	// modules placed on the grid, and the track notation. Connections between
	// modules are not stored; they follow from the module positions.
	Patch struct {
		BPM     float64  `yaml:"bpm"`
		Bars    int      `yaml:"bars"`
		Scale   string   `yaml:"scale"`
		Root    string   `yaml:"root"`
		Master  float32  `yaml:"master"`
		Modules []Module `yaml:"modules,omitempty"`
		Track   string   `yaml:"track,omitempty"`
	}

	// Module is one module placed on the grid.
	Module struct {
		ID          int         `yaml:"id"`
		Kind        ModuleKind  `yaml:"kind"`
		X           int         `yaml:"x"`
		Y           int         `yaml:"y"`
		Orientation Orientation `yaml:"orientation,omitempty"`
		Params      Params      `yaml:"params,flow"`
		Ports       uint8       `yaml:"ports"`
		Env         []EnvPoint  `yaml:"env,omitempty"`
	}

	// EnvPoint is a breakpoint of an Env module. Time is the phase in [0, 1]
	// and Value is in [-1, 1]. Curve points ease into and out of the segment
	// instead of interpolating linearly.
	EnvPoint struct {
		Time  float32 `yaml:"time"`
		Value float32 `yaml:"value"`
		Curve bool    `yaml:"curve,omitempty"`
	}
)

const (
	DefaultBPM    = 120
	DefaultBars   = 1
	DefaultScale  = "chromatic"
	DefaultRoot   = "C4"
	DefaultMaster = 1
)

// DefaultTrack is the notation a new patch starts with.
const DefaultTrack = "(0/2/4/7)"

// NewPatch returns an empty patch with default transport settings.
func NewPatch() Patch {
	return Patch{
		BPM:    DefaultBPM,
		Bars:   DefaultBars,
		Scale:  DefaultScale,
		Root:   DefaultRoot,
		Master: DefaultMaster,
	}
}

// NewModule returns a module of the given kind with default parameters and
// all ports open.
func NewModule(id int, kind ModuleKind, x, y int) Module {
	return Module{ID: id, Kind: kind, X: x, Y: y, Params: kind.DefaultParams(), Ports: AllPortsOpen}
}

// Copy makes a deep copy of a patch.
func (p *Patch) Copy() Patch {
	ret := *p
	ret.Modules = make([]Module, len(p.Modules))
	for i, m := range p.Modules {
		ret.Modules[i] = m.Copy()
	}
	return ret
}

// Copy makes a deep copy of a module.
func (m *Module) Copy() Module {
	ret := *m
	ret.Env = slices.Clone(m.Env)
	return ret
}

// Module returns the module with the given ID.
func (p *Patch) Module(id int) (*Module, error) {
	for i := range p.Modules {
		if p.Modules[i].ID == id {
			return &p.Modules[i], nil
		}
	}
	return nil, fmt.Errorf("could not find a module with id %v", id)
}

// NextID returns an ID not used by any module of the patch.
func (p *Patch) NextID() int {
	id := 0
	for _, m := range p.Modules {
		id = max(id, m.ID+1)
	}
	return id
}

// Transport returns the timing and tuning settings of the patch, resolving the
// scale and root names.
func (p *Patch) Transport() (Transport, error) {
	scale, err := ScaleByName(p.Scale)
	if err != nil {
		return Transport{}, err
	}
	root, err := ParseNote(p.Root)
	if err != nil {
		return Transport{}, err
	}
	if p.BPM <= 0 {
		return Transport{}, fmt.Errorf("bpm must be positive, got %v", p.BPM)
	}
	if p.Bars <= 0 {
		return Transport{}, fmt.Errorf("bars must be positive, got %v", p.Bars)
	}
	return Transport{BPM: p.BPM, Bars: p.Bars, Scale: scale, Root: root}, nil
}

// Width is the number of grid cells the module covers horizontally.
func (m *Module) Width() int {
	if m.Kind.IsRouting() || m.Orientation == Horizontal {
		return 1
	}
	return max(m.Kind.NumPorts(), 1)
}

// Height is the number of grid cells the module covers vertically.
func (m *Module) Height() int {
	if m.Kind.IsRouting() || m.Orientation == Vertical {
		return 1
	}
	return max(m.Kind.NumPorts(), 1)
}

// HasInputTop tells if the module takes inputs from the cells above it.
func (m *Module) HasInputTop() bool {
	if m.Kind.NumPorts() == 0 {
		return false
	}
	switch m.Kind {
	case LSplit, TurnRD:
		return false
	case TSplit, TurnDR, RJoin, DJoin:
		return true
	}
	return m.Orientation == Vertical
}

// HasInputLeft tells if the module takes inputs from the cells left of it.
func (m *Module) HasInputLeft() bool {
	if m.Kind.NumPorts() == 0 {
		return false
	}
	switch m.Kind {
	case LSplit, TurnRD, RJoin, DJoin:
		return true
	case TSplit, TurnDR:
		return false
	}
	return m.Orientation == Horizontal
}

// HasOutputBottom tells if the module sends a signal down its column.
func (m *Module) HasOutputBottom() bool {
	if m.Kind.NumOutputs() == 0 {
		return false
	}
	switch m.Kind {
	case LSplit, TSplit, TurnRD, DJoin:
		return true
	case RJoin, TurnDR:
		return false
	}
	return m.Orientation == Vertical
}

// HasOutputRight tells if the module sends a signal right along its row.
func (m *Module) HasOutputRight() bool {
	if m.Kind.NumOutputs() == 0 {
		return false
	}
	switch m.Kind {
	case LSplit, TSplit, TurnDR, RJoin:
		return true
	case DJoin, TurnRD:
		return false
	}
	return m.Orientation == Horizontal
}

// IsPortOpen tells if the port accepts a connection. Routing ports are always
// open; other ports follow the port-open bitmask.
func (m *Module) IsPortOpen(port int) bool {
	if port < 0 || port >= m.Kind.NumPorts() {
		return false
	}
	if m.Kind.IsRouting() {
		return true
	}
	return m.Ports&(1<<port) != 0
}
