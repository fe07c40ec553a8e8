package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/brainwash-synth/brainwash"
)

// RejectedEdge is a connection the layout implies but the graph refused, for
// example because it would close a cycle without a delay in it.
type RejectedEdge struct {
	Src, Dst int // module ids
	DstPort  int
	Err      error
}

func (r RejectedEdge) Error() string {
	return fmt.Sprintf("module %d -> module %d port %d: %v", r.Src, r.Dst, r.DstPort, r.Err)
}

func (r RejectedEdge) Unwrap() error { return r.Err }

var ErrOverlap = errors.New("modules overlap")

// FromPatch builds the graph of a patch. Nodes are added in ascending module
// id, so handles follow ids. Connections come from the grid: each bottom
// output is traced down its column and each right output along its row, up to
// the first cell covered by another module. If the trace enters that module on
// its input side, the output connects to the port under the trace.
//
// Edges the graph refuses do not fail the build; they are returned so the
// caller can show them. Overlapping modules are an error.
func FromPatch(p *brainwash.Patch) (*Graph, []RejectedEdge, error) {
	modules := make([]*brainwash.Module, len(p.Modules))
	for i := range p.Modules {
		modules[i] = &p.Modules[i]
	}
	slices.SortFunc(modules, func(a, b *brainwash.Module) int { return cmp.Compare(a.ID, b.ID) })
	g := New()
	grid := make(map[Position]int, len(modules))
	var maxX, maxY int
	for i, m := range modules {
		h, err := g.AddNode(m.Kind, m.Params, Position{m.X, m.Y})
		if err != nil {
			return nil, nil, fmt.Errorf("module %d: %w", m.ID, err)
		}
		n := &g.nodes[h]
		n.ID = m.ID
		n.Orientation = m.Orientation
		n.Ports = m.Ports
		n.Env = slices.Clone(m.Env)
		for dx := 0; dx < m.Width(); dx++ {
			for dy := 0; dy < m.Height(); dy++ {
				c := Position{m.X + dx, m.Y + dy}
				if j, ok := grid[c]; ok {
					return nil, nil, fmt.Errorf("%w: module %d and module %d at (%d,%d)", ErrOverlap, modules[j].ID, m.ID, c.X, c.Y)
				}
				grid[c] = i
			}
		}
		maxX, maxY = max(maxX, m.X+m.Width()), max(maxY, m.Y+m.Height())
	}
	var rejected []RejectedEdge
	connect := func(src int, srcPort int, dst int, dstPort int) {
		if err := g.Connect(Handle(src), srcPort, Handle(dst), dstPort); err != nil {
			rejected = append(rejected, RejectedEdge{Src: modules[src].ID, Dst: modules[dst].ID, DstPort: dstPort, Err: err})
		}
	}
	for i, m := range modules {
		if m.HasOutputBottom() {
			for y := m.Y + m.Height(); y < maxY; y++ {
				j, ok := grid[Position{m.X, y}]
				if !ok {
					continue
				}
				t := modules[j]
				if y == t.Y && t.HasInputTop() {
					if port := topPort(t, m.X-t.X); t.IsPortOpen(port) {
						connect(i, 0, j, port)
					}
				}
				break
			}
		}
		if m.HasOutputRight() {
			srcPort := 0
			if m.Kind == brainwash.LSplit || m.Kind == brainwash.TSplit {
				srcPort = 1
			}
			for x := m.X + m.Width(); x < maxX; x++ {
				j, ok := grid[Position{x, m.Y}]
				if !ok {
					continue
				}
				t := modules[j]
				if x == t.X && t.HasInputLeft() {
					if port := leftPort(t, m.Y-t.Y); t.IsPortOpen(port) {
						connect(i, srcPort, j, port)
					}
				}
				break
			}
		}
	}
	return g, rejected, nil
}

// topPort is the port a trace coming down column offset dx enters. Joins take
// their top input on port 1.
func topPort(m *brainwash.Module, dx int) int {
	switch m.Kind {
	case brainwash.RJoin, brainwash.DJoin:
		return 1
	}
	return dx
}

func leftPort(m *brainwash.Module, dy int) int {
	return dy
}

// Lookup finds the node built from the module with the given id.
func (g *Graph) Lookup(id int) (Handle, bool) {
	for i := range g.nodes {
		if !g.nodes[i].removed && g.nodes[i].ID == id {
			return Handle(i), true
		}
	}
	return 0, false
}
