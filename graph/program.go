package graph

import (
	"math"
	"slices"
	"sync/atomic"

	"github.com/brainwash-synth/brainwash"
)

type (
	// Program is an immutable, compiled snapshot of a Graph: the nodes packed
	// densely in evaluation order with their input sources resolved. Only the
	// parameter values can change after compilation, through atomic stores
	// with SetParam, so a running Instance sees either the old or the new
	// value of each parameter but never a torn one.
	Program struct {
		nodes   []programNode
		params  []atomic.Uint32 // float32 bits, MaxParams per node
		index   map[Handle]int
		out     int // dense index of the designated Out node, -1 if none
		envs    []int
		adsrs   []int
		handles []Handle
	}

	programNode struct {
		kind     brainwash.ModuleKind
		numPorts int
		delayed  bool
		ports    [brainwash.MaxParams]source
		env      []brainwash.EnvPoint
	}

	// source of one input port: a node and its output port, or the stored
	// parameter if node < 0. Routing ports have no parameter and read silence.
	source struct {
		node  int
		port  int
		param int
	}

	// Frame is a stereo sample. Mono signals carry the same value in both
	// channels.
	Frame struct {
		L, R float32
	}
)

// MaxOutputs is the most outputs any module kind has.
const MaxOutputs = 2

// Compile packs the graph into a Program. The nodes are stored in the cached
// evaluation order, so evaluating a Program is a single pass over a slice.
func (g *Graph) Compile() *Program {
	p := &Program{
		nodes:   make([]programNode, len(g.order)),
		params:  make([]atomic.Uint32, len(g.order)*brainwash.MaxParams),
		index:   make(map[Handle]int, len(g.order)),
		handles: slices.Clone(g.order),
		out:     -1,
	}
	for i, h := range g.order {
		p.index[h] = i
	}
	for i, h := range g.order {
		n := &g.nodes[h]
		pn := &p.nodes[i]
		pn.kind = n.Kind
		pn.numPorts = n.Kind.NumPorts()
		pn.delayed = n.Kind.DelayBearing()
		pn.env = slices.Clone(n.Env)
		for port := range pn.ports {
			param, ok := n.Kind.PortParam(port)
			if !ok {
				param = -1
			}
			pn.ports[port] = source{node: -1, param: param}
		}
		for j := range n.Kind.Type().Params {
			p.params[i*brainwash.MaxParams+j].Store(math.Float32bits(n.Params[j]))
		}
		switch n.Kind {
		case brainwash.Out:
			if p.out < 0 || h < p.handles[p.out] {
				p.out = i
			}
		case brainwash.ADSR:
			p.adsrs = append(p.adsrs, i)
		case brainwash.Env:
			p.envs = append(p.envs, i)
		}
	}
	for _, e := range g.edges {
		d := &p.nodes[p.index[e.Dst]]
		if e.DstPort < len(d.ports) {
			d.ports[e.DstPort].node = p.index[e.Src]
			d.ports[e.DstPort].port = e.SrcPort
		}
	}
	return p
}

func (p *Program) NumNodes() int { return len(p.nodes) }

// Handles lists the graph handles of the nodes in evaluation order.
func (p *Program) Handles() []Handle { return slices.Clone(p.handles) }

// HasOutput tells if the program has an Out node; without one it is silent.
func (p *Program) HasOutput() bool { return p.out >= 0 }

// NumADSRs tells how many envelopes decide when a released voice is done.
func (p *Program) NumADSRs() int { return len(p.adsrs) }

// SetParam atomically changes a parameter of a compiled node. It is safe to
// call while instances of the program are being evaluated. It reports false if
// the handle is not part of the program or the index is out of range.
func (p *Program) SetParam(h Handle, index int, value float32) bool {
	i, ok := p.paramIndex(h, index)
	if !ok {
		return false
	}
	p.params[i*brainwash.MaxParams+index].Store(math.Float32bits(value))
	return true
}

// Param returns the current value of a parameter.
func (p *Program) Param(h Handle, index int) (float32, bool) {
	i, ok := p.paramIndex(h, index)
	if !ok {
		return 0, false
	}
	return p.param(i, index), true
}

// paramIndex returns the node index of h if its kind has the parameter.
func (p *Program) paramIndex(h Handle, index int) (int, bool) {
	i, ok := p.index[h]
	if !ok || index < 0 || index >= len(p.nodes[i].kind.Type().Params) {
		return 0, false
	}
	return i, true
}

func (p *Program) param(node, index int) float32 {
	return math.Float32frombits(p.params[node*brainwash.MaxParams+index].Load())
}

// SameTopology tells if two programs have the same nodes in the same order
// with the same wiring, so the DSP state of an instance of one is meaningful
// for the other.
func (p *Program) SameTopology(o *Program) bool {
	if p == nil || o == nil || len(p.nodes) != len(o.nodes) || !slices.Equal(p.handles, o.handles) {
		return false
	}
	for i := range p.nodes {
		a, b := &p.nodes[i], &o.nodes[i]
		if a.kind != b.kind || a.ports != b.ports {
			return false
		}
	}
	return true
}

func (f Frame) Mid() float32 { return (f.L + f.R) / 2 }

func (f Frame) Add(o Frame) Frame { return Frame{f.L + o.L, f.R + o.R} }

func (f Frame) Mul(o Frame) Frame { return Frame{f.L * o.L, f.R * o.R} }

func (f Frame) Scale(g float32) Frame { return Frame{f.L * g, f.R * g} }

func mono(v float32) Frame { return Frame{v, v} }
