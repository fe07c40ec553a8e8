// Package graph holds the module graph: typed nodes in an arena, edges from
// output ports to input ports, and a cached evaluation order that is a
// topological order of every edge that does not end in a delay-bearing node.
//
// A Graph is only ever mutated by the control side. The audio side never
// sees it; it runs Instances of an immutable Program compiled from the graph.
package graph

import (
	"container/heap"
	"fmt"
	"slices"

	"github.com/brainwash-synth/brainwash"
)

type (
	// Handle is the stable index of a node in the arena. Handles of removed
	// nodes are never handed out again.
	Handle int

	Position struct {
		X, Y int
	}

	Node struct {
		ID          int // the module id in the patch, if built from one
		Kind        brainwash.ModuleKind
		Params      brainwash.Params
		Position    Position
		Orientation brainwash.Orientation
		Ports       uint8
		Env         []brainwash.EnvPoint
		removed     bool
	}

	// Edge connects an output port of Src to an input port of Dst.
	Edge struct {
		Src     Handle
		SrcPort int
		Dst     Handle
		DstPort int
	}

	Graph struct {
		nodes []Node
		edges []Edge
		order []Handle
	}
)

func New() *Graph {
	return &Graph{}
}

// AddNode appends a node with all ports open. It fails only for invalid kinds.
func (g *Graph) AddNode(kind brainwash.ModuleKind, params brainwash.Params, pos Position) (Handle, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %v", brainwash.ErrUnknownModuleKind, kind)
	}
	h := Handle(len(g.nodes))
	g.nodes = append(g.nodes, Node{ID: int(h), Kind: kind, Params: params, Position: pos, Ports: brainwash.AllPortsOpen})
	g.RecomputeOrder()
	return h, nil
}

// Node returns a copy of the node.
func (g *Graph) Node(h Handle) (Node, error) {
	n, err := g.node(h)
	if err != nil {
		return Node{}, err
	}
	ret := *n
	ret.Env = slices.Clone(n.Env)
	return ret, nil
}

func (g *Graph) node(h Handle) (*Node, error) {
	if h < 0 || int(h) >= len(g.nodes) || g.nodes[h].removed {
		return nil, fmt.Errorf("%w: %d", brainwash.ErrUnknownNode, h)
	}
	return &g.nodes[h], nil
}

// Handles lists the live nodes in ascending order.
func (g *Graph) Handles() []Handle {
	ret := make([]Handle, 0, len(g.nodes))
	for i := range g.nodes {
		if !g.nodes[i].removed {
			ret = append(ret, Handle(i))
		}
	}
	return ret
}

func (g *Graph) NumNodes() int {
	n := 0
	for i := range g.nodes {
		if !g.nodes[i].removed {
			n++
		}
	}
	return n
}

func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Order returns the cached evaluation order.
func (g *Graph) Order() []Handle { return slices.Clone(g.order) }

// Source returns the edge feeding an input port, if any.
func (g *Graph) Source(dst Handle, dstPort int) (Edge, bool) {
	for _, e := range g.edges {
		if e.Dst == dst && e.DstPort == dstPort {
			return e, true
		}
	}
	return Edge{}, false
}

// Connect adds an edge. The graph is left unchanged if the edge is rejected.
// An edge into a node that is not delay-bearing must not close a cycle.
func (g *Graph) Connect(src Handle, srcPort int, dst Handle, dstPort int) error {
	s, err := g.node(src)
	if err != nil {
		return err
	}
	d, err := g.node(dst)
	if err != nil {
		return err
	}
	if srcPort < 0 || srcPort >= s.Kind.NumOutputs() {
		return fmt.Errorf("%w: %v has no output %d", brainwash.ErrPortIndexOutOfRange, s.Kind, srcPort)
	}
	if dstPort < 0 || dstPort >= d.Kind.NumPorts() {
		return fmt.Errorf("%w: %v has no input %d", brainwash.ErrPortIndexOutOfRange, d.Kind, dstPort)
	}
	if !portOpen(d, dstPort) {
		return fmt.Errorf("%w: input %d of node %d", brainwash.ErrPortClosed, dstPort, dst)
	}
	if e, ok := g.Source(dst, dstPort); ok {
		return fmt.Errorf("%w: input %d of node %d is fed by node %d", brainwash.ErrPortAlreadyOccupied, dstPort, dst, e.Src)
	}
	g.edges = append(g.edges, Edge{Src: src, SrcPort: srcPort, Dst: dst, DstPort: dstPort})
	order, ok := g.sort()
	if !ok {
		g.edges = g.edges[:len(g.edges)-1]
		return fmt.Errorf("%w: node %d -> node %d", brainwash.ErrWouldCreateInvalidCycle, src, dst)
	}
	g.order = order
	return nil
}

// Disconnect removes the edge feeding the input port. It is a no-op if there
// is none.
func (g *Graph) Disconnect(dst Handle, dstPort int) {
	n := len(g.edges)
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool { return e.Dst == dst && e.DstPort == dstPort })
	if len(g.edges) != n {
		g.RecomputeOrder()
	}
}

// RemoveNode removes the node and every edge touching it.
func (g *Graph) RemoveNode(h Handle) error {
	n, err := g.node(h)
	if err != nil {
		return err
	}
	n.removed = true
	n.Env = nil
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool { return e.Src == h || e.Dst == h })
	return g.RecomputeOrder()
}

// SetParam changes a stored parameter. It does not touch the topology.
func (g *Graph) SetParam(h Handle, index int, value float32) error {
	n, err := g.node(h)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(n.Kind.Type().Params) {
		return fmt.Errorf("%w: %v has no parameter %d", brainwash.ErrPortIndexOutOfRange, n.Kind, index)
	}
	n.Params[index] = value
	return nil
}

// SetPorts changes the port-open bitmask. Edges into ports that get closed are
// dropped.
func (g *Graph) SetPorts(h Handle, mask uint8) error {
	n, err := g.node(h)
	if err != nil {
		return err
	}
	n.Ports = mask
	l := len(g.edges)
	g.edges = slices.DeleteFunc(g.edges, func(e Edge) bool { return e.Dst == h && !portOpen(n, e.DstPort) })
	if len(g.edges) != l {
		return g.RecomputeOrder()
	}
	return nil
}

func (g *Graph) SetEnv(h Handle, points []brainwash.EnvPoint) error {
	n, err := g.node(h)
	if err != nil {
		return err
	}
	n.Env = slices.Clone(points)
	return nil
}

// RecomputeOrder refreshes the cached evaluation order. Mutations call it
// themselves; it fails only if the edge set somehow holds an invalid cycle, in
// which case the previous order is kept.
func (g *Graph) RecomputeOrder() error {
	order, ok := g.sort()
	if !ok {
		return brainwash.ErrWouldCreateInvalidCycle
	}
	g.order = order
	return nil
}

// sort is Kahn's algorithm over the edges that do not end in a delay-bearing
// node. Among the nodes that are ready, the lowest handle goes first.
func (g *Graph) sort() ([]Handle, bool) {
	indegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		if !g.nodes[e.Dst].Kind.DelayBearing() {
			indegree[e.Dst]++
		}
	}
	ready := &handleHeap{}
	alive := 0
	for i := range g.nodes {
		if g.nodes[i].removed {
			continue
		}
		alive++
		if indegree[i] == 0 {
			*ready = append(*ready, Handle(i))
		}
	}
	heap.Init(ready)
	order := make([]Handle, 0, alive)
	for ready.Len() > 0 {
		h := heap.Pop(ready).(Handle)
		order = append(order, h)
		for _, e := range g.edges {
			if e.Src != h || g.nodes[e.Dst].Kind.DelayBearing() {
				continue
			}
			if indegree[e.Dst]--; indegree[e.Dst] == 0 {
				heap.Push(ready, e.Dst)
			}
		}
	}
	return order, len(order) == alive
}

func portOpen(n *Node, port int) bool {
	if n.Kind.IsRouting() {
		return true
	}
	return port < 8 && n.Ports&(1<<port) != 0
}

type handleHeap []Handle

func (h handleHeap) Len() int           { return len(h) }
func (h handleHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h handleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *handleHeap) Push(x any)        { *h = append(*h, x.(Handle)) }
func (h *handleHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
