package graph

import (
	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/dsp"
)

type (
	// Instance is one running copy of a Program, holding the DSP state of
	// every node and the node outputs of the current and the previous sample.
	// Nodes fed across a delay-bearing edge read the previous sample, so
	// feedback loops through delays, reverbs and flangers are well defined.
	//
	// EvaluateSample does not allocate; everything is allocated by NewInstance.
	Instance struct {
		program   *Program
		prev, cur [][MaxOutputs]Frame
		units     []unit
	}

	unit struct {
		osc     dsp.Osc
		adsr    dsp.ADSR
		filter  dsp.Biquad
		dist    dsp.Distortion
		delay   *dsp.DelayLine
		reverb  *dsp.Reverb
		flanger *dsp.Flanger
	}
)

func NewInstance(p *Program) *Instance {
	in := &Instance{}
	in.build(p)
	return in
}

func (in *Instance) build(p *Program) {
	in.program = p
	in.prev = make([][MaxOutputs]Frame, len(p.nodes))
	in.cur = make([][MaxOutputs]Frame, len(p.nodes))
	in.units = make([]unit, len(p.nodes))
	for i := range p.nodes {
		u := &in.units[i]
		switch p.nodes[i].kind {
		case brainwash.Osc:
			u.osc = dsp.NewOsc()
		case brainwash.LPF:
			u.filter = dsp.NewLowpass()
		case brainwash.HPF:
			u.filter = dsp.NewHighpass()
		case brainwash.Delay:
			l := dsp.NewDelayLine(dsp.MaxDelaySamples)
			u.delay = &l
		case brainwash.Reverb:
			u.reverb = dsp.NewReverb()
		case brainwash.Flanger:
			u.flanger = dsp.NewFlanger()
		}
	}
}

func (in *Instance) Program() *Program { return in.program }

// SetProgram switches the instance to another program. If the programs share
// the topology, the DSP state carries over and true is returned; otherwise the
// state is rebuilt from scratch.
func (in *Instance) SetProgram(p *Program) bool {
	if in.program.SameTopology(p) {
		in.program = p
		return true
	}
	in.build(p)
	return false
}

// Reset silences the instance: all DSP state and node outputs go to zero.
func (in *Instance) Reset() {
	clear(in.prev)
	clear(in.cur)
	for i := range in.units {
		u := &in.units[i]
		u.osc.Reset()
		u.adsr.Reset()
		u.filter.Reset()
		u.dist.Reset()
		if u.delay != nil {
			u.delay.Reset()
		}
		if u.reverb != nil {
			u.reverb.Reset()
		}
		if u.flanger != nil {
			u.flanger.Reset()
		}
	}
}

// ADSRIdle tells if every ADSR of the instance has finished its release. A
// program without ADSRs is always idle.
func (in *Instance) ADSRIdle() bool {
	for _, i := range in.program.adsrs {
		if !in.units[i].adsr.Idle() {
			return false
		}
	}
	return true
}

// EvaluateSample advances every node by one sample, in evaluation order, and
// returns the input of the designated Out node. freq and gate are what the
// Freq and Gate nodes output.
func (in *Instance) EvaluateSample(freq, gate float32) Frame {
	in.prev, in.cur = in.cur, in.prev
	p := in.program
	for i := range p.nodes {
		n := &p.nodes[i]
		u := &in.units[i]
		out := &in.cur[i]
		switch n.kind {
		case brainwash.Freq:
			out[0] = mono(freq)
		case brainwash.Gate:
			out[0] = mono(gate)
		case brainwash.Osc:
			wave := int(p.param(i, 0))
			out[0] = mono(u.osc.Step(wave, in.mid(i, 0), in.mid(i, 1), in.mid(i, 2)))
		case brainwash.ADSR:
			out[0] = mono(u.adsr.Step(in.mid(i, 0), in.mid(i, 1), in.mid(i, 2), in.mid(i, 3), in.mid(i, 4)))
		case brainwash.Env:
			out[0] = mono(dsp.Breakpoints(n.env, in.mid(i, 0)))
		case brainwash.LPF, brainwash.HPF:
			out[0] = mono(u.filter.Step(in.mid(i, 0), in.mid(i, 1), in.mid(i, 2)))
		case brainwash.Delay:
			out[0] = mono(u.delay.Step(in.mid(i, 0), in.mid(i, 1)))
		case brainwash.Reverb:
			l, r := u.reverb.Step(in.mid(i, 0), in.mid(i, 1), in.mid(i, 2))
			out[0] = Frame{l, r}
		case brainwash.Dist:
			out[0] = mono(u.dist.Step(in.mid(i, 0), in.mid(i, 1), in.mid(i, 2)))
		case brainwash.Flanger:
			out[0] = mono(u.flanger.Step(in.mid(i, 0), in.mid(i, 1), in.mid(i, 2), in.mid(i, 3)))
		case brainwash.Mul:
			out[0] = in.input(i, 0).Mul(in.input(i, 1))
		case brainwash.Add:
			out[0] = in.input(i, 0).Add(in.input(i, 1))
		case brainwash.Out, brainwash.TurnRD, brainwash.TurnDR:
			out[0] = in.input(i, 0)
		case brainwash.LSplit, brainwash.TSplit:
			v := in.input(i, 0)
			out[0], out[1] = v, v
		case brainwash.RJoin, brainwash.DJoin:
			out[0] = in.input(i, 0).Add(in.input(i, 1))
		}
	}
	if p.out < 0 {
		return Frame{}
	}
	return in.cur[p.out][0]
}

// Output returns what a node output on the last evaluated sample.
func (in *Instance) Output(h Handle, port int) (Frame, bool) {
	i, ok := in.program.index[h]
	if !ok || port < 0 || port >= MaxOutputs {
		return Frame{}, false
	}
	return in.cur[i][port], true
}

func (in *Instance) input(node, port int) Frame {
	n := &in.program.nodes[node]
	s := n.ports[port]
	switch {
	case s.node >= 0 && n.delayed:
		return in.prev[s.node][s.port]
	case s.node >= 0:
		return in.cur[s.node][s.port]
	case s.param >= 0:
		return mono(in.program.param(node, s.param))
	}
	return Frame{}
}

func (in *Instance) mid(node, port int) float32 {
	return in.input(node, port).Mid()
}
