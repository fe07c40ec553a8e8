package brainwash

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

type (
	// ModuleKind enumerates the closed set of module types a patch can hold.
	// The zero value is not a valid kind.
	ModuleKind int

	// ParamKind tells whether a parameter is a continuous value (which is
	// also an input port) or an enumeration (which never is).
	ParamKind int

	// Orientation of a module on the grid: horizontal modules take their
	// inputs from the left and send their output right, vertical modules take
	// their inputs from the top and send their output down.
	Orientation int

	// Category groups the module kinds for listings.
	Category int

	// Params is the fixed-size parameter vector of a module. Only the first
	// len(ModuleType.Params) values are meaningful.
	Params [MaxParams]float32

	// ParamDisplayFunc formats a parameter value with a unit for listings.
	ParamDisplayFunc func(float32) (value string, unit string)

	// ParamDef documents one parameter of a module kind.
	ParamDef struct {
		Name        string
		Kind        ParamKind
		Min, Max    float32 // inclusive range for ParamFloat
		Step        float32 // editor step for ParamFloat
		Options     []string
		DisplayFunc ParamDisplayFunc
	}

	// ModuleType documents a module kind: its parameters, how many outputs it
	// has, and how it behaves in the graph.
	ModuleType struct {
		Name     string
		Category Category
		Params   []ParamDef
		Outputs  int
		// RoutingPorts is the number of parameterless input ports of a routing
		// primitive. Zero for all other kinds.
		RoutingPorts int
		// DelayBearing modules produce their output at sample n without
		// looking at their input at sample n, so they may close feedback
		// loops.
		DelayBearing bool
		Defaults     Params
	}
)

// MaxParams is the size of the parameter vector of every module.
const MaxParams = 8

// AllPortsOpen is the default port-open bitmask of a module.
const AllPortsOpen uint8 = 0xFF

const (
	Freq ModuleKind = iota + 1
	Gate
	Osc
	ADSR
	Env
	LPF
	HPF
	Delay
	Reverb
	Dist
	Flanger
	Mul
	Add
	Out
	LSplit
	TSplit
	RJoin
	DJoin
	TurnRD
	TurnDR
	numModuleKinds
)

const (
	ParamFloat ParamKind = iota
	ParamEnum
)

const (
	Horizontal Orientation = iota
	Vertical
)

const (
	CategoryTrack Category = iota
	CategoryGenerator
	CategoryEnvelope
	CategoryEffect
	CategoryMath
	CategoryOutput
	CategoryRouting
)

// Oscillator waveforms, the values of the Wave parameter of an Osc.
const (
	WaveSine = iota
	WaveSquare
	WaveTriangle
	WaveSaw
	WaveReverseSaw
	WaveNoise
)

var waveNames = []string{"sin", "square", "tri", "saw", "rsaw", "noise"}

var categoryNames = [...]string{"track", "generator", "envelope", "effect", "math", "output", "routing"}

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

func (o Orientation) String() string {
	if o == Vertical {
		return "v"
	}
	return "h"
}

// ModuleTypes documents all the available module kinds, indexed by kind.
var ModuleTypes = [numModuleKinds]ModuleType{
	Freq: {Name: "Freq", Category: CategoryTrack, Outputs: 1},
	Gate: {Name: "Gate", Category: CategoryTrack, Outputs: 1},
	Osc: {Name: "Osc", Category: CategoryGenerator, Outputs: 1, Params: []ParamDef{
		{Name: "Wave", Kind: ParamEnum, Options: waveNames},
		{Name: "Freq", Min: 20, Max: 20000, Step: 1, DisplayFunc: hzDispFunc},
		{Name: "Shift", Min: -24, Max: 24, Step: 1, DisplayFunc: semitoneDispFunc},
		{Name: "Gain", Min: 0, Max: 1, Step: 0.05}},
		Defaults: Params{WaveSine, 440, 0, 1}},
	ADSR: {Name: "ADSR", Category: CategoryEnvelope, Outputs: 1, Params: []ParamDef{
		{Name: "Gate", Min: 0, Max: 1, Step: 1},
		{Name: "Atk", Min: 0.001, Max: 2, Step: 0.01, DisplayFunc: timeDispFunc},
		{Name: "Dec", Min: 0.001, Max: 2, Step: 0.01, DisplayFunc: timeDispFunc},
		{Name: "Sus", Min: 0, Max: 1, Step: 0.05},
		{Name: "Rel", Min: 0.001, Max: 4, Step: 0.01, DisplayFunc: timeDispFunc}},
		Defaults: Params{0, 0.01, 0.1, 0.7, 0.3}},
	Env: {Name: "Env", Category: CategoryEnvelope, Outputs: 1, Params: []ParamDef{
		{Name: "Phase", Min: 0, Max: 1, Step: 0.01}}},
	LPF: {Name: "LPF", Category: CategoryEffect, Outputs: 1, Params: filterParams,
		Defaults: Params{0, 0.5, 0.707}},
	HPF: {Name: "HPF", Category: CategoryEffect, Outputs: 1, Params: filterParams,
		Defaults: Params{0, 0.5, 0.707}},
	Delay: {Name: "Delay", Category: CategoryEffect, Outputs: 1, DelayBearing: true, Params: []ParamDef{
		inParam,
		{Name: "Samp", Min: 0, Max: 44100, Step: 100, DisplayFunc: samplesDispFunc}}},
	Reverb: {Name: "Reverb", Category: CategoryEffect, Outputs: 1, DelayBearing: true, Params: []ParamDef{
		inParam,
		{Name: "Room", Min: 0, Max: 1, Step: 0.05},
		{Name: "Damp", Min: 0, Max: 1, Step: 0.05}},
		Defaults: Params{0, 0.5, 0.5}},
	Dist: {Name: "Dist", Category: CategoryEffect, Outputs: 1, Params: []ParamDef{
		inParam,
		{Name: "Drive", Min: 0.1, Max: 0.5, Step: 0.05},
		{Name: "Gain", Min: 0, Max: 1, Step: 0.05}},
		Defaults: Params{0, 0.3, 1}},
	Flanger: {Name: "Flanger", Category: CategoryEffect, Outputs: 1, DelayBearing: true, Params: []ParamDef{
		inParam,
		{Name: "Rate", Min: 0.1, Max: 10, Step: 0.1, DisplayFunc: hzDispFunc},
		{Name: "Depth", Min: 0, Max: 1, Step: 0.05},
		{Name: "Fdbk", Min: 0, Max: 0.95, Step: 0.05}},
		Defaults: Params{0, 0.5, 0.5, 0.3}},
	Mul: {Name: "Mul", Category: CategoryMath, Outputs: 1, Params: []ParamDef{
		{Name: "A", Min: 0, Max: 100, Step: 0.1},
		{Name: "B", Min: 0, Max: 100, Step: 0.1}},
		Defaults: Params{1, 1}},
	Add: {Name: "Add", Category: CategoryMath, Outputs: 1, Params: []ParamDef{
		{Name: "A", Min: -1000, Max: 1000, Step: 1},
		{Name: "B", Min: -1000, Max: 1000, Step: 1}}},
	Out:    {Name: "Out", Category: CategoryOutput, Params: []ParamDef{inParam}},
	LSplit: {Name: "LSplit", Category: CategoryRouting, Outputs: 2, RoutingPorts: 1},
	TSplit: {Name: "TSplit", Category: CategoryRouting, Outputs: 2, RoutingPorts: 1},
	RJoin:  {Name: "RJoin", Category: CategoryRouting, Outputs: 1, RoutingPorts: 2},
	DJoin:  {Name: "DJoin", Category: CategoryRouting, Outputs: 1, RoutingPorts: 2},
	TurnRD: {Name: "TurnRD", Category: CategoryRouting, Outputs: 1, RoutingPorts: 1},
	TurnDR: {Name: "TurnDR", Category: CategoryRouting, Outputs: 1, RoutingPorts: 1},
}

var inParam = ParamDef{Name: "In", Min: -1, Max: 1, Step: 0.01}

var filterParams = []ParamDef{
	inParam,
	{Name: "Freq", Min: 0.001, Max: 0.99, Step: 0.01},
	{Name: "Q", Min: 0.1, Max: 10, Step: 0.1},
}

// portParams maps the input ports of each kind to parameter indices. This is
// populated from ModuleTypes during init() and must never be changed after.
var portParams [numModuleKinds][]int

var kindsByName = make(map[string]ModuleKind)

// ModuleKindNames lists the names of all module kinds, sorted alphabetically.
var ModuleKindNames []string

func init() {
	for k := Freq; k < numModuleKinds; k++ {
		t := &ModuleTypes[k]
		kindsByName[t.Name] = k
		ModuleKindNames = append(ModuleKindNames, t.Name)
		if t.RoutingPorts > 0 {
			continue
		}
		for i, p := range t.Params {
			if p.Kind == ParamFloat {
				portParams[k] = append(portParams[k], i)
			}
		}
	}
	sort.Strings(ModuleKindNames)
}

// AllModuleKinds returns every valid kind in declaration order.
func AllModuleKinds() []ModuleKind {
	ret := make([]ModuleKind, 0, numModuleKinds-1)
	for k := Freq; k < numModuleKinds; k++ {
		ret = append(ret, k)
	}
	return ret
}

// ParseModuleKind finds a kind by its name, as written in .bw files.
func ParseModuleKind(name string) (ModuleKind, error) {
	if k, ok := kindsByName[name]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModuleKind, name)
}

func (k ModuleKind) Valid() bool { return k >= Freq && k < numModuleKinds }

func (k ModuleKind) String() string {
	if !k.Valid() {
		return "ModuleKind(" + strconv.Itoa(int(k)) + ")"
	}
	return ModuleTypes[k].Name
}

// Type returns the documentation of the kind. It panics for invalid kinds;
// validate with Valid first.
func (k ModuleKind) Type() *ModuleType { return &ModuleTypes[k] }

func (k ModuleKind) IsRouting() bool { return k.Valid() && ModuleTypes[k].RoutingPorts > 0 }

func (k ModuleKind) DelayBearing() bool { return k.Valid() && ModuleTypes[k].DelayBearing }

func (k ModuleKind) NumOutputs() int {
	if !k.Valid() {
		return 0
	}
	return ModuleTypes[k].Outputs
}

// NumPorts returns the number of input ports: the routing ports of a routing
// primitive, otherwise the number of continuous parameters.
func (k ModuleKind) NumPorts() int {
	if !k.Valid() {
		return 0
	}
	if n := ModuleTypes[k].RoutingPorts; n > 0 {
		return n
	}
	return len(portParams[k])
}

// PortParam returns the index of the parameter that feeds the given port when
// nothing is connected to it. Routing ports have no parameter.
func (k ModuleKind) PortParam(port int) (int, bool) {
	if !k.Valid() || port < 0 || port >= len(portParams[k]) {
		return 0, false
	}
	return portParams[k][port], true
}

// DefaultParams returns the parameter vector a new module of this kind starts
// with.
func (k ModuleKind) DefaultParams() Params {
	if !k.Valid() {
		return Params{}
	}
	return ModuleTypes[k].Defaults
}

// Clamp limits v to the range of the given parameter. Enumerations are
// rounded to the nearest option. NaN becomes the minimum.
func (d *ParamDef) Clamp(v float32) float32 {
	if d.Kind == ParamEnum {
		if math.IsNaN(float64(v)) {
			return 0
		}
		i := float32(math.Round(float64(v)))
		return max(0, min(i, float32(len(d.Options)-1)))
	}
	if math.IsNaN(float64(v)) {
		return d.Min
	}
	return max(d.Min, min(v, d.Max))
}

// Display formats a value of the parameter, e.g. "440" "Hz".
func (d *ParamDef) Display(v float32) (string, string) {
	if d.Kind == ParamEnum {
		i := int(v)
		if i < 0 || i >= len(d.Options) {
			return "???", ""
		}
		return d.Options[i], ""
	}
	if d.DisplayFunc != nil {
		return d.DisplayFunc(v)
	}
	return formatFloat(float64(v)), ""
}

func hzDispFunc(v float32) (string, string) {
	return formatFloat(float64(v)), "Hz"
}

func semitoneDispFunc(v float32) (string, string) {
	return strconv.Itoa(int(v)), "st"
}

func samplesDispFunc(v float32) (string, string) {
	return engineeringTime(float64(v) / SampleRate)
}

func timeDispFunc(v float32) (string, string) {
	return engineeringTime(float64(v))
}

func engineeringTime(sec float64) (string, string) {
	if sec < 1e-3 {
		return fmt.Sprintf("%.2f", sec*1e6), "us"
	} else if sec < 1 {
		return fmt.Sprintf("%.2f", sec*1e3), "ms"
	}
	return fmt.Sprintf("%.2f", sec), "s"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 32)
}

func (k ModuleKind) MarshalYAML() (any, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownModuleKind, int(k))
	}
	return k.String(), nil
}

func (k *ModuleKind) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	kind, err := ParseModuleKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

func (o Orientation) MarshalYAML() (any, error) { return o.String(), nil }

func (o *Orientation) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := ParseOrientation(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOrientation accepts the spellings used in .bw files.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "h", "H", "horizontal":
		return Horizontal, nil
	case "v", "V", "vertical":
		return Vertical, nil
	}
	return Horizontal, fmt.Errorf("unknown orientation %q", s)
}
