package brainwash_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/brainwash-synth/brainwash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullPatch = `# every directive at least once
bpm 140
bars 2
scale minor
root D4
master 0.8

module 1 Freq 0 0
module 2 Gate 1 0
module 3 Osc 0 2 v
module 4 ADSR 1 2 v
module 5 Env 2 2
module 6 Out 0 7
module 7 LSplit 3 0

param 3 0 1
param 3 1 880
param 4 1 0.05

port 3 0x0F
port 4 3

env 5 0.75 0.5 curve
env 5 0 0
env 5 0.25 1 curve
env 5 1 0

track
(0/2/4)
{0 % 4~5}
end
`

func TestReadPatch(t *testing.T) {
	p, err := brainwash.ReadPatch(strings.NewReader(fullPatch))
	require.NoError(t, err)
	assert.Equal(t, 140.0, p.BPM)
	assert.Equal(t, 2, p.Bars)
	assert.Equal(t, "minor", p.Scale)
	assert.Equal(t, "D4", p.Root)
	assert.InDelta(t, 0.8, p.Master, 1e-6)
	require.Len(t, p.Modules, 7)

	osc, err := p.Module(3)
	require.NoError(t, err)
	assert.Equal(t, brainwash.Osc, osc.Kind)
	assert.Equal(t, brainwash.Vertical, osc.Orientation)
	assert.Equal(t, float32(brainwash.WaveSquare), osc.Params[0])
	assert.Equal(t, float32(880), osc.Params[1])
	assert.Equal(t, float32(1), osc.Params[3], "unlisted params keep their defaults")
	assert.Equal(t, uint8(0x0F), osc.Ports)

	adsr, err := p.Module(4)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), adsr.Ports)

	env, err := p.Module(5)
	require.NoError(t, err)
	require.Len(t, env.Env, 4)
	assert.Equal(t, []float32{0, 0.25, 0.75, 1}, []float32{env.Env[0].Time, env.Env[1].Time, env.Env[2].Time, env.Env[3].Time}, "env points are sorted by time")
	assert.True(t, env.Env[1].Curve)
	assert.False(t, env.Env[3].Curve)

	assert.Equal(t, "(0/2/4)\n{0 % 4~5}", p.Track)
}

func TestPatchRoundTrip(t *testing.T) {
	p, err := brainwash.ReadPatch(strings.NewReader(fullPatch))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "bpm 140\n")
	assert.Contains(t, out, "module 3 Osc 0 2 v\n")
	assert.Contains(t, out, "param 3 1 880\n")
	assert.Contains(t, out, "port 4 0x03\n")
	assert.Contains(t, out, "env 5 0.25 1 curve\n")
	assert.Contains(t, out, "track\n(0/2/4)\n{0 % 4~5}\nend\n")
	p2, err := brainwash.ReadPatch(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}

func TestWriteOmitsDefaults(t *testing.T) {
	p := brainwash.NewPatch()
	p.Modules = append(p.Modules, brainwash.NewModule(0, brainwash.Osc, 0, 0))
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))
	assert.Equal(t, "module 0 Osc 0 0\n", buf.String())
}

func TestReadPatchIgnoresUnknownDirectives(t *testing.T) {
	const src = `
# comment
   # indented comment
bpm 120
future_feature 1 2 3
module 1 Freq 0 0

module 2 Out 5 5
`
	p, err := brainwash.ReadPatch(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, p.Modules, 2)
	assert.Equal(t, 120.0, p.BPM)
}

func TestReadPatchErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		line int
		is   error
	}{
		{"unknown kind", "module 1 Wobble 0 0", 1, brainwash.ErrUnknownModuleKind},
		{"bad bpm", "\nbpm fast", 2, nil},
		{"param of missing module", "param 9 0 1", 1, nil},
		{"param index out of range", "module 1 Osc 0 0\nparam 1 8 1", 2, nil},
		{"duplicate id", "module 1 Osc 0 0\nmodule 1 Out 0 2", 2, nil},
		{"short module line", "module 1 Osc 0", 1, nil},
		{"unterminated track", "track\n(0/1)", 2, nil},
		{"NaN param", "module 0 Delay 0 0\nparam 0 1 NaN", 2, nil},
		{"infinite env time", "module 0 Env 0 0\nenv 0 +Inf 1", 2, nil},
		{"infinite bpm", "bpm inf", 1, nil},
		{"NaN master", "\n\nmaster nan", 3, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := brainwash.ReadPatch(strings.NewReader(tc.src))
			var perr *brainwash.ParseError
			require.True(t, errors.As(err, &perr), "expected a ParseError, got %v", err)
			assert.Equal(t, tc.line, perr.Line)
			if tc.is != nil {
				assert.ErrorIs(t, err, tc.is)
			}
		})
	}
}

func TestPatchTransport(t *testing.T) {
	p := brainwash.NewPatch()
	tr, err := p.Transport()
	require.NoError(t, err)
	assert.Equal(t, 60, tr.Root)
	assert.Equal(t, 12, tr.Scale.Len())
	assert.InDelta(t, 2.0, tr.LoopDuration(), 1e-12)

	p.Scale = "nonexistent"
	_, err = p.Transport()
	assert.Error(t, err)
}
