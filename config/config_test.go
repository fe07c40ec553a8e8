package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brainwash-synth/brainwash/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("voices: 16\nbuffer_size: 20ms\nmidi_input: Launch\n"), 0o644))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Voices)
	assert.Equal(t, 20*time.Millisecond, cfg.BufferSize)
	assert.Equal(t, "Launch", cfg.MIDIInput)
	assert.Equal(t, config.Default().Crossfade, cfg.Crossfade)
	assert.Equal(t, "organ", cfg.DefaultPatch)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, text := range map[string]string{
		"crossfade":   "crossfade: 100\n",
		"sample rate": "sample_rate: 48000\n",
		"voices":      "voices: 0\n",
		"master":      "master: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yml")
			require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
			_, err := config.Load(path)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("voices: [\n"), 0o644))
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := config.Default()
	cfg.Voices = 4
	cfg.MetricsAddr = ":9100"
	require.NoError(t, cfg.Save(path))
	got, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestSynthOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Voices, cfg.Master, cfg.StereoWidth = 3, 0.5, 0
	opts := cfg.SynthOptions()
	assert.Equal(t, 3, opts.Voices)
	assert.Equal(t, float32(0.5), opts.Mix.Master)
	assert.Equal(t, float32(0), opts.Mix.Width)
}
