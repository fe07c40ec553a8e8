// Package config loads the settings of the brainwash binaries from a YAML
// file. Every setting has a default, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/tracker"
	"github.com/brainwash-synth/brainwash/vm"
	"gopkg.in/yaml.v3"
)

type Config struct {
	SampleRate  int           `yaml:"sample_rate"`
	Voices      int           `yaml:"voices"`
	BufferSize  time.Duration `yaml:"buffer_size"`
	Crossfade   int           `yaml:"crossfade"` // samples; fixed by the voice manager
	Master      float32       `yaml:"master"`
	StereoWidth float32       `yaml:"stereo_width"`
	// MIDIInput is a prefix of the name of the MIDI input to open. Empty
	// means no MIDI.
	MIDIInput    string `yaml:"midi_input,omitempty"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
	RecoveryFile string `yaml:"recovery_file,omitempty"`
	PresetDir    string `yaml:"preset_dir,omitempty"`
	// DefaultPatch is played when no file or preset is given.
	DefaultPatch string `yaml:"default_patch"`
}

const (
	appDir   = "brainwash"
	fileName = "config.yml"
)

var ErrInvalid = errors.New("invalid config")

// Default returns the settings used when there is no config file.
func Default() Config {
	ret := Config{
		SampleRate:   brainwash.SampleRate,
		Voices:       tracker.DefaultVoices,
		BufferSize:   50 * time.Millisecond,
		Crossfade:    vm.CrossfadeSamples,
		Master:       1,
		StereoWidth:  1,
		DefaultPatch: "organ",
	}
	if dir, err := os.UserConfigDir(); err == nil {
		ret.RecoveryFile = filepath.Join(dir, appDir, "recovery.yml")
		ret.PresetDir = filepath.Join(dir, appDir, "presets")
	}
	return ret
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's config directory: %w", err)
	}
	return filepath.Join(dir, appDir, fileName), nil
}

// Load reads the file at path over the defaults. A missing file gives the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config, creating the directory if needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c Config) Validate() error {
	switch {
	case c.SampleRate != brainwash.SampleRate:
		return fmt.Errorf("%w: sample_rate must be %d, got %d", ErrInvalid, brainwash.SampleRate, c.SampleRate)
	case c.Crossfade != vm.CrossfadeSamples:
		return fmt.Errorf("%w: crossfade must be %d, got %d", ErrInvalid, vm.CrossfadeSamples, c.Crossfade)
	case c.Voices < 1:
		return fmt.Errorf("%w: voices must be at least 1, got %d", ErrInvalid, c.Voices)
	case c.BufferSize < 0:
		return fmt.Errorf("%w: buffer_size must not be negative, got %v", ErrInvalid, c.BufferSize)
	case c.Master < 0:
		return fmt.Errorf("%w: master must not be negative, got %v", ErrInvalid, c.Master)
	case c.StereoWidth < 0:
		return fmt.Errorf("%w: stereo_width must not be negative, got %v", ErrInvalid, c.StereoWidth)
	}
	return nil
}

// SynthOptions returns the voice manager settings of the config.
func (c Config) SynthOptions() tracker.SynthOptions {
	opts := tracker.DefaultSynthOptions()
	opts.Voices = c.Voices
	opts.Mix.Master = c.Master
	opts.Mix.Width = c.StereoWidth
	return opts
}
