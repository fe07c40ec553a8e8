package main

import (
	"fmt"
	"os"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/tracker"
)

// readPatch reads a .bw file.
func readPatch(path string) (brainwash.Patch, error) {
	f, err := os.Open(path)
	if err != nil {
		return brainwash.Patch{}, fmt.Errorf("could not open patch: %w", err)
	}
	defer f.Close()
	p, err := brainwash.ReadPatch(f)
	if err != nil {
		return brainwash.Patch{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// loadPresets returns the built-in presets and the ones in the user's preset
// directory. A missing directory is not an error.
func loadPresets() (tracker.Presets, error) {
	ret, err := tracker.BuiltinPresets()
	if err != nil {
		return nil, err
	}
	if cfg.PresetDir == "" {
		return ret, nil
	}
	if _, err := os.Stat(cfg.PresetDir); err != nil {
		logger.Debug("no user presets", "dir", cfg.PresetDir, "err", err)
		return ret, nil
	}
	user, err := tracker.ReadPresets(os.DirFS(cfg.PresetDir), ".", true)
	if err != nil {
		return nil, fmt.Errorf("user presets: %w", err)
	}
	return append(ret, user...), nil
}

// resolvePatch returns the patch in the file given as an argument, the
// preset given with --preset, or the default patch of the config.
func resolvePatch(args []string, preset string) (brainwash.Patch, string, error) {
	if len(args) > 0 {
		p, err := readPatch(args[0])
		return p, args[0], err
	}
	if preset == "" {
		preset = cfg.DefaultPatch
	}
	presets, err := loadPresets()
	if err != nil {
		return brainwash.Patch{}, "", err
	}
	p, err := presets.Find(preset)
	if err != nil {
		return brainwash.Patch{}, "", err
	}
	return p.Patch, "", nil
}
