package tracker

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/brainwash-synth/brainwash"
)

//go:embed presets/*.bw
var presetFS embed.FS

type (
	// Preset is a named patch, built in or read from the user's preset
	// directory.
	Preset struct {
		Name  string
		User  bool
		Patch brainwash.Patch
	}

	Presets []Preset
)

var ErrUnknownPreset = errors.New("unknown preset")

// BuiltinPresets returns the presets compiled into the binary.
func BuiltinPresets() (Presets, error) {
	return ReadPresets(presetFS, "presets", false)
}

// ReadPresets reads every .bw file in the directory dir of fsys, sorted by
// name. User presets can be read with os.DirFS.
func ReadPresets(fsys fs.FS, dir string, user bool) (Presets, error) {
	var ret Presets
	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || path.Ext(p) != ".bw" {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		patch, err := brainwash.ReadPatch(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("preset %s: %w", p, err)
		}
		ret = append(ret, Preset{Name: strings.TrimSuffix(path.Base(p), ".bw"), User: user, Patch: patch})
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(ret, func(a, b Preset) int { return strings.Compare(a.Name, b.Name) })
	return ret, nil
}

// Find returns the preset with the name. User presets shadow built in ones
// with the same name.
func (p Presets) Find(name string) (Preset, error) {
	found := -1
	for i := range p {
		if p[i].Name == name && (found < 0 || p[i].User) {
			found = i
		}
	}
	if found < 0 {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	ret := p[found]
	ret.Patch = ret.Patch.Copy()
	return ret, nil
}

func (p Presets) Names() []string {
	ret := make([]string, 0, len(p))
	for _, preset := range p {
		if !slices.Contains(ret, preset.Name) {
			ret = append(ret, preset.Name)
		}
	}
	return ret
}
