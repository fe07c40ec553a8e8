//go:build cgo

package main

import (
	"github.com/brainwash-synth/brainwash/tracker/gomidi"
)

func newMIDIContext() midiContext {
	return gomidi.NewContext()
}
