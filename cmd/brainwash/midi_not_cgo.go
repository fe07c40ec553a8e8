//go:build !cgo

package main

import (
	"errors"

	"github.com/brainwash-synth/brainwash/tracker"
)

type nullMIDIContext struct {
	tracker.NullContext
}

var errNoMIDI = errors.New("MIDI needs a build with cgo")

func (nullMIDIContext) Open(prefix string) (string, error) { return "", errNoMIDI }

func (nullMIDIContext) Inputs() ([]string, error) { return nil, errNoMIDI }

func (nullMIDIContext) Close() {}

func newMIDIContext() midiContext {
	// with no cgo, there is no rtmidi driver
	return nullMIDIContext{}
}
