// Package gomidi reads live notes from MIDI input devices through the rtmidi
// driver of gitlab.com/gomidi/midi.
package gomidi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/tracker"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

type (
	// RTMIDIContext collects note events from the open MIDI input and hands
	// them to the player as a tracker.PlayerProcessContext. The events arrive
	// on the driver's goroutine with millisecond timestamps; the context maps
	// them to frames of the audio buffers, slowly adjusting its clock so that
	// the events keep their relative timing.
	RTMIDIContext struct {
		driver        *rtmididrv.Driver
		currentIn     drivers.In
		stop          func()
		events        chan timestampedMsg
		eventsBuf     []timestampedMsg
		eventIndex    int
		startFrame    int
		startFrameSet bool
	}

	timestampedMsg struct {
		frame int
		msg   midi.Message
	}
)

var ErrNoDriver = errors.New("no MIDI driver available")

// NewContext opens the driver. If the driver cannot be opened, the context
// works but never has any inputs.
func NewContext() *RTMIDIContext {
	m := RTMIDIContext{events: make(chan timestampedMsg, 1024)}
	m.driver, _ = rtmididrv.New()
	return &m
}

// Inputs returns the names of the MIDI input devices.
func (m *RTMIDIContext) Inputs() ([]string, error) {
	if m.driver == nil {
		return nil, ErrNoDriver
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("listing MIDI inputs: %w", err)
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret, nil
}

// Open opens the first input whose name starts with prefix, closing the
// currently open input. An empty prefix opens the first input.
func (m *RTMIDIContext) Open(prefix string) (name string, err error) {
	if m.driver == nil {
		return "", ErrNoDriver
	}
	ins, err := m.driver.Ins()
	if err != nil {
		return "", fmt.Errorf("listing MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		m.closeInput()
		if err := in.Open(); err != nil {
			return "", fmt.Errorf("opening MIDI input %q: %w", in.String(), err)
		}
		stop, err := midi.ListenTo(in, m.HandleMessage)
		if err != nil {
			in.Close()
			return "", fmt.Errorf("listening to MIDI input %q: %w", in.String(), err)
		}
		m.currentIn, m.stop = in, stop
		return in.String(), nil
	}
	return "", fmt.Errorf("no MIDI input starting with %q", prefix)
}

func (m *RTMIDIContext) closeInput() {
	if m.stop != nil {
		m.stop()
		m.stop = nil
	}
	if m.currentIn != nil && m.currentIn.IsOpen() {
		m.currentIn.Close()
	}
	m.currentIn = nil
}

func (m *RTMIDIContext) Close() {
	if m.driver == nil {
		return
	}
	m.closeInput()
	m.driver.Close()
}

func (m *RTMIDIContext) HasDeviceOpen() bool {
	return m.currentIn != nil && m.currentIn.IsOpen()
}

// HandleMessage is called by the driver for every message received.
func (m *RTMIDIContext) HandleMessage(msg midi.Message, timestampms int32) {
	select {
	case m.events <- timestampedMsg{frame: int(int64(timestampms) * brainwash.SampleRate / 1000), msg: msg}: // if the channel is full, just drop the message
	default:
	}
}

func (m *RTMIDIContext) NextEvent(frame int) (event tracker.MIDINoteEvent, ok bool) {
F:
	for {
		select {
		case msg := <-m.events:
			m.eventsBuf = append(m.eventsBuf, msg)
			if !m.startFrameSet {
				m.startFrame = msg.frame
				m.startFrameSet = true
			}
		default:
			break F
		}
	}
	if m.eventIndex > 0 {
		// An event was consumed. If it was consumed later than it should,
		// move the clock a fifth of the way towards it.
		delta := frame + m.startFrame - m.eventsBuf[m.eventIndex-1].frame
		m.startFrame -= delta / 5
	}
	for m.eventIndex < len(m.eventsBuf) {
		var channel, key, velocity uint8
		e := m.eventsBuf[m.eventIndex]
		m.eventIndex++
		isNoteOn := e.msg.GetNoteOn(&channel, &key, &velocity) && velocity > 0
		isNoteOff := !isNoteOn && (e.msg.GetNoteOff(&channel, &key, &velocity) || e.msg.GetNoteOn(&channel, &key, &velocity))
		if isNoteOn || isNoteOff {
			return tracker.MIDINoteEvent{
				Frame:    e.frame - m.startFrame,
				On:       isNoteOn,
				Channel:  int(channel),
				Note:     key,
				Velocity: velocity,
			}, true
		}
	}
	m.eventIndex = len(m.eventsBuf) + 1
	return tracker.MIDINoteEvent{}, false
}

func (m *RTMIDIContext) FinishBlock(frame int) {
	m.startFrame += frame
	if m.eventIndex > 0 {
		copy(m.eventsBuf, m.eventsBuf[m.eventIndex-1:])
		m.eventsBuf = m.eventsBuf[:len(m.eventsBuf)-m.eventIndex+1]
		if len(m.eventsBuf) > 0 {
			// Events are waiting for future blocks; move the clock towards
			// them so they are played as they were received.
			delta := m.startFrame - m.eventsBuf[0].frame
			m.startFrame -= delta / 5
		}
	}
	m.eventIndex = 0
}
