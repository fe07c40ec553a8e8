package tracker

import (
	"sync/atomic"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/vm"
)

type (
	// Player is the audio actor, run in the audio thread. It renders the
	// synth of the current snapshot and fires the cues of the loop. The
	// control actor hands it new snapshots with Publish and starts and stops
	// it with Play and Stop; both only store atomics, which the player looks
	// at once per buffer. Live notes come through the broker and the MIDI
	// context. The player never blocks: what it tells the model and the
	// detector is dropped if they are lagging behind.
	Player struct {
		snapshot atomic.Pointer[Snapshot]
		stopped  atomic.Bool

		current *Snapshot
		playing bool
		pos     int // samples since the start of the loop
		next    int // index of the next cue to fire

		keys    [maxHeldKeys]byte // held MIDI keys, the last pressed last
		numKeys int

		broker *Broker
	}

	// Snapshot is everything the player needs to play a patch. Snapshots are
	// immutable once published.
	Snapshot struct {
		Synth  *vm.Synth
		Cues   []Cue
		Length int // loop length in samples
		Layers int // voice ids 0..Layers-1 are used by the cues
	}

	// PlayerProcessContext is the context given to the player when processing
	// audio. It tells which MIDI events happen during the current buffer.
	PlayerProcessContext interface {
		NextEvent(frame int) (event MIDINoteEvent, ok bool)
		FinishBlock(frame int)
	}

	// MIDINoteEvent is a MIDI event triggering or releasing a note. The Frame
	// is relative to the start of the current buffer.
	MIDINoteEvent struct {
		Frame    int
		On       bool
		Channel  int
		Note     byte
		Velocity byte
	}

	// NullContext is a PlayerProcessContext without MIDI events, used for
	// offline rendering.
	NullContext struct{}
)

// LiveVoiceID is the voice id of the notes played from a MIDI keyboard. The
// keyboard is monophonic: the last pressed key wins, and releasing it slides
// back to the previous key still held.
const LiveVoiceID = -1

const maxHeldKeys = 16

func NewPlayer(broker *Broker) *Player {
	p := &Player{broker: broker}
	p.stopped.Store(true)
	return p
}

// Publish hands a new snapshot to the player. The player switches to it at
// the start of the next buffer.
func (p *Player) Publish(s *Snapshot) {
	p.snapshot.Store(s)
}

// Play starts the loop from the beginning at the next buffer.
func (p *Player) Play() {
	p.stopped.Store(false)
}

// Stop stops the loop at the next buffer. All voices are muted at once.
func (p *Player) Stop() {
	p.stopped.Store(true)
}

// Process renders audio to the given buffer. Cues and MIDI events are applied
// sample accurately, by splitting the buffer at them.
func (p *Player) Process(buffer brainwash.AudioBuffer, context PlayerProcessContext) {
	out := buffer
	p.swapSnapshot()
	p.processMessages()
	p.checkStop()
	frame := 0
	midi, midiOk := context.NextEvent(frame)
	for len(buffer) > 0 {
		for midiOk && frame >= midi.Frame {
			p.handleMIDI(midi)
			midi, midiOk = context.NextEvent(frame)
		}
		n := len(buffer)
		if delta := midi.Frame - frame; midiOk && delta < n {
			n = delta
		}
		if p.sequencing() {
			p.fireCues()
			n = min(n, p.framesUntilCue())
		}
		if p.current != nil && p.current.Synth != nil {
			p.current.Synth.Render(buffer[:n])
		} else {
			buffer[:n].Clear()
		}
		if p.sequencing() {
			p.pos += n
		}
		buffer = buffer[n:]
		frame += n
	}
	context.FinishBlock(frame)
	bufPtr := p.broker.GetAudioBuffer() // borrow a buffer from the broker
	*bufPtr = append(*bufPtr, out...)
	if !TrySend(p.broker.ToDetector, MsgToDetector{Data: bufPtr}) {
		p.broker.PutAudioBuffer(bufPtr)
	}
	p.report()
}

func (p *Player) sequencing() bool {
	return p.playing && p.current != nil && p.current.Synth != nil && p.current.Length > 0
}

// fireCues fires every cue due at the current position, wrapping around the
// end of the loop.
func (p *Player) fireCues() {
	s := p.current
	for {
		for p.next < len(s.Cues) && s.Cues[p.next].Frame <= p.pos {
			c := &s.Cues[p.next]
			p.next++
			if c.On {
				s.Synth.Trigger(c.ID, c.Freq, c.Legato)
			} else {
				s.Synth.Release(c.ID)
			}
		}
		if p.pos < s.Length {
			return
		}
		p.pos, p.next = 0, 0
	}
}

func (p *Player) framesUntilCue() int {
	s := p.current
	if p.next < len(s.Cues) {
		return min(s.Cues[p.next].Frame, s.Length) - p.pos
	}
	return s.Length - p.pos
}

// swapSnapshot switches to the latest published snapshot. A new synth takes
// over the voices of the old one; new cues release the notes of the old cues
// and continue from the same position of the loop.
func (p *Player) swapSnapshot() {
	s := p.snapshot.Load()
	if s == p.current {
		return
	}
	old := p.current
	p.current = s
	if s == nil || s.Synth == nil {
		return
	}
	if old != nil && old.Synth != nil && old.Synth != s.Synth {
		s.Synth.Adopt(old.Synth)
	}
	if old != nil && !sameCues(old.Cues, s.Cues) {
		for id := 0; id < old.Layers; id++ {
			s.Synth.Release(id)
		}
	}
	if s.Length > 0 {
		p.pos %= s.Length
	}
	p.next = firstCueAt(s.Cues, p.pos)
}

func sameCues(a, b []Cue) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// firstCueAt returns the index of the first cue at or after the frame.
func firstCueAt(cues []Cue, frame int) int {
	lo, hi := 0, len(cues)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if cues[mid].Frame < frame {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (p *Player) checkStop() {
	playing := !p.stopped.Load()
	if playing == p.playing {
		return
	}
	p.playing = playing
	p.pos, p.next = 0, 0
	if !playing && p.current != nil && p.current.Synth != nil {
		p.current.Synth.Panic()
		p.numKeys = 0
	}
	TrySend(p.broker.ToDetector, MsgToDetector{Reset: true})
}

func (p *Player) processMessages() {
loop:
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			synth := p.synth()
			switch m := msg.(type) {
			case NoteOnMsg:
				if synth != nil {
					synth.Trigger(m.ID, m.Freq, false)
				}
			case NoteOffMsg:
				if synth != nil {
					synth.Release(m.ID)
				}
			case PanicMsg:
				if synth != nil {
					synth.Panic()
				}
				p.numKeys = 0
			case func():
				m()
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

func (p *Player) synth() *vm.Synth {
	if p.current == nil {
		return nil
	}
	return p.current.Synth
}

func (p *Player) handleMIDI(e MIDINoteEvent) {
	if e.On && e.Velocity > 0 {
		p.pressKey(e.Note)
	} else {
		p.releaseKey(e.Note)
	}
	synth := p.synth()
	if synth == nil {
		return
	}
	if p.numKeys == 0 {
		synth.Release(LiveVoiceID)
		return
	}
	key := p.keys[p.numKeys-1]
	synth.Control(LiveVoiceID, float32(brainwash.NoteFrequency(float64(key))), 1)
}

func (p *Player) pressKey(key byte) {
	p.releaseKey(key)
	if p.numKeys == len(p.keys) {
		copy(p.keys[:], p.keys[1:])
		p.numKeys--
	}
	p.keys[p.numKeys] = key
	p.numKeys++
}

func (p *Player) releaseKey(key byte) {
	for i := 0; i < p.numKeys; i++ {
		if p.keys[i] == key {
			copy(p.keys[i:p.numKeys], p.keys[i+1:p.numKeys])
			p.numKeys--
			return
		}
	}
}

// all sends from the player are non-blocking, so the audio thread can never
// end up in a dead-lock
func (p *Player) report() {
	r := PlayerReport{Playing: p.playing, Position: p.pos}
	if p.current != nil {
		r.Length = p.current.Length
		if p.current.Synth != nil {
			r.Stats = p.current.Synth.Stats()
		}
	}
	TrySend(p.broker.ToModel, MsgToModel{HasReport: true, Report: r})
}

func (NullContext) NextEvent(frame int) (MIDINoteEvent, bool) { return MIDINoteEvent{}, false }

func (NullContext) FinishBlock(frame int) {}
