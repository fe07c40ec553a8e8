package tracker

import (
	"sync"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/vm"
)

type (
	// Broker is the centralized message broker between the control actor (the
	// model), the audio actor (the player) and the level detector. Every
	// recipient has its own channel, so the communication is many-to-one.
	// Additionally, the broker has a sync.Pool of *brainwash.AudioBuffers, so
	// the player can pass copies of the rendered audio around without
	// allocating new memory every time.
	//
	// The player never blocks on the broker: everything it sends goes through
	// TrySend and is dropped if the recipient is lagging behind.
	//
	// For closing the detector goroutine, the broker has two channels:
	// CloseDetector and FinishedDetector. CloseDetector has a capacity of 1, so
	// an empty message can always be sent to it without blocking; if it is
	// already full, someone else has already requested the closure.
	// FinishedDetector is closed when the detector has finished:
	//    select {
	//      case <-FinishedDetector:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToModel    chan MsgToModel
		ToPlayer   chan any // NoteOnMsg, NoteOffMsg, PanicMsg or func()
		ToDetector chan MsgToDetector

		CloseDetector    chan struct{}
		FinishedDetector chan struct{}

		bufferPool sync.Pool
	}

	// MsgToModel is a message sent to the model. The frequently sent player
	// report and detector results are not boxed, to avoid allocations. The
	// rare messages (Alerts) are boxed in Data.
	MsgToModel struct {
		HasReport bool
		Report    PlayerReport

		HasDetectorResult bool
		DetectorResult    DetectorResult

		Data any
	}

	// PlayerReport is what the player tells about itself after each buffer.
	PlayerReport struct {
		Playing  bool
		Position int // samples since the start of the loop
		Length   int // loop length in samples
		Stats    vm.Stats
	}

	// MsgToDetector is a message sent to the detector: a *brainwash.AudioBuffer
	// to analyze, or a func() to run on the detector goroutine.
	MsgToDetector struct {
		Reset bool
		Data  any
	}

	// NoteOnMsg starts a live note, e.g. from the computer keyboard.
	NoteOnMsg struct {
		ID   int
		Freq float32
	}

	// NoteOffMsg releases a live note.
	NoteOffMsg struct {
		ID int
	}

	// PanicMsg silences all voices immediately.
	PanicMsg struct{}
)

// AudioBufferCap is the capacity of the pooled audio buffers. Copies of
// device buffers up to this long never grow a pooled buffer on the audio
// thread.
const AudioBufferCap = 4096

// pooledBuffers are put in the pool up front, enough for the detector to lag a
// few buffers behind. The pool may still drop them on garbage collection; then
// the player allocates a replacement of full capacity once.
const pooledBuffers = 8

func NewBroker() *Broker {
	b := &Broker{
		ToModel:          make(chan MsgToModel, 1024),
		ToPlayer:         make(chan any, 1024),
		ToDetector:       make(chan MsgToDetector, 1024),
		CloseDetector:    make(chan struct{}, 1),
		FinishedDetector: make(chan struct{}),
		bufferPool:       sync.Pool{New: newAudioBuffer},
	}
	for range pooledBuffers {
		b.bufferPool.Put(newAudioBuffer())
	}
	return b
}

func newAudioBuffer() any {
	buf := make(brainwash.AudioBuffer, 0, AudioBufferCap)
	return &buf
}

// GetAudioBuffer returns an audio buffer from the buffer pool. The buffer is
// guaranteed to be empty. After using the buffer, it should be returned to the
// pool with PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *brainwash.AudioBuffer {
	return b.bufferPool.Get().(*brainwash.AudioBuffer)
}

// PutAudioBuffer returns an audio buffer to the buffer pool. Its length is
// reset, but the capacity kept.
func (b *Broker) PutAudioBuffer(buf *brainwash.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
