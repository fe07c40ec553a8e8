// Package oto plays audio on the default output device through
// github.com/ebitengine/oto/v3.
package oto

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/ebitengine/oto/v3"
)

type (
	// OtoContext is a brainwash.AudioContext on the default output device.
	// Only one may exist per process.
	OtoContext struct {
		context *oto.Context
	}

	// OtoPlayer pulls audio from an AudioSource until closed or until the
	// source fails.
	OtoPlayer struct {
		player *oto.Player
		reader *sourceReader
	}

	sourceReader struct {
		source brainwash.AudioSource
		buf    brainwash.AudioBuffer
		mu     sync.Mutex
		err    error
		done   chan struct{}
		once   sync.Once
	}
)

const bytesPerFrame = 4 // two channels of int16

// DefaultBufferSize is the latency of the device buffer.
const DefaultBufferSize = 50 * time.Millisecond

// NewContext opens the output device. A bufferSize of zero uses
// DefaultBufferSize.
func NewContext(bufferSize time.Duration) (*OtoContext, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   brainwash.SampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   bufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &OtoContext{context: context}, nil
}

// Play starts pulling audio from the source on the device's goroutine.
func (c *OtoContext) Play(source brainwash.AudioSource) brainwash.CloserWaiter {
	r := &sourceReader{source: source, done: make(chan struct{})}
	p := &OtoPlayer{player: c.context.NewPlayer(r), reader: r}
	p.player.Play()
	return p
}

// Suspend pauses the device, e.g. while the program is in the background.
func (c *OtoContext) Suspend() error {
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

func (c *OtoContext) Resume() error {
	if err := c.context.Resume(); err != nil {
		return fmt.Errorf("cannot resume oto context: %w", err)
	}
	return nil
}

// Close stops the playback and disposes of the player.
func (o *OtoPlayer) Close() error {
	o.reader.finish(nil)
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}

// Wait blocks until the player is closed or the source fails, and returns
// the error of the source.
func (o *OtoPlayer) Wait() error {
	<-o.reader.done
	o.reader.mu.Lock()
	defer o.reader.mu.Unlock()
	return o.reader.err
}

func (r *sourceReader) Read(p []byte) (int, error) {
	select {
	case <-r.done:
		return 0, io.EOF
	default:
	}
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(r.buf) < frames {
		r.buf = make(brainwash.AudioBuffer, frames)
	}
	buf := r.buf[:frames]
	if err := r.source(buf); err != nil {
		r.finish(err)
		return 0, io.EOF
	}
	return len(FloatBufferTo16BitLE(buf, p[:0])), nil
}

func (r *sourceReader) finish(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
	})
}
