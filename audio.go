package brainwash

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length, each
	// sample represented by [2]float32. [0] is left channel, [1] is right.
	AudioBuffer [][2]float32

	// AudioSource fills the buffer with audio. Returning an error stops the
	// audio device from asking for more.
	AudioSource func(buf AudioBuffer) error

	// AudioContext represents a low-level audio output device. Play starts
	// pulling audio from the source in a separate goroutine; the returned
	// CloserWaiter stops it.
	AudioContext interface {
		Play(source AudioSource) CloserWaiter
	}

	// CloserWaiter can be closed and waited for until the closing is done.
	// Wait returns the error that ended the playback, if any.
	CloserWaiter interface {
		Close() error
		Wait() error
	}

	// AudioRenderer is anything that can render audio into a buffer without
	// failing, e.g. the voice manager.
	AudioRenderer interface {
		Render(buf AudioBuffer)
	}
)

// SampleRate is the sample rate of all audio rendered and played, in Hz.
const SampleRate = 44100

// Fill renders the whole buffer with the renderer.
func (b AudioBuffer) Fill(r AudioRenderer) {
	r.Render(b)
}

// Clear zeroes all samples of the buffer.
func (b AudioBuffer) Clear() {
	clear(b)
}
