package tracker

import (
	"math"

	"github.com/brainwash-synth/brainwash"
	"github.com/viterin/vek/vek32"
)

type (
	// Detector measures the level of the rendered audio. It runs in its own
	// goroutine, receiving copies of the player's buffers through the broker
	// and sending the results to the model.
	Detector struct {
		broker  *Broker
		levels  [2]levelDetector
		history brainwash.AudioBuffer
		tmp     []float32
	}

	Decibel float32

	// DetectorResult is the level of the last chunk of audio, per channel.
	// The momentary values are over the last 400 ms; MaxPeak is over
	// everything since the last reset.
	DetectorResult struct {
		Peak    [2]Decibel
		MaxPeak [2]Decibel
		RMS     [2]Decibel
	}

	levelDetector struct {
		peaks   RingBuffer[float32]
		powers  RingBuffer[float32]
		maxPeak float32
	}

	// RingBuffer is a generic ring buffer with buffer and a cursor.
	RingBuffer[T any] struct {
		Buffer []T
		Cursor int
	}
)

// chunkLength is 100 ms; the momentary window is four chunks.
const (
	chunkLength     = brainwash.SampleRate / 10
	momentaryChunks = 4
)

// Silence is the level reported for digital silence.
const Silence Decibel = -200

func NewDetector(b *Broker) *Detector {
	d := &Detector{broker: b, tmp: make([]float32, chunkLength)}
	for i := range d.levels {
		d.levels[i] = levelDetector{
			peaks:  RingBuffer[float32]{Buffer: make([]float32, momentaryChunks)},
			powers: RingBuffer[float32]{Buffer: make([]float32, momentaryChunks)},
		}
	}
	return d
}

// Run processes messages until CloseDetector receives a message, then closes
// FinishedDetector.
func (d *Detector) Run() {
	defer close(d.broker.FinishedDetector)
	for {
		select {
		case <-d.broker.CloseDetector:
			return
		case msg := <-d.broker.ToDetector:
			d.handle(msg)
		}
	}
}

func (d *Detector) handle(msg MsgToDetector) {
	if msg.Reset {
		d.reset()
	}
	switch data := msg.Data.(type) {
	case *brainwash.AudioBuffer:
		buf := *data
		for len(buf) > 0 {
			n := min(len(buf), chunkLength-len(d.history))
			d.history = append(d.history, buf[:n]...)
			buf = buf[n:]
			if len(d.history) < chunkLength {
				break
			}
			TrySend(d.broker.ToModel, MsgToModel{
				HasDetectorResult: true,
				DetectorResult:    d.update(d.history),
			})
			d.history = d.history[:0]
		}
		d.broker.PutAudioBuffer(data)
	case func():
		data()
	}
}

func (d *Detector) update(chunk brainwash.AudioBuffer) (ret DetectorResult) {
	x := d.tmp[:len(chunk)]
	for chn := range d.levels {
		for i := range chunk {
			x[i] = chunk[i][chn]
		}
		l := &d.levels[chn]
		l.powers.WriteWrapSingle(vek32.Dot(x, x) / float32(len(x)))
		vek32.Abs_Inplace(x)
		p := vek32.Max(x)
		l.peaks.WriteWrapSingle(p)
		l.maxPeak = max(l.maxPeak, p)
		ret.Peak[chn] = amplitude2decibel(vek32.Max(l.peaks.Buffer))
		ret.MaxPeak[chn] = amplitude2decibel(l.maxPeak)
		ret.RMS[chn] = amplitude2decibel(float32(math.Sqrt(float64(vek32.Mean(l.powers.Buffer)))))
	}
	return ret
}

func (d *Detector) reset() {
	d.history = d.history[:0]
	for i := range d.levels {
		l := &d.levels[i]
		clear(l.peaks.Buffer)
		clear(l.powers.Buffer)
		l.peaks.Cursor, l.powers.Cursor = 0, 0
		l.maxPeak = 0
	}
}

func amplitude2decibel(a float32) Decibel {
	if a <= 0 {
		return Silence
	}
	return max(Decibel(20*math.Log10(float64(a))), Silence)
}

func (r *RingBuffer[T]) WriteWrapSingle(value T) {
	r.Cursor = (r.Cursor + 1) % len(r.Buffer)
	r.Buffer[r.Cursor] = value
}
