package tracker_test

import (
	"math"
	"testing"
	"time"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/tracker"
)

func sine(n int, amp float64) *brainwash.AudioBuffer {
	buf := make(brainwash.AudioBuffer, n)
	for i := range buf {
		v := float32(amp * math.Sin(2*math.Pi*441*float64(i)/brainwash.SampleRate))
		buf[i] = [2]float32{v, v / 2}
	}
	return &buf
}

func detectorResult(t *testing.T, b *tracker.Broker) tracker.DetectorResult {
	t.Helper()
	for {
		msg, ok := tracker.TimeoutReceive(b.ToModel, time.Second)
		if !ok {
			t.Fatalf("detector did not report")
		}
		if msg.HasDetectorResult {
			return msg.DetectorResult
		}
	}
}

func TestDetectorLevels(t *testing.T) {
	broker := tracker.NewBroker()
	detector := tracker.NewDetector(broker)
	go detector.Run()
	defer func() {
		broker.CloseDetector <- struct{}{}
		<-broker.FinishedDetector
	}()
	broker.ToDetector <- tracker.MsgToDetector{Data: sine(brainwash.SampleRate/10, 1)}
	r := detectorResult(t, broker)
	if math.Abs(float64(r.Peak[0])) > 0.1 {
		t.Errorf("left peak = %v dB, want 0 dB", r.Peak[0])
	}
	if math.Abs(float64(r.Peak[1])+6.02) > 0.1 {
		t.Errorf("right peak = %v dB, want -6 dB", r.Peak[1])
	}
	// the momentary window holds four chunks, one of them a full sine
	wantRMS := 20 * math.Log10(math.Sqrt(0.5/4))
	if math.Abs(float64(r.RMS[0])-wantRMS) > 0.1 {
		t.Errorf("left rms = %v dB, want %v dB", r.RMS[0], wantRMS)
	}
}

func TestDetectorWaitsForFullChunk(t *testing.T) {
	broker := tracker.NewBroker()
	detector := tracker.NewDetector(broker)
	go detector.Run()
	defer func() {
		broker.CloseDetector <- struct{}{}
		<-broker.FinishedDetector
	}()
	broker.ToDetector <- tracker.MsgToDetector{Data: sine(1000, 1)}
	if _, ok := tracker.TimeoutReceive(broker.ToModel, 50*time.Millisecond); ok {
		t.Fatalf("detector reported before a full chunk")
	}
	broker.ToDetector <- tracker.MsgToDetector{Data: sine(brainwash.SampleRate/10, 0.5)}
	r := detectorResult(t, broker)
	if r.MaxPeak[0] > 0.1 || r.MaxPeak[0] < -6.1 {
		t.Errorf("max peak = %v dB, want between -6 and 0 dB", r.MaxPeak[0])
	}
}

func TestDetectorReset(t *testing.T) {
	broker := tracker.NewBroker()
	detector := tracker.NewDetector(broker)
	go detector.Run()
	defer func() {
		broker.CloseDetector <- struct{}{}
		<-broker.FinishedDetector
	}()
	broker.ToDetector <- tracker.MsgToDetector{Data: sine(brainwash.SampleRate/10, 1)}
	detectorResult(t, broker)
	silence := make(brainwash.AudioBuffer, brainwash.SampleRate/10)
	broker.ToDetector <- tracker.MsgToDetector{Reset: true, Data: &silence}
	r := detectorResult(t, broker)
	if r.Peak[0] != tracker.Silence || r.MaxPeak[0] != tracker.Silence {
		t.Errorf("levels after reset = %+v, want silence", r)
	}
}
