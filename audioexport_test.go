package brainwash_test

import (
	"encoding/binary"
	"testing"

	"github.com/brainwash-synth/brainwash"
)

func TestWavHeader(t *testing.T) {
	buf := make(brainwash.AudioBuffer, 100)
	buf[0] = [2]float32{1, -1}
	for _, pcm16 := range []bool{false, true} {
		wav, err := buf.Wav(pcm16)
		if err != nil {
			t.Fatalf("Wav failed: %v", err)
		}
		bytesPerSample := 4
		if pcm16 {
			bytesPerSample = 2
		}
		want := brainwash.WavHeaderSize(pcm16) + len(buf)*2*bytesPerSample
		if len(wav) != want {
			t.Fatalf("pcm16=%v: wav length %v, want %v", pcm16, len(wav), want)
		}
		if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
			t.Fatalf("pcm16=%v: missing RIFF/WAVE tags", pcm16)
		}
		if riff := binary.LittleEndian.Uint32(wav[4:8]); int(riff) != len(wav)-8 {
			t.Fatalf("pcm16=%v: RIFF chunk size %v, want %v", pcm16, riff, len(wav)-8)
		}
		header := brainwash.WavHeaderSize(pcm16)
		if string(wav[header-8:header-4]) != "data" {
			t.Fatalf("pcm16=%v: data tag not where expected", pcm16)
		}
		if data := binary.LittleEndian.Uint32(wav[header-4 : header]); int(data) != len(buf)*2*bytesPerSample {
			t.Fatalf("pcm16=%v: data chunk size %v", pcm16, data)
		}
	}
}

func TestRawPCM16Clamps(t *testing.T) {
	buf := brainwash.AudioBuffer{{2, -2}, {0.5, 0}}
	raw, err := buf.Raw(true)
	if err != nil {
		t.Fatalf("Raw failed: %v", err)
	}
	got := []int16{
		int16(binary.LittleEndian.Uint16(raw[0:])),
		int16(binary.LittleEndian.Uint16(raw[2:])),
		int16(binary.LittleEndian.Uint16(raw[4:])),
	}
	want := []int16{32767, -32768, 16383}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %v = %v, want %v", i, got[i], want[i])
		}
	}
}
