package brainwash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wav converts the buffer into a .wav file, either 16-bit integer or 32-bit
// float samples.
func (b AudioBuffer) Wav(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteWav(buf, pcm16); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWav writes the .wav header and the samples to w.
func (b AudioBuffer) WriteWav(w io.Writer, pcm16 bool) error {
	if err := wavHeader(len(b)*2, pcm16, w); err != nil {
		return fmt.Errorf("could not write wav header: %w", err)
	}
	if err := b.WriteRaw(w, pcm16); err != nil {
		return fmt.Errorf("Wav failed: %w", err)
	}
	return nil
}

// Raw converts the buffer into interleaved little-endian samples without any
// header.
func (b AudioBuffer) Raw(pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := b.WriteRaw(buf, pcm16); err != nil {
		return nil, fmt.Errorf("Raw failed: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteRaw writes interleaved little-endian samples to w.
func (b AudioBuffer) WriteRaw(w io.Writer, pcm16 bool) error {
	var err error
	if pcm16 {
		int16data := make([][2]int16, len(b))
		for i, v := range b {
			int16data[i][0] = int16(clamp(int(v[0]*math.MaxInt16), math.MinInt16, math.MaxInt16))
			int16data[i][1] = int16(clamp(int(v[1]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(w, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(w, binary.LittleEndian, b)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data: %w", err)
	}
	return nil
}

// WavHeaderSize returns the size in bytes of the header written before the
// samples.
func WavHeaderSize(pcm16 bool) int {
	if pcm16 {
		return 44
	}
	return 58
}

// wavHeader writes a wave header for either float32 or int16 .wav file. It
// needs to know the length of the buffer and assumes stereo sound, so the
// length in stereo samples (L + R) is bufferlength / 2. If pcm16 = true, then
// the header is for int16 audio; pcm16 = false means the header is for float32
// audio.
func wavHeader(bufferLength int, pcm16 bool, w io.Writer) error {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	fields := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(chunkSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(fmtChunkSize),
		uint16(waveFormat),
		uint16(numChannels),
		uint32(SampleRate),
		uint32(SampleRate * numChannels * bytesPerSample), // avgBytesPerSec
		uint16(numChannels * bytesPerSample),              // blockAlign
		uint16(8 * bytesPerSample),                        // bits per sample
	}
	if fmtChunkSize > 16 {
		fields = append(fields, uint16(0)) // size of extension
	}
	if factChunk {
		fields = append(fields, [4]byte{'f', 'a', 'c', 't'}, uint32(4), uint32(bufferLength/numChannels))
	}
	fields = append(fields, [4]byte{'d', 'a', 't', 'a'}, uint32(bytesPerSample*bufferLength))
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
