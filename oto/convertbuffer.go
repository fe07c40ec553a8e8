package oto

import (
	"encoding/binary"
	"math"

	"github.com/brainwash-synth/brainwash"
)

// FloatBufferTo16BitLE converts a stereo float buffer to interleaved 16-bit
// little-endian samples, appending them to out. Values outside [-1, 1] are
// clipped.
func FloatBufferTo16BitLE(buff brainwash.AudioBuffer, out []byte) []byte {
	for _, s := range buff {
		for _, v := range s {
			var uv int16
			if v < -1.0 {
				uv = -math.MaxInt16
			} else if v > 1.0 {
				uv = math.MaxInt16
			} else {
				uv = int16(v * math.MaxInt16)
			}
			out = binary.LittleEndian.AppendUint16(out, uint16(uv))
		}
	}
	return out
}
