package tracker

import (
	"fmt"

	"github.com/brainwash-synth/brainwash"
)

// renderBlock is the buffer size used for offline rendering.
const renderBlock = 1024

// RenderLoops renders the patch offline, playing the track loops times from
// the beginning, exactly as the player would play it live.
func RenderLoops(p *brainwash.Patch, opts SynthOptions, loops int) (brainwash.AudioBuffer, error) {
	if loops < 1 {
		return nil, fmt.Errorf("loops must be at least 1, got %d", loops)
	}
	b, err := Compile(p, opts)
	if err != nil {
		return nil, err
	}
	player := NewPlayer(NewBroker())
	player.Publish(b.Snapshot)
	player.Play()
	ret := make(brainwash.AudioBuffer, b.Snapshot.Length*loops)
	for buf := ret; len(buf) > 0; {
		n := min(len(buf), renderBlock)
		player.Process(buf[:n], NullContext{})
		buf = buf[n:]
	}
	return ret, nil
}
