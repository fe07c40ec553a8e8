package dsp

import "github.com/brainwash-synth/brainwash"

const (
	envStateIdle = iota
	envStateAttack
	envStateDecay
	envStateSustain
	envStateRelease
)

// ADSR is a linear attack-decay-sustain-release envelope. It is driven purely
// by its gate input: a rising edge (compared to the previous sample's gate)
// restarts the attack from the current level, a falling edge starts the
// release.
type ADSR struct {
	state    int
	level    float32
	lastGate bool
	// release slope, fixed when the release starts so the release always
	// lasts the Rel time regardless of the level it started from
	releaseStep float32
}

func (a *ADSR) Reset() { *a = ADSR{} }

// Idle tells if the envelope has finished its release (or never started).
func (a *ADSR) Idle() bool { return a.state == envStateIdle }

// Step advances the envelope by one sample. Times are in seconds.
func (a *ADSR) Step(gate, attack, decay, sustain, release float32) float32 {
	high := gate > 0.5
	sustain = clamp(sustain, 0, 1)
	switch {
	case high && !a.lastGate:
		a.state = envStateAttack
	case !high && a.lastGate && a.state != envStateIdle:
		a.state = envStateRelease
		a.releaseStep = a.level / samples(release)
	}
	a.lastGate = high
	switch a.state {
	case envStateAttack:
		a.level += 1 / samples(attack)
		if a.level >= 1 {
			a.level = 1
			a.state = envStateDecay
		}
	case envStateDecay:
		a.level -= (1 - sustain) / samples(decay)
		if a.level <= sustain {
			a.level = sustain
			a.state = envStateSustain
		}
	case envStateSustain:
		a.level = sustain
	case envStateRelease:
		a.level -= a.releaseStep
		if a.level <= 0 || a.releaseStep <= 0 {
			a.level = 0
			a.state = envStateIdle
		}
	}
	return a.level
}

// samples converts seconds to a sample count of at least one.
func samples(sec float32) float32 {
	return max(sec*brainwash.SampleRate, 1)
}
