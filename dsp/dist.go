package dsp

// Distortion is a waveshaper followed by a DC blocker, so asymmetric shaping
// does not leave an offset in the signal.
type Distortion struct {
	dcX1, dcY1 float32
}

func (d *Distortion) Reset() { *d = Distortion{} }

// Step shapes the input. drive in [0.1, 0.5] sets how hard the shaper clips;
// gain scales the result.
func (d *Distortion) Step(in, drive, gain float32) float32 {
	amount := min(0.5+max(drive, 0), 0.99)
	y := Waveshape(Clip(in), amount)
	out := y - d.dcX1 + 0.995*d.dcY1
	d.dcX1, d.dcY1 = y, out
	return out * gain
}

// Waveshape bends the value towards the limits when amount > 0.5 and away
// from them when amount < 0.5. Amount 0.5 passes the value through.
func Waveshape(value, amount float32) float32 {
	absVal := value
	if absVal < 0 {
		absVal = -absVal
	}
	return value * amount / (1 - amount + (2*amount-1)*absVal)
}

func Clip(value float32) float32 {
	if value < -1 {
		return -1
	}
	if value > 1 {
		return 1
	}
	return value
}
