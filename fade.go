package synthcore

// fader drives a linear crossfade of a single scalar across one block
// (component G). setValue installs a new target at the current block
// boundary; Gain(i) yields the interpolated value for sample i without
// branching once the fade's state is known, per §4.G's "cheap and
// branchless" requirement.
type fader struct {
	previous float32 // value at the start of the fade's installing block
	current  float32 // value once the fade completes
	fading   bool    // true only for the block the fade was installed in
}

func newFader(initial float32) *fader {
	return &fader{previous: initial, current: initial}
}

// setValue installs target as the new value. If target differs from
// the current value, the change fades in linearly across the next
// block (§4.D crossfading); an identical value is idempotent and does
// not restart a fade (§8 crossfade-idempotence property).
func (f *fader) setValue(target float32) {
	if target == f.current {
		f.fading = false
		return
	}
	f.previous = f.current
	f.current = target
	f.fading = true
}

// Gain returns the interpolated value for sample index i within the
// block in which the fade was installed; beyond that block the caller
// must call EndBlock first.
func (f *fader) Gain(i int) float32 {
	if !f.fading {
		return f.current
	}
	t := float32(i+1) / float32(BlockSize)
	return f.previous + (f.current-f.previous)*t
}

// Target returns the value the fade is heading toward (or holding, if
// not fading), for property-get round-trips (§4.D read path).
func (f *fader) Target() float32 { return f.current }

// EndBlock clears the fading flag once a block using this fader's
// ramp has been fully rendered, so the next block holds the value
// constant per §4.G ("Holds value constant thereafter").
func (f *fader) EndBlock() {
	f.fading = false
}

// IsFading reports whether the current block is still ramping.
func (f *fader) IsFading() bool { return f.fading }

// ApplyGain multiplies block (length BlockSize, one channel) in place
// by this fader's per-sample gain, advancing EndBlock afterward. This
// is the sample-by-sample gain application named in §4.H step 6.
func (f *fader) ApplyGain(block []float32) {
	if !f.fading {
		if f.current != 1 {
			for i := range block {
				block[i] *= f.current
			}
		}
		return
	}
	for i := range block {
		block[i] *= f.Gain(i)
	}
	f.EndBlock()
}
