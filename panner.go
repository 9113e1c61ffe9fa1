package synthcore

import (
	"math"
	"sync"
)

// PannerStrategy selects which concrete panner implementation backs a
// lane. Numbered to match the original engine's SYZ_PANNER_STRATEGY
// enum (HRTF=0, STEREO=1) so property round-trips agree with it. The
// HRTF convolution kernel itself is an explicit non-goal; here it
// degrades to the same constant-power stereo law, which is a
// legitimate fallback strategy and keeps the lane-allocation contract
// (and the strategy switch itself) exercised without inventing HRTF
// filter coefficients.
type PannerStrategy int

const (
	PannerHRTF PannerStrategy = iota
	PannerStereo
)

// Lane is a source's reserved slot in a panner: a mono scratch input
// and its spatial parameters. A lane is addressed either by a plain
// pan scalar (manual stereo balance) or by an azimuth/elevation pair
// (panned and spatial sources); scalarMode selects which one Render
// consults. Source writes call WriteMono once per block; the panner
// bank mixes every live lane into the Context's direct buffer during
// its own render step.
type Lane struct {
	bank     *PannerBank
	strategy PannerStrategy
	index    int

	mono [BlockSize]float32

	scalarMode bool
	pan        float32 // [-1, 1], used when scalarMode is set
	azimuth    float64 // degrees, [-180, 180], used otherwise
	elevation  float64 // degrees, [-90, 90]

	// left/right crossfade the stereo gain pair pan/azimuth map to, so
	// a pan or angle change ramps over one block instead of jumping at
	// the next sample (§4.D crossfading: "setters that map to
	// filters/panners/gains" fade via the double-buffered ramp).
	left  *fader
	right *fader
}

// WriteMono copies src (length BlockSize) into the lane's scratch
// input. Called from the owning Source's fillBlock.
func (l *Lane) WriteMono(src []float32) {
	copy(l.mono[:], src)
}

// SetPan updates the lane's manual stereo pan scalar and switches it
// into scalar mode, overriding any azimuth/elevation previously set.
// The resulting stereo gain pair crossfades in over the next block
// rather than applying immediately (§4.D).
func (l *Lane) SetPan(pan float32) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	l.pan = pan
	l.scalarMode = true
	l.retarget()
}

// SetPanningAngles updates the lane's azimuth/elevation and switches
// it into angle mode, overriding any manual pan scalar previously
// set. Used by panned and spatial sources (§3, §4.F's "pair of
// angles... or a unit direction vector"). The resulting stereo gain
// pair crossfades in over the next block rather than applying
// immediately (§4.D).
func (l *Lane) SetPanningAngles(azimuth, elevation float64) {
	l.azimuth = azimuth
	l.elevation = elevation
	l.scalarMode = false
	l.retarget()
}

// retarget recomputes this lane's constant-power stereo gain pair from
// its current pan/azimuth and installs it as the left/right fader
// targets, so the change ramps in over one block instead of jumping at
// the very next sample.
func (l *Lane) retarget() {
	pan := l.pan
	if !l.scalarMode {
		pan = azimuthToPan(l.azimuth)
	}
	left, right := constantPowerGains(pan)
	l.left.setValue(left)
	l.right.setValue(right)
}

// Release frees the lane back to its panner, making room for a new
// allocation.
func (l *Lane) Release() {
	l.bank.releaseLane(l)
}

// PannerBank owns the concrete panner implementations and lane
// allocation (component F). Lane allocation and release happen only
// from the audio thread (inside command execution or fillBlock), so a
// plain mutex is defensive rather than load-bearing; it exists so
// tests may allocate lanes concurrently without races.
type PannerBank struct {
	mu    sync.Mutex
	lanes map[PannerStrategy][]*Lane
}

func newPannerBank() *PannerBank {
	return &PannerBank{lanes: make(map[PannerStrategy][]*Lane)}
}

// AllocateLane reserves a lane on the given strategy's panner. Returns
// KindResourceExhausted once PannerMaxLanes lanes are already live for
// that strategy, per §4.F ("caller must degrade to a simpler
// strategy").
func (b *PannerBank) AllocateLane(strategy PannerStrategy) (*Lane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing := b.lanes[strategy]
	if len(existing) >= PannerMaxLanes {
		return nil, newErr(KindResourceExhausted, "panner lane exhausted")
	}
	left, right := constantPowerGains(0)
	lane := &Lane{bank: b, strategy: strategy, index: len(existing), left: newFader(left), right: newFader(right)}
	b.lanes[strategy] = append(existing, lane)
	return lane, nil
}

func (b *PannerBank) releaseLane(l *Lane) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lanes := b.lanes[l.strategy]
	for i, candidate := range lanes {
		if candidate == l {
			b.lanes[l.strategy] = append(lanes[:i], lanes[i+1:]...)
			return
		}
	}
}

// Render mixes every live lane's stereo contribution into dst, a
// direct-buffer view of BlockSize frames times channels (only
// channels==2 is meaningfully spatialized; wider layouts receive the
// stereo pair in their first two channels, matching the "degrade to a
// simpler strategy" guidance for anything beyond stereo/HRTF).
func (b *PannerBank) Render(dst []float32, channels int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lanes := range b.lanes {
		for _, lane := range lanes {
			if !lane.left.IsFading() {
				left, right := lane.left.Target(), lane.right.Target()
				for i := 0; i < BlockSize; i++ {
					s := lane.mono[i]
					base := i * channels
					if channels >= 1 {
						dst[base] += s * left
					}
					if channels >= 2 {
						dst[base+1] += s * right
					}
				}
				continue
			}
			for i := 0; i < BlockSize; i++ {
				s := lane.mono[i]
				base := i * channels
				left, right := lane.left.Gain(i), lane.right.Gain(i)
				if channels >= 1 {
					dst[base] += s * left
				}
				if channels >= 2 {
					dst[base+1] += s * right
				}
			}
			lane.left.EndBlock()
			lane.right.EndBlock()
		}
	}
}

// constantPowerGains implements the stereo panner's constant-power law
// named in §4.F: theta = (pan+1)*pi/4; left = cos(theta); right =
// sin(theta).
func constantPowerGains(pan float32) (left, right float32) {
	theta := float64(pan+1) * math.Pi / 4
	return float32(math.Cos(theta)), float32(math.Sin(theta))
}

// azimuthToPan collapses an azimuth in degrees down to the stereo
// law's [-1, 1] pan scalar: straight ahead (0°) is centered, and the
// full left/right extremes are reached by ±90° (the constant-power
// law's own substitute for a true HRTF image, since the convolution
// kernel itself is an explicit non-goal).
func azimuthToPan(azimuth float64) float32 {
	pan := float32(azimuth / 90)
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	return pan
}

// LaneCount reports how many lanes are currently live for strategy,
// for tests and debug snapshots.
func (b *PannerBank) LaneCount(strategy PannerStrategy) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lanes[strategy])
}
