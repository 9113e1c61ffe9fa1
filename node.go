package synthcore

import "sync"

// BlockProducer is anything that can be pulled for one block of audio
// (§9 design note: capability interfaces replace a deep base-class
// chain). Generators and Sources both satisfy it, at their own
// channel counts.
type BlockProducer interface {
	Channels() int
	// Run writes exactly Channels()*BlockSize interleaved floats into
	// dst. Must not suspend, allocate, or acquire a lock held by an
	// external thread (§4.H).
	Run(dst []float32)
}

// Routable is anything with a router endpoint identity.
type Routable interface {
	EndpointID() uint64
}

// Pausable exposes an independently-faded pause gain axis, composed
// multiplicatively with user gain (GLOSSARY: "Pausable gain").
type Pausable interface {
	Pause()
	Resume()
	IsPaused() bool
}

// Generator produces one block of audio on demand (§3 Generator).
type Generator interface {
	BlockProducer
	PropertyHost
}

// Effect consumes audio arriving through the router and contributes to
// the final mix (§3 Effect / §4.H).
type Effect interface {
	PropertyHost
	// RunEffect mixes processed input into accumulator; may hold
	// inter-block state (delay lines, etc).
	RunEffect(input, accumulator []float32, channels int)
}

// pausableState is the delegate backing the Pausable capability,
// embedded by concrete Source implementations, grounded on the
// reference engine's BaseChannel delegation pattern (every concrete
// channel type embeds one BaseChannel that implements shared
// bookkeeping once).
type pausableState struct {
	mu     sync.Mutex
	paused bool
	gain   *fader
}

func newPausableState() *pausableState {
	return &pausableState{gain: newFader(1)}
}

func (p *pausableState) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused {
		p.paused = true
		p.gain.setValue(0)
	}
}

func (p *pausableState) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused {
		p.paused = false
		p.gain.setValue(1)
	}
}

func (p *pausableState) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// tick advances the pausable gain fader by one block and applies it to
// block in place (the pausable gain axis, composed multiplicatively
// with the source's own gain fader in fillBlock). channels must match
// how block is interleaved, since the fader's ramp is indexed per
// frame, not per raw sample.
func (p *pausableState) tick(block []float32, channels int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	applyFaderPerChannel(p.gain, block, channels)
}

// applyFaderPerChannel multiplies block (channels interleaved frames
// of BlockSize) by f's per-frame gain, advancing f's fade state
// afterward. A fader's ramp is defined per frame (§4.G); calling
// fader.ApplyGain directly on an interleaved multi-channel block would
// index the ramp by raw sample position instead, racing past the end
// of the block's frame count once channels > 1.
func applyFaderPerChannel(f *fader, block []float32, channels int) {
	if channels <= 1 {
		f.ApplyGain(block)
		return
	}
	if !f.IsFading() {
		g := f.Target()
		if g != 1 {
			for i := range block {
				block[i] *= g
			}
		}
		return
	}
	for frame := 0; frame < BlockSize; frame++ {
		g := f.Gain(frame)
		for c := 0; c < channels; c++ {
			block[frame*channels+c] *= g
		}
	}
	f.EndBlock()
}

// weakGeneratorRef is one entry in a Source's generator list: a weak
// reference plus the alive flag used to upgrade-or-remove it, per the
// "weak-vector iterate-removing" pattern (§4.H step 5).
type weakGeneratorRef struct {
	gen   Generator
	alive *aliveFlag
}

// generatorList implements the weak-vector iterate-removing pattern:
// Each lets the caller visit every still-live generator while
// compacting expired entries out of the backing slice in place.
type generatorList struct {
	mu    sync.Mutex
	items []weakGeneratorRef
}

func (l *generatorList) add(gen Generator, alive *aliveFlag) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, weakGeneratorRef{gen: gen, alive: alive})
}

func (l *generatorList) remove(gen Generator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, ref := range l.items {
		if ref.gen == gen {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return
		}
	}
}

// each upgrades every entry; expired ones are dropped from the slice
// as it iterates (the "removing" half of the pattern), and fn is
// invoked only for entries that are still live.
func (l *generatorList) each(fn func(Generator)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	live := l.items[:0]
	for _, ref := range l.items {
		if !ref.alive.Load() {
			continue
		}
		live = append(live, ref)
		fn(ref.gen)
	}
	l.items = live
}

// mixChannels up/down-mixes src (srcChannels interleaved frames of
// BlockSize) into dst (dstChannels interleaved frames of BlockSize),
// accumulating. Down-mix sums all source channels into each
// destination channel, scaled by 1/srcChannels to avoid clipping on
// collapse; up-mix replicates the source's channels round-robin
// across the wider destination layout. This is the channel-parametric
// rendering the spec's design notes (§9) prefer over 16 compile-time
// specializations.
func mixChannels(dst []float32, dstChannels int, src []float32, srcChannels int) {
	if dstChannels == srcChannels {
		for i := range dst {
			dst[i] += src[i]
		}
		return
	}
	for frame := 0; frame < BlockSize; frame++ {
		if srcChannels < dstChannels {
			for c := 0; c < dstChannels; c++ {
				dst[frame*dstChannels+c] += src[frame*srcChannels+(c%srcChannels)]
			}
		} else {
			scale := float32(1) / float32(srcChannels)
			var sum float32
			for c := 0; c < srcChannels; c++ {
				sum += src[frame*srcChannels+c]
			}
			for c := 0; c < dstChannels; c++ {
				dst[frame*dstChannels+c] += sum * scale
			}
		}
	}
}
