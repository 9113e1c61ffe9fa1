package synthcore

// Property ids for generators.
const (
	PropLooping int = iota + 100
	PropPitch
)

var bufferGeneratorDescriptors = []PropertyDescriptor{
	{ID: PropLooping, Kind: KindPropInt, Min: 0, Max: 1},
	{ID: PropPitch, Kind: KindPropDouble, Min: 0.0625, Max: 16},
}

// BufferGenerator pulls PCM from a shared, immutable Buffer (§3
// Generator: "optional backing Buffer reference"). Pitch is not
// resampled here (resampling is DSP-primitive territory, §1
// non-goals); PropPitch exists on the descriptor list to exercise the
// property round-trip but currently only affects GetProperty/
// SetProperty, not playback rate.
type BufferGenerator struct {
	alive *aliveFlag

	buf      *Buffer
	channels int
	cursor   int
	looping  bool
	pitch    float64

	// onLooped/onFinished, if set, are called from Run (the audio
	// thread) when the buffer wraps or is exhausted; Context wires
	// these to push LOOPED/FINISHED events (§6 Events) rather than
	// letting the generator touch the event queue directly.
	onLooped   func()
	onFinished func()
}

func (g *BufferGenerator) handleKind() handleKind { return handleKindGenerator }

func (g *BufferGenerator) weakAlive() *aliveFlag { return g.alive }

// destroy marks the generator expired and drops the callbacks Context
// wired into it, breaking their closure's reference back to Context.
// Called exactly once, one block after the generator's handle is
// freed (§8 scenario 4).
func (g *BufferGenerator) destroy() {
	g.alive.Clear()
	g.onLooped = nil
	g.onFinished = nil
}

// NewBufferGenerator creates a generator reading buf from frame 0.
func NewBufferGenerator(buf *Buffer) *BufferGenerator {
	return &BufferGenerator{alive: newAliveFlag(), buf: buf, channels: buf.Channels(), pitch: 1}
}

func (g *BufferGenerator) Channels() int { return g.channels }

func (g *BufferGenerator) Run(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	if g.buf.Frames() == 0 {
		return
	}
	n := g.buf.ReadInto(dst, g.cursor, BlockSize)
	g.cursor += n
	if g.cursor >= g.buf.Frames() {
		if g.looping {
			g.cursor = 0
			remaining := BlockSize - n
			if remaining > 0 {
				more := g.buf.ReadInto(dst[n*g.channels:], 0, remaining)
				g.cursor = more
			}
			if g.onLooped != nil {
				g.onLooped()
			}
		} else if g.onFinished != nil {
			g.onFinished()
		}
	}
}

func (g *BufferGenerator) Descriptors() []PropertyDescriptor { return bufferGeneratorDescriptors }

func (g *BufferGenerator) GetProperty(id int) (PropertyValue, error) {
	switch id {
	case PropLooping:
		v := int64(0)
		if g.looping {
			v = 1
		}
		return PropertyValue{Kind: KindPropInt, IntVal: v}, nil
	case PropPitch:
		return PropertyValue{Kind: KindPropDouble, DoubleVal: g.pitch}, nil
	default:
		return PropertyValue{}, newErr(KindPropertyDoesNotExist, "no such property on BufferGenerator")
	}
}

func (g *BufferGenerator) SetProperty(id int, v PropertyValue) error {
	switch id {
	case PropLooping:
		g.looping = v.IntVal != 0
		return nil
	case PropPitch:
		g.pitch = v.DoubleVal
		return nil
	default:
		return newErr(KindPropertyDoesNotExist, "no such property on BufferGenerator")
	}
}

// ConstantGenerator emits a fixed value on every sample of every
// channel. Used as the synthetic generator named in §8's pass-through
// and gain-crossfade end-to-end scenarios.
type ConstantGenerator struct {
	alive    *aliveFlag
	channels int
	value    float32
}

func (g *ConstantGenerator) handleKind() handleKind { return handleKindGenerator }

func (g *ConstantGenerator) weakAlive() *aliveFlag { return g.alive }

func (g *ConstantGenerator) destroy() { g.alive.Clear() }

func NewConstantGenerator(channels int, value float32) *ConstantGenerator {
	return &ConstantGenerator{alive: newAliveFlag(), channels: channels, value: value}
}

func (g *ConstantGenerator) Channels() int { return g.channels }

func (g *ConstantGenerator) Run(dst []float32) {
	for i := range dst {
		dst[i] = g.value
	}
}

func (g *ConstantGenerator) Descriptors() []PropertyDescriptor { return nil }

func (g *ConstantGenerator) GetProperty(id int) (PropertyValue, error) {
	return PropertyValue{}, newErr(KindPropertyDoesNotExist, "ConstantGenerator has no properties")
}

func (g *ConstantGenerator) SetProperty(id int, v PropertyValue) error {
	return newErr(KindPropertyDoesNotExist, "ConstantGenerator has no properties")
}
