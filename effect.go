package synthcore

// globalEffectSlot pairs a registered GlobalEffect with the liveness
// flag Context uses to weakly reference it (§3 invariant 1), plus the
// per-block input/output scratch backing its router endpoint (§4.E).
type globalEffectSlot struct {
	effect Effect
	alive  *aliveFlag

	endpointID uint64
	input      []float32
	output     []float32
}

// endpoint returns the routable Endpoint for this slot. Push
// accumulates a routed source's block into input; Pull exposes the
// effect's last rendered output for further chaining.
func (s *globalEffectSlot) endpoint() Endpoint {
	return Endpoint{
		ID: s.endpointID,
		Pull: func(dst []float32) bool {
			if !s.alive.Load() {
				return false
			}
			n := len(dst)
			if n > len(s.output) {
				n = len(s.output)
			}
			copy(dst[:n], s.output[:n])
			return true
		},
		Push: func(src []float32) {
			if !s.alive.Load() {
				return
			}
			n := len(src)
			if n > len(s.input) {
				n = len(s.input)
			}
			for i := 0; i < n; i++ {
				s.input[i] += src[i]
			}
		},
	}
}

// GainEffect is a minimal concrete GlobalEffect: it scales its input
// by a fixed gain and accumulates into the mix. It exists to exercise
// the Effect contract (§4.H) end to end; real DSP kernels (reverb,
// etc.) are an explicit non-goal (§1).
type GainEffect struct {
	gain *fader
}

func (e *GainEffect) handleKind() handleKind { return handleKindEffect }

func NewGainEffect(gain float32) *GainEffect {
	return &GainEffect{gain: newFader(gain)}
}

var gainEffectDescriptors = []PropertyDescriptor{
	{ID: PropGain, Kind: KindPropDouble, Min: 0, Max: 16},
}

func (e *GainEffect) Descriptors() []PropertyDescriptor { return gainEffectDescriptors }

func (e *GainEffect) GetProperty(id int) (PropertyValue, error) {
	if id == PropGain {
		return PropertyValue{Kind: KindPropDouble, DoubleVal: float64(e.gain.Target())}, nil
	}
	return PropertyValue{}, newErr(KindPropertyDoesNotExist, "no such property on GainEffect")
}

func (e *GainEffect) SetProperty(id int, v PropertyValue) error {
	if id == PropGain {
		e.gain.setValue(float32(v.DoubleVal))
		return nil
	}
	return newErr(KindPropertyDoesNotExist, "no such property on GainEffect")
}

func (e *GainEffect) RunEffect(input, accumulator []float32, channels int) {
	n := len(input)
	if n > len(accumulator) {
		n = len(accumulator)
	}
	if !e.gain.IsFading() {
		g := e.gain.Target()
		for i := 0; i < n; i++ {
			accumulator[i] += input[i] * g
		}
		return
	}
	framesWide := channels
	if framesWide == 0 {
		framesWide = 1
	}
	for i := 0; i < n; i++ {
		g := e.gain.Gain((i / framesWide) % BlockSize)
		accumulator[i] += input[i] * g
	}
	e.gain.EndBlock()
}
