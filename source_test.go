package synthcore

import "testing"

func newTestSource(t *testing.T, channels int) (*Context, *Source) {
	t.Helper()
	ctx := newHeadlessContext(t, channels)
	h, err := ctx.CreateSource(channels, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, h)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}
	return ctx, src
}

func TestSourceMixesMultipleGenerators(t *testing.T) {
	ctx, src := newTestSource(t, 1)
	a := NewConstantGenerator(1, 0.3)
	b := NewConstantGenerator(1, 0.2)
	src.AddGenerator(a, newAliveFlag())
	src.AddGenerator(b, newAliveFlag())

	src.fillBlock()
	for i, v := range src.block {
		if diff := v - 0.5; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("sample %d: got %v want 0.5 (sum of 0.3+0.2)", i, v)
		}
	}
	_ = ctx
}

func TestSourcePausedEmitsSilenceWithoutRunningGenerators(t *testing.T) {
	ctx, src := newTestSource(t, 1)
	ran := false
	gen := &countingGenerator{value: 1, onRun: func() { ran = true }}
	src.AddGenerator(gen, newAliveFlag())

	src.Pause()
	src.fillBlock()
	for i, v := range src.block {
		if v != 0 {
			t.Fatalf("sample %d: expected silence while paused, got %v", i, v)
		}
	}
	if ran {
		t.Fatalf("generator must not run while source is paused")
	}
	_ = ctx
}

func TestSourceRemoveGeneratorSameBlockAsAddSkipsIt(t *testing.T) {
	_, src := newTestSource(t, 1)
	gen := NewConstantGenerator(1, 1.0)
	flag := newAliveFlag()
	src.AddGenerator(gen, flag)
	src.RemoveGenerator(gen)

	src.fillBlock()
	for i, v := range src.block {
		if v != 0 {
			t.Fatalf("sample %d: removed-before-render generator should not contribute, got %v", i, v)
		}
	}
}

func TestSourceUpmixesMonoGeneratorIntoStereo(t *testing.T) {
	_, src := newTestSource(t, 2)
	gen := NewConstantGenerator(1, 0.4)
	src.AddGenerator(gen, newAliveFlag())

	src.fillBlock()
	for frame := 0; frame < BlockSize; frame++ {
		for c := 0; c < 2; c++ {
			v := src.block[frame*2+c]
			if diff := v - 0.4; diff < -1e-5 || diff > 1e-5 {
				t.Fatalf("frame %d channel %d: got %v want 0.4", frame, c, v)
			}
		}
	}
}

func TestPannedSourceSetPanSwitchesLaneToScalarMode(t *testing.T) {
	ctx := newHeadlessContext(t, 2)
	h, err := ctx.CreateSource(1, SourcePanned)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, h)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}
	if src.lane == nil {
		t.Fatalf("panned source should have allocated a lane")
	}
	if err := src.SetProperty(PropPan, PropertyValue{Kind: KindPropDouble, DoubleVal: -1}); err != nil {
		t.Fatalf("SetProperty pan: %v", err)
	}
	if !src.lane.scalarMode {
		t.Fatalf("setting PropPan should switch the lane into scalar mode")
	}
}

func TestPannedSourceSwitchingStrategyReallocatesLane(t *testing.T) {
	ctx := newHeadlessContext(t, 2)
	h, err := ctx.CreateSource(1, SourcePanned)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, h)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}
	if src.pannerStrategy != PannerHRTF {
		t.Fatalf("expected PannedSource to default to PannerHRTF, got %v", src.pannerStrategy)
	}
	if ctx.panner.LaneCount(PannerHRTF) != 1 {
		t.Fatalf("expected one live HRTF lane, got %d", ctx.panner.LaneCount(PannerHRTF))
	}

	if err := src.SetProperty(PropPannerStrategy, PropertyValue{Kind: KindPropInt, IntVal: int64(PannerStereo)}); err != nil {
		t.Fatalf("SetProperty strategy: %v", err)
	}
	if src.pannerStrategy != PannerStereo || src.lane.strategy != PannerStereo {
		t.Fatalf("expected lane to move to PannerStereo, got strategy=%v lane.strategy=%v", src.pannerStrategy, src.lane.strategy)
	}
	if ctx.panner.LaneCount(PannerHRTF) != 0 {
		t.Fatalf("expected the old HRTF lane to be released, got %d still live", ctx.panner.LaneCount(PannerHRTF))
	}
	if ctx.panner.LaneCount(PannerStereo) != 1 {
		t.Fatalf("expected one live stereo lane, got %d", ctx.panner.LaneCount(PannerStereo))
	}
}

func TestSpatialSourceDerivesAzimuthFromPosition(t *testing.T) {
	ctx := newHeadlessContext(t, 2)
	h, err := ctx.CreateSource(1, SourceSpatial)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, h)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}
	gen := NewConstantGenerator(1, 1.0)
	src.AddGenerator(gen, newAliveFlag())

	// Directly to the listener's right, at listener height: azimuth
	// should land near +90 degrees and elevation near 0.
	if err := src.SetProperty(PropPosition, PropertyValue{Kind: KindPropVec3, Vec3Val: [3]float64{10, 0, 0}}); err != nil {
		t.Fatalf("SetProperty position: %v", err)
	}

	src.fillBlock()

	if src.lane.scalarMode {
		t.Fatalf("spatial source should address its lane by angle, not scalar pan")
	}
	if diff := src.lane.azimuth - 90; diff < -1e-6 || diff > 1e-6 {
		t.Fatalf("expected azimuth near 90 degrees, got %v", src.lane.azimuth)
	}
	if diff := src.lane.elevation; diff < -1e-6 || diff > 1e-6 {
		t.Fatalf("expected elevation near 0 degrees, got %v", src.lane.elevation)
	}
}

// countingGenerator is a minimal Generator used to assert a paused
// source never invokes its attached generators.
type countingGenerator struct {
	channels int
	value    float32
	onRun    func()
}

func (g *countingGenerator) handleKind() handleKind { return handleKindGenerator }
func (g *countingGenerator) Channels() int {
	if g.channels == 0 {
		return 1
	}
	return g.channels
}
func (g *countingGenerator) Run(dst []float32) {
	if g.onRun != nil {
		g.onRun()
	}
	for i := range dst {
		dst[i] = g.value
	}
}
func (g *countingGenerator) Descriptors() []PropertyDescriptor { return nil }
func (g *countingGenerator) GetProperty(id int) (PropertyValue, error) {
	return PropertyValue{}, newErr(KindPropertyDoesNotExist, "no properties")
}
func (g *countingGenerator) SetProperty(id int, v PropertyValue) error {
	return newErr(KindPropertyDoesNotExist, "no properties")
}
