package synthcore

import "testing"

func newHeadlessContext(t *testing.T, channels int) *Context {
	t.Helper()
	ctx, err := NewContext(Config{Headless: true, Channels: channels})
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func TestSilentPipelineProducesAllZeroes(t *testing.T) {
	ctx := newHeadlessContext(t, 2)
	out := make([]float32, BlockSize*2)
	for block := 0; block < 10; block++ {
		if err := ctx.GenerateAudio(out); err != nil {
			t.Fatalf("GenerateAudio: %v", err)
		}
		for i, v := range out {
			if v != 0 {
				t.Fatalf("block %d sample %d: expected silence, got %v", block, i, v)
			}
		}
	}
}

func TestPassThroughSourceEmitsConstantValue(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	genHandle, err := ctx.CreateConstantGenerator(1, 0.5)
	if err != nil {
		t.Fatalf("CreateConstantGenerator: %v", err)
	}
	if err := ctx.SourceAddGenerator(srcHandle, genHandle); err != nil {
		t.Fatalf("SourceAddGenerator: %v", err)
	}

	out := make([]float32, BlockSize)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	for i, v := range out {
		if diff := v - 0.5; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("sample %d: got %v want 0.5", i, v)
		}
	}
}

func TestGainCrossfadeMatchesLinearFormula(t *testing.T) {
	ctx := newHeadlessContext(t, 2)

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	genHandle, err := ctx.CreateConstantGenerator(1, 1.0)
	if err != nil {
		t.Fatalf("CreateConstantGenerator: %v", err)
	}
	if err := ctx.SourceAddGenerator(srcHandle, genHandle); err != nil {
		t.Fatalf("SourceAddGenerator: %v", err)
	}

	out := make([]float32, BlockSize*2)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("warm-up GenerateAudio: %v", err)
	}

	if err := ctx.SetProperty(srcHandle, PropGain, PropertyValue{Kind: KindPropDouble, DoubleVal: 0}); err != nil {
		t.Fatalf("SetProperty gain=0: %v", err)
	}

	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("fade-block GenerateAudio: %v", err)
	}
	for i := 0; i < BlockSize; i++ {
		want := float32(BlockSize-1-i) / float32(BlockSize)
		for c := 0; c < 2; c++ {
			got := out[i*2+c]
			if diff := got - want; diff < -1e-4 || diff > 1e-4 {
				t.Fatalf("frame %d channel %d: got %v want %v", i, c, got, want)
			}
		}
	}

	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("post-fade GenerateAudio: %v", err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("post-fade sample %d: expected silence, got %v", i, v)
		}
	}
}

func TestHandleFreeDefersSourceDestructionByOneBlock(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	bufHandle := ctx.handles.Alloc(fakeHandled{kind: handleKindBuffer})
	_ = bufHandle

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, srcHandle)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}

	if err := ctx.HandleFree(srcHandle); err != nil {
		t.Fatalf("HandleFree: %v", err)
	}
	if !src.alive.Load() {
		t.Fatalf("source must not be destructed within the same block as free")
	}

	out := make([]float32, BlockSize)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio block 1: %v", err)
	}
	if !src.alive.Load() {
		t.Fatalf("source must survive the block in which it was scheduled for deletion")
	}

	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio block 2: %v", err)
	}
	if src.alive.Load() {
		t.Fatalf("source should have been destructed by the second block after free")
	}
}

func TestSetPropertyOutOfRangeLeavesValueUnchanged(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	before, err := ctx.GetProperty(srcHandle, PropGain)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}

	err = ctx.SetProperty(srcHandle, PropGain, PropertyValue{Kind: KindPropDouble, DoubleVal: 9999})
	if kind, ok := KindOf(err); !ok || kind != KindRangeError {
		t.Fatalf("expected RangeError, got %v", err)
	}

	after, err := ctx.GetProperty(srcHandle, PropGain)
	if err != nil {
		t.Fatalf("GetProperty: %v", err)
	}
	if before.DoubleVal != after.DoubleVal {
		t.Fatalf("rejected property write should not change value: before=%v after=%v", before, after)
	}
}

func TestCommandRingSaturationReturnsResourceExhaustedThenRecovers(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	// Fill the command ring directly, bypassing the headless
	// short-circuit, to exercise the resource-exhausted path that
	// driven mode would hit under backpressure.
	n := 0
	for {
		if err := ctx.submitCommand(func(c *Context) error { return nil }); err != nil {
			if kind, ok := KindOf(err); ok && kind == KindResourceExhausted {
				break
			}
			t.Fatalf("unexpected error filling ring: %v", err)
		}
		n++
		if n > commandRingCapacity+16 {
			t.Fatalf("ring never reported exhaustion after %d pushes", n)
		}
	}

	out := make([]float32, BlockSize)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}

	if err := ctx.submitCommand(func(c *Context) error { return nil }); err != nil {
		t.Fatalf("ring should have drained after a block render, got %v", err)
	}
}

func TestHandleFreeDefersGeneratorDestructionByOneBlock(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	genHandle, err := ctx.CreateConstantGenerator(1, 1.0)
	if err != nil {
		t.Fatalf("CreateConstantGenerator: %v", err)
	}
	gen, err := lookupTyped[*ConstantGenerator](ctx.handles, genHandle)
	if err != nil {
		t.Fatalf("lookupTyped: %v", err)
	}

	if err := ctx.HandleFree(genHandle); err != nil {
		t.Fatalf("HandleFree: %v", err)
	}
	if !gen.alive.Load() {
		t.Fatalf("generator must not be destructed within the same block as free")
	}

	out := make([]float32, BlockSize)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio block 1: %v", err)
	}
	if !gen.alive.Load() {
		t.Fatalf("generator must survive the block in which it was scheduled for deletion")
	}

	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio block 2: %v", err)
	}
	if gen.alive.Load() {
		t.Fatalf("generator should have been destructed by the second block after free")
	}
	if ctx.deletions.Len() != 0 {
		t.Fatalf("destructor must run exactly once, leaving nothing pending: got %d pending", ctx.deletions.Len())
	}
}

func TestSourceAddGeneratorWeakReferenceExpiresOnHandleFree(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	genHandle, err := ctx.CreateConstantGenerator(1, 1.0)
	if err != nil {
		t.Fatalf("CreateConstantGenerator: %v", err)
	}
	if err := ctx.SourceAddGenerator(srcHandle, genHandle); err != nil {
		t.Fatalf("SourceAddGenerator: %v", err)
	}
	if err := ctx.HandleFree(genHandle); err != nil {
		t.Fatalf("HandleFree: %v", err)
	}

	out := make([]float32, BlockSize)
	for i := 0; i < 3; i++ {
		if err := ctx.GenerateAudio(out); err != nil {
			t.Fatalf("GenerateAudio block %d: %v", i, err)
		}
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d: expected silence once the freed generator's weak reference expired, got %v", i, v)
		}
	}
}

func TestRouteSourceIntoGlobalEffectInput(t *testing.T) {
	ctx := newHeadlessContext(t, 1)

	srcHandle, err := ctx.CreateSource(1, SourceDirect)
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src, err := lookupTyped[*Source](ctx.handles, srcHandle)
	if err != nil {
		t.Fatalf("lookupTyped source: %v", err)
	}
	genHandle, err := ctx.CreateConstantGenerator(1, 0.5)
	if err != nil {
		t.Fatalf("CreateConstantGenerator: %v", err)
	}
	if err := ctx.SourceAddGenerator(srcHandle, genHandle); err != nil {
		t.Fatalf("SourceAddGenerator: %v", err)
	}

	effectHandle, err := ctx.CreateGlobalEffect(NewGainEffect(1))
	if err != nil {
		t.Fatalf("CreateGlobalEffect: %v", err)
	}
	effectEndpoint, err := ctx.EffectEndpoint(effectHandle)
	if err != nil {
		t.Fatalf("EffectEndpoint: %v", err)
	}

	if err := ctx.ConfigureRoute(src.Endpoint(), effectEndpoint, 1, 0); err != nil {
		t.Fatalf("ConfigureRoute: %v", err)
	}

	out := make([]float32, BlockSize)
	if err := ctx.GenerateAudio(out); err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	// The source's 0.5 reaches the mix twice: once via its own direct
	// output, once more via the router edge into the GainEffect.
	for i, v := range out {
		if diff := v - 1; diff < -1e-5 || diff > 1e-5 {
			t.Fatalf("sample %d: got %v want 1 (0.5 direct + 0.5 routed through the effect)", i, v)
		}
	}
}
