package synthcore

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// sourceSlot pairs a registered Source with the liveness flag Context
// uses to weakly reference it (§3 invariant 1: "every Source and
// GlobalEffect reachable from Context's iteration lists is weakly
// referenced").
type sourceSlot struct {
	source *Source
	alive  *aliveFlag
}

// Context is the root aggregate (§3 Context): it owns the audio
// thread, the command ring, the deletion queue, the property ring,
// the router, the panner bank, and the direct-mix buffer. Its
// identity uses the "hybrid" pattern the reference engine uses for
// engine/session identity: an internal uuid.UUID, exposed only through
// ID(), and string-free elsewhere since this engine's external
// identity is the Handle type, not a string id.
type Context struct {
	id  uuid.UUID
	cfg Config

	handles    *handleTable
	commands   *commandRing
	properties *propertyRing
	deletions  *deletionQueue
	router     *Router
	panner     *PannerBank
	blocks     *blockPool
	events     *eventQueue

	errorHandler ErrorHandler

	blockTime      atomic.Uint64
	nextEndpointID atomic.Uint64

	mu             sync.Mutex
	sources        []sourceSlot
	globalEffects  []globalEffectSlot
	direct         []float32 // BlockSize*MaxChannels

	listenerMu          sync.Mutex
	listenerPosition    [3]float64
	listenerOrientation [6]float64

	running   atomic.Bool
	stopChan  chan struct{}
	renderWg  sync.WaitGroup
}

func (c *Context) handleKind() handleKind { return handleKindContext }

// NewContext validates cfg and constructs a Context with all of its
// owned subsystems, matching the reference engine's NewEngine shape:
// validate config, then bring up owned components in dependency
// order (here: handle table, rings, deletion queue, router, panner
// bank, then the context itself).
func NewContext(cfg Config) (*Context, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	ctx := &Context{
		id:         uuid.New(),
		cfg:        cfg,
		handles:    newHandleTable(),
		commands:   newCommandRing(),
		properties: newPropertyRing(),
		deletions:  newDeletionQueue(),
		router:     newRouter(),
		panner:     newPannerBank(),
		blocks:     newBlockPool(),
		events:     newEventQueue(cfg.EventQueueCapacity),

		errorHandler: cfg.ErrorHandler,
		direct:       make([]float32, BlockSize*MaxChannels),
		stopChan:     make(chan struct{}),
	}
	ctx.listenerOrientation = [6]float64{0, 0, -1, 0, 1, 0} // at=-Z, up=+Y
	return ctx, nil
}

// ID returns the context's identity uuid. Snapshot, event records and
// the error handlers do not carry it.
func (ctx *Context) ID() uuid.UUID { return ctx.id }

// BlockTime returns the monotonic per-block counter (§3 invariant 3).
func (ctx *Context) BlockTime() uint64 { return ctx.blockTime.Load() }

// Start launches a dedicated render goroutine driven at block cadence.
// Not valid in headless mode; use GenerateAudio instead. Mirrors the
// reference engine dispatcher's single long-lived goroutine launched
// from Start/stopped from Stop.
func (ctx *Context) Start() error {
	if ctx.cfg.Headless {
		return newErr(KindNotSupported, "Start is not valid in headless mode; call GenerateAudio directly")
	}
	if !ctx.running.CompareAndSwap(false, true) {
		return newErr(KindInvalidArgument, "context already running")
	}
	ctx.renderWg.Add(1)
	go ctx.renderLoop()
	return nil
}

// Stop halts the render goroutine and runs the shutdown deletion path
// (§4.C: flip delete_directly, spin-wait, drain synchronously).
func (ctx *Context) Stop() error {
	if !ctx.running.CompareAndSwap(true, false) {
		return nil
	}
	close(ctx.stopChan)
	ctx.renderWg.Wait()
	ctx.deletions.beginShutdown()
	return nil
}

func (ctx *Context) renderLoop() {
	defer ctx.renderWg.Done()
	interval := time.Duration(BlockSize) * time.Second / time.Duration(SampleRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	out := make([]float32, BlockSize*ctx.cfg.Channels)
	for {
		select {
		case <-ctx.stopChan:
			return
		case <-ticker.C:
			ctx.renderBlock(out)
		}
	}
}

// GenerateAudio renders exactly one block into out (length
// BlockSize*ctx.cfg.Channels), running §4.I's nine steps on the
// caller's thread. Valid in both headless and driven mode, but driven
// mode normally leaves rendering to the goroutine started by Start.
func (ctx *Context) GenerateAudio(out []float32) error {
	if len(out) < BlockSize*ctx.cfg.Channels {
		return newErr(KindInvalidArgument, "output buffer too small")
	}
	ctx.renderBlock(out)
	return nil
}

// renderBlock implements §4.I's per-block orchestration.
func (ctx *Context) renderBlock(out []float32) {
	// 1. Drain property ring; 2. drain command ring.
	ctx.properties.drain(0)
	ctx.commands.Drain(256, ctx)

	// 3. Zero the direct buffer.
	for i := range ctx.direct {
		ctx.direct[i] = 0
	}

	// 4. Render each live source.
	ctx.mu.Lock()
	live := ctx.sources[:0]
	for _, slot := range ctx.sources {
		if !slot.alive.Load() {
			continue
		}
		live = append(live, slot)
	}
	ctx.sources = live
	sourcesSnapshot := append([]sourceSlot(nil), ctx.sources...)
	ctx.mu.Unlock()

	for _, slot := range sourcesSnapshot {
		slot.source.fillBlock()
	}

	// 5. Panner bank render, accumulating into the direct buffer.
	ctx.panner.Render(ctx.direct[:BlockSize*ctx.cfg.Channels], ctx.cfg.Channels)

	// 6. Router edges / GlobalEffects, accumulating into the direct buffer.
	ctx.clearEffectInputs()
	ctx.router.Render(ctx.cfg.Channels)
	ctx.renderGlobalEffects()

	// 7. Copy/downmix direct buffer to the output's channel layout.
	copy(out[:BlockSize*ctx.cfg.Channels], ctx.direct[:BlockSize*ctx.cfg.Channels])

	// 8. Advance block_time.
	ctx.blockTime.Add(1)

	// 9. Drain deletion queue.
	ctx.deletions.drain(ctx.blockTime.Load(), 256)
}

// clearEffectInputs zeroes every live GlobalEffect's routed input
// scratch ahead of this block's router pass (§4.E), so edges pushing
// into it during ctx.router.Render accumulate onto a clean buffer
// rather than carrying over the previous block's samples.
func (ctx *Context) clearEffectInputs() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	width := BlockSize * ctx.cfg.Channels
	for _, slot := range ctx.globalEffects {
		for i := 0; i < width; i++ {
			slot.input[i] = 0
		}
	}
}

// renderGlobalEffects runs every live GlobalEffect against whatever
// the router accumulated into its input endpoint this block (§3
// Effect: "consumes audio arriving through the router"), then mixes
// its output into the direct buffer.
func (ctx *Context) renderGlobalEffects() {
	ctx.mu.Lock()
	live := ctx.globalEffects[:0]
	for _, slot := range ctx.globalEffects {
		if !slot.alive.Load() {
			continue
		}
		live = append(live, slot)
	}
	ctx.globalEffects = live
	snapshot := append([]globalEffectSlot(nil), ctx.globalEffects...)
	ctx.mu.Unlock()

	width := BlockSize * ctx.cfg.Channels
	for _, slot := range snapshot {
		for i := 0; i < width; i++ {
			slot.output[i] = 0
		}
		slot.effect.RunEffect(slot.input[:width], slot.output[:width], ctx.cfg.Channels)
		for i := 0; i < width; i++ {
			ctx.direct[i] += slot.output[i]
		}
	}
}

// accumulateDirect mixes a source's rendered block (srcChannels wide)
// into the context's direct buffer (ctx.cfg.Channels wide), via the
// same channel-parametric up/down-mix helper the Source contract uses
// internally.
func (ctx *Context) accumulateDirect(block []float32, srcChannels int) {
	mixChannels(ctx.direct[:BlockSize*ctx.cfg.Channels], ctx.cfg.Channels, block, srcChannels)
}

// CreateSource registers a new Source with channels and, for
// SourcePanned/SourceSpatial kinds, allocates it a panner lane. This
// mutates audio-thread-owned state, so it runs as a waitable command;
// in headless mode the caller IS the audio thread so the round trip
// is immediate.
func (ctx *Context) CreateSource(channels int, kind SourceKind) (Handle, error) {
	if channels <= 0 || channels > MaxChannels {
		return 0, newErr(KindInvalidArgument, "source channel count out of range")
	}
	var handle Handle
	err := ctx.submitWaitable(func(c *Context) error {
		src := newSource(c, channels, kind)
		alive := src.alive
		c.mu.Lock()
		c.sources = append(c.sources, sourceSlot{source: src, alive: alive})
		c.mu.Unlock()
		handle = c.handles.Alloc(src)
		return nil
	})
	return handle, err
}

// CreateBufferGenerator registers buf as a new Generator handle.
func (ctx *Context) CreateBufferGenerator(buf *Buffer) (Handle, error) {
	var handle Handle
	err := ctx.submitWaitable(func(c *Context) error {
		gen := NewBufferGenerator(buf)
		handle = c.handles.Alloc(gen)
		gen.onLooped = func() { c.events.push(Event{Type: EventLooped, SourceHandle: handle}, c.errorHandler) }
		gen.onFinished = func() { c.events.push(Event{Type: EventFinished, SourceHandle: handle}, c.errorHandler) }
		return nil
	})
	return handle, err
}

// CreateConstantGenerator registers a synthetic constant-value
// generator, used by headless test harnesses (§8 scenario 2/3).
func (ctx *Context) CreateConstantGenerator(channels int, value float32) (Handle, error) {
	var handle Handle
	err := ctx.submitWaitable(func(c *Context) error {
		gen := NewConstantGenerator(channels, value)
		handle = c.handles.Alloc(gen)
		return nil
	})
	return handle, err
}

// SourceAddGenerator attaches the generator identified by genHandle to
// the source identified by srcHandle (§6 source_add_generator).
func (ctx *Context) SourceAddGenerator(srcHandle, genHandle Handle) error {
	src, err := lookupTyped[*Source](ctx.handles, srcHandle)
	if err != nil {
		return err
	}
	gen, err := lookupTyped[Generator](ctx.handles, genHandle)
	if err != nil {
		return err
	}
	alive, ok := ctx.aliveFlagFor(genHandle)
	if !ok {
		return newErr(KindInvalidHandle, "handle not found")
	}
	return ctx.submitWaitable(func(c *Context) error {
		src.AddGenerator(gen, alive)
		return nil
	})
}

// SourceRemoveGenerator detaches a previously-attached generator.
func (ctx *Context) SourceRemoveGenerator(srcHandle, genHandle Handle) error {
	src, err := lookupTyped[*Source](ctx.handles, srcHandle)
	if err != nil {
		return err
	}
	gen, err := lookupTyped[Generator](ctx.handles, genHandle)
	if err != nil {
		return err
	}
	return ctx.submitWaitable(func(c *Context) error {
		src.RemoveGenerator(gen)
		return nil
	})
}

// SetProperty validates synchronously, then pushes the write onto the
// property ring (§4.D write path).
func (ctx *Context) SetProperty(h Handle, id int, v PropertyValue) error {
	obj, err := lookupTyped[PropertyHost](ctx.handles, h)
	if err != nil {
		return err
	}
	if err := validateProperty(obj, ctx.handles, id, v); err != nil {
		return err
	}

	alive, ok := ctx.aliveFlagFor(h)
	if !ok {
		return newErr(KindInvalidHandle, "handle not found")
	}
	return ctx.properties.push(propertyWrite{
		target: weakHost{host: obj, alive: alive},
		id:     id,
		value:  v,
	})
}

// GetProperty reads a property via the §4.D waitable round trip. In
// headless mode submitWaitable runs the read directly on the caller's
// thread instead of enqueueing a command, since there is no separate
// "audio thread" to hop to.
func (ctx *Context) GetProperty(h Handle, id int) (PropertyValue, error) {
	obj, err := lookupTyped[PropertyHost](ctx.handles, h)
	if err != nil {
		return PropertyValue{}, err
	}
	var result PropertyValue
	var getErr error
	err = ctx.submitWaitable(func(c *Context) error {
		result, getErr = obj.GetProperty(id)
		return nil
	})
	if err != nil {
		return PropertyValue{}, err
	}
	return result, getErr
}

// aliveFlagFor resolves the alive flag backing h's weak reference. A
// Source or Effect registered with the context yields its slot's flag;
// any other object yields its own weakAlive() flag if it has one, and
// otherwise a fresh flag. It returns false only if h is not a live
// handle.
func (ctx *Context) aliveFlagFor(h Handle) (*aliveFlag, bool) {
	obj, ok := ctx.handles.Lookup(h)
	if !ok {
		return nil, false
	}
	ctx.mu.Lock()
	switch v := obj.(type) {
	case *Source:
		for _, s := range ctx.sources {
			if s.source == v {
				ctx.mu.Unlock()
				return s.alive, true
			}
		}
	case Effect:
		for _, e := range ctx.globalEffects {
			if e.effect == v {
				ctx.mu.Unlock()
				return e.alive, true
			}
		}
	}
	ctx.mu.Unlock()

	// Generators and Buffers carry their own canonical alive flag
	// (§3: "Generator... destroyed via C when no Source and no
	// external handle retains it"); a Source's generator list upgrades
	// its weak references against this same flag, so clearing it here
	// is also what expires those references.
	if wr, ok := obj.(weakReferenceable); ok {
		return wr.weakAlive(), true
	}
	return newAliveFlag(), true
}

// handledEffect is satisfied by any Effect implementation that also
// declares its handle kind (every concrete Effect in this module
// does, e.g. GainEffect).
type handledEffect interface {
	Effect
	Handled
}

// CreateGlobalEffect registers effect in the Context's weakly-
// referenced effect list and returns its handle. The Context holds
// only a weak reference; the returned handle is the caller's strong
// reference (§3 invariant 1).
func (ctx *Context) CreateGlobalEffect(effect handledEffect) (Handle, error) {
	var handle Handle
	err := ctx.submitWaitable(func(c *Context) error {
		alive := newAliveFlag()
		slot := globalEffectSlot{
			effect:     effect,
			alive:      alive,
			endpointID: c.nextEndpointID.Add(1),
			input:      make([]float32, BlockSize*MaxChannels),
			output:     make([]float32, BlockSize*MaxChannels),
		}
		c.mu.Lock()
		c.globalEffects = append(c.globalEffects, slot)
		c.mu.Unlock()
		handle = c.handles.Alloc(effect)
		return nil
	})
	return handle, err
}

// EffectEndpoint returns the routable Endpoint backing h's audio-
// thread input: Push accumulates into the effect's per-block input
// scratch (cleared at the top of every block), and Pull exposes the
// effect's most recently rendered output so a further edge can chain
// downstream of it. h must name a live GlobalEffect handle (§3
// Effect: "consumes audio arriving through the router").
func (ctx *Context) EffectEndpoint(h Handle) (Endpoint, error) {
	obj, err := lookupTyped[Effect](ctx.handles, h)
	if err != nil {
		return Endpoint{}, err
	}
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	for i := range ctx.globalEffects {
		slot := &ctx.globalEffects[i]
		if slot.effect == obj {
			return slot.endpoint(), nil
		}
	}
	return Endpoint{}, newErr(KindInvalidHandle, "handle not found")
}

// ConfigureRoute inserts or updates a router edge (§6 route_configure).
func (ctx *Context) ConfigureRoute(from, to Endpoint, gain float32, fadeBlocks int) error {
	return ctx.submitCommand(func(c *Context) error {
		c.router.ConfigureRoute(from, to, gain, fadeBlocks)
		return nil
	})
}

// RemoveRoute fades out and collects a router edge (§6 route_remove).
func (ctx *Context) RemoveRoute(from, to Endpoint, fadeBlocks int) error {
	return ctx.submitCommand(func(c *Context) error {
		c.router.RemoveRoute(from, to, fadeBlocks)
		return nil
	})
}

// HandleFree releases the external-side owning reference for h. If h
// names a Source, it is also unregistered from the Context's weak
// iteration list and its destructor is scheduled via the deletion
// queue rather than run synchronously (§4.C, §4.J).
func (ctx *Context) HandleFree(h Handle) error {
	obj, ok := ctx.handles.Lookup(h)
	if !ok {
		return newErr(KindInvalidHandle, "double free or unknown handle")
	}
	// Resolve the weak-reference alive flag (if any) before freeing
	// the handle, since aliveFlagFor looks the handle back up.
	alive, hasAlive := ctx.aliveFlagFor(h)

	if err := ctx.handles.Free(h); err != nil {
		return err
	}

	current := ctx.blockTime.Load()
	switch v := obj.(type) {
	case *Source:
		ctx.deletions.enqueue(current, v.destroy)
	case Effect:
		if hasAlive {
			ctx.deletions.enqueue(current, alive.Clear)
		}
	case interface{ destroy() }:
		// Generator and Buffer handles (§3: "Generator... destroyed
		// via C when no Source and no external handle retains it").
		ctx.deletions.enqueue(current, v.destroy)
	}
	return nil
}

// PollEvents drains up to limit pending events (§6 Events).
func (ctx *Context) PollEvents(limit int) []Event {
	return ctx.events.Poll(limit)
}

// SetListenerPose updates the listener's position and orientation
// (at-vector then up-vector, six doubles total).
func (ctx *Context) SetListenerPose(position [3]float64, orientation [6]float64) {
	ctx.listenerMu.Lock()
	defer ctx.listenerMu.Unlock()
	ctx.listenerPosition = position
	ctx.listenerOrientation = orientation
}

// ListenerPose returns the listener's current position and
// orientation.
func (ctx *Context) ListenerPose() (position [3]float64, orientation [6]float64) {
	ctx.listenerMu.Lock()
	defer ctx.listenerMu.Unlock()
	return ctx.listenerPosition, ctx.listenerOrientation
}

// Destroy joins the audio thread (if running) and drains every
// outstanding command and deletion record, per §3's Context
// destruction invariant.
func (ctx *Context) Destroy() error {
	if err := ctx.Stop(); err != nil {
		return err
	}
	ctx.commands.Drain(0, ctx)
	ctx.deletions.beginShutdown()
	return nil
}
