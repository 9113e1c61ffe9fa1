package synthcore

import "sync"

// Endpoint identifies one side of a router edge: a raw identity plus a
// Pull function the router calls once per block to fetch that
// endpoint's emitted samples, channel-interleaved at the Context's
// output channel count, and a Push function that accumulates into the
// endpoint's input buffer at the same width. Exported so a Source or
// Effect can hand the Context's real production code a routable
// endpoint rather than only synthetic ones built in tests.
type Endpoint struct {
	ID   uint64
	Pull func(dst []float32) bool // false if the endpoint has expired
	Push func(src []float32)
}

// edge is one weighted, faded connection (component E).
type edge struct {
	from, to    Endpoint
	currentGain float32
	targetGain  float32
	fadeBlocks  int
	seq         uint64
	removing    bool
}

type edgeKey struct {
	from, to uint64
}

// Router owns the graph of weighted, faded edges between endpoints.
// configureRoute/removeRoute are called from commands executed on the
// audio thread (§4.E), so the mutex here, as with PannerBank, guards
// against concurrent test access rather than real external-thread
// contention.
type Router struct {
	mu       sync.Mutex
	edges    map[edgeKey]*edge
	nextSeq  uint64

	// scratch is Render's per-call buffer; Render is only ever invoked
	// from this Router's Context's single audio thread, so reuse is safe
	// without synchronization.
	scratch [BlockSize * MaxChannels]float32
}

func newRouter() *Router {
	return &Router{edges: make(map[edgeKey]*edge)}
}

// ConfigureRoute atomically inserts or updates the edge from->to. If
// two calls race for the same pair, the later-consumed one wins
// (§4.E tie-break) — since this always runs serialized on the audio
// thread via the command ring, "later-consumed" is simply
// "later-called" here.
func (r *Router) ConfigureRoute(from, to Endpoint, gain float32, fadeBlocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{from.ID, to.ID}
	r.nextSeq++
	if e, ok := r.edges[key]; ok {
		e.from, e.to = from, to
		e.targetGain = gain
		e.fadeBlocks = fadeBlocks
		e.seq = r.nextSeq
		e.removing = false
		return
	}
	r.edges[key] = &edge{
		from: from, to: to,
		currentGain: gain, targetGain: gain,
		fadeBlocks: fadeBlocks, seq: r.nextSeq,
	}
}

// RemoveRoute fades the edge to zero over fadeBlocks and marks it for
// collection once the fade completes.
func (r *Router) RemoveRoute(from, to Endpoint, fadeBlocks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := edgeKey{from.ID, to.ID}
	e, ok := r.edges[key]
	if !ok {
		return
	}
	e.targetGain = 0
	e.fadeBlocks = fadeBlocks
	e.removing = true
}

// GetRoute returns the live edge's current/target gain for (from, to),
// a supplemented read-back accessor (§2.3).
func (r *Router) GetRoute(fromID, toID uint64) (currentGain, targetGain float32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.edges[edgeKey{fromID, toID}]
	if !ok {
		return 0, 0, false
	}
	return e.currentGain, e.targetGain, true
}

// ListRoutes returns a snapshot of every live edge's endpoints, for
// introspection and tests.
func (r *Router) ListRoutes() []struct{ From, To uint64 } {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]struct{ From, To uint64 }, 0, len(r.edges))
	for k := range r.edges {
		out = append(out, struct{ From, To uint64 }{k.from, k.to})
	}
	return out
}

// Render mixes every active edge's source buffer into its destination
// buffer, applying the per-edge fade, then collects edges whose source
// or destination has expired or whose removal fade has completed.
// channels is the Context's output channel count; every endpoint's
// Pull/Push buffer is BlockSize*channels wide, matching the rest of
// the per-block render pipeline.
func (r *Router) Render(channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	width := BlockSize * channels
	for key, e := range r.edges {
		buf := r.scratch[:width]
		if !e.from.Pull(buf) {
			delete(r.edges, key)
			continue
		}

		if e.fadeBlocks > 0 {
			step := (e.targetGain - e.currentGain) / float32(e.fadeBlocks)
			framesWide := channels
			if framesWide == 0 {
				framesWide = 1
			}
			for i := range buf {
				g := e.currentGain + step*float32(i/framesWide+1)/float32(BlockSize)
				buf[i] *= g
			}
			e.currentGain += step
			e.fadeBlocks--
		} else {
			e.currentGain = e.targetGain
			if e.currentGain != 1 {
				for i := range buf {
					buf[i] *= e.currentGain
				}
			}
		}

		e.to.Push(buf)

		if e.removing && e.fadeBlocks == 0 && e.currentGain == 0 {
			delete(r.edges, key)
		}
	}
}

// EdgeCount reports the number of live edges, for debug snapshots.
func (r *Router) EdgeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.edges)
}
