package synthcore

// Snapshot is a best-effort, non-realtime introspection view of a
// Context, following the reference engine's Serializer.GetState
// shape (a point-in-time summary rather than a restorable format —
// this engine has no persisted-state restore path, since its graph is
// rebuilt from handle-based commands, not deserialized). Never read
// from the audio thread's hot path.
type Snapshot struct {
	BlockTime     uint64
	HandleCount   int
	SourceCount   int
	EffectCount   int
	RouterEdges   int
	EventsDropped uint64
	CommandsQueued int
	CommandsCap    int
}

// Snapshot captures a consistent-enough view of ctx for debugging and
// tests. It briefly locks ctx.mu, the same short critical section
// every mutation of the sources/effects slices already uses.
func (ctx *Context) Snapshot() Snapshot {
	ctx.mu.Lock()
	sourceCount := len(ctx.sources)
	effectCount := len(ctx.globalEffects)
	ctx.mu.Unlock()

	return Snapshot{
		BlockTime:      ctx.blockTime.Load(),
		HandleCount:    ctx.handles.Count(),
		SourceCount:    sourceCount,
		EffectCount:    effectCount,
		RouterEdges:    ctx.router.EdgeCount(),
		EventsDropped:  ctx.events.Dropped(),
		CommandsQueued: ctx.commands.Len(),
		CommandsCap:    ctx.commands.Cap(),
	}
}
