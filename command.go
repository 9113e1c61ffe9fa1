package synthcore

import "synthcore/internal/ring"

// Command is a fixed-shape erased callable, consumed exactly once on
// the audio thread. fn captures any owning references by value at
// construction time, the same way the reference engine's
// DispatcherOperation carries its payload in an interface{} field
// executed once inside dispatchLoop. done, if non-nil, receives fn's
// error exactly once (sent by fn itself; the channel is never closed)
// so a waitable caller can block on it (§4.D read path).
type Command struct {
	fn   func(ctx *Context)
	done chan error // nil for fire-and-forget commands
}

// commandRing is the MPSC ring carrying Commands from external threads
// to the audio thread (component B). Multiple producers call Enqueue
// concurrently; only the Context's own render loop calls Drain.
type commandRing struct {
	r *ring.Ring[Command]
}

func newCommandRing() *commandRing {
	return &commandRing{r: ring.New[Command](commandRingCapacity)}
}

// Enqueue attempts to publish cmd. Returns KindResourceExhausted if the
// ring is full; per §4.B the caller's responsibility is to retry or
// spin. A fire-and-forget command (done == nil) that fails to enqueue
// still returns an error to its caller synchronously, matching the
// general rule that validation/admission errors are surfaced before
// crossing the boundary.
func (c *commandRing) Enqueue(cmd Command) error {
	if !c.r.Push(cmd) {
		return newErr(KindResourceExhausted, "command ring full")
	}
	return nil
}

// Drain pops up to limit commands (limit<=0 means unlimited) and runs
// each synchronously against ctx, in FIFO order. Returns the number of
// commands executed.
func (c *commandRing) Drain(limit int, ctx *Context) int {
	return c.r.Drain(limit, func(cmd Command) {
		cmd.fn(ctx)
	})
}

// Len reports the number of commands currently queued (best-effort;
// exact only when no producer is concurrently enqueueing).
func (c *commandRing) Len() int { return c.r.Len() }

// Cap reports the ring's fixed capacity.
func (c *commandRing) Cap() int { return c.r.Cap() }

// submitCommand enqueues a fire-and-forget command. Any error the
// command raises while running is swallowed and routed to the
// Context's ErrorHandler (§7's fire-and-forget policy), since there is
// no waiting caller to return it to.
func (ctx *Context) submitCommand(fn func(ctx *Context) error) error {
	return ctx.commands.Enqueue(Command{
		fn: func(c *Context) {
			if err := fn(c); err != nil {
				c.errorHandler.HandleError(err)
			}
		},
	})
}

// submitWaitable runs fn and returns whatever error it produced. This
// is the §4.D "waitable command" read path. In headless mode there is
// no dedicated audio thread to hop to — generateAudio runs on the
// caller's own thread — so per §4.D ("Headless mode short-circuits and
// calls directly on the caller's thread") fn simply runs synchronously
// right here. In driven mode fn is enqueued and the caller blocks
// until the render goroutine has executed it.
func (ctx *Context) submitWaitable(fn func(ctx *Context) error) error {
	if ctx.cfg.Headless {
		return fn(ctx)
	}

	done := make(chan error, 1)
	err := ctx.commands.Enqueue(Command{
		fn: func(c *Context) {
			done <- fn(c)
		},
		done: done,
	})
	if err != nil {
		return err
	}
	return <-done
}
