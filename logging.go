package synthcore

import (
	"context"
	"log/slog"
	"sync"
)

// ErrorHandler receives fire-and-forget failures: errors raised on the
// audio thread that have no waiting caller to return them to (§7). The
// audio thread itself never blocks calling a handler; handlers must be
// cheap and non-blocking.
type ErrorHandler interface {
	HandleError(err error)
}

// SlogErrorHandler logs via log/slog. This is the default handler; no
// third-party structured-logging library appears anywhere in the
// reference corpus this module is grounded on, so the ambient logging
// surface stays on the standard library.
type SlogErrorHandler struct {
	logger *slog.Logger
}

// NewSlogErrorHandler wraps logger, or slog.Default() if nil.
func NewSlogErrorHandler(logger *slog.Logger) *SlogErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogErrorHandler{logger: logger}
}

func (h *SlogErrorHandler) HandleError(err error) {
	kind, _ := KindOf(err)
	h.logger.Log(context.Background(), slog.LevelError, "engine error",
		slog.String("kind", kind.String()),
		slog.Any("error", err))
}

// ChainErrorHandler calls each handler in order, continuing even if one
// panics is not attempted here — handlers are expected not to panic;
// the point of chaining is fan-out (e.g. log, then count in a metric).
type ChainErrorHandler struct {
	handlers []ErrorHandler
}

func NewChainErrorHandler(handlers ...ErrorHandler) *ChainErrorHandler {
	return &ChainErrorHandler{handlers: handlers}
}

func (h *ChainErrorHandler) HandleError(err error) {
	for _, sub := range h.handlers {
		sub.HandleError(err)
	}
}

// PanicErrorHandler panics on any error. Useful in tests that want to
// assert no fire-and-forget error occurs on the path under test.
type PanicErrorHandler struct{}

func (PanicErrorHandler) HandleError(err error) {
	panic(err)
}

// CollectingErrorHandler records every error it receives, for tests
// that want to assert on which errors fired without panicking.
type CollectingErrorHandler struct {
	mu     sync.Mutex
	errors []error
}

func NewCollectingErrorHandler() *CollectingErrorHandler {
	return &CollectingErrorHandler{}
}

func (h *CollectingErrorHandler) HandleError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, err)
}

func (h *CollectingErrorHandler) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.errors))
	copy(out, h.errors)
	return out
}
