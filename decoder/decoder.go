// Package decoder defines the pull-style PCM collaborator contract
// that sits behind a Generator (§6 "Decoder (behind Generator)"). The
// core only ever consumes a Source; it never implements new codec
// math. Concrete adapters (see wav.go) wrap an existing decoding
// library's reader into this Source shape, the same way the
// registry-of-codecs pattern in the reference corpus's audio-decoding
// repo wraps each format behind one Decoder interface.
package decoder

import (
	"fmt"
	"io"
	"sync"
)

// Source delivers PCM at a fixed sample rate, pull-style. ReadSamples
// fills dst with interleaved float32 samples and returns how many it
// wrote; io.EOF (or any non-nil err) signals no more data.
type Source interface {
	SampleRate() int
	Channels() int
	ReadSamples(dst []float32) (n int, err error)
	Close() error
}

// Decoder turns a raw byte stream into a Source.
type Decoder interface {
	Decode(r io.Reader) (Source, error)
}

// Registry maps a format name (e.g. "wav") to the Decoder that
// handles it, following the codecs-map-plus-mutex shape used by the
// reference corpus's own decoder registry.
type Registry struct {
	mu     sync.Mutex
	codecs map[string]Decoder
}

func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Decoder)}
}

func (r *Registry) Register(format string, d Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[format] = d
}

func (r *Registry) Get(format string) (Decoder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.codecs[format]
	if !ok {
		return nil, fmt.Errorf("decoder: no decoder registered for format %q", format)
	}
	return d, nil
}
