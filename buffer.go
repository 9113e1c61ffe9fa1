package synthcore

import (
	"fmt"

	goaudio "github.com/go-audio/audio"

	"synthcore/decoder"
)

// Buffer is immutable, chunked PCM storage (§3 Buffer). Pages are
// go-audio/audio.FloatBuffer chunks of BufferChunkSize frames,
// decoded once ahead of time; a Buffer never allocates during block
// rendering. Multiple Generators may share one Buffer.
type Buffer struct {
	alive    *aliveFlag
	channels int
	pages    []*goaudio.FloatBuffer
	frames   int
}

func (b *Buffer) handleKind() handleKind { return handleKindBuffer }

func (b *Buffer) weakAlive() *aliveFlag { return b.alive }

// destroy marks the buffer expired. Pages are immutable and already
// shared by value with any generator still reading them, so there is
// nothing else to release here.
func (b *Buffer) destroy() { b.alive.Clear() }

// NewBufferFromSource drains src (an external Decoder's Source, §6
// collaborator interface) into page-sized chunks. This is a
// non-realtime, caller-thread operation: it is never invoked from the
// audio thread.
func NewBufferFromSource(src decoder.Source) (*Buffer, error) {
	channels := src.Channels()
	if channels <= 0 || channels > MaxChannels {
		return nil, newErr(KindInvalidArgument, fmt.Sprintf("buffer source channel count %d out of range", channels))
	}

	b := &Buffer{alive: newAliveFlag(), channels: channels}
	chunk := make([]float32, BufferChunkSize*channels)
	for {
		// Fill the whole chunk before cutting a page, so every page but
		// the last holds exactly BufferChunkSize frames (ReadInto relies
		// on this) even when the source returns short reads.
		n := 0
		var err error
		for n < len(chunk) && err == nil {
			var m int
			m, err = src.ReadSamples(chunk[n:])
			if m == 0 && err == nil {
				break
			}
			n += m
		}
		if n > 0 {
			page := &goaudio.FloatBuffer{
				Format: &goaudio.Format{
					NumChannels: channels,
					SampleRate: SampleRate,
				},
				Data: append([]float64(nil), toFloat64(chunk[:n])...),
			}
			b.pages = append(b.pages, page)
			b.frames += n / channels
		}
		if err != nil {
			break
		}
		if n < len(chunk) {
			break
		}
	}
	return b, nil
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// Channels reports the buffer's fixed channel count.
func (b *Buffer) Channels() int { return b.channels }

// Frames reports the total decoded frame count across every page.
func (b *Buffer) Frames() int { return b.frames }

// ReadInto copies framesWanted frames starting at frameOffset into
// dst (interleaved, b.channels wide), returning the number of frames
// actually copied. Used by BufferGenerator.Run; safe to call from the
// audio thread since every page is already decoded and immutable.
func (b *Buffer) ReadInto(dst []float32, frameOffset, framesWanted int) int {
	if b.channels == 0 {
		return 0
	}
	pageFrames := BufferChunkSize
	copied := 0
	for copied < framesWanted {
		frame := frameOffset + copied
		pageIdx := frame / pageFrames
		if pageIdx >= len(b.pages) {
			break
		}
		page := b.pages[pageIdx]
		localFrame := frame % pageFrames
		localAvail := (len(page.Data) / b.channels) - localFrame
		if localAvail <= 0 {
			break
		}
		n := framesWanted - copied
		if n > localAvail {
			n = localAvail
		}
		for f := 0; f < n; f++ {
			for c := 0; c < b.channels; c++ {
				dst[(copied+f)*b.channels+c] = float32(page.Data[(localFrame+f)*b.channels+c])
			}
		}
		copied += n
	}
	return copied
}
