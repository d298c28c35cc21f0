/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package playback plays sounds to completion as awaitable operations.
package playback

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

const resampleQuality = 4

// Output mixes and plays streams. Stream is only ever called on a played
// streamer while the output's lock is held.
type Output interface {
	SampleRate() beep.SampleRate
	Play(s beep.Streamer)
	Lock()
	Unlock()
}

// Loader resolves a source, usually a URL, to a playable Handle.
type Loader interface {
	Load(ctx context.Context, source string) (*Handle, error)
}

// Handle is a decoded sound ready to be played once.
type Handle struct {
	Source   string
	Streamer beep.Streamer
	Format   beep.Format

	used atomic.Bool
}

func NewHandle(source string, s beep.Streamer, format beep.Format) *Handle {
	return &Handle{
		Source:   source,
		Streamer: s,
		Format:   format,
	}
}

// Close releases the underlying decoder, if it has one.
func (h *Handle) Close() error {
	if c, ok := h.Streamer.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

type Player struct {
	out    Output
	loader Loader
}

func NewPlayer(out Output, loader Loader) *Player {
	return &Player{
		out:    out,
		loader: loader,
	}
}

// PlayFromSource loads source and plays it. Load failures are reported
// through the returned operation.
func (p *Player) PlayFromSource(ctx context.Context, source string) *Operation {
	h, err := p.loader.Load(ctx, source)
	if err != nil {
		op := newOperation(source)
		if ctx.Err() != nil {
			op.settle(Cancelled, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))

			return op
		}

		op.settle(Failed, &PlaybackError{Source: source, Err: err})

		return op
	}

	return p.PlayHandle(ctx, h)
}

// PlayHandle starts h on the output right away. Cancelling ctx stops the
// sound and settles the operation with ErrCancelled.
func (p *Player) PlayHandle(ctx context.Context, h *Handle) *Operation {
	op := newOperation(h.Source)

	if !h.used.CompareAndSwap(false, true) {
		op.settle(Failed, &PlaybackError{Source: h.Source, Err: ErrHandleConsumed})

		return op
	}

	if err := ctx.Err(); err != nil {
		_ = h.Close()
		op.settle(Cancelled, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx)))

		return op
	}

	var s beep.Streamer = h.Streamer
	if rate := p.out.SampleRate(); h.Format.SampleRate != 0 && h.Format.SampleRate != rate {
		s = beep.Resample(resampleQuality, h.Format.SampleRate, rate, s)
	}

	t := &track{
		op:     op,
		src:    s,
		handle: h,
	}

	t.release = context.AfterFunc(ctx, func() {
		p.out.Lock()
		t.stopped = true
		p.out.Unlock()

		if op.settle(Cancelled, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))) {
			t.close()
		}
	})

	p.out.Play(t)

	return op
}

// track adapts a handle's stream so the end of the stream settles its
// operation.
type track struct {
	op      *Operation
	src     beep.Streamer
	handle  *Handle
	release func() bool

	stopped   bool
	closeOnce sync.Once
}

func (t *track) Stream(samples [][2]float64) (int, bool) {
	if t.stopped {
		return 0, false
	}

	n, ok := t.src.Stream(samples)
	if !ok {
		t.finish(t.src.Err())
	}

	return n, ok
}

func (t *track) Err() error {
	return t.src.Err()
}

func (t *track) finish(err error) {
	t.stopped = true

	if t.release != nil {
		t.release()
	}

	if err != nil {
		t.op.settle(Failed, &PlaybackError{Source: t.op.source, Err: err})
	} else {
		t.op.settle(Ended, nil)
	}

	t.close()
}

func (t *track) close() {
	t.closeOnce.Do(func() {
		_ = t.handle.Close()
	})
}
