/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package playback

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrCancelled         = errors.New("playback cancelled")
	ErrHandleConsumed    = errors.New("audio handle already played")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// PlaybackError wraps the reason a sound could not be played.
type PlaybackError struct {
	Source string
	Err    error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playing %s: %v", e.Source, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// State is the lifecycle stage of an Operation.
type State int32

const (
	Started State = iota
	Ended
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Started:
		return "started"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Operation is one play-to-completion attempt. It settles exactly once,
// either when the sound ends, when it fails, or when its context is
// cancelled.
type Operation struct {
	source string
	done   chan struct{}
	once   sync.Once
	state  atomic.Int32
	err    error
}

func newOperation(source string) *Operation {
	return &Operation{
		source: source,
		done:   make(chan struct{}),
	}
}

// settle reports whether this call was the one that settled o.
func (o *Operation) settle(state State, err error) bool {
	settled := false

	o.once.Do(func() {
		o.err = err
		o.state.Store(int32(state))
		close(o.done)
		settled = true
	})

	return settled
}

// Source names the sound being played.
func (o *Operation) Source() string {
	return o.source
}

// Done is closed once the operation has settled.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation settles and returns nil if the sound
// played to its end.
func (o *Operation) Wait() error {
	<-o.done

	return o.err
}

// Err returns the settled error, or nil while the sound is still playing.
func (o *Operation) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

func (o *Operation) State() State {
	return State(o.state.Load())
}
