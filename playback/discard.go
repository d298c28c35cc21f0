/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package playback

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
)

// Discard is an Output that consumes streams without an audio device. When
// realtime is set it paces itself to the sample rate, so operations take
// as long as the sound would.
type Discard struct {
	mu       sync.Mutex
	rate     beep.SampleRate
	realtime bool
	streams  []beep.Streamer
	buf      [][2]float64

	wake chan struct{}
	quit chan struct{}
	once sync.Once
}

func NewDiscard(rate beep.SampleRate, realtime bool) *Discard {
	d := &Discard{
		rate:     rate,
		realtime: realtime,
		buf:      make([][2]float64, rate.N(10*time.Millisecond)+1),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
	}

	go d.loop()

	return d
}

func (d *Discard) SampleRate() beep.SampleRate {
	return d.rate
}

func (d *Discard) Play(s beep.Streamer) {
	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Discard) Lock() {
	d.mu.Lock()
}

func (d *Discard) Unlock() {
	d.mu.Unlock()
}

// Close stops the output. Streams still playing are abandoned.
func (d *Discard) Close() {
	d.once.Do(func() {
		close(d.quit)
	})
}

func (d *Discard) loop() {
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}

		for d.step() {
			if d.realtime {
				time.Sleep(d.rate.D(len(d.buf)))
			}

			select {
			case <-d.quit:
				return
			default:
			}
		}
	}
}

// step streams one buffer from every active streamer and reports whether
// any are left.
func (d *Discard) step() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	live := d.streams[:0]
	for _, s := range d.streams {
		if _, ok := s.Stream(d.buf); ok {
			live = append(live, s)
		}
	}

	clear(d.streams[len(live):])
	d.streams = live

	return len(d.streams) > 0
}
