/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

//go:build speaker

// Package speaker plays sounds on the local audio device.
package speaker

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// Output is the process-wide speaker. Only one may be opened.
type Output struct {
	rate beep.SampleRate
}

// Open initializes the audio device at rate, buffering latency worth of
// samples.
func Open(rate beep.SampleRate, latency time.Duration) (*Output, error) {
	if err := speaker.Init(rate, rate.N(latency)); err != nil {
		return nil, fmt.Errorf("initializing speaker: %w", err)
	}

	return &Output{rate: rate}, nil
}

func (o *Output) SampleRate() beep.SampleRate {
	return o.rate
}

func (o *Output) Play(s beep.Streamer) {
	speaker.Play(s)
}

func (o *Output) Lock() {
	speaker.Lock()
}

func (o *Output) Unlock() {
	speaker.Unlock()
}

func (o *Output) Close() {
	speaker.Clear()
	speaker.Close()
}
