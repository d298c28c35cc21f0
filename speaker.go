/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

//go:build speaker

package main

import (
	"github.com/Seednode/soundbox/playback/speaker"
)

const speakerAvailable = true

func openSpeaker() (closingOutput, error) {
	return speaker.Open(playbackRate, playbackLatency)
}
