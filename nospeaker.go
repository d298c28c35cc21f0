/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

//go:build !speaker

package main

import "errors"

var errNoSpeaker = errors.New("built without audio output, rebuild with -tags speaker or use --mute")

const speakerAvailable = false

func openSpeaker() (closingOutput, error) {
	return nil, errNoSpeaker
}
