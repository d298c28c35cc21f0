//go:build !speaker

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayWithoutSpeakerDefaultsToMute(t *testing.T) {
	_, err := openSpeaker()
	assert.ErrorIs(t, err, errNoSpeaker)

	play, _, err := newCmd(&Config{}).Find([]string{"play"})
	require.NoError(t, err)

	mute := play.Flags().Lookup("mute")
	require.NotNil(t, mute)
	assert.Equal(t, "true", mute.DefValue)
}

func TestPlayWithoutSpeakerPlaysMuted(t *testing.T) {
	srv := newSoundsServer(t)

	out, err := runCmd(t, "play", "--sounds-base", srv.URL, "owl.wav")
	require.NoError(t, err)
	assert.Contains(t, out, "Playing "+srv.URL+"/sounds/owl.wav")

	_, err = runCmd(t, "play", "--mute=false", "--sounds-base", srv.URL, "owl.wav")
	assert.ErrorIs(t, err, errNoSpeaker)
}
