/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seednode/soundbox/grid"
	"github.com/Seednode/soundbox/playback"
	"github.com/Seednode/soundbox/sounds"
)

const (
	playbackRate    = beep.SampleRate(44100)
	playbackLatency = 100 * time.Millisecond
)

type closingOutput interface {
	playback.Output
	Close()
}

func newGridCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var (
		pairs int
		urls  bool
	)

	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Deal a board from the sound catalog and print it.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateCatalog(); err != nil {
				return err
			}

			client, err := cfg.catalog()
			if err != nil {
				return err
			}

			catalog, err := client.Catalog(cmd.Context())
			if err != nil {
				return err
			}

			if pairs < 0 {
				pairs = grid.DefaultPairs(catalog)
			}

			g, err := cfg.builder().Build(catalog, pairs)
			if err != nil {
				return err
			}

			logf(cfg, "GAMES: Dealt %d cards from %d sounds", len(g), len(catalog))

			return printGrid(cmd.OutOrStdout(), g, client.Locator(), urls)
		},
	}

	fs := cmd.Flags()
	fs.IntVar(&pairs, "pairs", -1, "number of distinct sounds on the board, -1 for half the catalog (env: SOUNDBOX_PAIRS)")
	fs.BoolVar(&urls, "urls", false, "print sound urls instead of names (env: SOUNDBOX_URLS)")
	bindEnv(v, fs)

	return cmd
}

func printGrid(w io.Writer, g grid.Grid, locator *sounds.Locator, urls bool) error {
	for i, sound := range g {
		if urls {
			sound = locator.SoundURL(sounds.Entry{Sound: sound})
		}

		if _, err := fmt.Fprintf(w, "%3d  %s\n", i, sound); err != nil {
			return err
		}
	}

	return nil
}

func newPlayCmd(cfg *Config, v *viper.Viper) *cobra.Command {
	var mute bool

	cmd := &cobra.Command{
		Use:   "play <sound>...",
		Short: "Play sounds from the catalog one after another.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validateCatalog(); err != nil {
				return err
			}

			locator, err := sounds.NewLocator(cfg.soundsBase)
			if err != nil {
				return err
			}

			var out playback.Output
			if mute {
				d := playback.NewDiscard(playbackRate, true)
				defer d.Close()
				out = d
			} else {
				s, err := openSpeaker()
				if err != nil {
					return err
				}
				defer s.Close()
				out = s
			}

			player := playback.NewPlayer(out, playback.NewSourceLoader(nil, 0))

			return playAll(cmd.Context(), cfg, cmd.OutOrStdout(), player, resolveSources(locator, args))
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&mute, "mute", !speakerAvailable, "play without an audio device, in real time (env: SOUNDBOX_MUTE)")
	bindEnv(v, fs)

	return cmd
}

// resolveSources maps catalog names to sound urls, leaving urls and
// existing local files untouched.
func resolveSources(locator *sounds.Locator, args []string) []string {
	sources := make([]string, 0, len(args))

	for _, arg := range args {
		switch {
		case strings.Contains(arg, "://"):
			sources = append(sources, arg)
		case fileExists(arg):
			sources = append(sources, arg)
		default:
			sources = append(sources, locator.SoundURL(sounds.Entry{Sound: arg}))
		}
	}

	return sources
}

func fileExists(name string) bool {
	info, err := os.Stat(name)

	return err == nil && !info.IsDir()
}

func playAll(ctx context.Context, cfg *Config, w io.Writer, player *playback.Player, sources []string) error {
	for _, source := range sources {
		startTime := time.Now()

		fmt.Fprintf(w, "Playing %s\n", source)

		if err := player.PlayFromSource(ctx, source).Wait(); err != nil {
			return err
		}

		logf(cfg, "SOUNDS: Played %s in %s", source, time.Since(startTime).Round(time.Millisecond))
	}

	return nil
}
