package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Seednode/soundbox/grid"
	"github.com/Seednode/soundbox/sounds"
)

const defaultSoundsBase = "https://raw.githubusercontent.com/gddmadoss/movies/main"

type Config struct {
	bind           string
	catalogTimeout time.Duration
	catalogTTL     time.Duration
	fairShuffle    bool
	mediaOrigins   []string
	port           int
	prefix         string
	profile        bool
	seed           uint64
	sessionTimeout time.Duration
	soundsBase     string
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	return c.validateCatalog()
}

func (c *Config) validateCatalog() error {
	if c.catalogTimeout <= 0 {
		return fmt.Errorf("invalid catalog timeout (must be positive): %s", c.catalogTimeout)
	}
	if _, err := sounds.NewLocator(c.soundsBase); err != nil {
		return fmt.Errorf("invalid --sounds-base: %w", err)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) catalog() (*sounds.Client, error) {
	locator, err := sounds.NewLocator(c.soundsBase)
	if err != nil {
		return nil, err
	}

	return sounds.NewClient(locator, &http.Client{Timeout: c.catalogTimeout}, c.catalogTTL), nil
}

func (c *Config) builder() *grid.Builder {
	var opts []grid.Option

	if c.seed != 0 {
		opts = append(opts, grid.WithSeed(c.seed))
	}

	if !c.fairShuffle {
		opts = append(opts, grid.WithShuffle(grid.ComparatorShuffle))
	}

	return grid.New(opts...)
}

func bindEnv(v *viper.Viper, fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SOUNDBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "soundbox",
		Short:         "A concentration game played with sounds instead of pictures.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	pfs := cmd.PersistentFlags()
	pfs.DurationVar(&cfg.catalogTimeout, "catalog-timeout", 10*time.Second, "timeout for fetching the sound catalog (env: SOUNDBOX_CATALOG_TIMEOUT)")
	pfs.DurationVar(&cfg.catalogTTL, "catalog-ttl", 15*time.Minute, "how long a fetched sound catalog is reused, 0 to disable (env: SOUNDBOX_CATALOG_TTL)")
	pfs.BoolVar(&cfg.fairShuffle, "fair-shuffle", true, "shuffle boards uniformly; false deals them like older clients (env: SOUNDBOX_FAIR_SHUFFLE)")
	pfs.Uint64Var(&cfg.seed, "seed", 0, "seed for dealing boards, 0 for random (env: SOUNDBOX_SEED)")
	pfs.StringVar(&cfg.soundsBase, "sounds-base", defaultSoundsBase, "base url of sounds.json and the sounds/ directory (env: SOUNDBOX_SOUNDS_BASE)")
	pfs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SOUNDBOX_VERBOSE)")

	fs := cmd.Flags()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SOUNDBOX_BIND)")
	fs.StringSliceVar(&cfg.mediaOrigins, "media-origin", nil, "extra origins pages may play sounds from, such as redirect targets of --sounds-base (env: SOUNDBOX_MEDIA_ORIGIN)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SOUNDBOX_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SOUNDBOX_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SOUNDBOX_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle boards are removed (env: SOUNDBOX_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SOUNDBOX_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SOUNDBOX_TLS_KEY)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SOUNDBOX_VERSION)")

	bindEnv(v, pfs)
	bindEnv(v, fs)

	cmd.AddCommand(newGridCmd(cfg, v), newPlayCmd(cfg, v))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("soundbox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
