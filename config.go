/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	maxSteps      int
	port          int
	prefix        string
	profile       bool
	redisAddr     string
	redisDB       int
	redisPassword string
	redisTTL      time.Duration
	roomTimeout   time.Duration
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
	winThreshold  int
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxSteps < 1 {
		return fmt.Errorf("invalid max steps (must be at least 1): %d", c.maxSteps)
	}
	if c.winThreshold < 1 {
		return fmt.Errorf("invalid win threshold (must be at least 1): %d", c.winThreshold)
	}
	if c.redisTTL < 0 || c.roomTimeout < 0 {
		return errors.New("--redis-ttl and --room-timeout must not be negative")
	}
	if c.roomTimeout > 0 && c.roomTimeout < time.Second {
		return fmt.Errorf("invalid room timeout (must be 0 or at least 1s): %s", c.roomTimeout)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PUSHLUCK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "pushluck",
		Short:         "A push-your-luck party game server. Stay or leave, then hope the captain rolls well.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PUSHLUCK_BIND)")
	fs.IntVar(&cfg.maxSteps, "max-steps", 20, "rounds before the highest score wins (env: PUSHLUCK_MAX_STEPS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PUSHLUCK_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PUSHLUCK_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PUSHLUCK_PROFILE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "", "redis address for room state; in-memory if empty (env: PUSHLUCK_REDIS_ADDR)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database index (env: PUSHLUCK_REDIS_DB)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: PUSHLUCK_REDIS_PASSWORD)")
	fs.DurationVar(&cfg.redisTTL, "redis-ttl", 0, "expiry for stored rooms, 0 to keep forever (env: PUSHLUCK_REDIS_TTL)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle rooms are unloaded from memory (env: PUSHLUCK_ROOM_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PUSHLUCK_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PUSHLUCK_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PUSHLUCK_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PUSHLUCK_VERSION)")
	fs.IntVar(&cfg.winThreshold, "win-threshold", 150, "points needed to win outright (env: PUSHLUCK_WIN_THRESHOLD)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("pushluck v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
