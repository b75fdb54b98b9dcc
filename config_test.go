/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagDefaults(t *testing.T) {
	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NoError(t, cmd.ParseFlags(nil))

	assert.Equal(t, 8080, cfg.port)
	assert.Equal(t, 20, cfg.maxSteps)
	assert.Equal(t, 150, cfg.winThreshold)
	assert.Equal(t, 60*time.Minute, cfg.roomTimeout)
	assert.Empty(t, cfg.redisAddr)
	assert.NoError(t, cfg.validate())
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	t.Setenv("PUSHLUCK_MAX_STEPS", "7")
	t.Setenv("PUSHLUCK_REDIS_ADDR", "localhost:6379")
	t.Setenv("PUSHLUCK_ROOM_TIMEOUT", "5m")

	cfg := &Config{}
	cmd := newCmd(cfg)
	require.NoError(t, cmd.ParseFlags([]string{"--win-threshold", "200"}))

	assert.Equal(t, 7, cfg.maxSteps)
	assert.Equal(t, "localhost:6379", cfg.redisAddr)
	assert.Equal(t, 5*time.Minute, cfg.roomTimeout)
	assert.Equal(t, 200, cfg.winThreshold)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{port: 8080, maxSteps: 20, winThreshold: 150}
	}

	assert.NoError(t, valid().validate())

	disabled := valid()
	disabled.roomTimeout = 0
	assert.NoError(t, disabled.validate(), "zero disables the reaper")

	tests := map[string]func(c *Config){
		"port too low":         func(c *Config) { c.port = 0 },
		"port too high":        func(c *Config) { c.port = 70000 },
		"cert without key":     func(c *Config) { c.tlsCert = "cert.pem" },
		"no steps":             func(c *Config) { c.maxSteps = 0 },
		"no threshold":         func(c *Config) { c.winThreshold = 0 },
		"negative ttl":         func(c *Config) { c.redisTTL = -time.Second },
		"negative room idle":   func(c *Config) { c.roomTimeout = -time.Second },
		"sub-second room idle": func(c *Config) { c.roomTimeout = time.Nanosecond },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.validate())
		})
	}
}

func TestScheme(t *testing.T) {
	assert.Equal(t, "http", (&Config{}).scheme())
	assert.Equal(t, "https", (&Config{tlsCert: "c", tlsKey: "k"}).scheme())
}
