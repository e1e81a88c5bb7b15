//go:build linux

package main

import (
	"bytes"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Viet-ph/epoll-go/config"
)

func saveConfig(t *testing.T) {
	t.Helper()
	host, port, backlog := config.Host, config.Port, config.Backlog
	sizeHint, maxEvents, pollTimeout := config.SizeHint, config.MaxEvents, config.PollTimeout
	messageSize, edge, debug := config.DefaultMessageSize, config.EdgeTriggered, config.Debug
	t.Cleanup(func() {
		config.Host, config.Port, config.Backlog = host, port, backlog
		config.SizeHint, config.MaxEvents, config.PollTimeout = sizeHint, maxEvents, pollTimeout
		config.DefaultMessageSize, config.EdgeTriggered, config.Debug = messageSize, edge, debug
	})
}

func TestSetupFlags(t *testing.T) {
	saveConfig(t)

	fs := flag.NewFlagSet("epoll-echo", flag.ContinueOnError)
	err := setupFlags(fs, []string{
		"-host", "127.0.0.1",
		"-port", "9000",
		"-backlog", "16",
		"-size-hint", "8",
		"-max-events", "32",
		"-poll-timeout", "250ms",
		"-buffer-size", "4096",
		"-edge",
		"-debug",
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", config.Host)
	assert.Equal(t, 9000, config.Port)
	assert.Equal(t, 16, config.Backlog)
	assert.Equal(t, 8, config.SizeHint)
	assert.Equal(t, 32, config.MaxEvents)
	assert.Equal(t, 250*time.Millisecond, config.PollTimeout)
	assert.Equal(t, 4096, config.DefaultMessageSize)
	assert.True(t, config.EdgeTriggered)
	assert.True(t, config.Debug)
}

func TestSetupFlags_defaults(t *testing.T) {
	saveConfig(t)
	port, maxEvents := config.Port, config.MaxEvents

	fs := flag.NewFlagSet("epoll-echo", flag.ContinueOnError)
	require.NoError(t, setupFlags(fs, nil))
	assert.Equal(t, port, config.Port)
	assert.Equal(t, maxEvents, config.MaxEvents)
}

func TestSetupFlags_invalid(t *testing.T) {
	saveConfig(t)

	fs := flag.NewFlagSet("epoll-echo", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	assert.Error(t, setupFlags(fs, []string{"-port", "not-a-number"}))
}

func TestNewLogger(t *testing.T) {
	for _, tc := range []struct {
		name  string
		debug bool
	}{
		{name: "info", debug: false},
		{name: "debug", debug: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := newLogger(&buf, tc.debug)
			log.Debug().Log("debug line")
			log.Info().Log("info line")

			assert.Contains(t, buf.String(), `"msg":"info line"`)
			if tc.debug {
				assert.Contains(t, buf.String(), `"msg":"debug line"`)
			} else {
				assert.NotContains(t, buf.String(), "debug line")
			}
		})
	}
}
