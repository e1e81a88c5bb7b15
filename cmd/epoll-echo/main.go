//go:build linux

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"

	"github.com/Viet-ph/epoll-go/config"
	"github.com/Viet-ph/epoll-go/server"
)

// setupFlags binds the command line onto the config package.
func setupFlags(fs *flag.FlagSet, args []string) error {
	fs.StringVar(&config.Host, "host", config.Host, "IPv4 address to listen on")
	fs.IntVar(&config.Port, "port", config.Port, "port to listen on, 0 picks a free one")
	fs.IntVar(&config.Backlog, "backlog", config.Backlog, "listen backlog")
	fs.IntVar(&config.SizeHint, "size-hint", config.SizeHint, "advisory size passed to epoll create")
	fs.IntVar(&config.MaxEvents, "max-events", config.MaxEvents, "maximum events taken per epoll wait")
	fs.DurationVar(&config.PollTimeout, "poll-timeout", config.PollTimeout, "epoll wait timeout, negative blocks indefinitely")
	fs.IntVar(&config.DefaultMessageSize, "buffer-size", config.DefaultMessageSize, "socket read chunk size")
	fs.BoolVar(&config.EdgeTriggered, "edge", config.EdgeTriggered, "register clients edge-triggered")
	fs.BoolVar(&config.Debug, "debug", config.Debug, "enable debug logging")
	return fs.Parse(args)
}

func newLogger(w io.Writer, debug bool) *logiface.Logger[logiface.Event] {
	level := logiface.LevelInformational
	if debug {
		level = logiface.LevelDebug
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

func main() {
	if err := setupFlags(flag.CommandLine, os.Args[1:]); err != nil {
		os.Exit(2)
	}
	log := newLogger(os.Stderr, config.Debug)

	srv, err := server.NewAsyncServer(server.WithLogger(log))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signals
		log.Info().Stringer("signal", sig).Log("received signal")
		if err := srv.Shutdown(); err != nil {
			log.Warning().Err(err).Log("shutdown")
		}
	}()

	if err := srv.Start(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
