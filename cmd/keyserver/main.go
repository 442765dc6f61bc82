// keyserver: credential proxy for voicedeck clients. Holds the long-lived
// vendor secrets and hands out per-session credentials.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/voicedeck/voicedeck/internal/config"
	"github.com/voicedeck/voicedeck/internal/log"
	"github.com/voicedeck/voicedeck/pkg/keyserver"
)

var addr = flag.String("addr", "", "listen address (default LISTEN_ADDR or :8787)")

func main() {
	flag.Parse()
	log.Init(config.LogLevel())
	logger := log.L()

	opts := keyserver.Options{Logger: logger}
	if *addr != "" {
		opts.Addr = *addr
	}
	srv := keyserver.NewServer(opts)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down")
		_ = srv.Shutdown()
	}()

	if err := srv.Listen(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
