package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

var errEmbeddedNotReady = errors.New("embedded NATS server not ready")

// startEmbedded runs a loopback NATS server with JetStream on a random port.
// An empty dir stores JetStream data in a fresh temporary directory.
func startEmbedded(dir string) (*server.Server, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "framepipe-nats-*")
		if err != nil {
			return nil, fmt.Errorf("create jetstream dir: %w", err)
		}
		dir = tmp
	}

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  dir,
		NoLog:     true,
		NoSigs:    true,
	}

	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded NATS server: %w", err)
	}

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		return nil, errEmbeddedNotReady
	}

	return srv, nil
}
