package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/internal/logging"
)

type globalFlags struct {
	config      string
	natsURL     string
	embedded    bool
	embeddedDir string
	logLevel    string
	logJSON     bool
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     framepipe.Config
	configErr  error

	loggerOnce sync.Once
	logger     *logging.SlogLogger
	loggerErr  error

	mu     sync.Mutex
	server *server.Server
	conn   *nats.Conn
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads --config once, falling back to defaults when unset.
func (c *commandContext) ensureConfig() (framepipe.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.flags.config)
		if path == "" {
			c.config = framepipe.DefaultConfig()
			return
		}
		c.config, c.configErr = framepipe.LoadConfig(path)
	})

	return c.config, c.configErr
}

func (c *commandContext) ensureLogger(w io.Writer) (*logging.SlogLogger, error) {
	c.loggerOnce.Do(func() {
		c.logger, c.loggerErr = logging.NewSlogWriter(w, c.flags.logLevel, c.flags.logJSON)
	})

	return c.logger, c.loggerErr
}

func (c *commandContext) natsURL() string {
	if url := strings.TrimSpace(c.flags.natsURL); url != "" {
		return url
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}

	return nats.DefaultURL
}

// jetStream connects to NATS (starting the embedded server first when
// requested) and returns a JetStream context. The connection is shared by
// every call and closed by close.
func (c *commandContext) jetStream(ctx context.Context) (jetstream.JetStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		url := c.natsURL()
		if c.flags.embedded {
			srv, err := startEmbedded(c.flags.embeddedDir)
			if err != nil {
				return nil, err
			}
			c.server = srv
			url = srv.ClientURL()
			c.logger.Info("embedded NATS server started", "url", url)
		}

		nc, err := nats.Connect(url, nats.Name("framepipe"))
		if err != nil {
			return nil, fmt.Errorf("connect to %s: %w", url, err)
		}
		c.conn = nc
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(c.conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	return js, nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Drain()
		c.conn = nil
	}
	if c.server != nil {
		c.server.Shutdown()
		c.server.WaitForShutdown()
		c.server = nil
	}
}
