// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package notify

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Client is a NATS connection used as a Publisher.
type Client struct{ nc *nats.Conn }

// Connect dials the NATS server at url. A non-empty token is sent for
// token authentication.
func Connect(url, token string) (*Client, error) {
	opts := []nats.Option{
		nats.Name("cad2step"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2 * time.Second),
		nats.Timeout(5 * time.Second),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &Client{nc: nc}, nil
}

// Publish sends data on subject.
func (c *Client) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Close flushes pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}
