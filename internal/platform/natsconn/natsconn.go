// Package natsconn opens the optional NATS connection used to publish list
// mutation events. A short-lived CLI run gets one connect attempt and a
// bounded flush on close.
package natsconn

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type Options struct {
	URL         string
	Name        string
	Timeout     time.Duration // connect timeout, default 5s
	DrainWithin time.Duration // how long Close waits for pending publishes, default 5s
}

type Conn struct {
	NC *nats.Conn
	JS nats.JetStreamContext

	drainWithin time.Duration
}

// Connect returns (nil, nil) when no URL is configured.
func Connect(opts Options) (*Conn, error) {
	opts.URL = strings.TrimSpace(opts.URL)
	if opts.URL == "" {
		return nil, nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DrainWithin <= 0 {
		opts.DrainWithin = 5 * time.Second
	}
	if opts.Name == "" {
		opts.Name = "amq-trainer"
	}

	nc, err := nats.Connect(opts.URL,
		nats.Name(opts.Name),
		nats.Timeout(opts.Timeout),
		nats.MaxReconnects(0),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (timeout=%s): %w", opts.URL, opts.Timeout, err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	return &Conn{NC: nc, JS: js, drainWithin: opts.DrainWithin}, nil
}

// Close waits for outstanding async publishes, then closes the connection.
// Safe on a nil receiver.
func (c *Conn) Close() {
	if c == nil || c.NC == nil {
		return
	}
	select {
	case <-c.JS.PublishAsyncComplete():
	case <-time.After(c.drainWithin):
	}
	c.NC.Close()
}
