// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package host acquires and drives a session with the external CAD host.
// The rest of the module depends only on the Session and Connector
// interfaces; how a session reaches the host is the connector's business.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pdiddy/cad2step/internal/retry"
	"github.com/pdiddy/cad2step/pkg/types"
)

// ErrSessionLost reports that the host process went away. Any session call
// may return an error wrapping it; callers must not use the session again.
var ErrSessionLost = errors.New("host session lost")

// Handle identifies a document open in the host. The empty handle is the
// host's null document.
type Handle string

// Diagnostics carries the error and warning codes the host reports when
// opening a document.
type Diagnostics struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
}

// Session is a live connection to one host process. A session supports one
// open document at a time and is not safe for concurrent use.
type Session interface {
	// ID returns the host-assigned session identifier.
	ID() string

	// Ping returns nil when the host responds.
	Ping(ctx context.Context) error

	// Open loads the document at path as the given kind. A null document is
	// reported as an empty Handle together with the host's diagnostics.
	Open(ctx context.Context, path string, kind types.DocumentKind) (Handle, Diagnostics, error)

	// SaveAs exports the open document to path in the neutral exchange
	// format and returns the host's status code (0 on success).
	SaveAs(ctx context.Context, h Handle, path string) (int, error)

	// Close releases the open document.
	Close(ctx context.Context, h Handle) error
}

// StartOptions controls how a new host instance is started.
type StartOptions struct {
	// Visible shows the host window and leaves it under user control.
	Visible bool
}

// Connector reaches a host process, either by attaching to one that is
// already running or by starting a new one.
type Connector interface {
	// Name identifies the connector in logs and errors.
	Name() string

	// Attach connects to a running host instance.
	Attach(ctx context.Context) (Session, error)

	// Start launches a new host instance.
	Start(ctx context.Context, opts StartOptions) (Session, error)
}

// ConnectionError reports that neither attaching to nor starting a host
// instance succeeded.
type ConnectionError struct {
	Host   string
	Attach error
	Start  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting to %s: attach failed (%v); start failed (%v)", e.Host, e.Attach, e.Start)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{e.Attach, e.Start}
}

// Acquirer produces sessions using attach-if-running, else start-new.
type Acquirer struct {
	connector    Connector
	opts         StartOptions
	startRetries int
	logger       *slog.Logger
}

// NewAcquirer creates an Acquirer for the connector. The visible/background
// start policy comes from cfg.Visible and is never inferred.
func NewAcquirer(c Connector, cfg types.HostConfig, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Acquirer{
		connector:    c,
		opts:         StartOptions{Visible: cfg.Visible},
		startRetries: cfg.StartRetries,
		logger:       logger,
	}
}

// Acquire attaches to a running host, or starts a new one and waits until it
// answers a ping. It returns a *ConnectionError when both paths fail.
func (a *Acquirer) Acquire(ctx context.Context) (Session, error) {
	s, attachErr := a.connector.Attach(ctx)
	if attachErr == nil {
		a.logger.Info("attached to running host", "host", a.connector.Name(), "session", s.ID())
		return s, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.logger.Info("starting host", "host", a.connector.Name(), "visible", a.opts.Visible)
	s, startErr := a.connector.Start(ctx, a.opts)
	if startErr == nil {
		startErr = retry.Do(ctx, a.startRetries, s.Ping)
		if startErr == nil {
			a.logger.Info("host ready", "host", a.connector.Name(), "session", s.ID())
			return s, nil
		}
		startErr = fmt.Errorf("host did not become ready: %w", startErr)
	}

	return nil, &ConnectionError{
		Host:   a.connector.Name(),
		Attach: attachErr,
		Start:  startErr,
	}
}
