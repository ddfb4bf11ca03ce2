// Package singleinstance lets one resident gemini-vision process own a
// loopback port and serve capture requests from short-lived --run-once
// invocations.
package singleinstance

import (
	"context"
	"errors"
)

// ErrServerClosed is returned by Start and Next once the server is closed.
var ErrServerClosed = errors.New("singleinstance: server closed")

// Server is the resident side.
type Server interface {
	// Start listens on the first port of the range. It fails when the port
	// is taken, which usually means another resident is running.
	Start(ctx context.Context) error
	Port() int
	// Next blocks until a client has sent a capture request.
	Next(ctx context.Context) (Conn, error)
	Close() error
}

// Conn is one pending capture request. Exactly one of RespondSuccess or
// RespondError should be called before Close.
type Conn interface {
	Request() Request
	// RespondSuccess answers with the analysis text. Clipboard requests get
	// an empty body because the resident already placed the text.
	RespondSuccess(text string) error
	RespondError(msg string) error
	Close() error
}

// Request is what a run-once client asks the resident to do.
type Request struct {
	OutputToStdout bool
	// Prompt replaces the resident's configured prompt when non-empty.
	Prompt string
}

// Client is the run-once side.
type Client interface {
	// TryRunOnce hands req to a resident if one answers in the port range.
	// delegated is false with a nil error when nobody is listening.
	TryRunOnce(ctx context.Context, req Request) (delegated bool, text string, err error)
}

func NewServer(r PortRange) Server { return newTCPServer(r) }

func NewClient(r PortRange) Client { return &tcpClient{ports: r} }
