package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// handshakeTimeout bounds how long a client may take to send its first line.
const handshakeTimeout = 3 * time.Second

type tcpServer struct {
	ports PortRange

	mu     sync.Mutex
	lis    net.Listener
	port   int
	closed bool

	pending chan *tcpConn
	done    chan struct{}
}

func newTCPServer(r PortRange) *tcpServer {
	return &tcpServer{ports: r, pending: make(chan *tcpConn, 8), done: make(chan struct{})}
}

// Start binds only the first port of the range: a second resident must fail
// rather than drift to another port where run-once clients would still find
// the first one.
func (s *tcpServer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrServerClosed
	case s.lis != nil:
		return nil
	}
	start, _ := s.ports.resolve()
	addr := residentAddr(start)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("singleinstance: bind %s: %w", addr, err)
	}
	s.lis, s.port = lis, start
	log.Printf("singleinstance: resident listening on %s", addr)
	go s.serve(ctx, lis)
	return nil
}

func (s *tcpServer) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *tcpServer) serve(ctx context.Context, lis net.Listener) {
	for {
		c, err := lis.Accept()
		if err != nil {
			return
		}
		go s.handshake(ctx, c)
	}
}

// handshake reads the first line. PING is answered and closed here; any
// other line is a capture request queued for Next.
func (s *tcpServer) handshake(ctx context.Context, c net.Conn) {
	_ = c.SetDeadline(time.Now().Add(handshakeTimeout))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		_ = c.Close()
		return
	}
	if line == pingRequest {
		_, _ = c.Write([]byte(pongResponse))
		_ = c.Close()
		return
	}

	// The capture itself may take far longer than the handshake.
	_ = c.SetDeadline(time.Time{})
	req := decodeRequest(line)
	log.Printf("singleinstance: request from %s stdout=%v custom_prompt=%v", c.RemoteAddr(), req.OutputToStdout, req.Prompt != "")
	tc := &tcpConn{c: c, req: req, w: bufio.NewWriter(c)}
	select {
	case s.pending <- tc:
	case <-s.done:
		_ = c.Close()
	case <-ctx.Done():
		_ = c.Close()
	}
}

func (s *tcpServer) Next(ctx context.Context) (Conn, error) {
	select {
	case tc := <-s.pending:
		return tc, nil
	case <-s.done:
		return nil, ErrServerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *tcpServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	if s.lis == nil {
		return nil
	}
	err := s.lis.Close()
	s.lis = nil
	return err
}

type tcpConn struct {
	c   net.Conn
	req Request
	w   *bufio.Writer
}

func (tc *tcpConn) Request() Request { return tc.req }

func (tc *tcpConn) RespondSuccess(text string) error {
	return tc.respond(statusSuccess, text)
}

func (tc *tcpConn) RespondError(msg string) error {
	return tc.respond(statusError, msg)
}

// respond writes the status line followed by the raw body; the client reads
// the body until EOF.
func (tc *tcpConn) respond(status, body string) error {
	if _, err := tc.w.WriteString(status); err != nil {
		return err
	}
	if _, err := tc.w.WriteString(body); err != nil {
		return err
	}
	return tc.w.Flush()
}

func (tc *tcpConn) Close() error { return tc.c.Close() }
