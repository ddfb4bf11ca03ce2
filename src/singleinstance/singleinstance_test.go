package singleinstance

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"
)

// freeRange picks a loopback port that is currently free.
func freeRange(t *testing.T) PortRange {
	t.Helper()
	l, err := net.Listen("tcp", residentHost+":0")
	if err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return PortRange{Start: port, End: port}
}

func startServer(t *testing.T, ctx context.Context) (Server, PortRange) {
	t.Helper()
	r := freeRange(t)
	srv := NewServer(r)
	if err := srv.Start(ctx); err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, r
}

func TestServerClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, r := startServer(t, ctx)

	// client delegates stdout request
	client := NewClient(r)
	type result struct {
		delegated bool
		text      string
		err       error
	}
	resCh := make(chan result, 1)
	go func() {
		delegated, text, err := client.TryRunOnce(ctx, Request{OutputToStdout: true, Prompt: "Read the\nerror"})
		resCh <- result{delegated, text, err}
	}()

	// server accept and respond
	conn, err := srv.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	req := conn.Request()
	if !req.OutputToStdout {
		t.Errorf("expected stdout request")
	}
	if req.Prompt != "Read the error" {
		t.Errorf("expected flattened prompt, got %q", req.Prompt)
	}
	if err := conn.RespondSuccess("ok\nmultiline"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	conn.Close()

	res := <-resCh
	if res.err != nil || !res.delegated || res.text != "ok\nmultiline" {
		t.Fatalf("unexpected client result %+v", res)
	}
}

func TestServerRespondError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, r := startServer(t, ctx)

	errCh := make(chan error, 1)
	go func() {
		_, _, err := NewClient(r).TryRunOnce(ctx, Request{})
		errCh <- err
	}()

	conn, err := srv.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if conn.Request().OutputToStdout {
		t.Errorf("expected clipboard request")
	}
	_ = conn.RespondError("Busy, please retry")
	conn.Close()

	if err := <-errCh; err == nil || !strings.Contains(err.Error(), "Busy") {
		t.Fatalf("expected busy error, got %v", err)
	}
}

func TestDetectResidentPort(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv, r := startServer(t, ctx)

	port, ok := DetectResidentPort(ctx, r)
	if !ok || port != srv.Port() {
		t.Fatalf("expected resident on %d, got %d ok=%v", srv.Port(), port, ok)
	}
}

func TestNoResident(t *testing.T) {
	r := freeRange(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	delegated, _, err := NewClient(r).TryRunOnce(ctx, Request{})
	if delegated || err != nil {
		t.Fatalf("expected no delegation, got delegated=%v err=%v", delegated, err)
	}
}

func TestSecondServerCannotBind(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, r := startServer(t, ctx)
	second := NewServer(r)
	if err := second.Start(ctx); err == nil {
		second.Close()
		t.Fatal("expected second server to fail to bind")
	}
}

func TestNextAfterClose(t *testing.T) {
	srv := NewServer(freeRange(t))
	srv.Close()
	if _, err := srv.Next(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed, got %v", err)
	}
	if err := srv.Start(context.Background()); !errors.Is(err, ErrServerClosed) {
		t.Fatalf("Start after Close = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRequestEncoding(t *testing.T) {
	tests := []struct {
		req  Request
		line string
	}{
		{Request{}, "CLIPBOARD\n"},
		{Request{OutputToStdout: true}, "STDOUT\n"},
		{Request{Prompt: "  what is this  "}, "CLIPBOARD what is this\n"},
		{Request{OutputToStdout: true, Prompt: "a\r\nb"}, "STDOUT a b\n"},
	}
	for _, tt := range tests {
		if got := encodeRequest(tt.req); got != tt.line {
			t.Errorf("encodeRequest(%+v) = %q, want %q", tt.req, got, tt.line)
		}
		back := decodeRequest(tt.line)
		if back.OutputToStdout != tt.req.OutputToStdout {
			t.Errorf("decodeRequest(%q) mode mismatch", tt.line)
		}
	}
	if got := decodeRequest("BOGUS\n"); got.OutputToStdout {
		t.Error("expected unknown mode to decode as clipboard")
	}
}

func TestPortRangeResolve(t *testing.T) {
	t.Setenv("SINGLEINSTANCE_PORT_START", "")
	t.Setenv("SINGLEINSTANCE_PORT_END", "")
	if s, e := (PortRange{}).resolve(); s != defaultPortStart || e != defaultPortEnd {
		t.Errorf("expected defaults, got %d-%d", s, e)
	}
	if s, e := (PortRange{Start: 80, End: 70000}).resolve(); s != 1024 || e != 65535 {
		t.Errorf("expected clamped range, got %d-%d", s, e)
	}
	if s, e := (PortRange{Start: 50010, End: 50000}).resolve(); s != 50000 || e != 50010 {
		t.Errorf("expected swapped range, got %d-%d", s, e)
	}
	t.Setenv("SINGLEINSTANCE_PORT_START", "50100")
	t.Setenv("SINGLEINSTANCE_PORT_END", "50105")
	if s, e := (PortRange{}).resolve(); s != 50100 || e != 50105 {
		t.Errorf("expected env range, got %d-%d", s, e)
	}
}

func TestDetectIgnoresForeignService(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer lis.Close()
	go func() {
		for {
			c, err := lis.Accept()
			if err != nil {
				return
			}
			_, _ = c.Write([]byte("PONG\n"))
			_ = c.Close()
		}
	}()
	port := lis.Addr().(*net.TCPAddr).Port
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := DetectResidentPort(ctx, PortRange{Start: port, End: port}); ok {
		t.Fatal("a bare PONG from another service must not count as a resident")
	}
}
