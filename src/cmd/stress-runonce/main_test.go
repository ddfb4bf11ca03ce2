package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"gemini-vision/src/singleinstance"
)

func TestNewRootCmdDefaults(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 50 {
		t.Fatalf("Expected default n=50, got %d", opts.n)
	}
	if opts.mode != "std" {
		t.Fatalf("Expected default mode=std, got %q", opts.mode)
	}
	if opts.deadline != 5*time.Second {
		t.Fatalf("Expected default deadline=5s, got %v", opts.deadline)
	}
}

func TestNewRootCmdCustomFlags(t *testing.T) {
	opts := &stressOptions{}
	cmd := newRootCmd(opts)
	if err := cmd.ParseFlags([]string{"--n", "3", "--mode", "clip", "--deadline", "7s", "--prompt", "hi", "--port-start", "50000"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	if opts.n != 3 || opts.mode != "clip" || opts.deadline != 7*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}
	if opts.prompt != "hi" || opts.portStart != 50000 {
		t.Fatalf("unexpected options %+v", opts)
	}
}

func TestInvalidMode(t *testing.T) {
	cmd := newRootCmd(&stressOptions{})
	cmd.SetArgs([]string{"--mode", "both", "--n", "0"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

// scriptedClient answers the first call successfully, the second with no
// resident, and every later call as busy or failed.
type scriptedClient struct {
	calls atomic.Int32
	reqs  chan singleinstance.Request
}

func (c *scriptedClient) TryRunOnce(_ context.Context, req singleinstance.Request) (bool, string, error) {
	c.reqs <- req
	switch c.calls.Add(1) {
	case 1:
		return true, "ok", nil
	case 2:
		return false, "", nil
	case 3:
		return false, "", errors.New("Busy, please retry")
	default:
		return false, "", errors.New("connection reset")
	}
}

func TestRunWithOptionsTally(t *testing.T) {
	client := &scriptedClient{reqs: make(chan singleinstance.Request, 4)}
	var out bytes.Buffer
	err := runWithOptions(&out, client, stressOptions{n: 4, mode: "std", deadline: time.Second, prompt: "p"})
	if err != nil {
		t.Fatal(err)
	}
	got := out.String()
	for _, want := range []string{"launched=4", "ok=1", "busy=1", "no-resident=1", "err=1"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
	req := <-client.reqs
	if !req.OutputToStdout || req.Prompt != "p" {
		t.Errorf("unexpected request %+v", req)
	}
}
