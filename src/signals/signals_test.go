package signals

import (
	"context"
	"testing"
	"time"
)

func TestPostNeverBlocks(t *testing.T) {
	b := NewBus(1)
	if !b.Post(CaptureScreen) {
		t.Fatal("expected first post to be accepted")
	}
	if b.Post(AnalyzeImage) {
		t.Fatal("expected second post to be dropped while buffer is full")
	}
	if got := <-b.C(); got != CaptureScreen {
		t.Fatalf("expected %s, got %s", CaptureScreen, got)
	}
}

func TestDispatchStopsOnQuit(t *testing.T) {
	b := NewBus(4)
	var got []Signal
	handlers := map[Signal]func(){
		IncreaseFontSize: func() { got = append(got, IncreaseFontSize) },
		DecreaseFontSize: func() { got = append(got, DecreaseFontSize) },
		Quit:             func() { got = append(got, Quit) },
	}
	b.Post(IncreaseFontSize)
	b.Post(CropImage) // unhandled
	b.Post(DecreaseFontSize)
	b.Post(Quit)

	done := make(chan struct{})
	go func() {
		b.Dispatch(context.Background(), handlers)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after Quit")
	}
	want := []Signal{IncreaseFontSize, DecreaseFontSize, Quit}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestDispatchStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewBus(1).Dispatch(ctx, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after cancel")
	}
}
