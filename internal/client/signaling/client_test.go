package signaling

import (
	"context"
	"testing"
	"time"

	"github.com/huddlekit/huddle/internal/api"
	"github.com/huddlekit/huddle/internal/config"
)

func TestSendNeverBlocksAfterRunExits(t *testing.T) {
	cfg := config.DefaultAppConfig().Client
	c := NewClient("ws://127.0.0.1:1", "r1", "Alice", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatalf("cancelled run must return nil, got %v", err)
	}

	if _, ok := <-c.Incoming(); ok {
		t.Fatal("incoming must be closed once Run returns")
	}

	// periodic callers (quality ticks, link events) keep sending after the
	// stream is gone; none of them may wedge on a queue nobody drains
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Send(api.Envelope{Type: api.MessagePong})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked after Run exited")
	}
}
