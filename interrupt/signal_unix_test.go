//go:build unix

package interrupt

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestWatchSignals(t *testing.T) {
	c := New()
	idle := make(chan struct{}, 1)
	stop := c.WatchSignals(func() { idle <- struct{}{} })
	defer stop()

	ctx, end := c.Begin(context.Background())
	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("SIGINT did not cancel the scope")
	}
	end()

	if err := syscall.Kill(os.Getpid(), syscall.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-idle:
	case <-time.After(5 * time.Second):
		t.Fatal("SIGINT while idle did not reach onIdle")
	}
}
