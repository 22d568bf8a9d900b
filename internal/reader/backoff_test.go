package reader

import (
	"context"
	"testing"
	"time"
)

func TestBackoffFixed(t *testing.T) {
	b := Backoff{Base: 5 * time.Second}
	for failures := 1; failures <= 5; failures++ {
		if d := b.Delay(failures); d != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want fixed 5s", failures, d)
		}
	}
}

func TestBackoffExponentialCapped(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 5 * time.Second, Exponential: true}
	want := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 5 * time.Second,
		5: 5 * time.Second,
	}
	for failures, expect := range want {
		if d := b.Delay(failures); d != expect {
			t.Errorf("Delay(%d) = %v, want %v", failures, d, expect)
		}
	}
}

func TestBackoffDefaultBase(t *testing.T) {
	var b Backoff
	if d := b.Delay(1); d != 5*time.Second {
		t.Errorf("Delay(1) = %v, want 5s default", d)
	}
}

func TestBackoffWaitCancelled(t *testing.T) {
	b := Backoff{Base: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Wait(ctx, 1) }()
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("Wait returned nil after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return promptly after cancellation")
	}
}
