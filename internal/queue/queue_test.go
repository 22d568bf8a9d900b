package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryRoundTrip(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := []string{"one", "two", "three"}
	for _, tag := range want {
		body, _ := json.Marshal(map[string]string{"tag": tag})
		if err := q.Publish(ctx, Message{Type: "scan", Body: body}); err != nil {
			t.Fatalf("publish %s: %v", tag, err)
		}
	}

	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, tag := range want {
		select {
		case msg := <-msgs:
			var got map[string]string
			if err := json.Unmarshal(msg.Body, &got); err != nil {
				t.Fatalf("message %d: %v", i, err)
			}
			if msg.Type != "scan" || got["tag"] != tag {
				t.Errorf("message %d = %s/%s, want scan/%s", i, msg.Type, got["tag"], tag)
			}
		case <-time.After(time.Second):
			t.Fatalf("message %d never delivered", i)
		}
	}
}

func TestInMemoryPublishBlocksWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "scan"}); err != nil {
		t.Fatal(err)
	}

	full, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(full, Message{Type: "scan"}); err == nil {
		t.Error("publish into a full queue returned nil, want context error")
	}
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("received a message after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("consume channel not closed after cancellation")
	}
}

func TestMessageEnvelope(t *testing.T) {
	body, _ := json.Marshal(map[string]any{"tag": "E4F8E400", "status": "success"})
	data, err := json.Marshal(Message{Type: "scan", Body: body})
	if err != nil {
		t.Fatal(err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "scan" {
		t.Errorf("type = %q, want scan", msg.Type)
	}
	var inner map[string]any
	if err := json.Unmarshal(msg.Body, &inner); err != nil {
		t.Fatal(err)
	}
	if inner["tag"] != "E4F8E400" {
		t.Errorf("tag = %v, want E4F8E400", inner["tag"])
	}
}
