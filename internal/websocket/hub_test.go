package websocket

import (
	"encoding/json"
	"testing"
	"time"
)

func recv(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case b, ok := <-c.Send:
		if !ok {
			t.Fatalf("client channel closed")
		}
		var msg Message
		if err := json.Unmarshal(b, &msg); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}
	return Message{}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	jobs := NewClient(hub, nil, TopicJobs)
	global := NewClient(hub, nil, "")
	other := NewClient(hub, nil, "other")
	for _, c := range []*Client{jobs, global, other} {
		if !hub.Join(c) {
			t.Fatalf("Join failed")
		}
	}

	hub.Publish(TopicJobs, ActionJobUpdate, map[string]string{"status": "running"})

	for _, c := range []*Client{jobs, global} {
		msg := recv(t, c)
		if msg.Action != ActionJobUpdate {
			t.Fatalf("Action = %q, want %q", msg.Action, ActionJobUpdate)
		}
	}
	select {
	case b := <-other.Send:
		t.Fatalf("unsubscribed client got %s", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_LeaveClosesClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	c := NewClient(hub, nil, TopicJobs)
	hub.Join(c)
	hub.Leave(c)

	select {
	case _, ok := <-c.Send:
		if ok {
			t.Fatalf("Send delivered a message, want closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Send was not closed")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub() // not running: the queue fills and further messages drop
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Publish(TopicJobs, ActionJobUpdate, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked without a running hub")
	}
	hub.Stop()
	if hub.Join(NewClient(hub, nil, TopicJobs)) {
		t.Fatalf("Join succeeded on a stopped hub")
	}
}
