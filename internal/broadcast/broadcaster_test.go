package broadcast

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/woozymasta/mcwatch/internal/errs"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestPublishReachesOnlySubscribersOfServer(t *testing.T) {
	b := New(4, nil)
	ctx := context.Background()

	s1 := b.Subscribe(ctx, 1)
	s2 := b.Subscribe(ctx, 1)
	other := b.Subscribe(ctx, 2)
	defer s1.Close()
	defer s2.Close()
	defer other.Close()

	n, err := b.Publish(1, EventNewVote, VotePayload{VoterName: "steve"})
	if err != nil || n != 2 {
		t.Fatalf("Publish() = %d, %v; want 2", n, err)
	}

	for _, s := range []*Subscription{s1, s2} {
		ev := receive(t, s)
		if ev.Type != EventNewVote || ev.ServerID != 1 || ev.ID == "" {
			t.Errorf("unexpected event: %+v", ev)
		}
		var p VotePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.VoterName != "steve" {
			t.Errorf("payload = %s, %v", ev.Data, err)
		}
	}

	select {
	case ev := <-other.Events():
		t.Errorf("subscriber of another server got %+v", ev)
	default:
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	n, err := New(4, nil).Publish(9, EventNewVote, VotePayload{VoterName: "alex"})
	if err != nil || n != 0 {
		t.Fatalf("Publish() = %d, %v; want 0, nil", n, err)
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	b := New(16, nil)
	s := b.Subscribe(context.Background(), 1)
	defer s.Close()

	for i := 0; i < 10; i++ {
		if _, err := b.Publish(1, "tick", i); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		ev := receive(t, s)
		var got int
		_ = json.Unmarshal(ev.Data, &got)
		if got != i {
			t.Fatalf("event %d carried %d", i, got)
		}
	}
}

func TestFullSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New(1, nil)
	slow := b.Subscribe(context.Background(), 1)
	fast := b.Subscribe(context.Background(), 1)
	defer slow.Close()
	defer fast.Close()

	if n, _ := b.Publish(1, "tick", 1); n != 2 {
		t.Fatalf("first publish delivered %d, want 2", n)
	}
	receive(t, fast)

	done := make(chan int)
	go func() {
		n, _ := b.Publish(1, "tick", 2)
		done <- n
	}()

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("second publish delivered %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	ev := receive(t, fast)
	var got int
	_ = json.Unmarshal(ev.Data, &got)
	if got != 2 {
		t.Errorf("fast subscriber got %d, want 2", got)
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	b := New(1, nil)
	s := b.Subscribe(context.Background(), 1)
	s.Close()
	s.Close()

	if _, ok := <-s.Events(); ok {
		t.Error("events channel still open")
	}
	if n := b.Subscribers(1); n != 0 {
		t.Errorf("Subscribers() = %d after close", n)
	}
	if n, _ := b.Publish(1, "tick", 1); n != 0 {
		t.Errorf("closed subscription received an event")
	}
}

func TestContextCancelClosesSubscription(t *testing.T) {
	b := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s := b.Subscribe(ctx, 1)
	cancel()

	select {
	case _, ok := <-s.Events():
		if ok {
			t.Fatal("unexpected event")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
	if n := b.Subscribers(1); n != 0 {
		t.Errorf("Subscribers() = %d after cancel", n)
	}
}

func TestPublishUnencodablePayload(t *testing.T) {
	b := New(1, nil)
	_, err := b.Publish(1, "bad", make(chan int))
	if errs.CodeOf(err) != errs.CodeInternal {
		t.Errorf("error = %v, want %s", err, errs.CodeInternal)
	}
}
