// Package broadcast fans out named events to the live subscribers of a server.
package broadcast

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcwatch/internal/errs"
	"github.com/woozymasta/mcwatch/internal/metrics"
)

// EventNewVote is published after a vote has been appended.
const EventNewVote = "new-vote"

// VotePayload is the data of an EventNewVote event.
type VotePayload struct {
	VoterName string `json:"voterName"`
}

// Event is one published message as delivered to a subscriber.
type Event struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
	ServerID int64           `json:"server_id"`
}

// Broadcaster delivers events to subscribers keyed by server id. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	subs    map[int64]map[*Subscription]struct{}
	metrics *metrics.Collector
	buffer  int
	mu      sync.Mutex
}

// New creates a Broadcaster with the given per-subscriber buffer size.
func New(buffer int, m *metrics.Collector) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{
		subs:    make(map[int64]map[*Subscription]struct{}),
		metrics: m,
		buffer:  buffer,
	}
}

// Subscription is a live stream of events for one server.
type Subscription struct {
	b        *Broadcaster
	events   chan Event
	stop     func() bool
	once     sync.Once
	serverID int64
}

// Subscribe registers a subscriber for serverID. The subscription is closed
// when ctx is done or Close is called.
func (b *Broadcaster) Subscribe(ctx context.Context, serverID int64) *Subscription {
	s := &Subscription{
		b:        b,
		events:   make(chan Event, b.buffer),
		serverID: serverID,
	}

	b.mu.Lock()
	set, ok := b.subs[serverID]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.subs[serverID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	b.metrics.SubscriberAdded()

	stop := context.AfterFunc(ctx, s.Close)
	b.mu.Lock()
	s.stop = stop
	b.mu.Unlock()

	log.Debug().Int64("server_id", serverID).Msg("Event subscriber added")
	return s
}

// Events returns the channel of delivered events. It is closed once the
// subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		b := s.b
		b.mu.Lock()
		if set, ok := b.subs[s.serverID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, s.serverID)
			}
		}
		close(s.events)
		stop := s.stop
		b.mu.Unlock()

		if stop != nil {
			stop()
		}
		b.metrics.SubscriberRemoved()
		log.Debug().Int64("server_id", s.serverID).Msg("Event subscriber removed")
	})
}

// Publish delivers an event of eventType with the JSON encoding of payload to
// every current subscriber of serverID and returns how many received it.
// Publishes are serialized, so all subscribers of a server observe the same order.
func (b *Broadcaster) Publish(serverID int64, eventType string, payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, errs.Wrap(errs.CodeInternal, "encode event payload", err)
	}

	ev := Event{
		ID:       uuid.NewString(),
		Type:     eventType,
		Data:     data,
		ServerID: serverID,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var delivered, dropped int
	for s := range b.subs[serverID] {
		select {
		case s.events <- ev:
			delivered++
		default:
			dropped++
		}
	}

	if delivered+dropped > 0 {
		b.metrics.RecordPublish(eventType, delivered, dropped)
	}
	if dropped > 0 {
		log.Warn().
			Int64("server_id", serverID).
			Str("event", eventType).
			Int("dropped", dropped).
			Msg("Slow event subscribers missed an event")
	}

	return delivered, nil
}

// Subscribers returns the number of open subscriptions for serverID.
func (b *Broadcaster) Subscribers(serverID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[serverID])
}
