// Package stream fans round lifecycle events out to live subscribers and keeps
// a bounded backlog for replay after reconnects.
package stream

import (
	"strconv"
	"sync"
	"time"
)

type Event struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	RoundID  string `json:"round_id,omitempty"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
}

type EventBuffer struct {
	mu       sync.Mutex
	nextID   int64
	max      int
	events   []Event
	watchers map[chan Event]struct{}
	closed   bool
	now      func() time.Time
}

func NewEventBuffer(max int) *EventBuffer {
	if max <= 0 {
		max = 500
	}
	return &EventBuffer{
		max:      max,
		watchers: map[chan Event]struct{}{},
		now:      time.Now,
	}
}

// Append records the event and hands it to every subscriber without blocking;
// a subscriber whose channel is full misses it and must replay.
func (b *EventBuffer) Append(event, roundID string, data any) Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}
	}
	b.nextID++
	ev := Event{
		EventID:  strconv.FormatInt(b.nextID, 10),
		Event:    event,
		RoundID:  roundID,
		ServerTS: b.now().UnixMilli(),
		Data:     data,
	}
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
		}
	}
	return ev
}

func (b *EventBuffer) ReplayAfter(lastEventID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backlogAfter(lastEventID)
}

func (b *EventBuffer) backlogAfter(lastEventID string) []Event {
	if len(b.events) == 0 {
		return nil
	}
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		out := make([]Event, len(b.events))
		copy(out, b.events)
		return out
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

// SubscribeAfter registers a subscriber and takes the backlog newer than
// lastEventID under one lock: every event lands either in the backlog or on
// the channel, never both and never neither.
func (b *EventBuffer) SubscribeAfter(lastEventID string) (chan Event, []Event) {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, nil
	}
	b.watchers[ch] = struct{}{}
	return ch, b.backlogAfter(lastEventID)
}

func (b *EventBuffer) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *EventBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}
