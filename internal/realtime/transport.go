// Package realtime fans room and on-air events out to connected clients.
package realtime

import (
	"context"
	"sync"
	"time"
)

// Event types.
const (
	EventMessageCreated = "message.created"
	EventMemberJoined   = "member.joined"
	EventMemberLeft     = "member.left"
	EventLiveStarted    = "live.started"
	EventLiveStopped    = "live.stopped"
	EventReplaced       = "presence.replaced"
)

// LiveChannel carries on-air status changes for every listener.
const LiveChannel = "live"

// Event is the envelope pushed to subscribers of Room.
type Event struct {
	Type    string    `json:"type"`
	Room    string    `json:"room"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// MemberPayload is the payload of member.joined and member.left.
type MemberPayload struct {
	UserID string `json:"user_id"`
}

// Transport publishes events to every subscriber of the event's room,
// on this instance and, for distributed implementations, on all others.
// Subscribers named by a member.left event are dropped from its room after
// the event is delivered.
type Transport interface {
	Publish(ctx context.Context, ev Event) error
}

// Recorder is an in-memory Transport for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

// Publish implements Transport.
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns the published events with the given type, or all events
// when typ is empty.
func (r *Recorder) Events(typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, ev := range r.events {
		if typ == "" || ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
