package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBuffer = 256

// Peer is one subscribed connection. The owner drains Send and writes to
// the socket; Send is closed when the peer is unregistered or replaced.
type Peer struct {
	Room     string
	UserID   string
	DeviceID string
	Send     chan []byte

	closeOnce sync.Once
}

func (p *Peer) close() { p.closeOnce.Do(func() { close(p.Send) }) }

type deviceKey struct {
	userID   string
	deviceID string
}

// Hub manages WebSocket subscribers per room and enforces one active room
// per (user, device): subscribing elsewhere replaces the previous peer.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Peer]struct{} // room -> set of peers
	active   map[deviceKey]*Peer
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub creates a new hub.
func NewHub(readBufferSize, writeBufferSize int, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[string]map[*Peer]struct{}),
		active: make(map[deviceKey]*Peer),
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			// Allow all origins for dev; in prod put the service behind a same-origin proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Upgrader returns the WebSocket upgrader for HTTP handlers.
func (h *Hub) Upgrader() *websocket.Upgrader { return &h.upgrader }

// Register subscribes a peer to room and returns a cleanup function. An
// existing peer for the same user and device is told it was replaced and
// dropped.
func (h *Hub) Register(room, userID, deviceID string) (*Peer, func()) {
	p := &Peer{
		Room:     room,
		UserID:   userID,
		DeviceID: deviceID,
		Send:     make(chan []byte, sendBuffer),
	}
	key := deviceKey{userID: userID, deviceID: deviceID}

	h.mu.Lock()
	if old, ok := h.active[key]; ok {
		h.replaceLocked(old, room)
	}
	h.active[key] = p
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Peer]struct{})
	}
	h.rooms[room][p] = struct{}{}
	h.mu.Unlock()

	h.log.Info("peer registered",
		zap.String("room", room),
		zap.String("user_id", userID),
		zap.String("device_id", deviceID))

	return p, func() { h.unregister(p) }
}

func (h *Hub) replaceLocked(old *Peer, newRoom string) {
	raw, _ := json.Marshal(Event{
		Type:    EventReplaced,
		Room:    old.Room,
		Payload: map[string]string{"room": newRoom},
		At:      time.Now().UTC(),
	})
	select {
	case old.Send <- raw:
	default:
	}
	h.removeLocked(old)
	old.close()
	h.log.Info("peer replaced",
		zap.String("user_id", old.UserID),
		zap.String("from_room", old.Room),
		zap.String("to_room", newRoom))
}

func (h *Hub) removeLocked(p *Peer) {
	if m, ok := h.rooms[p.Room]; ok {
		delete(m, p)
		if len(m) == 0 {
			delete(h.rooms, p.Room)
		}
	}
	key := deviceKey{userID: p.UserID, deviceID: p.DeviceID}
	if h.active[key] == p {
		delete(h.active, key)
	}
}

func (h *Hub) unregister(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(p)
	p.close()
	h.log.Debug("peer unregistered",
		zap.String("room", p.Room),
		zap.String("user_id", p.UserID))
}

// Deliver sends data to every peer in room. Slow peers with a full buffer
// miss the message.
func (h *Hub) Deliver(room string, data []byte) {
	// Sends happen under the read lock so a concurrent unregister cannot
	// close Send underneath us.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.rooms[room] {
		select {
		case p.Send <- data:
		default:
			h.log.Warn("peer send buffer full", zap.String("room", room), zap.String("user_id", p.UserID))
		}
	}
}

// Publish implements Transport for a single instance.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.Deliver(ev.Room, raw)
	if ev.Type == EventMemberLeft {
		if p, ok := ev.Payload.(MemberPayload); ok {
			h.Evict(ev.Room, p.UserID)
		}
	}
	return nil
}

// Relay delivers an already encoded event received from another instance
// and applies its membership side effects locally.
func (h *Hub) Relay(room string, raw []byte) {
	h.Deliver(room, raw)
	var ev struct {
		Type    string        `json:"type"`
		Payload MemberPayload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}
	if ev.Type == EventMemberLeft {
		h.Evict(room, ev.Payload.UserID)
	}
}

// Evict drops every peer of userID subscribed to room, on any device, and
// returns how many were dropped. Their writers see Send closed and hang up.
func (h *Hub) Evict(room, userID string) int {
	if userID == "" {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for p := range h.rooms[room] {
		if p.UserID != userID {
			continue
		}
		h.removeLocked(p)
		p.close()
		n++
	}
	if n > 0 {
		h.log.Info("peers evicted", zap.String("room", room), zap.String("user_id", userID), zap.Int("count", n))
	}
	return n
}

// ActiveRoom returns the room a user's device is currently subscribed to.
func (h *Hub) ActiveRoom(userID, deviceID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.active[deviceKey{userID: userID, deviceID: deviceID}]
	if !ok {
		return "", false
	}
	return p.Room, true
}

// PeerCount returns number of peers in a room.
func (h *Hub) PeerCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Close drops every peer; their writers see Send closed and hang up.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, m := range h.rooms {
		for p := range m {
			p.close()
		}
		delete(h.rooms, room)
	}
	h.active = make(map[deviceKey]*Peer)
}
