package transport

import (
	"sort"
	"sync"
	"sync/atomic"

	"ludo-service/pkg/logger"
	"ludo-service/pkg/protocol"

	"go.uber.org/zap"
)

const defaultBuffer = 64

// PresenceListener is told when a player's first subscription opens and
// when its last one closes.
type PresenceListener interface {
	PlayerOnline(matchID, playerID string)
	PlayerOffline(matchID, playerID string)
}

// Forwarder carries locally committed frames to other nodes.
type Forwarder interface {
	Forward(frame protocol.Frame)
}

type subscriber struct {
	playerID string
	ch       chan protocol.Message
}

type room struct {
	subs map[uint64]*subscriber
}

// Hub is the per-match broadcast channel. Readers never write match state;
// a subscriber that falls behind loses frames and recovers through
// request_sync.
type Hub struct {
	buffer int
	nextID atomic.Uint64

	mu        sync.RWMutex
	rooms     map[string]*room
	listener  PresenceListener
	forwarder Forwarder
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{
		buffer: buffer,
		rooms:  make(map[string]*room),
	}
}

func (h *Hub) SetPresenceListener(l PresenceListener) {
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()
}

func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Subscription is one live stream of messages for a participant.
type Subscription struct {
	C <-chan protocol.Message

	id       uint64
	matchID  string
	playerID string
	hub      *Hub
	once     sync.Once
}

func (s *Subscription) MatchID() string  { return s.matchID }
func (s *Subscription) PlayerID() string { return s.playerID }

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

func (h *Hub) Subscribe(matchID, playerID string) *Subscription {
	sub := &subscriber{playerID: playerID, ch: make(chan protocol.Message, h.buffer)}
	id := h.nextID.Add(1)

	h.mu.Lock()
	r, ok := h.rooms[matchID]
	if !ok {
		r = &room{subs: make(map[uint64]*subscriber)}
		h.rooms[matchID] = r
	}
	first := !r.hasPlayer(playerID)
	r.subs[id] = sub
	listener := h.listener
	var presence protocol.Presence
	if first {
		presence = r.presence(matchID)
		r.broadcast(protocol.Message{Type: protocol.MessagePresence, Presence: &presence}, matchID)
	}
	h.mu.Unlock()

	if first {
		logger.Log.Debug("player online", zap.String("matchID", matchID), zap.String("playerID", playerID))
		if listener != nil {
			listener.PlayerOnline(matchID, playerID)
		}
	}
	return &Subscription{C: sub.ch, id: id, matchID: matchID, playerID: playerID, hub: h}
}

func (h *Hub) unsubscribe(s *Subscription) {
	h.mu.Lock()
	r, ok := h.rooms[s.matchID]
	if !ok {
		h.mu.Unlock()
		return
	}
	sub, ok := r.subs[s.id]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(r.subs, s.id)
	close(sub.ch)
	last := !r.hasPlayer(s.playerID)
	if len(r.subs) == 0 {
		delete(h.rooms, s.matchID)
	} else if last {
		presence := r.presence(s.matchID)
		r.broadcast(protocol.Message{Type: protocol.MessagePresence, Presence: &presence}, s.matchID)
	}
	listener := h.listener
	h.mu.Unlock()

	if last {
		logger.Log.Debug("player offline", zap.String("matchID", s.matchID), zap.String("playerID", s.playerID))
		if listener != nil {
			listener.PlayerOffline(s.matchID, s.playerID)
		}
	}
}

// Publish delivers a committed frame locally and forwards it to peers.
// It never blocks.
func (h *Hub) Publish(frame protocol.Frame) {
	h.Deliver(frame)
	h.mu.RLock()
	f := h.forwarder
	h.mu.RUnlock()
	if f != nil {
		f.Forward(frame)
	}
}

// Deliver fans a frame out to local subscribers only.
func (h *Hub) Deliver(frame protocol.Frame) {
	msg := protocol.Message{Type: protocol.MessageFrame, Frame: &frame}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[frame.MatchID]; ok {
		r.broadcast(msg, frame.MatchID)
	}
}

// Presence lists players holding at least one live subscription.
func (h *Hub) Presence(matchID string) protocol.Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[matchID]; ok {
		return r.presence(matchID)
	}
	return protocol.Presence{MatchID: matchID, Online: []string{}}
}

func (h *Hub) Online(matchID, playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[matchID]
	return ok && r.hasPlayer(playerID)
}

func (r *room) hasPlayer(playerID string) bool {
	for _, s := range r.subs {
		if s.playerID == playerID {
			return true
		}
	}
	return false
}

func (r *room) presence(matchID string) protocol.Presence {
	seen := make(map[string]bool, len(r.subs))
	online := make([]string, 0, len(r.subs))
	for _, s := range r.subs {
		if !seen[s.playerID] {
			seen[s.playerID] = true
			online = append(online, s.playerID)
		}
	}
	sort.Strings(online)
	return protocol.Presence{MatchID: matchID, Online: online}
}

func (r *room) broadcast(msg protocol.Message, matchID string) {
	for _, s := range r.subs {
		select {
		case s.ch <- msg:
		default:
			logger.Log.Warn("subscriber channel full, dropping message",
				zap.String("matchID", matchID),
				zap.String("playerID", s.playerID),
				zap.String("type", string(msg.Type)),
			)
		}
	}
}
