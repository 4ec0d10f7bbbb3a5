package broker

import (
	"sync"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
)

// SessionRegistry is the broker-owned index of connected sessions and
// room membership. All mutation goes through its mutex; rooms are
// created implicitly on first join and dropped when their last member
// leaves.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*relay.Session
	rooms    map[string]map[string]bool // room -> set of session IDs
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*relay.Session),
		rooms:    make(map[string]map[string]bool),
	}
}

// Add registers a session in its room.
func (r *SessionRegistry) Add(sess *relay.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[sess.ID] = sess
	if r.rooms[sess.Room] == nil {
		r.rooms[sess.Room] = make(map[string]bool)
	}
	r.rooms[sess.Room][sess.ID] = true
}

// Remove deletes a session and its room membership. Removing an
// unknown or already-removed session is a no-op; the second return
// reports whether anything was removed.
func (r *SessionRegistry) Remove(sessionID string) (*relay.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}

	delete(r.sessions, sessionID)
	if members := r.rooms[sess.Room]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, sess.Room)
		}
	}
	return sess, true
}

// Get returns a copy of a session by ID.
func (r *SessionRegistry) Get(sessionID string) (*relay.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	copy := *sess
	return &copy, true
}

// Move reassigns a session's display name and room, creating the new
// room on first join. Returns the previous room name.
func (r *SessionRegistry) Move(sessionID, user, room string) (prevRoom string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, found := r.sessions[sessionID]
	if !found {
		return "", false
	}

	prevRoom = sess.Room
	if members := r.rooms[prevRoom]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, prevRoom)
		}
	}

	sess.User = user
	sess.Room = room
	if r.rooms[room] == nil {
		r.rooms[room] = make(map[string]bool)
	}
	r.rooms[room][sessionID] = true
	return prevRoom, true
}

// Count returns the number of registered sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomCount returns the number of rooms with at least one member.
func (r *SessionRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomSize returns the number of sessions joined to a room.
func (r *SessionRegistry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
