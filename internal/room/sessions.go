// internal/room/sessions.go
package room

import (
	"errors"

	"github.com/google/uuid"
)

// ErrUnknownSession means a session was removed that was never added (or was
// already removed). It indicates a bookkeeping bug in the caller.
var ErrUnknownSession = errors.New("unknown session")

// SessionRegistry maps each user to their open sessions. A user is a key only
// while they hold at least one session. It is not safe for concurrent use; the
// owning GameRoom guards it with its lock.
type SessionRegistry struct {
	byUser map[uuid.UUID]map[uuid.UUID]*Session
	count  int
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{byUser: make(map[uuid.UUID]map[uuid.UUID]*Session)}
}

// Add registers s. Adding the same session twice is a no-op.
func (r *SessionRegistry) Add(s *Session) {
	set, ok := r.byUser[s.UserID]
	if !ok {
		set = make(map[uuid.UUID]*Session)
		r.byUser[s.UserID] = set
	}
	if _, dup := set[s.ID]; dup {
		return
	}
	set[s.ID] = s
	r.count++
}

// Remove drops s and reports whether it was the user's last session.
func (r *SessionRegistry) Remove(s *Session) (bool, error) {
	set, ok := r.byUser[s.UserID]
	if !ok {
		return false, ErrUnknownSession
	}
	if _, ok := set[s.ID]; !ok {
		return false, ErrUnknownSession
	}
	delete(set, s.ID)
	r.count--
	if len(set) == 0 {
		delete(r.byUser, s.UserID)
		return true, nil
	}
	return false, nil
}

func (r *SessionRegistry) Has(userID uuid.UUID) bool {
	_, ok := r.byUser[userID]
	return ok
}

// Users lists users with at least one open session.
func (r *SessionRegistry) Users() []uuid.UUID {
	users := make([]uuid.UUID, 0, len(r.byUser))
	for id := range r.byUser {
		users = append(users, id)
	}
	return users
}

// ForUser returns the user's open sessions.
func (r *SessionRegistry) ForUser(userID uuid.UUID) []*Session {
	set := r.byUser[userID]
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	return out
}

func (r *SessionRegistry) All() []*Session {
	out := make([]*Session, 0, r.count)
	for _, set := range r.byUser {
		for _, s := range set {
			out = append(out, s)
		}
	}
	return out
}

// Len is the number of open sessions across all users.
func (r *SessionRegistry) Len() int {
	return r.count
}
