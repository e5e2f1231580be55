// internal/room/room.go
package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrEvicted is returned by AddSession on an instance the registry has dropped.
// Resolve the room again and retry.
var ErrEvicted = errors.New("room instance was evicted")

const (
	// LaunchCountdown is how far in the future Launch schedules the start by default.
	LaunchCountdown = 5 * time.Second
	// LaunchGuard: a room whose start is closer than this is already starting.
	LaunchGuard = 10 * time.Second
)

// GameRoom is a timed multiplayer session around one puzzle. Every exported
// method takes Mu; methods suffixed Unsafe expect the caller to hold it.
//
// The phase only moves forward along the transition table and follows the
// clock: it becomes IN_PROGRESS at the start time and FINISHED at the end time.
// Guarded methods bring the phase up to date before checking it.
type GameRoom struct {
	ID      uuid.UUID
	Creator *models.User
	Config  Config
	Puzzle  *models.Puzzle

	startTime   time.Time
	state       State
	players     map[uuid.UUID]*models.User
	joinedAt    map[uuid.UUID]time.Time
	submissions map[uuid.UUID]*judge.Submission
	order       []uuid.UUID
	latest      map[uuid.UUID]*judge.Submission
	sessions    *SessionRegistry
	evicted     bool

	now    func() time.Time
	logger logrus.FieldLogger

	Mu sync.Mutex
}

func newRoom(id uuid.UUID, creator *models.User, puzzle *models.Puzzle, cfg Config, start time.Time, state State, now func() time.Time, logger logrus.FieldLogger) *GameRoom {
	return &GameRoom{
		ID:          id,
		Creator:     creator,
		Config:      cfg,
		Puzzle:      puzzle,
		startTime:   start.UTC(),
		state:       state,
		players:     make(map[uuid.UUID]*models.User),
		joinedAt:    make(map[uuid.UUID]time.Time),
		submissions: make(map[uuid.UUID]*judge.Submission),
		latest:      make(map[uuid.UUID]*judge.Submission),
		sessions:    NewSessionRegistry(),
		now:         now,
		logger:      logger.WithField("room", id),
	}
}

// advanceUnsafe walks the transition table one step at a time until the phase
// matches the clock, returning every phase entered.
func (r *GameRoom) advanceUnsafe(now time.Time) []State {
	var entered []State
	for {
		next, ok := r.state.next()
		if !ok {
			return entered
		}
		var due time.Time
		switch next {
		case StateInProgress:
			due = r.startTime
		case StateFinished:
			due = r.endTimeUnsafe()
		}
		if now.Before(due) {
			return entered
		}
		r.logger.Infof("room state %s -> %s", r.state, next)
		r.state = next
		entered = append(entered, next)
	}
}

func (r *GameRoom) syncUnsafe() {
	for _, st := range r.advanceUnsafe(r.now()) {
		r.broadcastUnsafe(r.stateChangePayloadUnsafe(st))
	}
}

// Advance brings the phase up to date with now and reports whether it changed.
func (r *GameRoom) Advance(now time.Time) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	entered := r.advanceUnsafe(now)
	for _, st := range entered {
		r.broadcastUnsafe(r.stateChangePayloadUnsafe(st))
	}
	return len(entered) > 0
}

func (r *GameRoom) State() State {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()
	return r.state
}

// StateAt is the phase the room will be in at t, without changing it.
func (r *GameRoom) StateAt(t time.Time) State {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	st := r.state
	for {
		next, ok := st.next()
		if !ok {
			return st
		}
		due := r.startTime
		if next == StateFinished {
			due = r.endTimeUnsafe()
		}
		if t.Before(due) {
			return st
		}
		st = next
	}
}

func (r *GameRoom) StartTime() time.Time {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.startTime
}

func (r *GameRoom) endTimeUnsafe() time.Time {
	return r.startTime.Add(r.Config.Duration())
}

// EndTime is always StartTime plus the configured duration.
func (r *GameRoom) EndTime() time.Time {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.endTimeUnsafe()
}

// Launch moves the start up to start, or to now plus LaunchCountdown when start
// is nil. Only the waiting room can be launched, and not once it is about to
// begin on its own. An explicit start may not lie in the past.
func (r *GameRoom) Launch(start *time.Time) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()

	if r.state != StateWaiting {
		return fmt.Errorf("%w: game is already started", models.ErrInvalidOperation)
	}
	now := r.now()
	if r.startTime.Before(now.Add(LaunchGuard)) {
		return fmt.Errorf("%w: game is already starting", models.ErrInvalidOperation)
	}
	if start != nil {
		if start.Before(now) {
			return fmt.Errorf("%w: start time %s is in the past", models.ErrInvalidInput, start.UTC().Format(time.RFC3339))
		}
		r.startTime = start.UTC()
	} else {
		r.startTime = now.Add(LaunchCountdown).UTC()
	}
	r.logger.Infof("room launched, starting at %s", r.startTime.Format(time.RFC3339))
	r.broadcastUnsafe(map[string]interface{}{
		"type":       "game_launch",
		"start_time": r.startTime,
		"end_time":   r.endTimeUnsafe(),
	})
	r.syncUnsafe()
	return nil
}

// AddPlayer admits user while the room waits, or while it runs if it is
// private. The user needs an open session in the room. Re-adding is a no-op.
func (r *GameRoom) AddPlayer(user *models.User) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()

	switch {
	case r.state == StateWaiting:
	case r.state == StateInProgress && r.Config.Visibility == Private:
	default:
		return fmt.Errorf("%w: can't join, game already started", models.ErrInvalidOperation)
	}
	if !r.sessions.Has(user.ID) {
		return fmt.Errorf("%w: user %s has no open session in room %s", models.ErrInvalidOperation, user.ID, r.ID)
	}
	if _, ok := r.players[user.ID]; ok {
		return nil
	}

	r.players[user.ID] = user
	r.joinedAt[user.ID] = r.now().UTC()
	r.logger.WithField("user", user.ID).Info("player joined")
	r.broadcastUnsafe(map[string]interface{}{
		"type":    "player_join",
		"player":  user.PublicInfo(),
		"players": r.playersPayloadUnsafe(),
	})
	return nil
}

// RemovePlayer takes a player out of a waiting room.
func (r *GameRoom) RemovePlayer(userID uuid.UUID) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()
	return r.removePlayerUnsafe(userID)
}

func (r *GameRoom) removePlayerUnsafe(userID uuid.UUID) error {
	user, ok := r.players[userID]
	if !ok {
		return fmt.Errorf("%w: user is not in game room", models.ErrInvalidOperation)
	}
	if r.state != StateWaiting {
		return fmt.Errorf("%w: game has already started", models.ErrInvalidOperation)
	}
	delete(r.players, userID)
	delete(r.joinedAt, userID)
	r.logger.WithField("user", userID).Info("player left")
	r.broadcastUnsafe(map[string]interface{}{
		"type":    "player_leave",
		"player":  user.PublicInfo(),
		"players": r.playersPayloadUnsafe(),
	})
	return nil
}

// AddSubmission records a player's submission while the game runs. Judging is
// the caller's job, after this returns.
func (r *GameRoom) AddSubmission(sub *judge.Submission) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()

	switch r.state {
	case StateWaiting:
		return fmt.Errorf("%w: game hasn't started yet", models.ErrInvalidOperation)
	case StateFinished:
		return fmt.Errorf("%w: game is already finalized", models.ErrInvalidOperation)
	}
	if _, ok := r.players[sub.UserID]; !ok {
		return fmt.Errorf("%w: user %s is not a player of room %s", models.ErrInvalidOperation, sub.UserID, r.ID)
	}
	if r.Puzzle != nil && sub.PuzzleID != r.Puzzle.ID {
		return fmt.Errorf("%w: submission is for another puzzle", models.ErrInvalidInput)
	}
	if _, dup := r.submissions[sub.ID]; dup {
		return nil
	}

	r.recordSubmissionUnsafe(sub)
	r.broadcastUnsafe(map[string]interface{}{
		"type":       "submission",
		"submission": sub.PublicInfo(),
	})
	return nil
}

func (r *GameRoom) recordSubmissionUnsafe(sub *judge.Submission) {
	r.submissions[sub.ID] = sub
	r.order = append(r.order, sub.ID)
	if prev, ok := r.latest[sub.UserID]; !ok || !sub.SubmittedAt.Before(prev.SubmittedAt) {
		r.latest[sub.UserID] = sub
	}
}

// AddSession registers a live connection and sends it the current room view.
// It fails with ErrEvicted once the registry has dropped this instance.
func (r *GameRoom) AddSession(s *Session) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.evicted {
		return ErrEvicted
	}
	r.syncUnsafe()
	r.sessions.Add(s)
	state := r.publicUnsafe()
	state["type"] = "room_state"
	s.Write(state)
	return nil
}

// retireIfIdle marks a finished room with no sessions as evicted. The registry
// calls it while holding its own lock.
func (r *GameRoom) retireIfIdle() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()
	if r.state != StateFinished || r.sessions.Len() > 0 {
		return false
	}
	r.evicted = true
	return true
}

// Evicted reports whether the registry has dropped this instance.
func (r *GameRoom) Evicted() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.evicted
}

// RemoveSession drops a live connection. If it was the user's last one while
// the room waits, the user also stops being a player. Once the game started,
// players stay even with every session closed.
func (r *GameRoom) RemoveSession(s *Session) error {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	emptied, err := r.sessions.Remove(s)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"session": s.ID, "user": s.UserID}).Errorf("remove session: %v", err)
		return err
	}
	r.syncUnsafe()
	if emptied && r.state == StateWaiting {
		if _, ok := r.players[s.UserID]; ok {
			return r.removePlayerUnsafe(s.UserID)
		}
	}
	return nil
}

func (r *GameRoom) IsPlayer(userID uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	_, ok := r.players[userID]
	return ok
}

func (r *GameRoom) HasSession(userID uuid.UUID) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.sessions.Has(userID)
}

// HasSessions reports whether anyone is connected.
func (r *GameRoom) HasSessions() bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	return r.sessions.Len() > 0
}

func (r *GameRoom) Players() []*models.User {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	out := make([]*models.User, 0, len(r.players))
	for _, u := range r.players {
		out = append(out, u)
	}
	return out
}

func (r *GameRoom) Submission(id uuid.UUID) (*judge.Submission, bool) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	s, ok := r.submissions[id]
	return s, ok
}

// Submissions returns every submission in the order they were recorded.
func (r *GameRoom) Submissions() []*judge.Submission {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	out := make([]*judge.Submission, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.submissions[id])
	}
	return out
}

// Broadcast sends msg to every open session.
func (r *GameRoom) Broadcast(msg map[string]interface{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.broadcastUnsafe(msg)
}

// SendTo sends msg to every session of one user.
func (r *GameRoom) SendTo(userID uuid.UUID, msg map[string]interface{}) {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	for _, s := range r.sessions.ForUser(userID) {
		s.Write(msg)
	}
}

// broadcastUnsafe relies on Session.Write never blocking.
func (r *GameRoom) broadcastUnsafe(msg map[string]interface{}) {
	for _, s := range r.sessions.All() {
		s.Write(msg)
	}
}

func (r *GameRoom) stateChangePayloadUnsafe(st State) map[string]interface{} {
	return map[string]interface{}{
		"type":       "state_change",
		"state":      st,
		"start_time": r.startTime,
		"end_time":   r.endTimeUnsafe(),
	}
}

// Record snapshots the persisted part of the room.
func (r *GameRoom) Record() Record {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()
	rec := Record{
		ID:            r.ID,
		Config:        r.Config,
		StartTime:     r.startTime,
		State:         r.state,
		PlayerIDs:     make([]uuid.UUID, 0, len(r.players)),
		SubmissionIDs: append([]uuid.UUID(nil), r.order...),
	}
	if r.Creator != nil {
		rec.CreatorID = r.Creator.ID
	}
	if r.Puzzle != nil {
		rec.PuzzleID = r.Puzzle.ID
	}
	for id := range r.players {
		rec.PlayerIDs = append(rec.PlayerIDs, id)
	}
	return rec
}

// Record is the durable form of a room.
type Record struct {
	ID            uuid.UUID
	CreatorID     uuid.UUID
	PuzzleID      uuid.UUID
	Config        Config
	StartTime     time.Time
	State         State
	PlayerIDs     []uuid.UUID
	SubmissionIDs []uuid.UUID
}
