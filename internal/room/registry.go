// internal/room/registry.go
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultLobbyWait is how far out a room's start is scheduled when created
// without an explicit start time. Launch pulls it in.
const DefaultLobbyWait = 15 * time.Minute

// Store persists room records. FindRoom returns models.ErrNotFound for unknown ids.
type Store interface {
	InsertRoom(ctx context.Context, rec Record) error
	FindRoom(ctx context.Context, id uuid.UUID) (Record, error)
	UpdateRoom(ctx context.Context, rec Record) error
}

// Resolver turns stored references back into objects when a room is loaded.
type Resolver interface {
	User(ctx context.Context, id uuid.UUID) (*models.User, error)
	Puzzle(ctx context.Context, id uuid.UUID) (*models.Puzzle, error)
	Submission(ctx context.Context, id uuid.UUID) (*judge.Submission, error)
}

// Registry keeps at most one in-memory GameRoom per id, loading rooms from the
// store on first access.
type Registry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*GameRoom
	loads singleflight.Group

	store     Store
	resolver  Resolver
	onRestore func(*GameRoom, *judge.Submission)
	now       func() time.Time
	logger    logrus.FieldLogger
}

type RegistryOption func(*Registry)

// WithClock replaces time.Now for the registry and every room it builds.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithRestoreHook calls fn for every unfinished submission of a room loaded
// from the store, once the room is registered. It is how judging resumes after
// a restart.
func WithRestoreHook(fn func(*GameRoom, *judge.Submission)) RegistryOption {
	return func(r *Registry) { r.onRestore = fn }
}

func NewRegistry(store Store, resolver Resolver, logger logrus.FieldLogger, opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms:    make(map[uuid.UUID]*GameRoom),
		store:    store,
		resolver: resolver,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create persists a new waiting room and registers it. A zero start schedules
// it DefaultLobbyWait from now.
func (reg *Registry) Create(ctx context.Context, creator *models.User, puzzle *models.Puzzle, cfg Config, start time.Time) (*GameRoom, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	if start.IsZero() {
		start = reg.now().Add(DefaultLobbyWait)
	}
	rec := Record{
		ID:            uuid.New(),
		CreatorID:     creator.ID,
		PuzzleID:      puzzle.ID,
		Config:        cfg,
		StartTime:     start.UTC(),
		State:         StateWaiting,
		PlayerIDs:     []uuid.UUID{},
		SubmissionIDs: []uuid.UUID{},
	}
	if err := reg.store.InsertRoom(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to insert room: %w", err)
	}

	room := newRoom(rec.ID, creator, puzzle, cfg, rec.StartTime, StateWaiting, reg.now, reg.logger)
	reg.mu.Lock()
	reg.rooms[room.ID] = room
	reg.mu.Unlock()
	reg.logger.WithFields(logrus.Fields{"room": room.ID, "creator": creator.ID}).Info("room created")
	return room, nil
}

func (reg *Registry) lookup(id uuid.UUID) (*GameRoom, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[id]
	return r, ok
}

// Get returns the active room, loading it from the store if needed. Concurrent
// callers asking for the same id share one load and one instance.
func (reg *Registry) Get(ctx context.Context, id uuid.UUID) (*GameRoom, error) {
	if r, ok := reg.lookup(id); ok {
		return r, nil
	}
	v, err, _ := reg.loads.Do(id.String(), func() (interface{}, error) {
		if r, ok := reg.lookup(id); ok {
			return r, nil
		}
		rec, err := reg.store.FindRoom(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("%w: can't find game room %s", models.ErrNotFound, id)
			}
			return nil, fmt.Errorf("failed to load room %s: %w", id, err)
		}
		loaded, err := reg.restore(ctx, rec)
		if err != nil {
			return nil, err
		}

		reg.mu.Lock()
		if existing, ok := reg.rooms[id]; ok {
			reg.mu.Unlock()
			return existing, nil
		}
		reg.rooms[id] = loaded
		reg.mu.Unlock()
		reg.logger.WithField("room", id).Info("room loaded from store")
		reg.resumePending(loaded)
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*GameRoom), nil
}

func (reg *Registry) restore(ctx context.Context, rec Record) (*GameRoom, error) {
	creator, err := reg.resolver.User(ctx, rec.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("room %s creator: %w", rec.ID, err)
	}
	puzzle, err := reg.resolver.Puzzle(ctx, rec.PuzzleID)
	if err != nil {
		return nil, fmt.Errorf("room %s puzzle: %w", rec.ID, err)
	}
	cfg, err := rec.Config.Normalize()
	if err != nil {
		return nil, fmt.Errorf("room %s config: %w", rec.ID, err)
	}

	r := newRoom(rec.ID, creator, puzzle, cfg, rec.StartTime, rec.State, reg.now, reg.logger)
	for _, pid := range rec.PlayerIDs {
		u, err := reg.resolver.User(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("room %s player %s: %w", rec.ID, pid, err)
		}
		r.players[pid] = u
		r.joinedAt[pid] = r.startTime
	}
	for _, sid := range rec.SubmissionIDs {
		sub, err := reg.resolver.Submission(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("room %s submission %s: %w", rec.ID, sid, err)
		}
		r.recordSubmissionUnsafe(sub)
	}
	return r, nil
}

func (reg *Registry) resumePending(r *GameRoom) {
	if reg.onRestore == nil {
		return
	}
	for _, sub := range r.Submissions() {
		if !sub.Finished() {
			reg.logger.WithFields(logrus.Fields{"room": r.ID, "submission": sub.ID}).Info("resuming judging")
			reg.onRestore(r, sub)
		}
	}
}

// Attach resolves the room and registers s with it. If the room is evicted in
// between, the session goes to the reloaded instance instead.
func (reg *Registry) Attach(ctx context.Context, id uuid.UUID, s *Session) (*GameRoom, error) {
	for {
		r, err := reg.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		err = r.AddSession(s)
		if !errors.Is(err, ErrEvicted) {
			if err != nil {
				return nil, err
			}
			return r, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Flush writes the room's current record to the store. Evicted instances are
// stale and never written.
func (reg *Registry) Flush(ctx context.Context, r *GameRoom) error {
	if r.Evicted() {
		return nil
	}
	if err := reg.store.UpdateRoom(ctx, r.Record()); err != nil {
		return fmt.Errorf("failed to flush room %s: %w", r.ID, err)
	}
	return nil
}

// Active returns a snapshot of the rooms held in memory.
func (reg *Registry) Active() []*GameRoom {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make([]*GameRoom, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Sweep is the scheduling tick. It moves every room's phase along the clock,
// persists rooms whose phase changed, and evicts finished rooms nobody is
// connected to.
func (reg *Registry) Sweep(ctx context.Context) {
	now := reg.now()
	for _, r := range reg.Active() {
		if r.Advance(now) {
			if err := reg.Flush(ctx, r); err != nil {
				reg.logger.WithField("room", r.ID).Errorf("sweep: %v", err)
				continue
			}
		}
		reg.evictIfIdle(r)
	}
}

// evictIfIdle drops r if it is finished and nobody is connected. The check and
// the removal happen under both the registry lock and the room lock, so no
// session can attach in between.
func (reg *Registry) evictIfIdle(r *GameRoom) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[r.ID] != r {
		return
	}
	if !r.retireIfIdle() {
		return
	}
	delete(reg.rooms, r.ID)
	reg.logger.WithField("room", r.ID).Info("finished room evicted")
}

// FlushAll persists every active room, e.g. on shutdown.
func (reg *Registry) FlushAll(ctx context.Context) error {
	var errs []error
	for _, r := range reg.Active() {
		if err := reg.Flush(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run calls Sweep every interval until ctx is cancelled.
func (reg *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep(ctx)
		}
	}
}
