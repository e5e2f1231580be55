package room

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memStore is an in-memory Store and Resolver.
type memStore struct {
	mu          sync.Mutex
	rooms       map[uuid.UUID]Record
	users       map[uuid.UUID]*models.User
	puzzles     map[uuid.UUID]*models.Puzzle
	submissions map[uuid.UUID]*judge.Submission
	finds       atomic.Int32
	updates     atomic.Int32
	findDelay   time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		rooms:       make(map[uuid.UUID]Record),
		users:       make(map[uuid.UUID]*models.User),
		puzzles:     make(map[uuid.UUID]*models.Puzzle),
		submissions: make(map[uuid.UUID]*judge.Submission),
	}
}

func (m *memStore) InsertRoom(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[rec.ID] = rec
	return nil
}

func (m *memStore) FindRoom(_ context.Context, id uuid.UUID) (Record, error) {
	m.finds.Add(1)
	if m.findDelay > 0 {
		time.Sleep(m.findDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rooms[id]
	if !ok {
		return Record{}, models.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) UpdateRoom(_ context.Context, rec Record) error {
	m.updates.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[rec.ID] = rec
	return nil
}

func (m *memStore) User(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, id)
}

func (m *memStore) Puzzle(_ context.Context, id uuid.UUID) (*models.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.puzzles[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: puzzle %s", models.ErrNotFound, id)
}

func (m *memStore) Submission(_ context.Context, id uuid.UUID) (*judge.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: submission %s", models.ErrNotFound, id)
}

func (m *memStore) addUser(nick string) *models.User {
	u := &models.User{ID: uuid.New(), Nickname: nick}
	m.mu.Lock()
	m.users[u.ID] = u
	m.mu.Unlock()
	return u
}

func (m *memStore) addPuzzle() *models.Puzzle {
	p := &models.Puzzle{
		ID:    uuid.New(),
		Title: "Echo",
		Validators: []models.Validator{
			{Type: models.ValidatorSample, Input: "hi", Output: "hi"},
			{Type: models.ValidatorTestCase, Input: "a", Output: "a"},
			{Type: models.ValidatorTestCase, Input: "b", Output: "b"},
			{Type: models.ValidatorTestCase, Input: "c", Output: "c"},
		},
	}
	m.mu.Lock()
	m.puzzles[p.ID] = p
	m.mu.Unlock()
	return p
}

type fixture struct {
	clock   *fakeClock
	store   *memStore
	reg     *Registry
	creator *models.User
	puzzle  *models.Puzzle
	logger  logrus.FieldLogger
}

func newFixture() *fixture {
	logger, _ := logtest.NewNullLogger()
	clock := newFakeClock()
	store := newMemStore()
	return &fixture{
		clock:   clock,
		store:   store,
		reg:     NewRegistry(store, store, logger, WithClock(clock.Now)),
		creator: store.addUser("creator"),
		puzzle:  store.addPuzzle(),
		logger:  logger,
	}
}

// createRoom creates a room starting in `in` from now.
func (f *fixture) createRoom(cfg Config, in time.Duration) *GameRoom {
	r, err := f.reg.Create(context.Background(), f.creator, f.puzzle, cfg, f.clock.Now().Add(in))
	if err != nil {
		panic(err)
	}
	return r
}

func (f *fixture) connect(r *GameRoom, u *models.User) *Session {
	s := NewSession(u.ID, func() {}, 64, f.logger)
	if err := r.AddSession(s); err != nil {
		panic(err)
	}
	return s
}

// drain returns the message types queued on s.
func drain(s *Session) []string {
	var types []string
	for {
		select {
		case msg := <-s.OutChan:
			t, _ := msg["type"].(string)
			types = append(types, t)
		default:
			return types
		}
	}
}

type echoJudge struct{}

func (echoJudge) Execute(_ context.Context, code string, _ models.Language, v models.Validator) (bool, string) {
	return code == "echo" || v.Input == code, code
}
