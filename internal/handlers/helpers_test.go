package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/auth"
	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/piston"
	"github.com/jason-s-yu/codincod/internal/room"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memDB stands in for the Postgres store and the user cache.
type memDB struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*models.User
	puzzles     map[uuid.UUID]*models.Puzzle
	rooms       map[uuid.UUID]room.Record
	submissions map[uuid.UUID]*judge.Submission
	saved       map[uuid.UUID]int
}

func newMemDB() *memDB {
	return &memDB{
		users:       make(map[uuid.UUID]*models.User),
		puzzles:     make(map[uuid.UUID]*models.Puzzle),
		rooms:       make(map[uuid.UUID]room.Record),
		submissions: make(map[uuid.UUID]*judge.Submission),
		saved:       make(map[uuid.UUID]int),
	}
}

func (m *memDB) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Nickname == u.Nickname || existing.Email == u.Email {
			return fmt.Errorf("%w: nickname or email already taken", models.ErrInvalidOperation)
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memDB) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
}

func (m *memDB) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Nickname == login || u.Email == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %q: %w", login, models.ErrNotFound)
}

func (m *memDB) SearchUsersByNickname(_ context.Context, prefix string, limit int) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, u := range m.users {
		if strings.HasPrefix(strings.ToLower(u.Nickname), strings.ToLower(prefix)) && len(out) < limit {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memDB) User(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.GetUserByID(ctx, id)
}

func (m *memDB) GetPuzzle(_ context.Context, id uuid.UUID) (*models.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.puzzles[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: can't find puzzle %s", models.ErrNotFound, id)
}

func (m *memDB) Puzzle(ctx context.Context, id uuid.UUID) (*models.Puzzle, error) {
	return m.GetPuzzle(ctx, id)
}

func (m *memDB) ListPuzzlesByAuthor(_ context.Context, authorID uuid.UUID) ([]*models.Puzzle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Puzzle
	for _, p := range m.puzzles {
		if p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memDB) InsertSubmission(_ context.Context, sub *judge.Submission, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions[sub.ID] = sub
	return nil
}

func (m *memDB) SaveSubmissionResults(ctx context.Context, sub *judge.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sub.ID]++
	return nil
}

func (m *memDB) GetSubmission(_ context.Context, id uuid.UUID) (*judge.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.submissions[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: can't find submission %s", models.ErrNotFound, id)
}

func (m *memDB) Submission(ctx context.Context, id uuid.UUID) (*judge.Submission, error) {
	return m.GetSubmission(ctx, id)
}

func (m *memDB) InsertRoom(_ context.Context, rec room.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[rec.ID] = rec
	return nil
}

func (m *memDB) FindRoom(_ context.Context, id uuid.UUID) (room.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.rooms[id]; ok {
		return rec, nil
	}
	return room.Record{}, models.ErrNotFound
}

func (m *memDB) UpdateRoom(_ context.Context, rec room.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[rec.ID]; !ok {
		return models.ErrNotFound
	}
	m.rooms[rec.ID] = rec
	return nil
}

func (m *memDB) roomRecord(id uuid.UUID) room.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[id]
}

func (m *memDB) savedCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saved[id]
}

// okJudge passes every case when the code is "ok".
type okJudge struct{}

func (okJudge) Execute(_ context.Context, code string, _ models.Language, v models.Validator) (bool, string) {
	if code == "ok" {
		return true, v.Output
	}
	return false, code
}

type memPublisher struct {
	mu      sync.Mutex
	records []cache.JudgeRunRecord
}

func (p *memPublisher) PublishJudgeRuns(ctx context.Context, records []cache.JudgeRunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, records...)
	return nil
}

func (p *memPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

type fixture struct {
	gs     *GameServer
	db     *memDB
	clock  *fakeClock
	runs   *memPublisher
	puzzle *models.Puzzle
	author *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	db := newMemDB()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := auth.NewTokenIssuer(0)
	require.NoError(t, err)

	j := okJudge{}
	runs := &memPublisher{}
	var gs *GameServer
	resume := room.WithRestoreHook(func(rm *room.GameRoom, sub *judge.Submission) { gs.ResumeJudging(rm, sub) })
	gs = &GameServer{
		Users:       db,
		Resolver:    db,
		Puzzles:     db,
		Submissions: db,
		Languages: piston.NewCatalog([]models.Language{
			{Name: "python", Version: "3.12.0", Aliases: []string{"py"}},
			{Name: "go", Version: "1.16.2"},
		}),
		Rooms:      room.NewRegistry(db, db, logger, room.WithClock(clock.Now), resume),
		Judge:      j,
		Dispatcher: judge.NewDispatcher(j, 2, logger),
		Runs:       runs,
		Tokens:     tokens,
		Hasher:     auth.NewHasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		BaseCtx:    context.Background(),
		Logger:     logger,
		Now:        clock.Now,
	}

	f := &fixture{gs: gs, db: db, clock: clock, runs: runs}
	f.author = f.addUser(t, "author")
	f.puzzle = &models.Puzzle{
		ID:       uuid.New(),
		Title:    "Echo",
		AuthorID: f.author.ID,
		Validators: []models.Validator{
			{Type: models.ValidatorSample, Input: "x", Output: "x"},
			{Type: models.ValidatorTestCase, Input: "a", Output: "a"},
			{Type: models.ValidatorTestCase, Input: "b", Output: "b"},
		},
		PuzzleTypes: []models.PuzzleType{models.PuzzleFastest},
		Difficulty:  models.DifficultyEasy,
	}
	db.puzzles[f.puzzle.ID] = f.puzzle
	return f
}

func (f *fixture) addUser(t *testing.T, nick string) *models.User {
	t.Helper()
	u := &models.User{Nickname: nick, Email: nick + "@example.com"}
	require.NoError(t, f.db.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := f.gs.Tokens.Issue(u.ID)
	require.NoError(t, err)
	return tok
}

// do runs one request through the full mux. A nil user sends no cookie.
func (f *fixture) do(t *testing.T, method, target string, body interface{}, u *models.User) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if u != nil {
		req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: f.token(t, u)})
	}
	rr := httptest.NewRecorder()
	NewMux(f.gs).ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}
