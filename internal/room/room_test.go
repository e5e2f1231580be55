package room

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var python = models.Language{Name: "python", Version: "3.10.0"}

func TestLaunchSchedulesCountdown(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Hour)

	require.NoError(t, r.Launch(nil))
	assert.Equal(t, f.clock.Now().Add(LaunchCountdown), r.StartTime())
	assert.Equal(t, StateWaiting, r.State())

	err := r.Launch(nil)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "already starting")
}

func TestLaunchWithOverride(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Hour)
	at := f.clock.Now().Add(2 * time.Minute)

	require.NoError(t, r.Launch(&at))
	assert.Equal(t, at, r.StartTime())
}

func TestLaunchRejectsPastOverride(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Hour)
	s := f.connect(r, f.creator)
	drain(s)
	past := f.clock.Now().Add(-time.Hour)

	err := r.Launch(&past)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, StateWaiting, r.State())
	assert.Equal(t, f.clock.Now().Add(time.Hour), r.StartTime())
	assert.Empty(t, drain(s))
}

func TestLaunchRejectsImminentStart(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), 9*time.Second)

	err := r.Launch(nil)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.Equal(t, f.clock.Now().Add(9*time.Second), r.StartTime())
}

func TestLaunchRejectsStartedRoom(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	f.clock.Advance(time.Minute)

	err := r.Launch(nil)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "already started")
}

func TestStateFollowsClockWithoutSkipping(t *testing.T) {
	f := newFixture()
	cfg := DefaultConfig()
	cfg.DurationMinutes = 10
	r := f.createRoom(cfg, time.Minute)
	s := f.connect(r, f.creator)
	drain(s)

	assert.Equal(t, r.StartTime().Add(10*time.Minute), r.EndTime())
	assert.Equal(t, StateInProgress, r.StateAt(r.StartTime()))
	assert.Equal(t, StateFinished, r.StateAt(r.EndTime()))
	assert.Equal(t, StateWaiting, r.State(), "StateAt must not move the room")

	f.clock.Advance(time.Hour)
	assert.True(t, r.Advance(f.clock.Now()))
	assert.Equal(t, StateFinished, r.State())
	assert.Equal(t, []string{"state_change", "state_change"}, drain(s))
	assert.False(t, r.Advance(f.clock.Now()))
}

func TestAddPlayerRequiresSession(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Hour)
	u := f.store.addUser("alice")

	err := r.AddPlayer(u)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.False(t, r.IsPlayer(u.ID))

	f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))
	require.NoError(t, r.AddPlayer(u), "joining twice is a no-op")
	assert.True(t, r.IsPlayer(u.ID))
	assert.Len(t, r.Players(), 1)
}

func TestAddPlayerVisibilityRules(t *testing.T) {
	f := newFixture()

	public := f.createRoom(DefaultConfig(), time.Minute)
	private := f.createRoom(Config{Visibility: Private, DurationMinutes: 10}, time.Minute)
	u := f.store.addUser("late")
	f.connect(public, u)
	f.connect(private, u)

	f.clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, public.AddPlayer(u), models.ErrInvalidOperation)
	assert.NoError(t, private.AddPlayer(u))

	f.clock.Advance(time.Hour)
	assert.ErrorIs(t, private.AddPlayer(f.store.addUser("later")), models.ErrInvalidOperation)
}

func TestLateJoinFreshClock(t *testing.T) {
	f := newFixture()
	r := f.createRoom(Config{Visibility: Private, DurationMinutes: 10, LateJoin: LateJoinFresh}, time.Minute)
	u := f.store.addUser("late")
	f.connect(r, u)
	f.clock.Advance(3 * time.Minute)
	require.NoError(t, r.AddPlayer(u))

	players := r.Public()["players"].([]map[string]interface{})
	require.Len(t, players, 1)
	assert.Equal(t, f.clock.Now(), players[0]["started_at"])
	assert.Equal(t, r.StartTime().Add(10*time.Minute), r.EndTime())
}

func TestRemovePlayer(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	u := f.store.addUser("alice")

	assert.ErrorIs(t, r.RemovePlayer(u.ID), models.ErrInvalidOperation)

	f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))
	require.NoError(t, r.RemovePlayer(u.ID))
	assert.False(t, r.IsPlayer(u.ID))

	require.NoError(t, r.AddPlayer(u))
	f.clock.Advance(time.Minute)
	err := r.RemovePlayer(u.ID)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.True(t, r.IsPlayer(u.ID))
}

func TestLastSessionCloseInLobbyRemovesPlayer(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	u := f.store.addUser("alice")
	tab1 := f.connect(r, u)
	tab2 := f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))

	require.NoError(t, r.RemoveSession(tab1))
	assert.True(t, r.IsPlayer(u.ID), "another tab is still open")

	require.NoError(t, r.RemoveSession(tab2))
	assert.False(t, r.IsPlayer(u.ID))
	assert.False(t, r.HasSession(u.ID))
}

func TestLastSessionCloseInGameKeepsPlayer(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	u := f.store.addUser("alice")
	s := f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))

	f.clock.Advance(time.Minute)
	require.NoError(t, r.RemoveSession(s))
	assert.True(t, r.IsPlayer(u.ID))
	assert.False(t, r.HasSessions())
}

func TestRemoveUnknownSessionDoesNotMutate(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	u := f.store.addUser("alice")
	f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))

	err := r.RemoveSession(NewSession(u.ID, nil, 1, nil))
	assert.ErrorIs(t, err, ErrUnknownSession)
	assert.True(t, r.IsPlayer(u.ID))
	assert.True(t, r.HasSession(u.ID))
}

func TestAddSubmissionPhases(t *testing.T) {
	f := newFixture()
	r := f.createRoom(Config{Visibility: Public, DurationMinutes: 5}, time.Minute)
	u := f.store.addUser("alice")
	f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))

	sub, err := judge.NewSubmission(f.puzzle.ID, u.ID, python, "a", f.clock.Now())
	require.NoError(t, err)
	err = r.AddSubmission(sub)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "hasn't started")
	assert.Empty(t, r.Submissions())

	f.clock.Advance(time.Minute)
	require.NoError(t, r.AddSubmission(sub))
	got, ok := r.Submission(sub.ID)
	require.True(t, ok)
	assert.Same(t, sub, got)

	stranger := f.store.addUser("bob")
	other, _ := judge.NewSubmission(f.puzzle.ID, stranger.ID, python, "a", f.clock.Now())
	assert.ErrorIs(t, r.AddSubmission(other), models.ErrInvalidOperation)

	f.clock.Advance(5 * time.Minute)
	late, _ := judge.NewSubmission(f.puzzle.ID, u.ID, python, "a", f.clock.Now())
	err = r.AddSubmission(late)
	assert.ErrorIs(t, err, models.ErrInvalidOperation)
	assert.Contains(t, err.Error(), "finalized")
	assert.Len(t, r.Submissions(), 1)
}

func TestAddSubmissionRejectsOtherPuzzle(t *testing.T) {
	f := newFixture()
	r := f.createRoom(DefaultConfig(), time.Minute)
	u := f.store.addUser("alice")
	f.connect(r, u)
	require.NoError(t, r.AddPlayer(u))
	f.clock.Advance(time.Minute)

	sub, _ := judge.NewSubmission(uuid.New(), u.ID, python, "a", f.clock.Now())
	assert.ErrorIs(t, r.AddSubmission(sub), models.ErrInvalidInput)
}

// Public room, ten minutes: two users join while waiting, the creator launches,
// a third user is turned away, and a player's submission is judged.
func TestPublicRoomScenario(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r := f.createRoom(Config{Visibility: Public, DurationMinutes: 10}, time.Hour)

	alice, bob, carol := f.store.addUser("alice"), f.store.addUser("bob"), f.store.addUser("carol")
	f.connect(r, alice)
	f.connect(r, bob)
	require.NoError(t, r.AddPlayer(alice))
	require.NoError(t, r.AddPlayer(bob))

	require.NoError(t, r.Launch(nil))
	f.clock.Advance(LaunchCountdown)
	assert.Equal(t, StateInProgress, r.State())

	f.connect(r, carol)
	assert.ErrorIs(t, r.AddPlayer(carol), models.ErrInvalidOperation)

	sub, err := judge.NewSubmission(f.puzzle.ID, alice.ID, python, "b", f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, r.AddSubmission(sub))
	require.NoError(t, sub.Execute(ctx, echoJudge{}, r.Puzzle))
	assert.Equal(t, []bool{false, true, false}, sub.Results())
	assert.InDelta(t, 1.0/3.0, sub.Score(), 1e-9)

	view := r.Public()
	assert.Equal(t, StateInProgress, view["state"])
	players := view["players"].([]map[string]interface{})
	assert.Len(t, players, 2)
	for _, p := range players {
		if p["id"] == alice.ID.String() {
			summary := p["submission"].(map[string]interface{})
			assert.Equal(t, sub.ID.String(), summary["id"])
			assert.NotContains(t, summary, "code")
		} else {
			assert.NotContains(t, p, "submission")
		}
	}
}
