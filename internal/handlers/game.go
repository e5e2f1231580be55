package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/codincod/internal/cache"
	"github.com/jason-s-yu/codincod/internal/judge"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/room"
	"github.com/sirupsen/logrus"
)

var errNotCreator = fmt.Errorf("%w: only the game creator is allowed to start the game", models.ErrUnauthorized)

// resultSaveTimeout bounds persisting and publishing one judged submission.
const resultSaveTimeout = 10 * time.Second

type createGameRequest struct {
	PuzzleID string      `json:"puzzle_id"`
	Config   room.Config `json:"config"`
	// StartTime defaults to DefaultLobbyWait from now.
	StartTime *time.Time `json:"start_time,omitempty"`
}

type gameRequest struct {
	ID        string     `json:"id"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Language  string     `json:"language,omitempty"`
	Code      string     `json:"code,omitempty"`
}

func (gs *GameServer) room(ctx context.Context, rawID string) (*room.GameRoom, error) {
	id, err := parseID(rawID, "game")
	if err != nil {
		return nil, err
	}
	return gs.Rooms.Get(ctx, id)
}

// flush persists rm. Failures are logged; the in-memory room stays authoritative
// and the next successful flush or sweep catches the store up.
func (gs *GameServer) flush(ctx context.Context, rm *room.GameRoom) {
	if err := gs.Rooms.Flush(ctx, rm); err != nil {
		gs.Logger.WithField("room", rm.ID).Errorf("flush: %v", err)
	}
}

func (gs *GameServer) joinRoom(ctx context.Context, rm *room.GameRoom, user *models.User) error {
	if err := rm.AddPlayer(user); err != nil {
		return err
	}
	gs.flush(ctx, rm)
	return nil
}

func (gs *GameServer) leaveRoom(ctx context.Context, rm *room.GameRoom, user *models.User) error {
	if err := rm.RemovePlayer(user.ID); err != nil {
		return err
	}
	gs.flush(ctx, rm)
	return nil
}

func (gs *GameServer) launchRoom(ctx context.Context, rm *room.GameRoom, user *models.User, start *time.Time) error {
	if rm.Creator == nil || rm.Creator.ID != user.ID {
		return errNotCreator
	}
	if err := rm.Launch(start); err != nil {
		return err
	}
	gs.flush(ctx, rm)
	return nil
}

// submit records a new submission in rm and hands it to the dispatcher.
// The row is written before the room references it, so a reloaded room can
// always resolve its submission ids.
func (gs *GameServer) submit(ctx context.Context, rm *room.GameRoom, user *models.User, langName, code string) (*judge.Submission, error) {
	lang, err := gs.language(langName)
	if err != nil {
		return nil, err
	}
	sub, err := judge.NewSubmission(rm.Puzzle.ID, user.ID, lang, code, gs.now())
	if err != nil {
		return nil, err
	}
	if err := gs.Submissions.InsertSubmission(ctx, sub, rm.ID); err != nil {
		return nil, err
	}
	if err := rm.AddSubmission(sub); err != nil {
		return nil, err
	}
	gs.flush(ctx, rm)

	gs.ResumeJudging(rm, sub)
	return sub, nil
}

// ResumeJudging queues sub for judging and reports the results to rm. It is
// used for new submissions and for unfinished ones found when a room reloads.
func (gs *GameServer) ResumeJudging(rm *room.GameRoom, sub *judge.Submission) {
	gs.Dispatcher.Dispatch(gs.BaseCtx, sub, rm.Puzzle, func(done *judge.Submission) {
		gs.onJudged(rm, done)
	})
}

// onJudged runs on the dispatcher goroutine once results are frozen. It may run
// after BaseCtx is cancelled, so it uses a context of its own.
func (gs *GameServer) onJudged(rm *room.GameRoom, sub *judge.Submission) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(gs.BaseCtx), resultSaveTimeout)
	defer cancel()
	logger := gs.Logger.WithFields(logrus.Fields{"room": rm.ID, "submission": sub.ID})

	if err := gs.Submissions.SaveSubmissionResults(ctx, sub); err != nil {
		logger.Errorf("save results: %v", err)
	}
	if gs.Runs != nil {
		if err := gs.Runs.PublishJudgeRuns(ctx, judgeRunRecords(rm.ID, sub, gs.now())); err != nil {
			logger.Warnf("publish judge runs: %v", err)
		}
	}

	rm.Broadcast(map[string]interface{}{
		"type":       "submission_result",
		"submission": sub.PublicInfo(),
		"score":      sub.Score(),
		"players":    rm.Public()["players"],
	})
	rm.SendTo(sub.UserID, map[string]interface{}{
		"type":       "submission_detail",
		"submission": sub.OwnerInfo(),
	})
}

func judgeRunRecords(roomID uuid.UUID, sub *judge.Submission, now time.Time) []cache.JudgeRunRecord {
	results := sub.Results()
	outputs := sub.Outputs()
	records := make([]cache.JudgeRunRecord, 0, len(results))
	for i, passed := range results {
		rec := cache.JudgeRunRecord{
			SubmissionID:  sub.ID,
			RoomID:        roomID,
			UserID:        sub.UserID,
			TestCaseIndex: i,
			Passed:        passed,
			Timestamp:     now.UnixMilli(),
		}
		if i < len(outputs) {
			rec.Output = outputs[i]
		}
		records = append(records, rec)
	}
	return records
}

// CreateGameHandler creates a waiting room around a puzzle. The creator still
// has to connect and join like everyone else.
func CreateGameHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		ctx := r.Context()
		user, err := gs.authenticate(ctx, r)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		req := createGameRequest{Config: room.DefaultConfig()}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		puzzleID, err := parseID(req.PuzzleID, "puzzle")
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		puzzle, err := gs.Puzzles.GetPuzzle(ctx, puzzleID)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		var start time.Time
		if req.StartTime != nil {
			start = *req.StartTime
		}

		rm, err := gs.Rooms.Create(ctx, user, puzzle, req.Config, start)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, rm.Public())
	}
}

// GameInfoHandler returns the public projection of ?id=.
func GameInfoHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		rm, err := gs.room(r.Context(), r.URL.Query().Get("id"))
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rm.Public())
	}
}

// gameAction wraps the POST endpoints that act on one room as the caller.
func gameAction(gs *GameServer, act func(ctx context.Context, rm *room.GameRoom, user *models.User, req gameRequest) (int, interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		ctx := r.Context()
		user, err := gs.authenticate(ctx, r)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		var req gameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		rm, err := gs.room(ctx, req.ID)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		status, body, err := act(ctx, rm, user, req)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		if body == nil {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// JoinGameHandler adds the caller as a player. They need an open websocket
// session in the room.
func JoinGameHandler(gs *GameServer) http.HandlerFunc {
	return gameAction(gs, func(ctx context.Context, rm *room.GameRoom, user *models.User, _ gameRequest) (int, interface{}, error) {
		if err := gs.joinRoom(ctx, rm, user); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, rm.Public(), nil
	})
}

// StartGameHandler launches the room. Creator only.
func StartGameHandler(gs *GameServer) http.HandlerFunc {
	return gameAction(gs, func(ctx context.Context, rm *room.GameRoom, user *models.User, req gameRequest) (int, interface{}, error) {
		if err := gs.launchRoom(ctx, rm, user, req.StartTime); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, rm.Public(), nil
	})
}

func LeaveGameHandler(gs *GameServer) http.HandlerFunc {
	return gameAction(gs, func(ctx context.Context, rm *room.GameRoom, user *models.User, _ gameRequest) (int, interface{}, error) {
		if err := gs.leaveRoom(ctx, rm, user); err != nil {
			return 0, nil, err
		}
		return http.StatusNoContent, nil, nil
	})
}

// SubmitGameHandler accepts code for the room's puzzle. Judging happens in the
// background; the response carries the unjudged submission.
func SubmitGameHandler(gs *GameServer) http.HandlerFunc {
	return gameAction(gs, func(ctx context.Context, rm *room.GameRoom, user *models.User, req gameRequest) (int, interface{}, error) {
		sub, err := gs.submit(ctx, rm, user, req.Language, req.Code)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusAccepted, sub.OwnerInfo(), nil
	})
}

// SubmissionHandler returns ?id=. The author sees code and results, anyone
// else the public view.
func SubmissionHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		ctx := r.Context()
		id, err := parseID(r.URL.Query().Get("id"), "submission")
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		sub, err := gs.Submissions.GetSubmission(ctx, id)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		if user, err := gs.authenticate(ctx, r); err == nil && user.ID == sub.UserID {
			writeJSON(w, http.StatusOK, sub.OwnerInfo())
			return
		}
		writeJSON(w, http.StatusOK, sub.PublicInfo())
	}
}
