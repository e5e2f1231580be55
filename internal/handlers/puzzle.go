package handlers

import (
	"fmt"
	"net/http"

	"github.com/jason-s-yu/codincod/internal/models"
)

// PuzzlesHandler returns one puzzle for ?id= or the list of an author's
// puzzles for ?author_id=.
func PuzzlesHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		q := r.URL.Query()

		switch {
		case q.Has("id"):
			id, err := parseID(q.Get("id"), "puzzle")
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			p, err := gs.Puzzles.GetPuzzle(r.Context(), id)
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			writeJSON(w, http.StatusOK, p.PublicInfo())

		case q.Has("author_id"):
			authorID, err := parseID(q.Get("author_id"), "user")
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			puzzles, err := gs.Puzzles.ListPuzzlesByAuthor(r.Context(), authorID)
			if err != nil {
				writeError(w, gs.Logger, err)
				return
			}
			out := make([]map[string]interface{}, 0, len(puzzles))
			for _, p := range puzzles {
				out = append(out, p.PublicInfo())
			}
			writeJSON(w, http.StatusOK, out)

		default:
			writeError(w, gs.Logger, fmt.Errorf("%w: no puzzle id/author_id was provided", models.ErrInvalidInput))
		}
	}
}

type runTestCaseRequest struct {
	PuzzleID string `json:"puzzle_id"`
	TestCase int    `json:"test_case"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// RunTestCaseHandler executes code against a single test case of a puzzle,
// outside of any game. Logged-in users only.
func RunTestCaseHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		ctx := r.Context()
		if _, err := gs.authenticate(ctx, r); err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		var req runTestCaseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		puzzleID, err := parseID(req.PuzzleID, "puzzle")
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		lang, err := gs.language(req.Language)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		if req.Code == "" {
			writeError(w, gs.Logger, fmt.Errorf("%w: code is empty", models.ErrInvalidInput))
			return
		}

		p, err := gs.Puzzles.GetPuzzle(ctx, puzzleID)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}
		v, err := p.TestCase(req.TestCase)
		if err != nil {
			writeError(w, gs.Logger, err)
			return
		}

		passed, output := gs.Judge.Execute(ctx, req.Code, lang, v)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"passed": passed,
			"output": output,
		})
	}
}

// LanguagesHandler lists the runtimes loaded from the execution service at startup.
func LanguagesHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, gs.Languages.All())
	}
}
