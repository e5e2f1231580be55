package handlers

import (
	"net/http"

	"github.com/jason-s-yu/codincod/internal/middleware"
)

// NewMux registers every endpoint behind the request logging middleware.
func NewMux(gs *GameServer) http.Handler {
	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", CreateUserHandler(gs))
	mux.HandleFunc("/user/login", LoginHandler(gs))
	mux.HandleFunc("/users", UsersHandler(gs))

	// puzzles and languages
	mux.HandleFunc("/puzzles", PuzzlesHandler(gs))
	mux.HandleFunc("/puzzles/run", RunTestCaseHandler(gs))
	mux.HandleFunc("/languages", LanguagesHandler(gs))

	// game rooms
	mux.HandleFunc("/game/create", CreateGameHandler(gs))
	mux.HandleFunc("/game/info", GameInfoHandler(gs))
	mux.HandleFunc("/game/join", JoinGameHandler(gs))
	mux.HandleFunc("/game/start", StartGameHandler(gs))
	mux.HandleFunc("/game/leave", LeaveGameHandler(gs))
	mux.HandleFunc("/game/submit", SubmitGameHandler(gs))
	mux.HandleFunc("/game/submission", SubmissionHandler(gs))

	// game websocket
	mux.HandleFunc("/game/ws/", GameWSHandler(gs))

	return middleware.LogMiddleware(gs.Logger)(mux)
}
