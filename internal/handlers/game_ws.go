// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/codincod/internal/middleware"
	"github.com/jason-s-yu/codincod/internal/models"
	"github.com/jason-s-yu/codincod/internal/room"
	"github.com/sirupsen/logrus"
)

const (
	sessionBuffer = 32
	pingInterval  = 30 * time.Second
	writeTimeout  = 5 * time.Second
)

// GameMessage is an incoming message on the room socket.
type GameMessage struct {
	Type string `json:"type"`

	// StartTime optionally overrides the countdown on "launch".
	StartTime *time.Time `json:"start_time,omitempty"`

	// Language and Code are used by "submit".
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
}

// GameWSHandler upgrades /game/ws/{room_id} to a websocket on the "game"
// subprotocol. Each connection is one session in the room; ?join=1 also joins
// the room as a player right away.
func GameWSHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomIDStr := strings.Split(strings.TrimPrefix(r.URL.Path, "/game/ws/"), "/")[0]

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			gs.Logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "internal server error during handler exit")

		if c.Subprotocol() != "game" {
			c.Close(BadSubprotocolError, "client must use the 'game' subprotocol")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		userID, err := gs.Tokens.Authenticate(tokenFromRequest(r))
		if err != nil {
			c.Close(InvalidAuthTokenError, "authentication failed")
			return
		}
		user, err := gs.Resolver.User(ctx, userID)
		if err != nil {
			gs.Logger.WithField("user", userID).Warnf("websocket user lookup: %v", err)
			c.Close(InvalidUserIDError, "unknown user")
			return
		}
		roomID, err := parseID(roomIDStr, "game")
		if err != nil {
			c.Close(InvalidRoomIDError, "game room does not exist")
			return
		}

		logger := gs.Logger.WithFields(logrus.Fields{"room": roomID, "user": user.ID})
		session := room.NewSession(user.ID, cancel, sessionBuffer, logger)
		rm, err := gs.Rooms.Attach(ctx, roomID, session)
		if err != nil {
			logger.Debugf("attach session: %v", err)
			c.Close(InvalidRoomIDError, "game room does not exist")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		if r.URL.Query().Get("join") == "1" {
			if err := gs.joinRoom(ctx, rm, user); err != nil {
				session.WriteError(clientMessage(err))
			}
		}

		go writePump(ctx, c, session, logger)
		readErr := readPump(ctx, c, gs, rm, session, user, logger)

		cancel()
		// The request context is gone; persist the departure with a fresh one.
		cleanupCtx, cleanupCancel := context.WithTimeout(gs.BaseCtx, writeTimeout)
		defer cleanupCancel()
		if err := rm.RemoveSession(session); err == nil {
			gs.flush(cleanupCtx, rm)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)
		c.Close(websocket.StatusNormalClosure, "")
	}
}

// readPump handles incoming messages until the socket closes. It returns the
// read error unless the close was a normal one.
func readPump(ctx context.Context, c *websocket.Conn, gs *GameServer, rm *room.GameRoom, session *room.Session, user *models.User, logger logrus.FieldLogger) error {
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			session.WriteError("only text messages are accepted")
			continue
		}

		var msg GameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			session.WriteError("invalid JSON format")
			continue
		}
		logger.Debugf("received %q", msg.Type)
		handleGameMessage(ctx, gs, rm, session, user, msg)
	}
}

func handleGameMessage(ctx context.Context, gs *GameServer, rm *room.GameRoom, session *room.Session, user *models.User, msg GameMessage) {
	var err error
	switch msg.Type {
	case "join":
		err = gs.joinRoom(ctx, rm, user)
	case "leave":
		err = gs.leaveRoom(ctx, rm, user)
	case "launch":
		err = gs.launchRoom(ctx, rm, user, msg.StartTime)
	case "submit":
		sub, serr := gs.submit(ctx, rm, user, msg.Language, msg.Code)
		if serr != nil {
			err = serr
			break
		}
		session.Write(map[string]interface{}{
			"type":       "submission_accepted",
			"submission": sub.OwnerInfo(),
		})
	case "ping":
		session.Write(map[string]interface{}{"type": "pong"})
	default:
		err = fmt.Errorf("%w: unknown message type: %s", models.ErrInvalidInput, msg.Type)
	}
	if err != nil {
		session.WriteError(clientMessage(err))
	}
}

// clientMessage hides unexpected failures from the client.
func clientMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "internal error"
	}
	return err.Error()
}

// writePump drains the session queue onto the socket and pings every
// pingInterval. A failed write cancels the session.
func writePump(ctx context.Context, c *websocket.Conn, session *room.Session, logger logrus.FieldLogger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-session.OutChan:
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Errorf("marshal outgoing message: %v", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Debugf("write failed, closing session: %v", err)
				session.Cancel()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Debugf("ping failed, closing session: %v", err)
				session.Cancel()
				return
			}
		}
	}
}
