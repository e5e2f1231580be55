package room

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session is one live real-time connection of a user to a room. A user may
// hold several, e.g. one per browser tab.
type Session struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Cancel  func()
	OutChan chan map[string]interface{}

	logger logrus.FieldLogger
}

func NewSession(userID uuid.UUID, cancel func(), buffer int, logger logrus.FieldLogger) *Session {
	return &Session{
		ID:      uuid.New(),
		UserID:  userID,
		Cancel:  cancel,
		OutChan: make(chan map[string]interface{}, buffer),
		logger:  logger,
	}
}

// Write queues msg without blocking. A full queue drops the message.
func (s *Session) Write(msg map[string]interface{}) {
	select {
	case s.OutChan <- msg:
	default:
		msgType, _ := msg["type"].(string)
		if s.logger != nil {
			s.logger.WithFields(logrus.Fields{
				"session": s.ID,
				"user":    s.UserID,
				"type":    msgType,
			}).Warn("session queue full, message dropped")
		}
	}
}

func (s *Session) WriteError(msg string) {
	s.Write(map[string]interface{}{
		"type":    "error",
		"message": msg,
	})
}
