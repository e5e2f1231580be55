package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Nickname string    `json:"nickname"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// PublicInfo is the projection of a user that other players can see.
func (u *User) PublicInfo() map[string]interface{} {
	return map[string]interface{}{
		"id":       u.ID.String(),
		"nickname": u.Nickname,
	}
}
