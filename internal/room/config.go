package room

import (
	"fmt"
	"time"

	"github.com/jason-s-yu/codincod/internal/models"
)

type Visibility string

const (
	Public  Visibility = "PUBLIC"
	Private Visibility = "PRIVATE"
)

// LateJoin selects how a player admitted to a running private room is timed.
type LateJoin string

const (
	// LateJoinShared: the late joiner shares the room clock and only gets the remaining time.
	LateJoinShared LateJoin = "shared"
	// LateJoinFresh: the late joiner's elapsed time is measured from the moment they joined.
	// The room still ends at start + duration.
	LateJoinFresh LateJoin = "fresh"
)

const (
	DefaultDurationMinutes = 15
	MaxDurationMinutes     = 24 * 60
)

// Config is fixed at room creation.
type Config struct {
	Visibility      Visibility `json:"visibility"`
	DurationMinutes int        `json:"duration"`
	LateJoin        LateJoin   `json:"late_join,omitempty"`
}

func DefaultConfig() Config {
	return Config{Visibility: Public, DurationMinutes: DefaultDurationMinutes, LateJoin: LateJoinShared}
}

func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Normalize fills defaults and rejects values outside the allowed ranges.
func (c Config) Normalize() (Config, error) {
	if c.Visibility == "" {
		c.Visibility = Public
	}
	if c.Visibility != Public && c.Visibility != Private {
		return c, fmt.Errorf("%w: unknown visibility %q", models.ErrInvalidInput, c.Visibility)
	}
	if c.DurationMinutes == 0 {
		c.DurationMinutes = DefaultDurationMinutes
	}
	if c.DurationMinutes < 1 || c.DurationMinutes > MaxDurationMinutes {
		return c, fmt.Errorf("%w: duration must be between 1 and %d minutes", models.ErrInvalidInput, MaxDurationMinutes)
	}
	if c.LateJoin == "" {
		c.LateJoin = LateJoinShared
	}
	if c.LateJoin != LateJoinShared && c.LateJoin != LateJoinFresh {
		return c, fmt.Errorf("%w: unknown late join policy %q", models.ErrInvalidInput, c.LateJoin)
	}
	return c, nil
}
