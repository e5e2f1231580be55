package room

import (
	"time"

	"github.com/google/uuid"
)

// Public is the room as sent to clients.
func (r *GameRoom) Public() map[string]interface{} {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.syncUnsafe()
	return r.publicUnsafe()
}

func (r *GameRoom) publicUnsafe() map[string]interface{} {
	info := map[string]interface{}{
		"id":         r.ID.String(),
		"config":     r.Config,
		"start_time": r.startTime,
		"end_time":   r.endTimeUnsafe(),
		"state":      r.state,
		"players":    r.playersPayloadUnsafe(),
	}
	if r.Puzzle != nil {
		info["puzzle_id"] = r.Puzzle.ID.String()
	}
	if r.Creator != nil {
		info["creator_id"] = r.Creator.ID.String()
	}
	return info
}

func (r *GameRoom) playersPayloadUnsafe() []map[string]interface{} {
	players := make([]map[string]interface{}, 0, len(r.players))
	for id, u := range r.players {
		p := u.PublicInfo()
		p["started_at"] = r.playerStartUnsafe(id)
		if sub, ok := r.latest[id]; ok {
			s := sub.PublicInfo()
			s["finished"] = sub.Finished()
			s["score"] = sub.Score()
			p["submission"] = s
		}
		players = append(players, p)
	}
	return players
}

// playerStartUnsafe is when the player's clock started. Under LateJoinFresh a
// player admitted after the start is timed from their join.
func (r *GameRoom) playerStartUnsafe(userID uuid.UUID) time.Time {
	joined, ok := r.joinedAt[userID]
	if ok && r.Config.LateJoin == LateJoinFresh && joined.After(r.startTime) {
		return joined
	}
	return r.startTime
}
