// internal/room/state.go
package room

import "fmt"

// State is the lifecycle phase of a game room.
type State string

const (
	StateWaiting    State = "WAITING_FOR_PLAYERS"
	StateInProgress State = "IN_PROGRESS"
	StateFinished   State = "FINISHED"
)

// transitions is the whole state machine: each state has at most one successor.
var transitions = map[State]State{
	StateWaiting:    StateInProgress,
	StateInProgress: StateFinished,
}

func (s State) next() (State, bool) {
	n, ok := transitions[s]
	return n, ok
}

// ParseState validates a state read back from storage.
func ParseState(s string) (State, error) {
	switch st := State(s); st {
	case StateWaiting, StateInProgress, StateFinished:
		return st, nil
	}
	return "", fmt.Errorf("unknown room state %q", s)
}
