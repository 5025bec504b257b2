package crawl

import "fmt"

// State is the progress of one source within a run
type State int

const (
	Pending State = iota
	Fetching
	Normalizing
	Persisting
	Finalizing
	Done
	Failed
)

var stateNames = [...]string{
	Pending:     "pending",
	Fetching:    "fetching",
	Normalizing: "normalizing",
	Persisting:  "persisting",
	Finalizing:  "finalizing",
	Done:        "done",
	Failed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// CanTransition reports whether a source may move from s to next. Work moves
// strictly forward; every non-terminal state may fail.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == Failed {
		return true
	}
	return next == s+1
}
