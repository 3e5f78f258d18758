package omr

import (
	"encoding/json"
	"fmt"
)

// State is the tri-state classification of one bubble.
type State int

const (
	Unmarked State = iota
	Marked
	Ambiguous
)

var stateNames = [...]string{
	Unmarked:  "unmarked",
	Marked:    "marked",
	Ambiguous: "ambiguous",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown bubble state %q", name)
}

// Classify applies the inclusive threshold rule:
//
//	ratio >= marked   -> Marked
//	ratio <= unmarked -> Unmarked
//	otherwise         -> Ambiguous
//
// Marked is tested first, so when both thresholds are equal a ratio on the
// boundary is Marked.
func Classify(ratio, marked, unmarked float64) State {
	switch {
	case ratio >= marked:
		return Marked
	case ratio <= unmarked:
		return Unmarked
	default:
		return Ambiguous
	}
}

// BubbleReadResult is the classification of one bubble in one read.
type BubbleReadResult struct {
	BubbleID  string  `json:"bubble_id"`
	GroupID   string  `json:"group_id"`
	Row       int     `json:"row"`
	Col       int     `json:"col"`
	Label     string  `json:"label"`
	FillRatio float64 `json:"fill_ratio"`
	State     State   `json:"state"`
}
