package chat

import "fmt"

// State is a step of a single turn.
type State int

const (
	Idle State = iota
	AwaitingInput
	AudioCaptured
	TextTyped
	Normalizing
	Assembling
	Submitting
	Rendered
	Errored
)

var stateNames = [...]string{
	Idle:          "idle",
	AwaitingInput: "awaiting_input",
	AudioCaptured: "audio_captured",
	TextTyped:     "text_typed",
	Normalizing:   "normalizing",
	Assembling:    "assembling",
	Submitting:    "submitting",
	Rendered:      "rendered",
	Errored:       "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

var transitions = map[State][]State{
	Idle:          {AwaitingInput},
	AwaitingInput: {AudioCaptured, TextTyped},
	AudioCaptured: {Normalizing},
	TextTyped:     {Normalizing, Errored},
	Normalizing:   {Assembling, Errored},
	Assembling:    {Submitting, Errored},
	Submitting:    {Rendered, Errored},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == Rendered || s == Errored
}

// Turn tracks one pass through the state machine. A new trigger always
// starts a new Turn.
type Turn struct {
	state   State
	history []State
}

func NewTurn() *Turn {
	return &Turn{state: Idle, history: []State{Idle}}
}

func (t *Turn) State() State { return t.state }

// History returns every state visited, in order.
func (t *Turn) History() []State {
	return append([]State(nil), t.history...)
}

// Advance moves to next. An illegal transition is a programming error and panics.
func (t *Turn) Advance(next State) {
	for _, allowed := range transitions[t.state] {
		if allowed == next {
			t.state = next
			t.history = append(t.history, next)
			return
		}
	}
	panic(fmt.Sprintf("chat: illegal transition %s -> %s", t.state, next))
}
