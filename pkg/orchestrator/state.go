package orchestrator

// State is a step of one request's lifecycle.
type State string

const (
	StateRouting         State = "routing"
	StateDispatching     State = "dispatching"
	StateStreaming       State = "streaming"
	StateAwaitingAdapter State = "awaiting_adapter"
	StateEmitting        State = "emitting"
	StateDone            State = "done"
)

// allowed lists the legal transitions. Every state may move to
// StateEmitting so failures can always reach the terminal event.
var allowed = map[State][]State{
	StateRouting:         {StateDispatching, StateEmitting},
	StateDispatching:     {StateStreaming, StateAwaitingAdapter, StateEmitting},
	StateStreaming:       {StateAwaitingAdapter, StateStreaming, StateEmitting},
	StateAwaitingAdapter: {StateStreaming, StateAwaitingAdapter, StateEmitting},
	StateEmitting:        {StateDone},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
