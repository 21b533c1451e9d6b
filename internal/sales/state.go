package sales

// State is the lifecycle position of one registration request. Rejected,
// Committed and Aborted are terminal.
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateComputing  State = "computing"
	StateWriting    State = "writing"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateAborted    State = "aborted"
)
