package bench

// Phase is a stage of one scope's benchmark run.
type Phase int

const (
	PhaseQueued  Phase = iota // All acquirers are queued behind the gate.
	PhaseGranted              // One acquirer was granted the scope.
	PhaseDone                 // Every acquirer has released.
)

// Event describes a single benchmark progress update.
type Event struct {
	Phase Phase
	Scope string
	Index int // arrival index of the granted acquirer; -1 otherwise
	Total int // acquirers on the scope
}
