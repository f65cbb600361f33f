package groupbuilder

type State int

const (
	StateInit State = iota
	StateBootstrapping
	StateMerging
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateBootstrapping:
		return "bootstrapping"
	case StateMerging:
		return "merging"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}
