package install

// State is the phase an install is in. Installs move forward through the phases in order and may
// move to Failed from any phase other than Done.
type State uint8

const (
	StateIdle State = iota
	StateResolving
	StateDownloading
	StateExtracting
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Observer is notified of every state transition of an install.
type Observer func(from State, to State)

type tracker struct {
	current  State
	observer Observer
}

func (t *tracker) moveTo(to State) {
	from := t.current
	t.current = to
	if t.observer != nil {
		t.observer(from, to)
	}
}

// fail moves to Failed and hands back err for convenient returns.
func (t *tracker) fail(err error) error {
	t.moveTo(StateFailed)
	return err
}
