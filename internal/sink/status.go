package sink

// Status is the lifecycle state of an output. Within one start/stop
// cycle it only moves forward: Stopped, Starting, Running, then back
// to Stopped or to Error. An output in Error stays silent until it is
// stopped and started again.
type Status int

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// StatusFunc receives every status change of an output. It runs
// synchronously on the goroutine that caused the change, so it must
// not call back into the output's blocking operations.
type StatusFunc func(outputID int, status Status, message string)
