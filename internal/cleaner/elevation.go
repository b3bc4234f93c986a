package cleaner

import "context"

// ElevationStatus is the terminal state of a privileged removal request
type ElevationStatus int

const (
	ElevationSucceeded ElevationStatus = iota
	ElevationCancelled
	ElevationFailed
)

func (s ElevationStatus) String() string {
	switch s {
	case ElevationSucceeded:
		return "succeeded"
	case ElevationCancelled:
		return "cancelled"
	case ElevationFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ElevationResult is what an Elevator reports back. Message is set for
// ElevationFailed.
type ElevationResult struct {
	Status  ElevationStatus
	Message string
}

// Elevator removes paths with administrator rights. The user may decline;
// that is reported as ElevationCancelled, not as an error.
type Elevator interface {
	ElevateAndRemove(ctx context.Context, paths []string) ElevationResult
}

// ElevatorFunc adapts a function to Elevator
type ElevatorFunc func(ctx context.Context, paths []string) ElevationResult

// ElevateAndRemove calls f
func (f ElevatorFunc) ElevateAndRemove(ctx context.Context, paths []string) ElevationResult {
	return f(ctx, paths)
}
