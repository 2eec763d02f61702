package model

import "fmt"

const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusExited  = "exited"
	StatusFailed  = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
	},
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true, // spawn or filesystem failure before the worker ran
	},
	StatusRunning: {
		StatusExited: true,
		StatusFailed: true,
	},
	StatusExited: {},
	StatusFailed: {},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func IsTerminal(status string) bool {
	next, ok := allowedTransitions[status]
	return ok && len(next) == 0
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionJobStatus(meta *JobMeta, toStatus string, reason string) error {
	from := meta.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid job status transition: %q -> %q (key=%s)", from, toStatus, meta.Key)
	}
	meta.Status = toStatus
	meta.Reason = reason
	return nil
}
