package observer

import (
	"fmt"
	"time"
)

// Phase is the observer's connection phase.
type Phase uint8

const (
	PhaseOffline Phase = iota
	PhaseConnecting
	PhaseOnline
	PhaseReconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseOffline:
		return "offline"
	case PhaseConnecting:
		return "connecting"
	case PhaseOnline:
		return "online"
	case PhaseReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// next validates the move from p to to.
func (p Phase) next(to Phase) (Phase, error) {
	ok := false
	switch p {
	case PhaseOffline:
		ok = to == PhaseConnecting
	case PhaseConnecting:
		ok = to == PhaseOnline || to == PhaseReconnecting || to == PhaseOffline
	case PhaseOnline:
		ok = to == PhaseReconnecting || to == PhaseOffline
	case PhaseReconnecting:
		ok = to == PhaseConnecting || to == PhaseOffline
	}
	if !ok {
		return p, fmt.Errorf("observer phase transition: %s -> %s", p, to)
	}
	return to, nil
}

// ConnectionState is reported to callers on every phase change.
type ConnectionState struct {
	Phase        Phase
	RetryAttempt int
	// RetryIn is the scheduled delay while reconnecting.
	RetryIn time.Duration
}

// Backoff returns the reconnect delay for the given attempt: base doubled per
// attempt after the first, capped at max. Attempts are clamped to maxAttempt so
// the shift cannot overflow.
func Backoff(attempt, maxAttempt int, base, max time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	if maxAttempt > 0 && attempt > maxAttempt {
		attempt = maxAttempt
	}
	d := base << (attempt - 1)
	if d > max || d <= 0 {
		return max
	}
	return d
}
