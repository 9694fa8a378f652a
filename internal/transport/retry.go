package transport

import "time"

const (
	DefaultBaseDelay   = 3 * time.Second
	DefaultMaxAttempts = 5
)

// RetryPolicy spaces reconnection attempts linearly: attempt n waits BaseDelay*n.
// After MaxAttempts failed attempts the connection gives up.
type RetryPolicy struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: DefaultBaseDelay, MaxAttempts: DefaultMaxAttempts}
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay * time.Duration(attempt)
}

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests swap in a manual scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}
