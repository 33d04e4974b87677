package network

import (
	"context"
	"time"
)

const (
	retry    = time.Second
	retryMax = 30 * time.Second
)

// Retry is a doubling delay between connection attempts.
type Retry struct {
	t   time.Duration
	max time.Duration
}

func NewRetry() Retry { return Retry{t: retry, max: retryMax} }

// Fail waits the current delay and doubles it up to the max.
// It returns false if ctx is done before that.
func (r *Retry) Fail(ctx context.Context) bool {
	timer := time.NewTimer(r.t)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return false
	}
	r.Multiply(2)
	return true
}

func (r *Retry) Multiply(x int) {
	r.t *= time.Duration(x)
	if r.max > 0 && r.t > r.max {
		r.t = r.max
	}
}

func (r *Retry) Success()            { r.t = retry }
func (r *Retry) Time() time.Duration { return r.t }
