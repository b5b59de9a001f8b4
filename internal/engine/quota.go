package engine

import (
	"errors"
	"fmt"
)

// DefaultMaxRuns is the default limit on runs per pass.
const DefaultMaxRuns = 10000

// RunQuota counts the runs of one pass against a limit.
//
// A pass over more rows than the limit is aborted like any other hard
// failure: the runs already made stay in the transaction and the scope is
// still driven to a terminal state.
type RunQuota struct {
	max     int
	current int
}

// NewRunQuota creates a quota allowing max runs. A non-positive max means
// DefaultMaxRuns.
func NewRunQuota(max int) *RunQuota {
	if max <= 0 {
		max = DefaultMaxRuns
	}
	return &RunQuota{max: max}
}

// Check counts one run and fails once the limit is exceeded.
func (q *RunQuota) Check(component string) error {
	q.current++
	if q.current > q.max {
		return &RunsExceededError{Component: component, Runs: q.current, Limit: q.max}
	}
	return nil
}

// Current returns the runs counted so far.
func (q *RunQuota) Current() int { return q.current }

// Max returns the limit.
func (q *RunQuota) Max() int { return q.max }

// RunsExceededError is returned when a pass exceeds its run quota.
type RunsExceededError struct {
	Component string
	Runs      int
	Limit     int
}

func (e *RunsExceededError) Error() string {
	return fmt.Sprintf("component %s exceeded max runs per pass: %d runs > %d limit", e.Component, e.Runs, e.Limit)
}

// IsRunsExceeded reports whether err is a RunsExceededError.
func IsRunsExceeded(err error) bool {
	var re *RunsExceededError
	return errors.As(err, &re)
}
