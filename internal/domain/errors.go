package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
	ErrBrokerUnavailable = errors.New("broker unavailable")
	ErrNoPrice           = errors.New("no price available")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrMalformedOutput   = errors.New("malformed role output")
)

// ConfigError reports invalid or missing configuration. It is fatal at startup.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "config: " + e.Problems[0]
	}
	return fmt.Sprintf("config: %d problems: %v", len(e.Problems), e.Problems)
}

// ConnectivityError reports an unreachable broker or data source. At startup
// it is fatal; during a run it downgrades the affected tick to skipped.
type ConnectivityError struct {
	Source string
	Err    error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity: %s: %v", e.Source, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ReasoningFailure reports a role call that timed out or returned malformed
// output. It is local to one symbol.
type ReasoningFailure struct {
	Symbol string
	Role   string
	Err    error
}

func (e *ReasoningFailure) Error() string {
	return fmt.Sprintf("reasoning: %s: %s: %v", e.Symbol, e.Role, e.Err)
}

func (e *ReasoningFailure) Unwrap() error { return e.Err }

// ExecutionFailure reports a live order the broker refused.
type ExecutionFailure struct {
	Symbol string
	Side   Side
	Err    error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution: %s %s: %v", e.Side, e.Symbol, e.Err)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

// RiskViolation is the expected, logged outcome of a risk clamp or block. It
// is not an error.
type RiskViolation struct {
	Symbol    string
	Side      Side
	Requested int
	Allowed   int
	Reason    string
}

// IsFatal reports whether err must stop the process before any tick runs.
func IsFatal(err error) bool {
	var cfgErr *ConfigError
	var connErr *ConnectivityError
	return errors.As(err, &cfgErr) || errors.As(err, &connErr)
}
