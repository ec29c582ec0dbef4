package classifier

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrClassifierUnavailable is returned when a strategy cannot run, for
	// example because its model file is missing or failed to load.
	ErrClassifierUnavailable = errors.New("classifier: unavailable")

	// ErrNoStrategies is returned when a chain is built without strategies.
	ErrNoStrategies = errors.New("classifier: no strategies")

	// ErrEmptyROI is returned for a zero-sized region of interest.
	ErrEmptyROI = errors.New("classifier: empty region of interest")

	// ErrTimeout is returned when a strategy exceeds its latency budget.
	ErrTimeout = errors.New("classifier: timed out")

	// ErrBadOutput is returned when a model produces an unusable tensor.
	ErrBadOutput = errors.New("classifier: unexpected model output")
)

// StrategyError wraps an error with the strategy that produced it.
type StrategyError struct {
	Strategy string
	Err      error
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	return fmt.Sprintf("classifier [%s]: %v", e.Strategy, e.Err)
}

// Unwrap returns the underlying error.
func (e *StrategyError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with strategy context.
func WrapError(strategy string, err error) error {
	if err == nil {
		return nil
	}
	return &StrategyError{Strategy: strategy, Err: err}
}

// ChainError aggregates errors from every strategy in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "classifier chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("classifier chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("classifier chain: all %d strategies failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every recorded error so errors.Is sees all of them.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
