package pinn

import (
	"errors"
	"fmt"
)

// Sentinels matched by the error types below through errors.Is.
var (
	ErrConfiguration          = errors.New("pinn: invalid configuration")
	ErrUninitializedTransform = errors.New("pinn: transformer not fitted")
	ErrDivergence             = errors.New("pinn: loss diverged")
	ErrPersistence            = errors.New("pinn: persistence failure")
)

// ErrStopTraining may be returned from an epoch callback to end Fit early
// without an error.
var ErrStopTraining = errors.New("pinn: stop training")

// ConfigurationError reports a missing or unregistered configuration value.
// It is raised by New, before any compute is allocated.
type ConfigurationError struct {
	Key   string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pinn: configuration %s=%q", e.Key, e.Value)
	}
	return fmt.Sprintf("pinn: configuration %s=%q: %v", e.Key, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UninitializedTransformError reports inference before the transformers
// were fitted.
type UninitializedTransformError struct {
	Name string
}

func (e *UninitializedTransformError) Error() string {
	return fmt.Sprintf("pinn: %s transformer not fitted", e.Name)
}

func (e *UninitializedTransformError) Is(target error) bool {
	return target == ErrUninitializedTransform
}

// DivergenceError reports a non-finite loss. The weights are those of the
// last finite step.
type DivergenceError struct {
	Epoch     int
	Step      int
	Component string
	Value     float64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("pinn: loss diverged at epoch %d step %d (%s = %v)", e.Epoch, e.Step, e.Component, e.Value)
}

func (e *DivergenceError) Is(target error) bool { return target == ErrDivergence }

// PersistenceError wraps save and load failures, including migrations.
type PersistenceError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("pinn: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
