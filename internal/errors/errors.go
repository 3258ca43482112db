// Package errors implements the CRB error taxonomy: configuration errors,
// divergence of an internal iterative solver, non-finite error estimates,
// I/O failures on the persisted database, and truth-model failures surfaced
// unchanged from the collaborator.
package errors

import (
	"fmt"
)

// AppError represents a structured application error.
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError.
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error.
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise "UNKNOWN".
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err is an AppError carrying the given code,
// unwrapping nested AppErrors produced by Wrap.
func HasCode(err error, code string) bool {
	for {
		appErr, ok := err.(*AppError)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
}

// Error kinds from the CRB error taxonomy. These are codes, not Go types,
// so callers match on GetCode/HasCode rather than type-switching.
const (
	CodeConfigInvalid      = "CONFIG_INVALID"       // mismatched/missing runtime option
	CodeDivergence         = "DIVERGENCE"            // fixed point / Newton exceeded critical value
	CodeNonFiniteEstimator = "NONFINITE_ESTIMATOR"   // residual sum yielded NaN/Inf
	CodeIOError            = "IO_ERROR"              // DB missing, unreadable, or version mismatch
	CodeTruthModelFailure  = "TRUTH_MODEL_FAILURE"   // surfaced unchanged from the collaborator
	CodeInternalError      = "INTERNAL_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
)

// ConfigInvalid reports a mismatched or missing runtime option (spec fatal).
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

// Divergence reports a fixed-point or Newton iteration that exceeded its
// critical value. mu and step/iteration name the offending sample, per the
// taxonomy's requirement to report "with mu and either iteration index or
// time step".
func Divergence(mu fmt.Stringer, step string, iteration int) *AppError {
	return New(CodeDivergence, fmt.Sprintf("divergence at mu=%s, %s (iteration %d)", mu, step, iteration))
}

// NonFiniteEstimator reports a residual evaluation that produced NaN/Inf,
// carrying the six partial sums of the quadratic form so the diagnostic is
// reproducible without re-running the estimator.
func NonFiniteEstimator(mu fmt.Stringer, partials [6]float64) *AppError {
	return New(CodeNonFiniteEstimator, fmt.Sprintf(
		"non-finite residual estimate at mu=%s: C0=%g Lambda=%g Gamma=%g Cmf=%g Cma=%g Cmm=%g",
		mu, partials[0], partials[1], partials[2], partials[3], partials[4], partials[5]))
}

// IOError reports a persisted database that is missing, unreadable, or at
// an incompatible schema version.
func IOError(message string) *AppError {
	return New(CodeIOError, message)
}

// TruthModelFailure wraps a collaborator failure (e.g. linear-solver
// non-convergence) unchanged; by policy this is logged, not fatal, and the
// caller decides whether to continue.
func TruthModelFailure(cause error) *AppError {
	return &AppError{Code: CodeTruthModelFailure, Message: "truth model failure", Cause: cause}
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}
