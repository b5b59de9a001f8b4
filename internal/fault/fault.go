// Package fault defines the tagged error kinds shared by the binder, the
// document model, the transaction scopes and the reconstruction engine.
//
// Operations signal recoverable domain violations with ValidationWarning
// (soft) and programmer or structural problems with StructuralError (hard).
// The engine classifies every error it sees with ClassOf; errors that carry
// no code are hard.
package fault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/recon/internal/value"
)

// Code categorizes errors.
type Code string

const (
	// CodeMissingArgument: a required input is not connected.
	CodeMissingArgument Code = "MISSING_ARGUMENT"

	// CodeInvalidEnumValue: an enum input is outside its legal value set.
	CodeInvalidEnumValue Code = "INVALID_ENUM_VALUE"

	// CodeTypeMismatch: an input value does not have the declared kind.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// CodeUnsupportedSlotShape: an operation declares an out/by-reference
	// slot at a position other than 1.
	CodeUnsupportedSlotShape Code = "UNSUPPORTED_SLOT_SHAPE"

	// CodeIncompatibleDocument: an input entity belongs to another document.
	CodeIncompatibleDocument Code = "INCOMPATIBLE_DOCUMENT"

	// CodeStartFailure: the document refused to open a transaction.
	CodeStartFailure Code = "START_FAILURE"

	// CodeValidationWarning: recoverable domain violation; the run's output
	// is absent and the batch continues.
	CodeValidationWarning Code = "VALIDATION_WARNING"

	// CodeStructuralError: unrecoverable failure; the batch is aborted.
	CodeStructuralError Code = "STRUCTURAL_ERROR"

	// CodeCommitAborted: the failure policy chose rollback.
	CodeCommitAborted Code = "COMMIT_ABORTED"

	// CodeCommitFailed: errors remained unresolved after the resolution passes.
	CodeCommitFailed Code = "COMMIT_FAILED"

	// CodeAlreadyAttemptedResolution: internal guard; the policy never
	// resolves the same record twice in one commit.
	CodeAlreadyAttemptedResolution Code = "ALREADY_ATTEMPTED_RESOLUTION"

	// CodeNotFound: the referenced entity does not exist.
	CodeNotFound Code = "NOT_FOUND"
)

// Error is a tagged error with optional structured context.
type Error struct {
	Code    Code
	Message string

	// Slot is the offending parameter name, for binder errors.
	Slot string

	// Document is the document id involved, if any.
	Document string

	// Entities lists affected entity ids.
	Entities []value.EntityID

	// Err is the wrapped cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Slot != "" {
		fmt.Fprintf(&b, " (slot=%s)", e.Slot)
	}
	if e.Document != "" {
		fmt.Fprintf(&b, " (document=%s)", e.Document)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Warning creates a soft failure.
func Warning(format string, args ...any) *Error {
	return New(CodeValidationWarning, format, args...)
}

// Structural creates a hard failure.
func Structural(format string, args ...any) *Error {
	return New(CodeStructuralError, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries code anywhere in its chain.
// Uses errors.As to handle wrapped errors.
func Is(err error, code Code) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Code == code {
			return true
		}
		err = fe.Err
	}
	return false
}

// Class is how the engine treats a failed run.
type Class int

const (
	// Hard failures abort the batch after reporting an error.
	Hard Class = iota
	// Soft failures report a warning; the run's output is absent.
	Soft
	// Argument failures report an error; the run's output is absent and the
	// batch continues.
	Argument
)

func (c Class) String() string {
	switch c {
	case Soft:
		return "soft"
	case Argument:
		return "argument"
	default:
		return "hard"
	}
}

// ClassOf classifies err. Errors without a code are hard.
func ClassOf(err error) Class {
	switch CodeOf(err) {
	case CodeValidationWarning:
		return Soft
	case CodeMissingArgument, CodeInvalidEnumValue, CodeTypeMismatch, CodeNotFound:
		return Argument
	default:
		return Hard
	}
}

// IsSoft is shorthand for ClassOf(err) == Soft.
func IsSoft(err error) bool {
	return err != nil && ClassOf(err) == Soft
}
