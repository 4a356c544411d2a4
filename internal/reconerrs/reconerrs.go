// Package reconerrs defines the SmartRecon error taxonomy named in
// spec.md §7: SchemaError and ConfigError are fatal, ParseException,
// AmbiguityWarning, DropWarning and SchemaWarning are non-fatal events
// that accumulate in the audit trail instead of interrupting the run.
package reconerrs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies which of the six taxonomy members an error belongs to.
type Kind string

const (
	KindSchemaError       Kind = "SchemaError"
	KindParseException    Kind = "ParseException"
	KindConfigError       Kind = "ConfigError"
	KindAmbiguityWarning  Kind = "AmbiguityWarning"
	KindDropWarning       Kind = "DropWarning"
	KindSchemaWarning     Kind = "SchemaWarning"

	// KindParseExhaustion is not one of spec.md §7's six named per-error
	// kinds: it is the orchestrator-level condition of zero rows
	// surviving C2 across both sources, raised as a fatal ReconError so
	// it can carry exit code 3 through the same path as every other
	// fatal error.
	KindParseExhaustion Kind = "ParseExhaustion"
)

// Fatal reports whether errors of this kind abort the run (SchemaError,
// ConfigError, ParseExhaustion) as opposed to merely being recorded in
// the audit trail.
func (k Kind) Fatal() bool {
	return k == KindSchemaError || k == KindConfigError || k == KindParseExhaustion
}

// ExitCode maps a fatal error kind to the CLI exit code from spec.md §6:
// 0 success, 2 schema error, 3 parse-exhaustion, 1 everything else.
func (k Kind) ExitCode() int {
	switch k {
	case KindSchemaError:
		return 2
	case KindParseExhaustion:
		return 3
	default:
		return 1
	}
}

// ReconError is the single error type the core returns or records. It
// carries the originating stage and, where applicable, the offending
// record range, per spec.md §7's "stage name and offending
// record-range" propagation requirement.
type ReconError struct {
	Kind    Kind
	Stage   string
	Message string
	Field   string
	Range   string // e.g. "rows 10-14", empty if not applicable
	cause   error
	stack   errors.StackTrace
}

func (e *ReconError) Error() string {
	base := fmt.Sprintf("%s[%s]: %s", e.Kind, e.Stage, e.Message)
	if e.Range != "" {
		base = fmt.Sprintf("%s (%s)", base, e.Range)
	}
	if e.cause != nil {
		base = fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

func (e *ReconError) Unwrap() error { return e.cause }

// StackTrace exposes the pkg/errors-captured trace for diagnostic logging.
func (e *ReconError) StackTrace() errors.StackTrace { return e.stack }

func newError(kind Kind, stage, message string, cause error) *ReconError {
	wrapped := errors.New(message)
	if cause != nil {
		wrapped = errors.Wrap(cause, message)
	}
	st, _ := wrapped.(interface{ StackTrace() errors.StackTrace })
	e := &ReconError{Kind: kind, Stage: stage, Message: message, cause: cause}
	if st != nil {
		e.stack = st.StackTrace()
	}
	return e
}

// Schema builds a fatal SchemaError: a structural problem in a source
// (missing required canonical field, ambiguous sign convention, all
// rows failing date-column classification).
func Schema(stage, message string, cause error) *ReconError {
	return newError(KindSchemaError, stage, message, cause)
}

// SchemaRange is Schema with an explicit offending record range.
func SchemaRange(stage, message, rng string, cause error) *ReconError {
	e := newError(KindSchemaError, stage, message, cause)
	e.Range = rng
	return e
}

// Config builds a fatal ConfigError: weights don't sum to 1, unknown
// strategy name, threshold inversion, or similar validation failure.
func Config(message string, cause error) *ReconError {
	return newError(KindConfigError, "config", message, cause)
}

// Parse builds a non-fatal ParseException for a single row that failed
// date or amount coercion.
func Parse(stage, field, raw string, cause error) *ReconError {
	e := newError(KindParseException, stage, fmt.Sprintf("failed to parse %s", field), cause)
	e.Field = field
	e.Range = raw
	return e
}

// Ambiguity builds a non-fatal AmbiguityWarning for tied candidates left
// unpaired by C4/C5.
func Ambiguity(stage, message string) *ReconError {
	return newError(KindAmbiguityWarning, stage, message, nil)
}

// Drop builds a non-fatal DropWarning emitted by C1 for a row lacking
// any monetary column.
func Drop(stage, message string) *ReconError {
	return newError(KindDropWarning, stage, message, nil)
}

// SchemaWarn builds a non-fatal SchemaWarning for recoverable oddities
// such as a synonym-fallback column match.
func SchemaWarn(stage, message string) *ReconError {
	return newError(KindSchemaWarning, stage, message, nil)
}

// ParseExhausted builds the fatal run-level error raised when not a
// single row from either source survived C2.
func ParseExhausted(stage, message string) *ReconError {
	return newError(KindParseExhaustion, stage, message, nil)
}

// IsFatal reports whether err is a *ReconError whose Kind is fatal.
func IsFatal(err error) bool {
	var re *ReconError
	if errors.As(err, &re) {
		return re.Kind.Fatal()
	}
	return err != nil
}

// ExitCode derives the CLI exit code for any error returned by the
// orchestrator, per spec.md §6.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var re *ReconError
	if errors.As(err, &re) {
		return re.Kind.ExitCode()
	}
	return 1
}
