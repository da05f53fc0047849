package convert

import "fmt"

// Kind classifies a conversion failure. The pipeline applies one uniform
// propagate-and-cleanup rule regardless of kind; callers map kinds to
// transport-level responses.
type Kind int

const (
	// KindValidation: the upload itself is unacceptable (wrong extension,
	// unreadable archive). Client error.
	KindValidation Kind = iota + 1

	// KindStructural: the archive is well-formed but contains no resolvable
	// entry document, or an entry escapes the workspace. Client error.
	KindStructural

	// KindBackendMissing: a required external renderer is not installed.
	// Deployment misconfiguration; fatal and not retryable.
	KindBackendMissing

	// KindCompilation: the renderer ran and rejected the input. The Detail
	// carries the tool's diagnostic output verbatim.
	KindCompilation

	// KindInternal: unexpected I/O failure inside the pipeline.
	KindInternal
)

// String returns the kind's name for logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStructural:
		return "structural"
	case KindBackendMissing:
		return "backend-missing"
	case KindCompilation:
		return "compilation-failed"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a tagged conversion failure. Detail is a human-readable
// diagnostic safe to surface to the caller; for compilation failures it is
// the compiler log, unmodified.
type Error struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Kind.String() + ": " + e.Detail
	}
	if e.cause != nil {
		return e.Kind.String() + ": " + e.cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

func validationError(detail string, cause error) *Error {
	return newError(KindValidation, detail, cause)
}

func structuralError(detail string, cause error) *Error {
	return newError(KindStructural, detail, cause)
}

func backendMissingError(detail string, cause error) *Error {
	return newError(KindBackendMissing, detail, cause)
}

func compilationError(detail string, cause error) *Error {
	return newError(KindCompilation, detail, cause)
}

func internalError(cause error) *Error {
	return newError(KindInternal, "", cause)
}
