package instantsearch

import "github.com/cockroachdb/errors"

// FacetKind identifies how refinements on a faceted attribute are combined.
type FacetKind string

const (
	// FacetConjunctive combines refinements on an attribute with AND.
	FacetConjunctive FacetKind = "and"
	// FacetDisjunctive combines refinements on an attribute with OR.
	FacetDisjunctive FacetKind = "or"
	// FacetHierarchical refines a tree of attributes, one per level.
	FacetHierarchical FacetKind = "tree"
)

// Valid reports whether k is one of the recognized facet kinds.
func (k FacetKind) Valid() bool {
	switch k {
	case FacetConjunctive, FacetDisjunctive, FacetHierarchical:
		return true
	default:
		return false
	}
}

// Operator represents numeric comparison operators.
type Operator string

const (
	// OpEq represents equality operator.
	OpEq Operator = "="
	// OpNe represents not-equal operator.
	OpNe Operator = "!="
	// OpGt represents greater-than operator.
	OpGt Operator = ">"
	// OpGte represents greater-than-or-equal operator.
	OpGte Operator = ">="
	// OpLt represents less-than operator.
	OpLt Operator = "<"
	// OpLte represents less-than-or-equal operator.
	OpLte Operator = "<="
)

// Valid reports whether o is a supported numeric operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		return true
	default:
		return false
	}
}

// ErrorCode represents specific error codes for search session operations.
type ErrorCode int

const (
	// ErrCodeInvalidFacetKind is returned when a facet kind is not recognized.
	ErrCodeInvalidFacetKind ErrorCode = iota + 1000

	// ErrCodeInvalidOperator is returned when a numeric operator is not recognized.
	ErrCodeInvalidOperator

	// ErrCodeInvalidResults is returned when results to sanitize are not a list.
	ErrCodeInvalidResults

	// ErrCodeInvalidHandle is returned when a session handle is missing.
	ErrCodeInvalidHandle

	// ErrCodeInvalidParameters is returned when query parameters cannot be decoded.
	ErrCodeInvalidParameters

	// ErrCodeFacetNotFound is returned when an attribute is not faceted in a result set.
	ErrCodeFacetNotFound

	// ErrCodeTimeout is returned when a search operation times out.
	ErrCodeTimeout

	// ErrCodeCanceled is returned when a search operation is canceled.
	ErrCodeCanceled

	// ErrCodeBackendUnavailable is returned when the search backend is unavailable.
	ErrCodeBackendUnavailable
)

// String returns the human-readable string representation of the error code.
// This implements the fmt.Stringer interface.
func (e ErrorCode) String() string {
	switch e {
	case ErrCodeInvalidFacetKind:
		return "invalid facet kind"
	case ErrCodeInvalidOperator:
		return "invalid operator"
	case ErrCodeInvalidResults:
		return "invalid results"
	case ErrCodeInvalidHandle:
		return "invalid handle"
	case ErrCodeInvalidParameters:
		return "invalid parameters"
	case ErrCodeFacetNotFound:
		return "facet not found"
	case ErrCodeTimeout:
		return "operation timed out"
	case ErrCodeCanceled:
		return "operation canceled"
	case ErrCodeBackendUnavailable:
		return "backend unavailable"
	default:
		return "unknown error"
	}
}

// newErrorWithCode creates a new error with a code and message.
func newErrorWithCode(code ErrorCode, msg string) error {
	err := errors.New(msg)
	return errors.WithSecondaryError(err, errors.Newf("code: %d", int(code)))
}

// Common errors returned by the store, the helper and the sanitizer.
var (
	// ErrInvalidFacetKind is returned when a facet kind is not one of and, or, tree.
	ErrInvalidFacetKind = newErrorWithCode(ErrCodeInvalidFacetKind, "instantsearch: invalid facet kind")

	// ErrInvalidOperator is returned when a numeric operator is not recognized.
	ErrInvalidOperator = newErrorWithCode(ErrCodeInvalidOperator, "instantsearch: invalid operator")

	// ErrInvalidResults is returned when results are not provided as a list.
	ErrInvalidResults = newErrorWithCode(ErrCodeInvalidResults, "instantsearch: results should be provided as a list")

	// ErrInvalidHandle is returned when a nil helper or store is given.
	ErrInvalidHandle = newErrorWithCode(ErrCodeInvalidHandle, "instantsearch: expected a search helper")

	// ErrInvalidParameters is returned when query parameters cannot be decoded.
	ErrInvalidParameters = newErrorWithCode(ErrCodeInvalidParameters, "instantsearch: invalid query parameters")

	// ErrFacetNotFound is returned when an attribute was not requested as a facet.
	ErrFacetNotFound = newErrorWithCode(ErrCodeFacetNotFound, "instantsearch: attribute is not faceted")

	// ErrTimeout is returned when a search operation times out.
	ErrTimeout = newErrorWithCode(ErrCodeTimeout, "instantsearch: operation timed out")

	// ErrCanceled is returned when a search operation is canceled.
	ErrCanceled = newErrorWithCode(ErrCodeCanceled, "instantsearch: operation canceled")

	// ErrBackendUnavailable is returned when the search backend is unavailable.
	ErrBackendUnavailable = newErrorWithCode(ErrCodeBackendUnavailable, "instantsearch: backend unavailable")
)
