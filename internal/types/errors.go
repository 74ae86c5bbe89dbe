package types

import "errors"

// Sentinel errors for boorukeeper operations.
var (
	// ErrFetchFailed indicates the transport could not deliver a decoded
	// JSON body. The cause (timeout, connection, non-2xx) is opaque.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrMalformedResponse indicates the response shape was entirely
	// unexpected: the entity count could not be resolved.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrRetryExhausted indicates a page scan gave up after the retry budget.
	ErrRetryExhausted = errors.New("retry budget exhausted")

	// ErrUnsupportedOperation indicates the backend document defines no
	// request template for the operation.
	ErrUnsupportedOperation = errors.New("operation not supported by backend")

	// ErrUnknownBackend indicates a document names a backend family that
	// does not exist.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrUnknownSite indicates no document is registered under a site name.
	ErrUnknownSite = errors.New("unknown site")

	// ErrInvalidQuery indicates a caller query is missing a value the
	// operation needs (pool id, user name).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrPathTooDeep indicates a field path exceeds MaxPathDepth.
	ErrPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrTooManyWildcards indicates a field path exceeds MaxNestedWildcards.
	ErrTooManyWildcards = errors.New("field path has too many wildcards")

	// ErrInvalidPath indicates a path expression could not be parsed.
	ErrInvalidPath = errors.New("invalid path expression")

	// ErrMissingPositional indicates a %d placeholder had no argument.
	ErrMissingPositional = errors.New("missing positional argument")

	// ErrCoercionFailed indicates type coercion failed.
	ErrCoercionFailed = errors.New("type coercion failed")

	// ErrFieldNotFound indicates a field path could not be resolved.
	ErrFieldNotFound = errors.New("field not found")

	// ErrInvalidDocument indicates a backend document failed validation.
	ErrInvalidDocument = errors.New("invalid backend document")

	// ErrInvalidToken indicates a pagination token the backend's
	// pagination mode cannot interpret.
	ErrInvalidToken = errors.New("invalid pagination token")
)
