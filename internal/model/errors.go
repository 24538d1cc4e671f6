package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable classification carried by every
// pipeline error. The transport layer maps codes to status codes; the
// audit record stores them verbatim.
type ErrorCode string

const (
	CodeInvalidRequest     ErrorCode = "invalid_request"
	CodeUnauthorized       ErrorCode = "unauthorized"
	CodeRetrievalBackend   ErrorCode = "retrieval_backend"
	CodeReranker           ErrorCode = "reranker"
	CodeLLMProvider        ErrorCode = "llm_provider"
	CodeCitationValidation ErrorCode = "citation_validation"
	CodeTimeout            ErrorCode = "timeout"
	CodeCancelled          ErrorCode = "cancelled"
	CodeInternal           ErrorCode = "internal"
)

// InvalidRequestError marks a request the caller must fix before retrying.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// UnauthorizedError marks a malformed or rejected user context. Distinct
// from an empty result set: no backend is queried at all.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

// BackendFailure names which retrieval backend(s) failed.
type BackendFailure string

const (
	FailureVector  BackendFailure = "vector"
	FailureLexical BackendFailure = "lexical"
	FailureBoth    BackendFailure = "both"
)

// RetrievalBackendError reports backend search failure. Fatal only when
// Which == FailureBoth; a single-backend failure is downgraded to a warning
// by the fan-out and the pipeline continues.
type RetrievalBackendError struct {
	Which      BackendFailure
	VectorErr  error
	LexicalErr error
}

func (e *RetrievalBackendError) Error() string {
	switch e.Which {
	case FailureVector:
		return fmt.Sprintf("retrieval: vector backend failed: %v", e.VectorErr)
	case FailureLexical:
		return fmt.Sprintf("retrieval: lexical backend failed: %v", e.LexicalErr)
	default:
		return fmt.Sprintf("retrieval: both backends failed: vector: %v; lexical: %v", e.VectorErr, e.LexicalErr)
	}
}

func (e *RetrievalBackendError) Unwrap() error {
	if e.Which == FailureVector {
		return e.VectorErr
	}
	return e.LexicalErr
}

// RerankerError reports cross-encoder failure. Fatal only when the tenant
// has rerankerFallbackOnError disabled.
type RerankerError struct {
	Err error
}

func (e *RerankerError) Error() string { return "reranker: " + e.Err.Error() }
func (e *RerankerError) Unwrap() error { return e.Err }

// LLMProviderError is raised only after the primary provider, every
// fallback provider, and every retry have been exhausted.
type LLMProviderError struct {
	Provider string
	Err      error
}

func (e *LLMProviderError) Error() string {
	return fmt.Sprintf("llm: provider %s failed: %v", e.Provider, e.Err)
}

func (e *LLMProviderError) Unwrap() error { return e.Err }

// CitationValidationError is raised by the quality policy when the answer
// references citation numbers absent from the citation map.
type CitationValidationError struct {
	Missing []int
}

func (e *CitationValidationError) Error() string {
	return fmt.Sprintf("citations: answer references unknown citation numbers %v", e.Missing)
}

// TimeoutError marks a per-stage or overall deadline exceeded.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string { return "timeout: stage " + e.Stage }

// CancellationError marks externally initiated cancellation.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string { return "cancelled: " + e.Reason }

// CodeOf classifies any error into an ErrorCode for audit and transport.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var (
		invalid   *InvalidRequestError
		unauth    *UnauthorizedError
		retrieval *RetrievalBackendError
		reranker  *RerankerError
		llm       *LLMProviderError
		citation  *CitationValidationError
		timeout   *TimeoutError
		cancelled *CancellationError
	)
	switch {
	case errors.As(err, &invalid):
		return CodeInvalidRequest
	case errors.As(err, &unauth):
		return CodeUnauthorized
	case errors.As(err, &retrieval):
		return CodeRetrievalBackend
	case errors.As(err, &reranker):
		return CodeReranker
	case errors.As(err, &llm):
		return CodeLLMProvider
	case errors.As(err, &citation):
		return CodeCitationValidation
	case errors.As(err, &timeout):
		return CodeTimeout
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	default:
		return CodeInternal
	}
}
