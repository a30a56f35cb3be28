package errors

import "fmt"

// Kind classifies API errors into a closed set so callers never have to
// pattern-match on message text.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindApplication Kind = "application"
	KindParsing     Kind = "parsing"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindRateLimit   Kind = "rate_limit"
	KindUnknown     Kind = "unknown"
)

// ApiError represents an upstream API error with kind information
type ApiError struct {
	Kind     Kind
	Endpoint string
	Message  string
	Code     int
}

func (e *ApiError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s error (code %d) on %s: %s", e.Kind, e.Code, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Kind, e.Code, e.Message)
}

// Transport builds a transport-level ApiError (timeout, connection failure)
func Transport(endpoint, message string) *ApiError {
	return &ApiError{Kind: KindTransport, Endpoint: endpoint, Message: message}
}

// Application builds an application-level ApiError (non-2xx response)
func Application(endpoint, message string, code int) *ApiError {
	return &ApiError{Kind: KindApplication, Endpoint: endpoint, Message: message, Code: code}
}

// Parsing builds an ApiError for an undeserializable response body
func Parsing(endpoint, message string, code int) *ApiError {
	return &ApiError{Kind: KindParsing, Endpoint: endpoint, Message: message, Code: code}
}

// IsRetryable checks if an error kind should be retried. Only transport
// failures are retried; application responses are authoritative and a retry
// would not change the outcome.
func IsRetryable(kind Kind) bool {
	return kind == KindTransport
}

// KindForStatusCode maps an HTTP status code to an error kind
func KindForStatusCode(statusCode int) Kind {
	switch statusCode {
	case 401, 403:
		return KindAuth
	case 404:
		return KindNotFound
	case 429:
		return KindRateLimit
	default:
		return KindApplication
	}
}
