// Package retry provides retry logic with configurable backoff for upstream
// API calls. Only transport-level failures are retried by default; application
// responses are treated as final.
package retry
