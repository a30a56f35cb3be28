// Package catalog implements the upstream catalog API client.
//
// The client is the single point of upstream HTTP communication. It owns
// response caching (per-request cache policy, entries held in the persistent
// store), the transport retry policy (3 attempts with exponential backoff,
// transport failures only) and structured error classification. Non-2xx
// responses and undeserializable bodies surface as *errors.ApiError and are
// never retried.
package catalog
