package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeInternal = "ERR_INTERNAL"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeInvalidRange = "ERR_INVALID_DATE_RANGE"
)

// Access error codes
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeRateLimited  = "ERR_RATE_LIMITED"
	ErrCodeBodyTooLarge = "ERR_BODY_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Order sync error codes
const (
	// ErrCodeChannelInvalid is used for unknown channel codes
	ErrCodeChannelInvalid = "ERR_CHANNEL_INVALID"
	// ErrCodeChannelNotConfigured is used when no feed or relay serves the channel
	ErrCodeChannelNotConfigured = "ERR_CHANNEL_NOT_CONFIGURED"
	// ErrCodeSyncInProgress is used when another run holds the channel lock
	ErrCodeSyncInProgress = "ERR_SYNC_IN_PROGRESS"
	// ErrCodeUpstreamAuth is used when the marketplace rejected the credential
	ErrCodeUpstreamAuth = "ERR_UPSTREAM_AUTH"
	// ErrCodeUpstream is used for marketplace fetch failures
	ErrCodeUpstream = "ERR_UPSTREAM"
	// ErrCodeProxy is used when the relay failed
	ErrCodeProxy = "ERR_PROXY"
	// ErrCodeSigning is used when the credential could not be signed
	ErrCodeSigning = "ERR_SIGNING"
	// ErrCodeSyncCancelled is used when a run stopped before completing
	ErrCodeSyncCancelled = "ERR_SYNC_CANCELLED"
	// ErrCodeSchedulerUnavailable is used when the scheduler is stopped or full
	ErrCodeSchedulerUnavailable = "ERR_SCHEDULER_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeInvalidRange: http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeRateLimited:  http.StatusTooManyRequests,
	ErrCodeBodyTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeChannelInvalid:       http.StatusBadRequest,
	ErrCodeChannelNotConfigured: http.StatusUnprocessableEntity,
	ErrCodeSyncInProgress:       http.StatusConflict,
	ErrCodeUpstreamAuth:         http.StatusUnauthorized,
	ErrCodeUpstream:             http.StatusBadGateway,
	ErrCodeProxy:                http.StatusBadGateway,
	ErrCodeSigning:              http.StatusBadRequest,
	ErrCodeSyncCancelled:        http.StatusServiceUnavailable,
	ErrCodeSchedulerUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
