// Package relay talks to the order relay: a small service deployed on a host
// with a static egress IP that runs the Naver pipeline on behalf of callers
// whose own IP is not allow-listed upstream.
package relay

import "encoding/json"

// Relay endpoints and authentication header
const (
	TestPath     = "/api/naver/test"
	SyncPath     = "/api/naver/sync"
	HeaderAPIKey = "x-proxy-api-key"
)

// TestRequest is the body of POST /api/naver/test
type TestRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// SyncRequest is the body of POST /api/naver/sync. Dates are YYYY-MM-DD in
// the channel time zone, both inclusive.
type SyncRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
	StartDate    string `json:"startDate" binding:"required,datetime=2006-01-02"`
	EndDate      string `json:"endDate" binding:"required,datetime=2006-01-02"`
}

// Response is the envelope of every relay response
type Response struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	Error   string    `json:"error,omitempty"`
	Data    *SyncData `json:"data,omitempty"`
}

// SyncData carries the raw upstream detail objects
type SyncData struct {
	Orders   []json.RawMessage `json:"orders"`
	Pages    int               `json:"pages"`
	Failures []BatchFailure    `json:"failures,omitempty"`
}

// BatchFailure describes a detail chunk the relay had to skip
type BatchFailure struct {
	Batch      int    `json:"batch"`
	Batches    int    `json:"batches"`
	Size       int    `json:"size"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
}

// message picks the most specific text of a failed response
func (r *Response) message() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}
