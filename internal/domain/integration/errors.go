package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Phase errors. Every typed error below unwraps to one of these.
	ErrSigning        = errors.New("integration: signing failed")
	ErrAuthentication = errors.New("integration: authentication failed")
	ErrFetch          = errors.New("integration: changed orders fetch failed")
	ErrDetailBatch    = errors.New("integration: order detail batch failed")
	ErrProxy          = errors.New("integration: proxy relay failed")
	ErrPersistence    = errors.New("integration: order persistence failed")
	ErrMapping        = errors.New("integration: order mapping failed")

	// Request errors
	ErrInvalidChannel       = errors.New("integration: invalid channel")
	ErrChannelNotConfigured = errors.New("integration: channel not configured")
	ErrInvalidDateRange     = errors.New("integration: invalid date range")
	ErrMissingCredential    = errors.New("integration: client id and client secret are required")

	// Store and run errors
	ErrOrderNotFound    = errors.New("integration: order not found")
	ErrInvalidOrder     = errors.New("integration: invalid order record")
	ErrSyncInProgress   = errors.New("integration: sync already in progress for channel")
	ErrSyncCancelled    = errors.New("integration: sync cancelled")
	ErrSyncRunNotFound  = errors.New("integration: sync run not found")
	ErrArchiveDisabled  = errors.New("integration: payload archive disabled")
	ErrRelayUnsupported = errors.New("integration: channel not supported by relay")
)

// ---------------------------------------------------------------------------
// Typed errors
// ---------------------------------------------------------------------------

// SigningError reports key material that could not produce a signature.
type SigningError struct {
	Scheme string
	Err    error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrSigning, e.Scheme, e.Err)
}

func (e *SigningError) Unwrap() []error { return unwrapPair(ErrSigning, e.Err) }

// AuthenticationError reports a rejected token exchange. Message is the
// upstream message, surfaced verbatim to the caller.
type AuthenticationError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v: status %d: %s", ErrAuthentication, e.StatusCode, msg)
	}
	return fmt.Sprintf("%v: %s", ErrAuthentication, msg)
}

func (e *AuthenticationError) Unwrap() []error { return unwrapPair(ErrAuthentication, e.Err) }

// FetchError reports a failed changed-orders page.
type FetchError struct {
	Page       int
	Cursor     string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v: page %d: status %d: %s", ErrFetch, e.Page, e.StatusCode, msg)
	}
	return fmt.Sprintf("%v: page %d: %s", ErrFetch, e.Page, msg)
}

func (e *FetchError) Unwrap() []error { return unwrapPair(ErrFetch, e.Err) }

// DetailBatchError reports one detail chunk that was skipped.
type DetailBatchError struct {
	Batch      int
	Batches    int
	Size       int
	StatusCode int
	Message    string
	Err        error
}

func (e *DetailBatchError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v: batch %d/%d (%d ids): status %d: %s", ErrDetailBatch, e.Batch, e.Batches, e.Size, e.StatusCode, msg)
	}
	return fmt.Sprintf("%v: batch %d/%d (%d ids): %s", ErrDetailBatch, e.Batch, e.Batches, e.Size, msg)
}

func (e *DetailBatchError) Unwrap() []error { return unwrapPair(ErrDetailBatch, e.Err) }

// ProxyError reports an unreachable or rejecting relay.
type ProxyError struct {
	Operation  string
	StatusCode int
	Message    string
	Err        error
}

func (e *ProxyError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%v: %s: status %d: %s", ErrProxy, e.Operation, e.StatusCode, msg)
	}
	return fmt.Sprintf("%v: %s: %s", ErrProxy, e.Operation, msg)
}

func (e *ProxyError) Unwrap() []error { return unwrapPair(ErrProxy, e.Err) }

// PersistenceError reports one record that could not be written.
type PersistenceError struct {
	Channel ChannelCode
	OrderID string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%v: %s/%s: %v", ErrPersistence, e.Channel, e.OrderID, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return unwrapPair(ErrPersistence, e.Err) }

// MappingError reports an upstream detail object that cannot become an OrderRecord.
type MappingError struct {
	OrderID string
	Reason  string
}

func (e *MappingError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("%v: %s", ErrMapping, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrMapping, e.OrderID, e.Reason)
}

func (e *MappingError) Unwrap() error { return ErrMapping }

func unwrapPair(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}

// IsFatal reports whether err aborts a sync run.
// Batch, mapping and persistence errors are accumulated instead.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSigning) ||
		errors.Is(err, ErrAuthentication) ||
		errors.Is(err, ErrFetch) ||
		errors.Is(err, ErrProxy)
}
