package integration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Credential and AccessToken
// ---------------------------------------------------------------------------

// Credential is the client id/secret pair supplied for one sync invocation.
// It is never persisted.
type Credential struct {
	ClientID     string
	ClientSecret string
}

// Validate checks that both halves of the credential are present
func (c Credential) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return ErrMissingCredential
	}
	return nil
}

// String hides the secret so a credential can be logged safely
func (c Credential) String() string {
	return fmt.Sprintf("Credential{ClientID:%s ClientSecret:[REDACTED]}", c.ClientID)
}

// GoString hides the secret from %#v as well
func (c Credential) GoString() string {
	return c.String()
}

// AccessToken is a bearer token owned by exactly one sync run
type AccessToken struct {
	Value      string
	TokenType  string
	ExpiresIn  time.Duration
	ObtainedAt time.Time
}

// ExpiresAt returns when the token stops being valid.
// A zero time means the provider did not say.
func (t *AccessToken) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return t.ObtainedAt.Add(t.ExpiresIn)
}

// Expired reports whether the token is past its provider-defined lifetime
func (t *AccessToken) Expired(now time.Time) bool {
	exp := t.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// AuthorizationHeader returns the value for the Authorization header
func (t *AccessToken) AuthorizationHeader() string {
	tokenType := t.TokenType
	if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
		tokenType = "Bearer"
	}
	return tokenType + " " + t.Value
}

// ---------------------------------------------------------------------------
// OrderIdentifier and OrderRecord
// ---------------------------------------------------------------------------

// OrderIdentifier is a channel-scoped product order id.
// It joins the changed-orders feed to detail resolution.
type OrderIdentifier string

// OrderRecord is one product order as stored locally.
// (Channel, ExternalOrderID) is unique.
type OrderRecord struct {
	Channel         ChannelCode
	ExternalOrderID string
	OrderDate       time.Time
	OrderDateTime   time.Time
	ProductName     string
	OptionName      string
	Quantity        int
	UnitPrice       decimal.Decimal
	TotalPrice      decimal.Decimal
	Status          string
	RawPayload      json.RawMessage
}

// Validate checks the uniqueness key and numeric invariants
func (r *OrderRecord) Validate() error {
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: %w", ErrInvalidOrder, ErrInvalidChannel)
	}
	if strings.TrimSpace(r.ExternalOrderID) == "" {
		return fmt.Errorf("%w: external order id is required", ErrInvalidOrder)
	}
	if r.Quantity < 0 {
		return fmt.Errorf("%w: quantity cannot be negative", ErrInvalidOrder)
	}
	return nil
}

// Key returns the uniqueness key as a single string
func (r *OrderRecord) Key() string {
	return string(r.Channel) + ":" + r.ExternalOrderID
}

// ApplyFrom overwrites every mutable field with the values of other.
// Channel and ExternalOrderID are left untouched.
func (r *OrderRecord) ApplyFrom(other *OrderRecord) {
	r.OrderDate = other.OrderDate
	r.OrderDateTime = other.OrderDateTime
	r.ProductName = other.ProductName
	r.OptionName = other.OptionName
	r.Quantity = other.Quantity
	r.UnitPrice = other.UnitPrice
	r.TotalPrice = other.TotalPrice
	r.Status = other.Status
	r.RawPayload = other.RawPayload
}

// OrderFilter selects persisted orders for listing
type OrderFilter struct {
	Channel  ChannelCode
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
	// SortBy and SortOrder are validated by the repository
	SortBy    string
	SortOrder string
}

// Normalize applies paging defaults
func (f *OrderFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 100 {
		f.PageSize = 20
	}
}

// Offset returns the row offset for the current page
func (f OrderFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
