package ecommerce

import (
	"errors"
	"net/url"
	"time"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
)

const (
	// NaverProductionAPIURL is the Naver Commerce API base URL
	NaverProductionAPIURL = "https://api.commerce.naver.com/external/v1"

	// MaxDetailChunkSize is the upstream cap on ids per detail query
	MaxDetailChunkSize = 300
	// DefaultDetailWorkers is the number of detail chunks fetched concurrently
	DefaultDetailWorkers = 3
	// MaxDetailWorkers bounds DetailWorkers
	MaxDetailWorkers = 5
	// DefaultPageLimit is the limitCount sent to the changed-orders feed
	DefaultPageLimit = 300
)

// Grant types
const (
	GrantClientCredentials = "client_credentials"
	GrantJWTBearer         = "jwt_bearer"
)

// Errors for Naver configuration
var (
	ErrNaverConfigInvalidBaseURL = errors.New("naver: base url must be an absolute http(s) url")
	ErrNaverConfigInvalidGrant   = errors.New("naver: grant must be client_credentials or jwt_bearer")
	ErrNaverConfigInvalidScheme  = errors.New("naver: unknown signature scheme")
)

// NaverConfig holds configuration for the Naver Commerce API integration
type NaverConfig struct {
	// BaseURL is the API root, without trailing slash
	BaseURL string
	// Grant selects the token grant: client_credentials or jwt_bearer
	Grant string
	// SignatureScheme selects the signer for client_credentials: bcrypt or hmac-sha256
	SignatureScheme string
	// TokenType is the "type" form field (SELF or SELLER)
	TokenType string
	// AccountID is required by upstream when TokenType is SELLER
	AccountID string
	// JWTAudience is the aud claim for jwt_bearer assertions
	JWTAudience string
	// Location is the channel time zone used for date windows and order dates
	Location *time.Location

	TokenTimeout  time.Duration
	PageTimeout   time.Duration
	DetailTimeout time.Duration

	// DetailChunkSize may only lower MaxDetailChunkSize
	DetailChunkSize int
	// DetailWorkers is clamped to [1, MaxDetailWorkers]
	DetailWorkers int
	// PageLimit is the limitCount query parameter
	PageLimit int

	// RequestsPerSecond paces all upstream calls; zero disables pacing
	RequestsPerSecond float64
	Burst             int
}

// NewNaverConfig creates a Naver configuration with defaults
func NewNaverConfig() *NaverConfig {
	return &NaverConfig{
		BaseURL:           NaverProductionAPIURL,
		Grant:             GrantClientCredentials,
		SignatureScheme:   SchemeBcrypt,
		TokenType:         "SELF",
		Location:          integration.DefaultChannelLocation(),
		TokenTimeout:      30 * time.Second,
		PageTimeout:       30 * time.Second,
		DetailTimeout:     60 * time.Second,
		DetailChunkSize:   MaxDetailChunkSize,
		DetailWorkers:     DefaultDetailWorkers,
		PageLimit:         DefaultPageLimit,
		RequestsPerSecond: 2,
		Burst:             2,
	}
}

// Validate validates the configuration and fills in defaults
func (c *NaverConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = NaverProductionAPIURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrNaverConfigInvalidBaseURL
	}

	switch c.Grant {
	case "":
		c.Grant = GrantClientCredentials
	case GrantClientCredentials, GrantJWTBearer:
	default:
		return ErrNaverConfigInvalidGrant
	}

	switch c.SignatureScheme {
	case "":
		c.SignatureScheme = SchemeBcrypt
	case SchemeBcrypt, SchemeHMAC:
	default:
		return ErrNaverConfigInvalidScheme
	}

	if c.TokenType == "" {
		c.TokenType = "SELF"
	}
	if c.Location == nil {
		c.Location = integration.DefaultChannelLocation()
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = 30 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.DetailTimeout <= 0 {
		c.DetailTimeout = 60 * time.Second
	}
	if c.DetailChunkSize <= 0 || c.DetailChunkSize > MaxDetailChunkSize {
		c.DetailChunkSize = MaxDetailChunkSize
	}
	if c.DetailWorkers <= 0 {
		c.DetailWorkers = DefaultDetailWorkers
	}
	if c.DetailWorkers > MaxDetailWorkers {
		c.DetailWorkers = MaxDetailWorkers
	}
	if c.PageLimit <= 0 || c.PageLimit > DefaultPageLimit {
		c.PageLimit = DefaultPageLimit
	}
	if c.RequestsPerSecond < 0 {
		c.RequestsPerSecond = 0
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return nil
}

// NaverConfigFrom derives the client configuration from app config.
// Zero values are filled in by Validate.
func NaverConfigFrom(cfg config.NaverConfig) *NaverConfig {
	return &NaverConfig{
		BaseURL:           cfg.BaseURL,
		Grant:             cfg.Grant,
		SignatureScheme:   cfg.SignatureScheme,
		TokenType:         cfg.TokenType,
		AccountID:         cfg.AccountID,
		JWTAudience:       cfg.JWTAudience,
		Location:          cfg.Location(),
		TokenTimeout:      cfg.TokenTimeout,
		PageTimeout:       cfg.PageTimeout,
		DetailTimeout:     cfg.DetailTimeout,
		DetailChunkSize:   cfg.DetailChunkSize,
		DetailWorkers:     cfg.DetailWorkers,
		PageLimit:         cfg.PageLimit,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}
