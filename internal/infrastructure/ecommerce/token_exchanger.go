package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
)

const jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

var errNoAccessToken = errors.New("token response carried no access_token")

// GrantStrategy builds the token request form for one grant type
type GrantStrategy interface {
	GrantType() string
	Form(cred integration.Credential, timestampMillis int64) (url.Values, error)
}

// ClientCredentialsGrant sends a signed client secret (Naver's default grant)
type ClientCredentialsGrant struct {
	Signer Signer
	// Type is SELF for the application owner or SELLER for a delegated seller
	Type      string
	AccountID string
}

// GrantType returns client_credentials
func (g ClientCredentialsGrant) GrantType() string { return "client_credentials" }

// Form returns client_id, timestamp, client_secret_sign, grant_type and type
func (g ClientCredentialsGrant) Form(cred integration.Credential, timestampMillis int64) (url.Values, error) {
	sign, err := g.Signer.Sign(cred.ClientID, cred.ClientSecret, timestampMillis)
	if err != nil {
		return nil, err
	}

	tokenType := g.Type
	if tokenType == "" {
		tokenType = "SELF"
	}

	form := url.Values{}
	form.Set("client_id", cred.ClientID)
	form.Set("timestamp", strconv.FormatInt(timestampMillis, 10))
	form.Set("client_secret_sign", sign)
	form.Set("grant_type", g.GrantType())
	form.Set("type", tokenType)
	if g.AccountID != "" {
		form.Set("account_id", g.AccountID)
	}
	return form, nil
}

// JWTBearerGrant sends a signed JWT assertion (RFC 7523)
type JWTBearerGrant struct {
	Signer Signer
}

// GrantType returns the jwt-bearer URN
func (g JWTBearerGrant) GrantType() string { return jwtBearerGrantType }

// Form returns grant_type and assertion
func (g JWTBearerGrant) Form(cred integration.Credential, timestampMillis int64) (url.Values, error) {
	assertion, err := g.Signer.Sign(cred.ClientID, cred.ClientSecret, timestampMillis)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", g.GrantType())
	form.Set("assertion", assertion)
	return form, nil
}

// NewGrantStrategy builds the grant selected by config
func NewGrantStrategy(config *NaverConfig) (GrantStrategy, error) {
	switch config.Grant {
	case GrantJWTBearer:
		return JWTBearerGrant{Signer: RSAJWTSigner{Audience: config.JWTAudience}}, nil
	case "", GrantClientCredentials:
		signer, err := NewSigner(config.SignatureScheme, "")
		if err != nil {
			return nil, err
		}
		return ClientCredentialsGrant{Signer: signer, Type: config.TokenType, AccountID: config.AccountID}, nil
	default:
		return nil, ErrNaverConfigInvalidGrant
	}
}

// ---------------------------------------------------------------------------
// TokenExchanger
// ---------------------------------------------------------------------------

// TokenExchanger turns a credential into a run-scoped AccessToken.
// It makes exactly one request and never retries.
type TokenExchanger struct {
	client *NaverClient
	grant  GrantStrategy
	now    func() time.Time
}

// NewTokenExchanger creates an exchanger
func NewTokenExchanger(client *NaverClient, grant GrantStrategy) *TokenExchanger {
	return &TokenExchanger{
		client: client,
		grant:  grant,
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source
func (e *TokenExchanger) WithClock(now func() time.Time) *TokenExchanger {
	e.now = now
	return e
}

// Exchange signs with a fresh timestamp and posts the grant form.
// Signing failures are returned as *integration.SigningError; every other
// failure is an *integration.AuthenticationError.
func (e *TokenExchanger) Exchange(ctx context.Context, cred integration.Credential) (*integration.AccessToken, error) {
	if err := cred.Validate(); err != nil {
		return nil, &integration.AuthenticationError{Message: err.Error(), Err: err}
	}
	// signing is CPU bound and does not observe ctx
	if err := ctx.Err(); err != nil {
		return nil, &integration.AuthenticationError{Err: err}
	}

	obtainedAt := e.now()
	form, err := e.grant.Form(cred, obtainedAt.UnixMilli())
	if err != nil {
		return nil, err
	}

	resp, err := e.client.requestToken(ctx, form)
	if err != nil {
		return nil, &integration.AuthenticationError{Err: err}
	}
	if !resp.OK() {
		e.client.logger.Warn("naver token request rejected",
			zap.String("client_id", cred.ClientID),
			zap.Int("status_code", resp.StatusCode))
		return nil, &integration.AuthenticationError{StatusCode: resp.StatusCode, Message: resp.Message()}
	}

	var token naverTokenResponse
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return nil, &integration.AuthenticationError{StatusCode: resp.StatusCode, Err: err}
	}
	if token.AccessToken == "" {
		return nil, &integration.AuthenticationError{StatusCode: resp.StatusCode, Err: errNoAccessToken}
	}

	return &integration.AccessToken{
		Value:      token.AccessToken,
		TokenType:  token.TokenType,
		ExpiresIn:  time.Duration(token.ExpiresIn) * time.Second,
		ObtainedAt: obtainedAt,
	}, nil
}
