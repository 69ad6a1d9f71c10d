package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/beautyops/backend/internal/domain/integration"
)

// Signature schemes
const (
	SchemeBcrypt = "bcrypt"
	SchemeHMAC   = "hmac-sha256"
	SchemeRSAJWT = "rs256-jwt"
)

var errEmptySecret = errors.New("client secret is empty")

// Signer derives the proof of possession sent with a token request.
// Implementations are pure: no I/O, no clock, no randomness.
type Signer interface {
	// Scheme names the signature scheme
	Scheme() string
	// Sign signs "{clientID}_{timestampMillis}" with clientSecret
	Sign(clientID, clientSecret string, timestampMillis int64) (string, error)
}

// SigningMessage builds the string every scheme signs
func SigningMessage(clientID string, timestampMillis int64) string {
	return clientID + "_" + strconv.FormatInt(timestampMillis, 10)
}

// ---------------------------------------------------------------------------
// BcryptSigner
// ---------------------------------------------------------------------------

// BcryptSigner implements the Naver Commerce scheme:
// base64(bcrypt(message, salt = clientSecret)).
type BcryptSigner struct{}

// Scheme returns the scheme name
func (BcryptSigner) Scheme() string { return SchemeBcrypt }

// Sign returns the standard base64 encoding of the 60 character bcrypt hash
func (BcryptSigner) Sign(clientID, clientSecret string, timestampMillis int64) (string, error) {
	setting, err := parseBcryptSetting(clientSecret)
	if err != nil {
		return "", &integration.SigningError{Scheme: SchemeBcrypt, Err: err}
	}

	hashed, err := bcryptHash([]byte(SigningMessage(clientID, timestampMillis)), setting)
	if err != nil {
		return "", &integration.SigningError{Scheme: SchemeBcrypt, Err: err}
	}

	return base64.StdEncoding.EncodeToString([]byte(hashed)), nil
}

// ---------------------------------------------------------------------------
// HMACSigner
// ---------------------------------------------------------------------------

// HMACSigner signs with HMAC-SHA256 keyed by the client secret
type HMACSigner struct{}

// Scheme returns the scheme name
func (HMACSigner) Scheme() string { return SchemeHMAC }

// Sign returns the standard base64 encoding of the MAC
func (HMACSigner) Sign(clientID, clientSecret string, timestampMillis int64) (string, error) {
	if clientSecret == "" {
		return "", &integration.SigningError{Scheme: SchemeHMAC, Err: errEmptySecret}
	}

	mac := hmac.New(sha256.New, []byte(clientSecret))
	mac.Write([]byte(SigningMessage(clientID, timestampMillis)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

// ---------------------------------------------------------------------------
// RSAJWTSigner
// ---------------------------------------------------------------------------

// RSAJWTSigner produces an RS256 JWT assertion. The client secret is a PEM
// encoded RSA private key (PKCS#1 or PKCS#8).
type RSAJWTSigner struct {
	// Audience is the token endpoint the assertion is meant for
	Audience string
	// TTL is the assertion lifetime, 5 minutes when zero
	TTL time.Duration
}

// Scheme returns the scheme name
func (RSAJWTSigner) Scheme() string { return SchemeRSAJWT }

// Sign returns a compact JWT whose jti is the signing message
func (s RSAJWTSigner) Sign(clientID, clientSecret string, timestampMillis int64) (string, error) {
	if clientSecret == "" {
		return "", &integration.SigningError{Scheme: SchemeRSAJWT, Err: errEmptySecret}
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(clientSecret))
	if err != nil {
		return "", &integration.SigningError{Scheme: SchemeRSAJWT, Err: err}
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	issuedAt := time.UnixMilli(timestampMillis)

	claims := jwt.RegisteredClaims{
		Issuer:    clientID,
		Subject:   clientID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		ID:        SigningMessage(clientID, timestampMillis),
	}
	if s.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", &integration.SigningError{Scheme: SchemeRSAJWT, Err: err}
	}
	return signed, nil
}

// NewSigner returns the signer for a scheme name
func NewSigner(scheme, audience string) (Signer, error) {
	switch scheme {
	case "", SchemeBcrypt:
		return BcryptSigner{}, nil
	case SchemeHMAC:
		return HMACSigner{}, nil
	case SchemeRSAJWT:
		return RSAJWTSigner{Audience: audience}, nil
	default:
		return nil, ErrNaverConfigInvalidScheme
	}
}
