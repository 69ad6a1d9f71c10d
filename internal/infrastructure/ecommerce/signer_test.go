package ecommerce

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// bcrypt
// ---------------------------------------------------------------------------

func TestBcryptHash_KnownVectors(t *testing.T) {
	tests := []struct {
		name     string
		password string
		setting  string
		want     string
	}{
		{
			name:     "x/crypto reference vector",
			password: "allmine",
			setting:  "$2a$10$XajjQvNhvvRt5GSeFk1xFe",
			want:     "$2a$10$XajjQvNhvvRt5GSeFk1xFeyqRrsxkhBkUiQeg0dt.wU1qD4aFDcga",
		},
		{
			name:     "naver documentation vector",
			password: "aaaabbbbcccc_1643961623299",
			setting:  "$2a$10$abcdefghijklmnopqrstuv",
			want:     "$2a$10$abcdefghijklmnopqrstuuBVWYJN6OEOtLu8V4p41kb.NzUiA3nk2",
		},
		{
			name:     "2b prefix at minimum cost",
			password: "beautyops-client_1700000000000",
			setting:  "$2b$04$N9qo8uLOickgx2ZMRZoMye",
			want:     "$2b$04$N9qo8uLOickgx2ZMRZoMyeAygR7gy1wb4mBRQdMJAQL4ryU8D3HZa",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setting, err := parseBcryptSetting(tt.setting)
			require.NoError(t, err)

			got, err := bcryptHash([]byte(tt.password), setting)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 60)
		})
	}
}

func TestParseBcryptSetting(t *testing.T) {
	tests := []struct {
		name    string
		setting string
		wantErr bool
		cost    int
	}{
		{name: "bare setting", setting: "$2a$10$abcdefghijklmnopqrstuv", cost: 10},
		{name: "full hash", setting: "$2a$10$abcdefghijklmnopqrstuuBVWYJN6OEOtLu8V4p41kb.NzUiA3nk2", cost: 10},
		{name: "2y prefix", setting: "$2y$05$abcdefghijklmnopqrstuv", cost: 5},
		{name: "empty", setting: "", wantErr: true},
		{name: "plain secret", setting: "this-is-not-a-bcrypt-salt", wantErr: true},
		{name: "unknown version", setting: "$3a$10$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "cost too low", setting: "$2a$03$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "highest accepted cost", setting: "$2a$12$abcdefghijklmnopqrstuv", cost: 12},
		{name: "cost above signing bound", setting: "$2a$13$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "cost at bcrypt maximum", setting: "$2a$31$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "cost too high", setting: "$2a$32$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "non numeric cost", setting: "$2a$1x$abcdefghijklmnopqrstuv", wantErr: true},
		{name: "short salt", setting: "$2a$10$abcdefghij", wantErr: true},
		{name: "salt outside alphabet", setting: "$2a$10$abcdefghijklmnopqrstu!", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setting, err := parseBcryptSetting(tt.setting)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cost, setting.cost)
			assert.Len(t, setting.salt, bcryptSaltLen)
		})
	}
}

// ---------------------------------------------------------------------------
// Signers
// ---------------------------------------------------------------------------

func TestBcryptSigner_Sign_NaverReference(t *testing.T) {
	sign, err := BcryptSigner{}.Sign("aaaabbbbcccc", "$2a$10$abcdefghijklmnopqrstuv", 1643961623299)
	require.NoError(t, err)
	assert.Equal(t, "JDJhJDEwJGFiY2RlZmdoaWprbG1ub3BxcnN0dXVCVldZSk42T0VPdEx1OFY0cDQxa2IuTnpVaUEzbmsy", sign)

	decoded, err := base64.StdEncoding.DecodeString(sign)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(decoded), "$2a$10$abcdefghijklmnopqrstu"))
}

func TestBcryptSigner_Sign_SecondVector(t *testing.T) {
	sign, err := BcryptSigner{}.Sign("beautyops-client", "$2b$04$N9qo8uLOickgx2ZMRZoMye", 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, "JDJiJDA0JE45cW84dUxPaWNrZ3gyWk1SWm9NeWVBeWdSN2d5MXdiNG1CUlFkTUpBUUw0cnlVOEQzSFph", sign)
}

func TestBcryptSigner_Sign_Deterministic(t *testing.T) {
	a, err := BcryptSigner{}.Sign("client", "$2a$04$abcdefghijklmnopqrstuv", 1)
	require.NoError(t, err)
	b, err := BcryptSigner{}.Sign("client", "$2a$04$abcdefghijklmnopqrstuv", 1)
	require.NoError(t, err)
	c, err := BcryptSigner{}.Sign("client", "$2a$04$abcdefghijklmnopqrstuv", 2)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestBcryptSigner_Sign_MalformedSecret(t *testing.T) {
	sign, err := BcryptSigner{}.Sign("client", "not-a-salt", 1643961623299)
	assert.Empty(t, sign)
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrSigning)

	var signingErr *integration.SigningError
	require.ErrorAs(t, err, &signingErr)
	assert.Equal(t, SchemeBcrypt, signingErr.Scheme)
	assert.NotContains(t, err.Error(), "not-a-salt")
}

func TestBcryptSigner_Sign_RefusesExpensiveCost(t *testing.T) {
	start := time.Now()
	sign, err := BcryptSigner{}.Sign("client", "$2a$31$abcdefghijklmnopqrstuv", 1643961623299)
	assert.Empty(t, sign)
	assert.ErrorIs(t, err, integration.ErrSigning)
	assert.ErrorIs(t, err, errBcryptCost)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBcryptSigner_Sign_MessageTooLong(t *testing.T) {
	clientID := strings.Repeat("x", 72)
	_, err := BcryptSigner{}.Sign(clientID, "$2a$04$abcdefghijklmnopqrstuv", 1)
	assert.ErrorIs(t, err, integration.ErrSigning)
}

func TestHMACSigner_Sign(t *testing.T) {
	sign, err := HMACSigner{}.Sign("beautyops-client", "hmac-secret", 1700000000000)
	require.NoError(t, err)
	assert.Equal(t, "bGwWvxpG6p0t2QsaJjEprg2z7hugkScBIGAyUl2hYe8=", sign)

	_, err = HMACSigner{}.Sign("beautyops-client", "", 1700000000000)
	assert.ErrorIs(t, err, integration.ErrSigning)
}

func generatePEM(t *testing.T) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block)), key
}

func TestRSAJWTSigner_Sign(t *testing.T) {
	secret, key := generatePEM(t)
	ts := time.Now().UnixMilli()

	signer := RSAJWTSigner{Audience: "https://api.example.test/oauth2/token", TTL: time.Minute}
	assertion, err := signer.Sign("client-1", secret, ts)
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(assertion, claims, func(token *jwt.Token) (any, error) {
		return &key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "client-1", claims.Issuer)
	assert.Equal(t, "client-1", claims.Subject)
	assert.Equal(t, SigningMessage("client-1", ts), claims.ID)
	assert.Equal(t, jwt.ClaimStrings{"https://api.example.test/oauth2/token"}, claims.Audience)
}

func TestRSAJWTSigner_Sign_InvalidKey(t *testing.T) {
	_, err := RSAJWTSigner{}.Sign("client-1", "-----BEGIN NOTHING-----", 1)
	require.Error(t, err)

	var signingErr *integration.SigningError
	require.ErrorAs(t, err, &signingErr)
	assert.Equal(t, SchemeRSAJWT, signingErr.Scheme)
}

func TestNewSigner(t *testing.T) {
	tests := []struct {
		scheme  string
		want    string
		wantErr bool
	}{
		{scheme: "", want: SchemeBcrypt},
		{scheme: SchemeBcrypt, want: SchemeBcrypt},
		{scheme: SchemeHMAC, want: SchemeHMAC},
		{scheme: SchemeRSAJWT, want: SchemeRSAJWT},
		{scheme: "md5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.scheme, func(t *testing.T) {
			signer, err := NewSigner(tt.scheme, "")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNaverConfigInvalidScheme)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, signer.Scheme())
		})
	}
}
