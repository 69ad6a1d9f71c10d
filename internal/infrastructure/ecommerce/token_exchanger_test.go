package ecommerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce/naverfake"
)

const testSecret = "$2a$04$abcdefghijklmnopqrstuv"

func newTestConfig(baseURL string) *NaverConfig {
	cfg := NewNaverConfig()
	cfg.BaseURL = baseURL
	cfg.RequestsPerSecond = 0
	cfg.DetailWorkers = 1
	return cfg
}

func newTestClient(t *testing.T, baseURL string) *NaverClient {
	t.Helper()
	client, err := NewNaverClient(newTestConfig(baseURL), nil, nil)
	require.NoError(t, err)
	return client
}

func TestClientCredentialsGrant_Form(t *testing.T) {
	grant := ClientCredentialsGrant{Signer: BcryptSigner{}}
	form, err := grant.Form(integration.Credential{
		ClientID:     "aaaabbbbcccc",
		ClientSecret: "$2a$10$abcdefghijklmnopqrstuv",
	}, 1643961623299)
	require.NoError(t, err)

	assert.Equal(t, "aaaabbbbcccc", form.Get("client_id"))
	assert.Equal(t, "1643961623299", form.Get("timestamp"))
	assert.Equal(t, "JDJhJDEwJGFiY2RlZmdoaWprbG1ub3BxcnN0dXVCVldZSk42T0VPdEx1OFY0cDQxa2IuTnpVaUEzbmsy", form.Get("client_secret_sign"))
	assert.Equal(t, "client_credentials", form.Get("grant_type"))
	assert.Equal(t, "SELF", form.Get("type"))
	assert.Empty(t, form.Get("account_id"))
	assert.Empty(t, form.Get("client_secret"))
}

func TestClientCredentialsGrant_Form_Seller(t *testing.T) {
	grant := ClientCredentialsGrant{Signer: HMACSigner{}, Type: "SELLER", AccountID: "seller-1"}
	form, err := grant.Form(integration.Credential{ClientID: "c", ClientSecret: "s"}, 1)
	require.NoError(t, err)
	assert.Equal(t, "SELLER", form.Get("type"))
	assert.Equal(t, "seller-1", form.Get("account_id"))
}

func TestJWTBearerGrant_Form(t *testing.T) {
	secret, _ := generatePEM(t)
	grant := JWTBearerGrant{Signer: RSAJWTSigner{}}
	form, err := grant.Form(integration.Credential{ClientID: "client-1", ClientSecret: secret}, time.Now().UnixMilli())
	require.NoError(t, err)

	assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", form.Get("grant_type"))
	assert.NotEmpty(t, form.Get("assertion"))
	assert.Empty(t, form.Get("client_id"))
}

func TestNewGrantStrategy(t *testing.T) {
	cfg := NewNaverConfig()
	grant, err := NewGrantStrategy(cfg)
	require.NoError(t, err)
	assert.Equal(t, "client_credentials", grant.GrantType())

	cfg.Grant = GrantJWTBearer
	grant, err = NewGrantStrategy(cfg)
	require.NoError(t, err)
	assert.Equal(t, jwtBearerGrantType, grant.GrantType())

	cfg.Grant = "password"
	_, err = NewGrantStrategy(cfg)
	assert.ErrorIs(t, err, ErrNaverConfigInvalidGrant)
}

func TestTokenExchanger_Exchange_Success(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	client := newTestClient(t, fake.URL)
	fixed := time.UnixMilli(1700000000000)
	exchanger := NewTokenExchanger(client, ClientCredentialsGrant{Signer: BcryptSigner{}}).
		WithClock(func() time.Time { return fixed })

	token, err := exchanger.Exchange(context.Background(), integration.Credential{
		ClientID:     fake.ClientID,
		ClientSecret: testSecret,
	})
	require.NoError(t, err)

	assert.Equal(t, naverfake.AccessToken, token.Value)
	assert.Equal(t, "Bearer "+naverfake.AccessToken, token.AuthorizationHeader())
	assert.Equal(t, 3*time.Hour, token.ExpiresIn)
	assert.Equal(t, fixed, token.ObtainedAt)

	forms := fake.TokenForms()
	require.Len(t, forms, 1)
	assert.Equal(t, "1700000000000", forms[0]["timestamp"])
	assert.Equal(t, "client_credentials", forms[0]["grant_type"])
	assert.NotContains(t, forms[0], "client_secret")
}

func TestTokenExchanger_Exchange_Rejected(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	client := newTestClient(t, fake.URL)
	exchanger := NewTokenExchanger(client, ClientCredentialsGrant{Signer: BcryptSigner{}})

	_, err := exchanger.Exchange(context.Background(), integration.Credential{
		ClientID:     "someone-else",
		ClientSecret: testSecret,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrAuthentication)
	assert.True(t, integration.IsFatal(err))

	var authErr *integration.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, authErr.Message, "GW.AUTHN")
	assert.Equal(t, 1, fake.TokenCalls())
}

func TestTokenExchanger_Exchange_SigningFailureMakesNoRequest(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	client := newTestClient(t, fake.URL)
	exchanger := NewTokenExchanger(client, ClientCredentialsGrant{Signer: BcryptSigner{}})

	_, err := exchanger.Exchange(context.Background(), integration.Credential{
		ClientID:     fake.ClientID,
		ClientSecret: "plain-secret",
	})
	assert.ErrorIs(t, err, integration.ErrSigning)
	assert.Equal(t, 0, fake.TokenCalls())
}

func TestTokenExchanger_Exchange_CancelledBeforeSigning(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	signer := &countingSigner{}
	exchanger := NewTokenExchanger(newTestClient(t, fake.URL), ClientCredentialsGrant{Signer: signer})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exchanger.Exchange(ctx, integration.Credential{ClientID: fake.ClientID, ClientSecret: testSecret})
	assert.ErrorIs(t, err, integration.ErrAuthentication)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, signer.calls)
	assert.Equal(t, 0, fake.TokenCalls())
}

// countingSigner records how often it is asked to sign
type countingSigner struct {
	calls int
}

func (s *countingSigner) Scheme() string { return SchemeHMAC }

func (s *countingSigner) Sign(clientID, clientSecret string, timestampMillis int64) (string, error) {
	s.calls++
	return HMACSigner{}.Sign(clientID, clientSecret, timestampMillis)
}

func TestTokenExchanger_Exchange_MissingAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_type":"Bearer","expires_in":10800}`))
	}))
	defer server.Close()

	exchanger := NewTokenExchanger(newTestClient(t, server.URL), ClientCredentialsGrant{Signer: HMACSigner{}})
	_, err := exchanger.Exchange(context.Background(), integration.Credential{ClientID: "c", ClientSecret: "s"})

	var authErr *integration.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.ErrorIs(t, err, errNoAccessToken)
}

func TestTokenExchanger_Exchange_OAuthErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"client authentication failed"}`))
	}))
	defer server.Close()

	exchanger := NewTokenExchanger(newTestClient(t, server.URL), ClientCredentialsGrant{Signer: HMACSigner{}})
	_, err := exchanger.Exchange(context.Background(), integration.Credential{ClientID: "c", ClientSecret: "s"})

	var authErr *integration.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "client authentication failed", authErr.Message)
}

func TestTokenExchanger_Exchange_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	cfg := newTestConfig(server.URL)
	cfg.TokenTimeout = 50 * time.Millisecond
	client, err := NewNaverClient(cfg, nil, nil)
	require.NoError(t, err)

	exchanger := NewTokenExchanger(client, ClientCredentialsGrant{Signer: HMACSigner{}})
	_, err = exchanger.Exchange(context.Background(), integration.Credential{ClientID: "c", ClientSecret: "s"})
	assert.ErrorIs(t, err, integration.ErrAuthentication)
}

func TestTokenExchanger_Exchange_JWTBearer(t *testing.T) {
	secret, _ := generatePEM(t)

	var received url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"jwt-token","expires_in":600,"token_type":"Bearer"}`))
	}))
	defer server.Close()

	exchanger := NewTokenExchanger(newTestClient(t, server.URL), JWTBearerGrant{Signer: RSAJWTSigner{}})
	token, err := exchanger.Exchange(context.Background(), integration.Credential{ClientID: "client-1", ClientSecret: secret})
	require.NoError(t, err)

	assert.Equal(t, "jwt-token", token.Value)
	assert.Equal(t, jwtBearerGrantType, received.Get("grant_type"))
	assert.NotEmpty(t, received.Get("assertion"))
}
