package ecommerce

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce/naverfake"
)

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestNaverConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *NaverConfig)
		wantErr error
		check   func(t *testing.T, c *NaverConfig)
	}{
		{
			name:   "defaults",
			mutate: func(c *NaverConfig) {},
			check: func(t *testing.T, c *NaverConfig) {
				assert.Equal(t, NaverProductionAPIURL, c.BaseURL)
				assert.Equal(t, MaxDetailChunkSize, c.DetailChunkSize)
				assert.Equal(t, DefaultDetailWorkers, c.DetailWorkers)
				assert.Equal(t, 30*time.Second, c.TokenTimeout)
				assert.Equal(t, 60*time.Second, c.DetailTimeout)
			},
		},
		{
			name:   "chunk size can only be lowered",
			mutate: func(c *NaverConfig) { c.DetailChunkSize = 500 },
			check: func(t *testing.T, c *NaverConfig) {
				assert.Equal(t, MaxDetailChunkSize, c.DetailChunkSize)
			},
		},
		{
			name:   "smaller chunk size kept",
			mutate: func(c *NaverConfig) { c.DetailChunkSize = 100 },
			check: func(t *testing.T, c *NaverConfig) {
				assert.Equal(t, 100, c.DetailChunkSize)
			},
		},
		{
			name:   "workers clamped",
			mutate: func(c *NaverConfig) { c.DetailWorkers = 20 },
			check: func(t *testing.T, c *NaverConfig) {
				assert.Equal(t, MaxDetailWorkers, c.DetailWorkers)
			},
		},
		{
			name:   "empty values get defaults",
			mutate: func(c *NaverConfig) { *c = NaverConfig{} },
			check: func(t *testing.T, c *NaverConfig) {
				assert.Equal(t, GrantClientCredentials, c.Grant)
				assert.Equal(t, SchemeBcrypt, c.SignatureScheme)
				assert.Equal(t, "SELF", c.TokenType)
				assert.NotNil(t, c.Location)
			},
		},
		{
			name:    "relative base url",
			mutate:  func(c *NaverConfig) { c.BaseURL = "/external/v1" },
			wantErr: ErrNaverConfigInvalidBaseURL,
		},
		{
			name:    "unknown grant",
			mutate:  func(c *NaverConfig) { c.Grant = "password" },
			wantErr: ErrNaverConfigInvalidGrant,
		},
		{
			name:    "unknown scheme",
			mutate:  func(c *NaverConfig) { c.SignatureScheme = "md5" },
			wantErr: ErrNaverConfigInvalidScheme,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewNaverConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Feed Tests
// ---------------------------------------------------------------------------

func newTestFeed(t *testing.T, baseURL string) *NaverFeed {
	t.Helper()
	feed, err := NewNaverFeed(newTestConfig(baseURL), nil, nil)
	require.NoError(t, err)
	return feed
}

func TestNaverFeed_EndToEnd(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 2), naverfake.IDs("b", 1))

	feed := newTestFeed(t, fake.URL)
	assert.Equal(t, integration.ChannelNaver, feed.Channel())

	ctx := context.Background()
	token, err := feed.Authenticate(ctx, integration.Credential{ClientID: fake.ClientID, ClientSecret: testSecret})
	require.NoError(t, err)

	pager := feed.ChangedOrders(token, oneDayWindow(t))
	var records []*integration.OrderRecord
	for !pager.Done() {
		ids, err := pager.Next(ctx)
		require.NoError(t, err)
		res := feed.ResolveDetails(ctx, token, ids, nil)
		records = append(records, res.Records...)
	}

	require.Len(t, records, 3)
	assert.Equal(t, "a0001", records[0].ExternalOrderID)
	assert.Equal(t, 2, records[0].Quantity)
	assert.Equal(t, "20000", records[0].TotalPrice.String())
}

func TestNaverFeed_FetchRaw(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()
	fake.SetPages(naverfake.IDs("a", 2), naverfake.IDs("b", 3))
	fake.FailDetail = func(ids []string) int {
		if ids[0] == "b0001" {
			return http.StatusBadGateway
		}
		return 0
	}

	feed := newTestFeed(t, fake.URL)
	raw, err := feed.FetchRaw(context.Background(),
		integration.Credential{ClientID: fake.ClientID, ClientSecret: testSecret}, oneDayWindow(t))
	require.NoError(t, err)

	assert.Equal(t, 2, raw.Pages)
	assert.Len(t, raw.Orders, 2)
	require.Len(t, raw.Failures, 1)
	assert.ErrorIs(t, raw.Failures[0], integration.ErrDetailBatch)

	record, err := MapProductOrder(raw.Orders[0], integration.ChannelNaver, nil)
	require.NoError(t, err)
	assert.Equal(t, "a0001", record.ExternalOrderID)
}

func TestNaverFeed_FetchRaw_AuthFailure(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	feed := newTestFeed(t, fake.URL)
	_, err := feed.FetchRaw(context.Background(),
		integration.Credential{ClientID: "wrong", ClientSecret: testSecret}, oneDayWindow(t))
	assert.ErrorIs(t, err, integration.ErrAuthentication)
	assert.Empty(t, fake.PageCursors())
}

func TestNaverClient_CallObserver(t *testing.T) {
	fake := naverfake.New()
	defer fake.Close()

	feed := newTestFeed(t, fake.URL)
	var operations []string
	var statuses []int
	feed.Client().SetCallObserver(func(_ context.Context, operation string, statusCode int, _ time.Duration) {
		operations = append(operations, operation)
		statuses = append(statuses, statusCode)
	})

	_, err := feed.Authenticate(context.Background(), integration.Credential{ClientID: "wrong", ClientSecret: testSecret})
	require.Error(t, err)
	assert.Equal(t, []string{"token"}, operations)
	assert.Equal(t, []int{http.StatusUnauthorized}, statuses)
}
