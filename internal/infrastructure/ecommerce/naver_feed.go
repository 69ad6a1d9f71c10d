package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
)

// NaverFeed is the direct Naver Commerce pipeline:
// token exchange, changed-orders paging and detail resolution.
type NaverFeed struct {
	client    *NaverClient
	exchanger *TokenExchanger
	resolver  *DetailResolver
}

// NewNaverFeed wires a feed from configuration. httpClient and logger may be nil.
func NewNaverFeed(config *NaverConfig, httpClient *http.Client, logger *zap.Logger) (*NaverFeed, error) {
	client, err := NewNaverClient(config, httpClient, logger)
	if err != nil {
		return nil, err
	}
	grant, err := NewGrantStrategy(client.config)
	if err != nil {
		return nil, err
	}
	return NewNaverFeedWithClient(client, grant), nil
}

// NewNaverFeedWithClient wires a feed around an existing client and grant
func NewNaverFeedWithClient(client *NaverClient, grant GrantStrategy) *NaverFeed {
	return &NaverFeed{
		client:    client,
		exchanger: NewTokenExchanger(client, grant),
		resolver:  NewDetailResolver(client, integration.ChannelNaver),
	}
}

// Client returns the underlying HTTP client
func (f *NaverFeed) Client() *NaverClient {
	return f.client
}

// Exchanger returns the token exchanger
func (f *NaverFeed) Exchanger() *TokenExchanger {
	return f.exchanger
}

// Channel returns naver
func (f *NaverFeed) Channel() integration.ChannelCode {
	return integration.ChannelNaver
}

// Authenticate exchanges cred for a run-scoped token
func (f *NaverFeed) Authenticate(ctx context.Context, cred integration.Credential) (*integration.AccessToken, error) {
	return f.exchanger.Exchange(ctx, cred)
}

// ChangedOrders returns a fresh pager over window
func (f *NaverFeed) ChangedOrders(token *integration.AccessToken, window integration.SyncWindow) integration.ChangedOrderPager {
	return NewChangedOrdersPager(f.client, token, window)
}

// ResolveDetails resolves ids in bounded chunks
func (f *NaverFeed) ResolveDetails(ctx context.Context, token *integration.AccessToken, ids []integration.OrderIdentifier, onBatch func(integration.DetailBatchOutcome)) *integration.DetailResolution {
	return f.resolver.Resolve(ctx, token, ids, onBatch)
}

// RawOrders is the unmapped output of a full pipeline run
type RawOrders struct {
	Orders   []json.RawMessage
	Pages    int
	Failures []error
}

// FetchRaw runs the whole pipeline and returns the detail objects verbatim.
// The relay serves this to callers that map the objects themselves.
func (f *NaverFeed) FetchRaw(ctx context.Context, cred integration.Credential, window integration.SyncWindow) (*RawOrders, error) {
	token, err := f.Authenticate(ctx, cred)
	if err != nil {
		return nil, err
	}

	out := &RawOrders{}
	pager := NewChangedOrdersPager(f.client, token, window)
	for !pager.Done() {
		ids, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		out.Pages++

		chunks := ChunkIdentifiers(ids, f.client.config.DetailChunkSize)
		for i, chunk := range chunks {
			raw, err := f.resolver.fetchChunk(ctx, token, chunk, i+1, len(chunks))
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				f.client.logger.Warn("order detail batch skipped",
					zap.Int("page", out.Pages),
					zap.Int("batch", i+1),
					zap.Error(err))
				out.Failures = append(out.Failures, err)
				continue
			}
			out.Orders = append(out.Orders, raw...)
		}
	}
	return out, nil
}

var _ integration.OrderFeed = (*NaverFeed)(nil)
