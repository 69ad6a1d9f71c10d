package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/beautyops/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the Naver API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Naver Commerce API paths, relative to NaverConfig.BaseURL
const (
	naverTokenPath         = "/oauth2/token"
	naverChangedOrdersPath = "/pay-order/seller/product-orders/last-changed-statuses"
	naverProductOrdersPath = "/pay-order/seller/product-orders/query"
	naverTimestampLayout   = "2006-01-02T15:04:05.000Z07:00"
	naverContentTypeForm   = "application/x-www-form-urlencoded"
	naverContentTypeJSON   = "application/json"
	naverUserAgent         = "beautyops-ordersync/1.0"
)

// CallObserver receives the outcome of every upstream call
type CallObserver func(ctx context.Context, operation string, statusCode int, duration time.Duration)

// NaverClient is the low-level HTTP client shared by the token exchanger,
// the changed-orders pager and the detail resolver.
type NaverClient struct {
	config     *NaverConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	observer   CallObserver
}

// NewNaverClient creates a client. httpClient may be nil.
func NewNaverClient(config *NaverConfig, httpClient *http.Client, logger *zap.Logger) (*NaverClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		// Per-call timeouts come from the request context.
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &NaverClient{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, config.Burst),
		logger:     logger,
	}, nil
}

// Config returns the validated configuration
func (c *NaverClient) Config() *NaverConfig {
	return c.config
}

// SetCallObserver registers a hook for call metrics
func (c *NaverClient) SetCallObserver(observer CallObserver) {
	c.observer = observer
}

// naverResponse is a fully read upstream response
type naverResponse struct {
	StatusCode int
	Body       []byte
}

// OK reports a 2xx status
func (r *naverResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Message returns the upstream error message
func (r *naverResponse) Message() string {
	if len(r.Body) == 0 {
		return http.StatusText(r.StatusCode)
	}
	return upstreamMessage(r.Body)
}

// naverCall describes one upstream request
type naverCall struct {
	operation   string
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	token       *integration.AccessToken
	timeout     time.Duration
}

// do performs one call. A transport failure, including the per-call timeout,
// is returned as an error; any HTTP status is returned as a response.
func (c *NaverClient) do(ctx context.Context, call naverCall) (*naverResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if call.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, call.timeout)
		defer cancel()
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + call.path
	if len(call.query) > 0 {
		endpoint += "?" + call.query.Encode()
	}

	var body io.Reader
	if call.body != nil {
		body = bytes.NewReader(call.body)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("naver: failed to create request: %w", err)
	}
	req.Header.Set("Accept", naverContentTypeJSON)
	req.Header.Set("User-Agent", naverUserAgent)
	if call.contentType != "" {
		req.Header.Set("Content-Type", call.contentType)
	}
	if call.token != nil {
		req.Header.Set("Authorization", call.token.AuthorizationHeader())
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(ctx, call.operation, 0, elapsed)
		c.logger.Warn("naver request failed",
			zap.String("operation", call.operation),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.observe(ctx, call.operation, resp.StatusCode, elapsed)
		return nil, fmt.Errorf("naver: failed to read response: %w", err)
	}

	c.observe(ctx, call.operation, resp.StatusCode, elapsed)
	c.logger.Debug("naver request completed",
		zap.String("operation", call.operation),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", elapsed))

	return &naverResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *NaverClient) observe(ctx context.Context, operation string, statusCode int, d time.Duration) {
	if c.observer != nil {
		c.observer(ctx, operation, statusCode, d)
	}
}

// ---------------------------------------------------------------------------
// Endpoint helpers
// ---------------------------------------------------------------------------

// requestToken posts the grant form to the token endpoint
func (c *NaverClient) requestToken(ctx context.Context, form url.Values) (*naverResponse, error) {
	return c.do(ctx, naverCall{
		operation:   "token",
		method:      http.MethodPost,
		path:        naverTokenPath,
		body:        []byte(form.Encode()),
		contentType: naverContentTypeForm,
		timeout:     c.config.TokenTimeout,
	})
}

// lastChangedStatuses fetches one page of the changed-orders feed
func (c *NaverClient) lastChangedStatuses(ctx context.Context, token *integration.AccessToken, from, to time.Time, moreSequence string) (*naverResponse, error) {
	query := url.Values{}
	query.Set("lastChangedFrom", from.Format(naverTimestampLayout))
	query.Set("lastChangedTo", to.Format(naverTimestampLayout))
	query.Set("limitCount", strconv.Itoa(c.config.PageLimit))
	if moreSequence != "" {
		query.Set("moreSequence", moreSequence)
	}

	return c.do(ctx, naverCall{
		operation: "changed_orders",
		method:    http.MethodGet,
		path:      naverChangedOrdersPath,
		query:     query,
		token:     token,
		timeout:   c.config.PageTimeout,
	})
}

// queryProductOrders fetches detail objects for up to MaxDetailChunkSize ids
func (c *NaverClient) queryProductOrders(ctx context.Context, token *integration.AccessToken, ids []integration.OrderIdentifier) (*naverResponse, error) {
	req := productOrderQueryRequest{ProductOrderIDs: make([]string, len(ids))}
	for i, id := range ids {
		req.ProductOrderIDs[i] = string(id)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	return c.do(ctx, naverCall{
		operation:   "product_orders",
		method:      http.MethodPost,
		path:        naverProductOrdersPath,
		body:        body,
		contentType: naverContentTypeJSON,
		token:       token,
		timeout:     c.config.DetailTimeout,
	})
}
