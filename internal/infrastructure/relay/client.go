package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/config"
	"github.com/beautyops/backend/internal/infrastructure/ecommerce"
)

// maxResponseSize bounds a relay sync response (64MB)
const maxResponseSize = 64 * 1024 * 1024

// Errors for relay configuration
var (
	ErrRelayConfigMissingURL    = errors.New("relay: proxy url is required")
	ErrRelayConfigMissingAPIKey = errors.New("relay: proxy api key is required")
	ErrRelayConfigInvalidURL    = errors.New("relay: proxy url must be an absolute http(s) url")
)

// Config holds the relay client configuration
type Config struct {
	URL    string
	APIKey string
	// TestTimeout bounds the connectivity test call
	TestTimeout time.Duration
	// SyncTimeout bounds the whole remote pipeline
	SyncTimeout time.Duration
	// Location is the channel time zone used to map order dates
	Location *time.Location
}

// NewConfig creates a relay configuration with defaults
func NewConfig(proxyURL, apiKey string) *Config {
	return &Config{
		URL:         proxyURL,
		APIKey:      apiKey,
		TestTimeout: 30 * time.Second,
		SyncTimeout: 5 * time.Minute,
		Location:    integration.DefaultChannelLocation(),
	}
}

// ConfigFrom derives the relay client configuration from app config
func ConfigFrom(cfg config.ProxyConfig, loc *time.Location) *Config {
	c := NewConfig(cfg.URL, cfg.APIKey)
	if cfg.TestTimeout > 0 {
		c.TestTimeout = cfg.TestTimeout
	}
	if cfg.SyncTimeout > 0 {
		c.SyncTimeout = cfg.SyncTimeout
	}
	if loc != nil {
		c.Location = loc
	}
	return c
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrRelayConfigMissingURL
	}
	if c.APIKey == "" {
		return ErrRelayConfigMissingAPIKey
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrRelayConfigInvalidURL
	}
	if c.TestTimeout <= 0 {
		c.TestTimeout = 30 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 5 * time.Minute
	}
	if c.Location == nil {
		c.Location = integration.DefaultChannelLocation()
	}
	return nil
}

// Client implements integration.OrderRelay over HTTP.
// There is no fallback to direct mode: every failure is an *integration.ProxyError.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a relay client. httpClient and logger may be nil.
func NewClient(config *Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{config: config, httpClient: httpClient, logger: logger}, nil
}

// TestConnection asks the relay to exchange a token and discard it
func (c *Client) TestConnection(ctx context.Context, channel integration.ChannelCode, cred integration.Credential) error {
	if channel != integration.ChannelNaver {
		return fmt.Errorf("%w: %s", integration.ErrRelayUnsupported, channel)
	}

	_, err := c.post(ctx, "test", TestPath, c.config.TestTimeout, TestRequest{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
	})
	return err
}

// FetchOrders runs the pipeline on the relay and maps the returned detail
// objects with the same function the direct pipeline uses.
func (c *Client) FetchOrders(ctx context.Context, channel integration.ChannelCode, cred integration.Credential, window integration.SyncWindow) (*integration.DetailResolution, error) {
	if channel != integration.ChannelNaver {
		return nil, fmt.Errorf("%w: %s", integration.ErrRelayUnsupported, channel)
	}

	resp, err := c.post(ctx, "sync", SyncPath, c.config.SyncTimeout, SyncRequest{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		StartDate:    window.StartDate(),
		EndDate:      window.EndDate(),
	})
	if err != nil {
		return nil, err
	}

	resolution := &integration.DetailResolution{}
	if resp.Data == nil {
		return resolution, nil
	}

	for _, f := range resp.Data.Failures {
		resolution.Failures = append(resolution.Failures, &integration.DetailBatchError{
			Batch:      f.Batch,
			Batches:    f.Batches,
			Size:       f.Size,
			StatusCode: f.StatusCode,
			Message:    f.Message,
		})
		resolution.Skipped += f.Size
	}

	for _, raw := range resp.Data.Orders {
		record, err := ecommerce.MapProductOrder(raw, channel, c.config.Location)
		if err != nil {
			resolution.Failures = append(resolution.Failures, err)
			resolution.Skipped++
			continue
		}
		resolution.Records = append(resolution.Records, record)
	}

	c.logger.Info("relay sync fetched",
		zap.String("channel", channel.String()),
		zap.Int("pages", resp.Data.Pages),
		zap.Int("orders", len(resolution.Records)),
		zap.Int("skipped", resolution.Skipped))

	return resolution, nil
}

func (c *Client) post(ctx context.Context, operation, path string, timeout time.Duration, payload any) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &integration.ProxyError{Operation: operation, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := strings.TrimRight(c.config.URL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &integration.ProxyError{Operation: operation, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, c.config.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("relay unreachable",
			zap.String("operation", operation),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, &integration.ProxyError{Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &integration.ProxyError{Operation: operation, StatusCode: resp.StatusCode, Err: err}
	}

	var envelope Response
	decodeErr := json.Unmarshal(data, &envelope)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := envelope.message()
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &integration.ProxyError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, &integration.ProxyError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", decodeErr),
		}
	}
	if !envelope.Success {
		msg := envelope.message()
		if msg == "" {
			msg = "relay reported failure"
		}
		return nil, &integration.ProxyError{Operation: operation, StatusCode: resp.StatusCode, Message: msg}
	}

	c.logger.Debug("relay call completed",
		zap.String("operation", operation),
		zap.Int("status_code", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return &envelope, nil
}

var _ integration.OrderRelay = (*Client)(nil)
