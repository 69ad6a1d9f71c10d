package dto

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beautyops/backend/internal/domain/integration"
)

// SyncRunRequest is the body of POST /order-sync/runs and /order-sync/runs/stream.
// Dates are YYYY-MM-DD in the channel time zone, both inclusive.
type SyncRunRequest struct {
	Channel      string `json:"channel" binding:"required"`
	StartDate    string `json:"startDate" binding:"required,datetime=2006-01-02"`
	EndDate      string `json:"endDate" binding:"required,datetime=2006-01-02"`
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// ToDomain converts the request into a SyncRequest with dates parsed in loc
func (r *SyncRunRequest) ToDomain(loc *time.Location) (*integration.SyncRequest, error) {
	channel, err := integration.ParseChannelCode(r.Channel)
	if err != nil {
		return nil, err
	}
	window, err := integration.ParseSyncWindow(r.StartDate, r.EndDate, loc)
	if err != nil {
		return nil, err
	}
	return &integration.SyncRequest{
		Channel:   channel,
		StartDate: window.From,
		EndDate:   window.To.AddDate(0, 0, -1),
		Credential: integration.Credential{
			ClientID:     r.ClientID,
			ClientSecret: r.ClientSecret,
		},
		Trigger: integration.SyncTriggerAPI,
	}, nil
}

// TestConnectionRequest is the body of POST /order-sync/test
type TestConnectionRequest struct {
	Channel      string `json:"channel" binding:"required"`
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
}

// TestConnectionResponse reports a successful credential check
type TestConnectionResponse struct {
	Channel integration.ChannelCode `json:"channel"`
	Mode    integration.SyncMode    `json:"mode"`
	Message string                  `json:"message"`
}

// ChannelResponse describes one channel the server can sync
type ChannelResponse struct {
	Code        integration.ChannelCode `json:"code"`
	DisplayName string                  `json:"displayName"`
	Configured  bool                    `json:"configured"`
}

// ChannelsResponse lists channels and the active transport
type ChannelsResponse struct {
	Mode     integration.SyncMode `json:"mode"`
	Channels []ChannelResponse    `json:"channels"`
}

// ListRunsRequest filters GET /order-sync/runs
type ListRunsRequest struct {
	Channel string `form:"channel"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// SyncRunResponse is one run log entry
type SyncRunResponse struct {
	ID         uuid.UUID                 `json:"id"`
	Channel    integration.ChannelCode   `json:"channel"`
	Mode       integration.SyncMode      `json:"mode"`
	Trigger    integration.SyncTrigger   `json:"trigger"`
	Status     integration.SyncRunStatus `json:"status"`
	StartDate  string                    `json:"startDate"`
	EndDate    string                    `json:"endDate"`
	Created    int                       `json:"created"`
	Updated    int                       `json:"updated"`
	Skipped    int                       `json:"skipped"`
	Failed     int                       `json:"failed"`
	ErrorCount int                       `json:"errorCount"`
	Errors     []string                  `json:"errors,omitempty"`
	Message    string                    `json:"message,omitempty"`
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt *time.Time                `json:"finishedAt,omitempty"`
}

// NewSyncRunResponse converts a run log entry
func NewSyncRunResponse(run integration.SyncRun) SyncRunResponse {
	window := integration.SyncWindow{From: run.WindowStart, To: run.WindowEnd}
	return SyncRunResponse{
		ID:         run.ID,
		Channel:    run.Channel,
		Mode:       run.Mode,
		Trigger:    run.Trigger,
		Status:     run.Status,
		StartDate:  window.StartDate(),
		EndDate:    window.EndDate(),
		Created:    run.Created,
		Updated:    run.Updated,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		ErrorCount: run.ErrorCount,
		Errors:     run.Errors,
		Message:    run.Message,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// ListOrdersRequest filters GET /orders
type ListOrdersRequest struct {
	Channel   string `form:"channel"`
	StartDate string `form:"start_date" binding:"omitempty,datetime=2006-01-02"`
	EndDate   string `form:"end_date" binding:"omitempty,datetime=2006-01-02"`
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	SortBy    string `form:"sort_by"`
	SortOrder string `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
	// IncludeRaw adds the upstream payload of each order
	IncludeRaw bool `form:"include_raw"`
}

// OrderResponse is one persisted order
type OrderResponse struct {
	Channel       integration.ChannelCode `json:"channel"`
	OrderID       string                  `json:"orderId"`
	OrderDate     string                  `json:"orderDate"`
	OrderDateTime time.Time               `json:"orderDatetime"`
	ProductName   string                  `json:"productName"`
	OptionName    string                  `json:"optionName,omitempty"`
	Quantity      int                     `json:"quantity"`
	UnitPrice     decimal.Decimal         `json:"unitPrice"`
	TotalPrice    decimal.Decimal         `json:"totalPrice"`
	OrderStatus   string                  `json:"orderStatus"`
	RawData       json.RawMessage         `json:"rawData,omitempty"`
}

// NewOrderResponse converts a stored record. Raw payloads are only included on request.
func NewOrderResponse(r integration.OrderRecord, includeRaw bool) OrderResponse {
	resp := OrderResponse{
		Channel:       r.Channel,
		OrderID:       r.ExternalOrderID,
		OrderDate:     r.OrderDate.Format(time.DateOnly),
		OrderDateTime: r.OrderDateTime,
		ProductName:   r.ProductName,
		OptionName:    r.OptionName,
		Quantity:      r.Quantity,
		UnitPrice:     r.UnitPrice,
		TotalPrice:    r.TotalPrice,
		OrderStatus:   r.Status,
	}
	if includeRaw {
		resp.RawData = r.RawPayload
	}
	return resp
}

// ScheduleJobRequest is the body of POST /order-sync/jobs.
// Without dates the scheduler's lookback window is used.
type ScheduleJobRequest struct {
	Channel   string `json:"channel" binding:"required"`
	StartDate string `json:"startDate" binding:"required_with=EndDate,omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" binding:"required_with=StartDate,omitempty,datetime=2006-01-02"`
}

// ListJobsRequest filters GET /order-sync/jobs
type ListJobsRequest struct {
	Channel string `form:"channel"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=100"`
}
