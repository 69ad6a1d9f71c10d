package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/beautyops/backend/internal/domain/integration"
)

// MarketplaceOrderModel is the persistence model for integration.OrderRecord.
// (channel, order_id) is unique.
type MarketplaceOrderModel struct {
	ID            uuid.UUID               `gorm:"type:uuid;primary_key"`
	Channel       integration.ChannelCode `gorm:"type:varchar(20);not null;uniqueIndex:uq_marketplace_orders_channel_order,priority:1;index:idx_marketplace_orders_channel_date,priority:1"`
	OrderID       string                  `gorm:"column:order_id;type:varchar(100);not null;uniqueIndex:uq_marketplace_orders_channel_order,priority:2"`
	OrderDate     *time.Time              `gorm:"type:date;index:idx_marketplace_orders_channel_date,priority:2"`
	OrderDatetime *time.Time              `gorm:"column:order_datetime"`
	ProductName   string                  `gorm:"type:varchar(500);not null;default:''"`
	OptionName    string                  `gorm:"type:varchar(500);not null;default:''"`
	Quantity      int                     `gorm:"not null;default:0"`
	UnitPrice     decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	TotalPrice    decimal.Decimal         `gorm:"type:decimal(18,2);not null;default:0"`
	OrderStatus   string                  `gorm:"type:varchar(50);not null;default:''"`
	RawData       string                  `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt     time.Time               `gorm:"not null"`
	UpdatedAt     time.Time               `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceOrderModel) TableName() string {
	return "marketplace_orders"
}

// ToDomain converts the persistence model to a domain OrderRecord.
// order_date is a calendar date; it is returned as local midnight in loc.
func (m *MarketplaceOrderModel) ToDomain(loc *time.Location) *integration.OrderRecord {
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}
	record := &integration.OrderRecord{
		Channel:         m.Channel,
		ExternalOrderID: m.OrderID,
		ProductName:     m.ProductName,
		OptionName:      m.OptionName,
		Quantity:        m.Quantity,
		UnitPrice:       m.UnitPrice,
		TotalPrice:      m.TotalPrice,
		Status:          m.OrderStatus,
	}
	if m.OrderDate != nil {
		y, mo, d := m.OrderDate.Date()
		record.OrderDate = time.Date(y, mo, d, 0, 0, 0, 0, loc)
	}
	if m.OrderDatetime != nil {
		record.OrderDateTime = m.OrderDatetime.In(loc)
	}
	if m.RawData != "" {
		record.RawPayload = json.RawMessage(m.RawData)
	}
	return record
}

// FromDomain populates every column except ID and timestamps from a domain OrderRecord
func (m *MarketplaceOrderModel) FromDomain(r *integration.OrderRecord) {
	m.Channel = r.Channel
	m.OrderID = r.ExternalOrderID
	m.OrderDate = nil
	if !r.OrderDate.IsZero() {
		// Store the calendar date the channel reported, independent of the session time zone.
		y, mo, d := r.OrderDate.Date()
		date := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
		m.OrderDate = &date
	}
	m.OrderDatetime = nil
	if !r.OrderDateTime.IsZero() {
		at := r.OrderDateTime
		m.OrderDatetime = &at
	}
	m.ProductName = r.ProductName
	m.OptionName = r.OptionName
	m.Quantity = r.Quantity
	m.UnitPrice = r.UnitPrice
	m.TotalPrice = r.TotalPrice
	m.OrderStatus = r.Status
	m.RawData = "{}"
	if len(r.RawPayload) > 0 && json.Valid(r.RawPayload) {
		m.RawData = string(r.RawPayload)
	}
}

// MarketplaceOrderModelFromDomain creates a new persistence model from a domain OrderRecord
func MarketplaceOrderModelFromDomain(r *integration.OrderRecord) *MarketplaceOrderModel {
	m := &MarketplaceOrderModel{}
	m.FromDomain(r)
	return m
}

// OrderSyncRunModel is the persistence model for integration.SyncRun
type OrderSyncRunModel struct {
	ID           uuid.UUID                 `gorm:"type:uuid;primary_key"`
	Channel      integration.ChannelCode   `gorm:"type:varchar(20);not null;index:idx_order_sync_runs_channel_started,priority:1"`
	Mode         integration.SyncMode      `gorm:"type:varchar(10);not null"`
	TriggeredBy  integration.SyncTrigger   `gorm:"type:varchar(20);not null"`
	Status       integration.SyncRunStatus `gorm:"type:varchar(20);not null"`
	WindowStart  time.Time                 `gorm:"not null"`
	WindowEnd    time.Time                 `gorm:"not null"`
	CreatedCount int                       `gorm:"not null;default:0"`
	UpdatedCount int                       `gorm:"not null;default:0"`
	SkippedCount int                       `gorm:"not null;default:0"`
	FailedCount  int                       `gorm:"not null;default:0"`
	ErrorCount   int                       `gorm:"not null;default:0"`
	ErrorsJSON   string                    `gorm:"column:errors;type:jsonb;not null;default:'[]'"`
	Message      string                    `gorm:"type:text;not null;default:''"`
	StartedAt    time.Time                 `gorm:"not null;index:idx_order_sync_runs_channel_started,priority:2,sort:desc"`
	FinishedAt   *time.Time
}

// TableName returns the table name for GORM
func (OrderSyncRunModel) TableName() string {
	return "order_sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *OrderSyncRunModel) ToDomain() *integration.SyncRun {
	run := &integration.SyncRun{
		ID:          m.ID,
		Channel:     m.Channel,
		Mode:        m.Mode,
		Trigger:     m.TriggeredBy,
		Status:      m.Status,
		WindowStart: m.WindowStart,
		WindowEnd:   m.WindowEnd,
		Created:     m.CreatedCount,
		Updated:     m.UpdatedCount,
		Skipped:     m.SkippedCount,
		Failed:      m.FailedCount,
		ErrorCount:  m.ErrorCount,
		Errors:      make([]string, 0),
		Message:     m.Message,
		StartedAt:   m.StartedAt,
		FinishedAt:  m.FinishedAt,
	}
	if m.ErrorsJSON != "" {
		var errs []string
		if err := json.Unmarshal([]byte(m.ErrorsJSON), &errs); err == nil {
			run.Errors = errs
		}
	}
	return run
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *OrderSyncRunModel) FromDomain(r *integration.SyncRun) {
	m.ID = r.ID
	m.Channel = r.Channel
	m.Mode = r.Mode
	m.TriggeredBy = r.Trigger
	m.Status = r.Status
	m.WindowStart = r.WindowStart
	m.WindowEnd = r.WindowEnd
	m.CreatedCount = r.Created
	m.UpdatedCount = r.Updated
	m.SkippedCount = r.Skipped
	m.FailedCount = r.Failed
	m.ErrorCount = r.ErrorCount
	m.Message = r.Message
	m.StartedAt = r.StartedAt
	m.FinishedAt = r.FinishedAt

	m.ErrorsJSON = "[]"
	if len(r.Errors) > 0 {
		if jsonBytes, err := json.Marshal(r.Errors); err == nil {
			m.ErrorsJSON = string(jsonBytes)
		}
	}
}

// OrderSyncRunModelFromDomain creates a new persistence model from a domain SyncRun
func OrderSyncRunModelFromDomain(r *integration.SyncRun) *OrderSyncRunModel {
	m := &OrderSyncRunModel{}
	m.FromDomain(r)
	return m
}
