package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beautyops/backend/internal/domain/integration"
	"github.com/beautyops/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormOrderRepository implements integration.OrderRepository using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	loc *time.Location
}

// NewGormOrderRepository creates a new GormOrderRepository.
// loc is the channel time zone order dates are returned in; nil selects the default.
func NewGormOrderRepository(db *gorm.DB, loc *time.Location) *GormOrderRepository {
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}
	return &GormOrderRepository{db: db, loc: loc}
}

// FindByChannelAndOrderID finds an order by its uniqueness key
func (r *GormOrderRepository) FindByChannelAndOrderID(ctx context.Context, channel integration.ChannelCode, orderID string) (*integration.OrderRecord, error) {
	var model models.MarketplaceOrderModel
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND order_id = ?", channel, orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(r.loc), nil
}

// Create inserts a new order row
func (r *GormOrderRepository) Create(ctx context.Context, record *integration.OrderRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	model := models.MarketplaceOrderModelFromDomain(record)
	model.ID = uuid.New()
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of the row matching the record's key.
// Returns integration.ErrOrderNotFound when no row matches.
func (r *GormOrderRepository) Update(ctx context.Context, record *integration.OrderRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	model := models.MarketplaceOrderModelFromDomain(record)

	result := r.db.WithContext(ctx).
		Model(&models.MarketplaceOrderModel{}).
		Where("channel = ? AND order_id = ?", record.Channel, record.ExternalOrderID).
		Updates(map[string]any{
			"order_date":     model.OrderDate,
			"order_datetime": model.OrderDatetime,
			"product_name":   model.ProductName,
			"option_name":    model.OptionName,
			"quantity":       model.Quantity,
			"unit_price":     model.UnitPrice,
			"total_price":    model.TotalPrice,
			"order_status":   model.OrderStatus,
			"raw_data":       model.RawData,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return integration.ErrOrderNotFound
	}
	return nil
}

// CountByChannel counts stored orders for a channel
func (r *GormOrderRepository) CountByChannel(ctx context.Context, channel integration.ChannelCode) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.MarketplaceOrderModel{}).
		Where("channel = ?", channel).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List returns one page of orders plus the total matching count.
// Orders are newest first unless the filter names a whitelisted sort field.
func (r *GormOrderRepository) List(ctx context.Context, filter integration.OrderFilter) ([]integration.OrderRecord, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.MarketplaceOrderModel{})
	if filter.Channel != "" {
		query = query.Where("channel = ?", filter.Channel)
	}
	if !filter.From.IsZero() {
		query = query.Where("order_date >= ?", civilDate(filter.From))
	}
	if !filter.To.IsZero() {
		query = query.Where("order_date <= ?", civilDate(filter.To))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	sortField := ValidateSortField(filter.SortBy, OrderSortFields, DefaultOrderSortField)
	sortOrder := ValidateSortOrder(filter.SortOrder)

	var rows []models.MarketplaceOrderModel
	query = query.Order(sortField + " " + sortOrder)
	if sortField != "order_id" {
		query = query.Order("order_id ASC")
	}
	if err := query.
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	records := make([]integration.OrderRecord, len(rows))
	for i := range rows {
		records[i] = *rows[i].ToDomain(r.loc)
	}
	return records, total, nil
}

// civilDate matches the representation order_date is written with
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ integration.OrderRepository = (*GormOrderRepository)(nil)
