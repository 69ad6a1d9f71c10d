package ecommerce

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/beautyops/backend/internal/domain/integration"
)

var naverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var errUnparseableTime = errors.New("unparseable time")

// parseNaverTime parses the timestamp formats seen in Naver payloads.
// Values without an offset are read in loc.
func parseNaverTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errUnparseableTime
	}
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}
	for _, layout := range naverTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, errUnparseableTime
}

// MapProductOrder converts one raw product order detail into an OrderRecord.
// Missing numbers become zero, missing strings empty and missing dates zero;
// only a detail without a product order id (or not JSON at all) is rejected
// with an *integration.MappingError.
func MapProductOrder(raw json.RawMessage, channel integration.ChannelCode, loc *time.Location) (*integration.OrderRecord, error) {
	if loc == nil {
		loc = integration.DefaultChannelLocation()
	}

	var detail naverProductOrderDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil, &integration.MappingError{Reason: "invalid detail json: " + err.Error()}
	}

	id := strings.TrimSpace(string(detail.ProductOrder.ProductOrderID))
	if id == "" {
		return nil, &integration.MappingError{
			OrderID: string(detail.Order.OrderID),
			Reason:  "missing productOrderId",
		}
	}

	orderedAt := firstTime(loc, detail.Order.OrderDate, detail.Order.PaymentDate, detail.ProductOrder.PlaceOrderDate)

	var orderDate time.Time
	if !orderedAt.IsZero() {
		y, m, d := orderedAt.Date()
		orderDate = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}

	quantity := int(detail.ProductOrder.Quantity.IntPart())
	if quantity < 0 {
		quantity = 0
	}

	return &integration.OrderRecord{
		Channel:         channel,
		ExternalOrderID: id,
		OrderDate:       orderDate,
		OrderDateTime:   orderedAt,
		ProductName:     normalizeText(detail.ProductOrder.ProductName),
		OptionName:      normalizeText(detail.ProductOrder.ProductOption),
		Quantity:        quantity,
		UnitPrice:       nonNegative(detail.ProductOrder.UnitPrice.Decimal),
		TotalPrice:      nonNegative(detail.ProductOrder.TotalPaymentAmount.Decimal),
		Status:          strings.TrimSpace(detail.ProductOrder.ProductOrderStatus),
		RawPayload:      append(json.RawMessage(nil), raw...),
	}, nil
}

func firstTime(loc *time.Location, values ...string) time.Time {
	for _, v := range values {
		if t, err := parseNaverTime(v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// normalizeText trims and composes Hangul jamo into NFC syllables
func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
