package ecommerce

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Token endpoint
// ---------------------------------------------------------------------------

type naverTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// naverErrorResponse covers both the gateway error body and the OAuth error body
type naverErrorResponse struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	TraceID          string `json:"traceId"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// upstreamMessage extracts a human readable message from an error body
func upstreamMessage(body []byte) string {
	var e naverErrorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case e.Message != "" && e.Code != "":
			return e.Code + ": " + e.Message
		case e.Message != "":
			return e.Message
		case e.ErrorDescription != "":
			return e.ErrorDescription
		case e.Error != "":
			return e.Error
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// ---------------------------------------------------------------------------
// Changed-orders feed
// ---------------------------------------------------------------------------

type lastChangedStatusesResponse struct {
	Timestamp string                   `json:"timestamp"`
	TraceID   string                   `json:"traceId"`
	Data      *lastChangedStatusesData `json:"data"`
}

type lastChangedStatusesData struct {
	LastChangeStatuses []lastChangeStatus `json:"lastChangeStatuses"`
	Count              int                `json:"count"`
	MoreSequence       string             `json:"moreSequence"`
	More               *lastChangedMore   `json:"more"`
}

type lastChangedMore struct {
	MoreFrom     string `json:"moreFrom"`
	MoreSequence string `json:"moreSequence"`
}

type lastChangeStatus struct {
	ProductOrderID     lenientString `json:"productOrderId"`
	OrderID            lenientString `json:"orderId"`
	LastChangedType    string        `json:"lastChangedType"`
	LastChangedDate    string        `json:"lastChangedDate"`
	ProductOrderStatus string        `json:"productOrderStatus"`
}

// cursor returns the next moreSequence and moreFrom, empty when the feed is exhausted
func (d *lastChangedStatusesData) cursor() (sequence, from string) {
	if d == nil {
		return "", ""
	}
	if d.More != nil && d.More.MoreSequence != "" {
		return d.More.MoreSequence, d.More.MoreFrom
	}
	return d.MoreSequence, ""
}

// ---------------------------------------------------------------------------
// Product order detail
// ---------------------------------------------------------------------------

type productOrderQueryRequest struct {
	ProductOrderIDs []string `json:"productOrderIds"`
}

type productOrderQueryResponse struct {
	Timestamp string            `json:"timestamp"`
	TraceID   string            `json:"traceId"`
	Data      []json.RawMessage `json:"data"`
}

type naverProductOrderDetail struct {
	Order        naverOrder        `json:"order"`
	ProductOrder naverProductOrder `json:"productOrder"`
}

type naverOrder struct {
	OrderID     lenientString `json:"orderId"`
	OrderDate   string        `json:"orderDate"`
	PaymentDate string        `json:"paymentDate"`
}

type naverProductOrder struct {
	ProductOrderID     lenientString  `json:"productOrderId"`
	ProductName        string         `json:"productName"`
	ProductOption      string         `json:"productOption"`
	Quantity           lenientDecimal `json:"quantity"`
	UnitPrice          lenientDecimal `json:"unitPrice"`
	TotalPaymentAmount lenientDecimal `json:"totalPaymentAmount"`
	ProductOrderStatus string         `json:"productOrderStatus"`
	PlaceOrderDate     string         `json:"placeOrderDate"`
}

// ---------------------------------------------------------------------------
// Lenient scalars
// ---------------------------------------------------------------------------

// lenientString accepts a JSON string or number; anything else decodes to ""
type lenientString string

func (s *lenientString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] == 'n' {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			*s = ""
			return nil
		}
		*s = lenientString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		*s = ""
		return nil
	}
	*s = lenientString(n.String())
	return nil
}

// lenientDecimal accepts quoted or bare numbers; anything unparseable decodes to zero
type lenientDecimal struct {
	decimal.Decimal
}

func (d *lenientDecimal) UnmarshalJSON(b []byte) error {
	if err := d.Decimal.UnmarshalJSON(b); err != nil {
		d.Decimal = decimal.Zero
	}
	return nil
}
