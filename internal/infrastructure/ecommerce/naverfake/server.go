// Package naverfake serves an in-memory Naver Commerce API for tests.
package naverfake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// Paths served, relative to URL()
const (
	TokenPath         = "/oauth2/token"
	ChangedOrdersPath = "/pay-order/seller/product-orders/last-changed-statuses"
	ProductOrdersPath = "/pay-order/seller/product-orders/query"
	AccessToken       = "fake-access-token"
)

// Server is a fake Naver Commerce API.
// Pages[i] is served for cursor "" (i == 0) or "c{i}"; the last page carries no cursor.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	// ClientID is the only client accepted by the token endpoint
	ClientID string
	// Pages are the identifiers returned by the changed-orders feed
	Pages [][]string
	// UnitPrice is used for every generated detail
	UnitPrice int
	// Overrides replaces the generated detail for an id
	Overrides map[string]json.RawMessage
	// Omit drops ids from detail responses
	Omit map[string]bool
	// FailDetail returns a non-zero status to fail a detail query for ids
	FailDetail func(ids []string) int
	// FailPage returns a non-zero status to fail the page requested with cursor
	FailPage func(cursor string) int
	// SlowPage delays the page requested with cursor
	SlowPage func(cursor string) time.Duration
	// SlowDetail delays the detail query for ids
	SlowDetail func(ids []string) time.Duration
	// RepeatCursor makes every page after the first return cursor "c1"
	RepeatCursor bool

	tokenCalls  int
	cursors     []string
	detailSizes []int
	tokenForms  []map[string]string
}

// New starts a fake server with one empty page
func New() *Server {
	s := &Server{
		ClientID:  "fake-client",
		UnitPrice: 10000,
		Pages:     [][]string{{}},
		Overrides: make(map[string]json.RawMessage),
		Omit:      make(map[string]bool),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(TokenPath, s.handleToken)
	mux.HandleFunc(ChangedOrdersPath, s.handleChangedOrders)
	mux.HandleFunc(ProductOrdersPath, s.handleProductOrders)
	s.Server = httptest.NewServer(mux)
	return s
}

// IDs generates n identifiers with a prefix
func IDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%04d", prefix, i+1)
	}
	return ids
}

// SetPages replaces the changed-orders pages
func (s *Server) SetPages(pages ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pages = pages
}

// SetUnitPrice changes the price reported by generated details
func (s *Server) SetUnitPrice(price int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UnitPrice = price
}

// TokenCalls returns the number of token requests served
func (s *Server) TokenCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenCalls
}

// TokenForms returns the form fields of every token request
func (s *Server) TokenForms() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.tokenForms...)
}

// PageCursors returns the moreSequence of every page request, "" for none
func (s *Server) PageCursors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursors...)
}

// DetailSizes returns the number of ids of every detail request
func (s *Server) DetailSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.detailSizes...)
}

// ResetCounters clears the recorded calls
func (s *Server) ResetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenCalls = 0
	s.cursors = nil
	s.detailSizes = nil
	s.tokenForms = nil
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "GW.BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	s.tokenCalls++
	form := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	s.tokenForms = append(s.tokenForms, form)
	clientID := s.ClientID
	s.mu.Unlock()

	if r.PostForm.Get("client_id") != clientID || r.PostForm.Get("client_secret_sign") == "" {
		writeError(w, http.StatusUnauthorized, "GW.AUTHN", "인증에 실패했습니다.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": AccessToken,
		"expires_in":   10800,
		"token_type":   "Bearer",
	})
}

func (s *Server) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+AccessToken
}

// stall waits d, returning false when the client gave up first
func stall(r *http.Request, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-r.Context().Done():
		return false
	}
}

func (s *Server) handleChangedOrders(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "GW.AUTHN", "invalid token")
		return
	}
	cursor := r.URL.Query().Get("moreSequence")

	s.mu.Lock()
	s.cursors = append(s.cursors, cursor)
	pages := s.Pages
	repeat := s.RepeatCursor
	failPage := s.FailPage
	slowPage := s.SlowPage
	s.mu.Unlock()

	if slowPage != nil && !stall(r, slowPage(cursor)) {
		return
	}

	if failPage != nil {
		if status := failPage(cursor); status != 0 {
			writeError(w, status, "GW.ERROR", "page unavailable")
			return
		}
	}

	index := 0
	if cursor != "" {
		if _, err := fmt.Sscanf(cursor, "c%d", &index); err != nil || index >= len(pages) {
			writeError(w, http.StatusBadRequest, "GW.BAD_CURSOR", "unknown moreSequence")
			return
		}
	}

	var ids []string
	if index < len(pages) {
		ids = pages[index]
	}
	statuses := make([]map[string]any, len(ids))
	for i, id := range ids {
		statuses[i] = map[string]any{
			"productOrderId":     id,
			"orderId":            "o-" + id,
			"lastChangedType":    "PAYED",
			"productOrderStatus": "PAYED",
		}
	}

	data := map[string]any{
		"lastChangeStatuses": statuses,
		"count":              len(statuses),
	}
	switch {
	case repeat && index > 0:
		data["more"] = map[string]any{"moreSequence": "c1"}
	case index+1 < len(pages):
		data["more"] = map[string]any{"moreSequence": fmt.Sprintf("c%d", index+1)}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": "2024-01-15T00:00:00.000+09:00",
		"traceId":   "trace-" + cursor,
		"data":      data,
	})
}

func (s *Server) handleProductOrders(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "GW.AUTHN", "invalid token")
		return
	}
	var req struct {
		ProductOrderIDs []string `json:"productOrderIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "GW.BAD_REQUEST", err.Error())
		return
	}

	s.mu.Lock()
	s.detailSizes = append(s.detailSizes, len(req.ProductOrderIDs))
	failDetail := s.FailDetail
	slowDetail := s.SlowDetail
	price := s.UnitPrice
	overrides := s.Overrides
	omit := s.Omit
	s.mu.Unlock()

	if slowDetail != nil && !stall(r, slowDetail(req.ProductOrderIDs)) {
		return
	}
	if len(req.ProductOrderIDs) > 300 {
		writeError(w, http.StatusBadRequest, "GW.TOO_MANY", "productOrderIds exceeds 300")
		return
	}
	if failDetail != nil {
		if status := failDetail(req.ProductOrderIDs); status != 0 {
			writeError(w, status, "GW.ERROR", "detail query failed")
			return
		}
	}

	data := make([]json.RawMessage, 0, len(req.ProductOrderIDs))
	for _, id := range req.ProductOrderIDs {
		if omit[id] {
			continue
		}
		if raw, ok := overrides[id]; ok {
			data = append(data, raw)
			continue
		}
		data = append(data, Detail(id, price))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp": "2024-01-15T00:00:00.000+09:00",
		"traceId":   "trace-detail",
		"data":      data,
	})
}

// Detail generates a product order detail for id
func Detail(id string, unitPrice int) json.RawMessage {
	const qty = 2
	raw, _ := json.Marshal(map[string]any{
		"order": map[string]any{
			"orderId":     "o-" + id,
			"orderDate":   "2024-01-15T10:20:30.000+09:00",
			"paymentDate": "2024-01-15T10:21:00.000+09:00",
		},
		"productOrder": map[string]any{
			"productOrderId":     id,
			"productName":        "수분 크림 " + id,
			"productOption":      "용량: 50ml",
			"quantity":           qty,
			"unitPrice":          unitPrice,
			"totalPaymentAmount": unitPrice * qty,
			"productOrderStatus": "PAYED",
		},
	})
	return raw
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
		"traceId": "trace-error",
	})
}
