package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beautyops/backend/internal/domain/integration"
)

var errRepeatedCursor = errors.New("moreSequence repeated a cursor already requested")

// ChangedOrdersPager walks last-changed-statuses one page per Next call.
// Upstream limits one query to 24 hours, so the window is walked day by day;
// each day restarts without a cursor.
type ChangedOrdersPager struct {
	client *NaverClient
	token  *integration.AccessToken
	days   []integration.SyncWindow
	logger *zap.Logger

	day      int
	cursor   string
	from     time.Time
	seen     map[string]struct{}
	page     int
	done     bool
	requests []string
}

// NewChangedOrdersPager creates a pager over window
func NewChangedOrdersPager(client *NaverClient, token *integration.AccessToken, window integration.SyncWindow) *ChangedOrdersPager {
	days := window.Days()
	return &ChangedOrdersPager{
		client: client,
		token:  token,
		days:   days,
		logger: client.logger,
		seen:   make(map[string]struct{}),
		done:   len(days) == 0,
	}
}

// Done reports whether every day of the window has been exhausted
func (p *ChangedOrdersPager) Done() bool {
	return p.done
}

// Requests returns the cursor sent with each request so far; "" means none
func (p *ChangedOrdersPager) Requests() []string {
	return append([]string(nil), p.requests...)
}

// Next fetches one page. An empty page with a cursor is not the end of the feed.
func (p *ChangedOrdersPager) Next(ctx context.Context) ([]integration.OrderIdentifier, error) {
	if p.done {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day := p.days[p.day]
	from := day.From
	if !p.from.IsZero() {
		from = p.from
	}

	p.page++
	p.requests = append(p.requests, p.cursor)

	resp, err := p.client.lastChangedStatuses(ctx, p.token, from, day.To, p.cursor)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &integration.FetchError{Page: p.page, Cursor: p.cursor, Err: err}
	}
	if !resp.OK() {
		return nil, &integration.FetchError{
			Page:       p.page,
			Cursor:     p.cursor,
			StatusCode: resp.StatusCode,
			Message:    resp.Message(),
		}
	}

	var body lastChangedStatusesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, &integration.FetchError{
			Page:       p.page,
			Cursor:     p.cursor,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode page: %w", err),
		}
	}

	var ids []integration.OrderIdentifier
	if body.Data != nil {
		ids = make([]integration.OrderIdentifier, 0, len(body.Data.LastChangeStatuses))
		for _, status := range body.Data.LastChangeStatuses {
			if status.ProductOrderID == "" {
				continue
			}
			ids = append(ids, integration.OrderIdentifier(status.ProductOrderID))
		}
	}

	next, moreFrom := body.Data.cursor()
	if err := p.advance(next, moreFrom); err != nil {
		return nil, err
	}

	p.logger.Debug("changed orders page fetched",
		zap.Int("page", p.page),
		zap.String("day", day.StartDate()),
		zap.Int("count", len(ids)),
		zap.Bool("more", next != ""))

	return ids, nil
}

// advance moves the cursor, or to the next day when the feed for the current day is exhausted
func (p *ChangedOrdersPager) advance(next, moreFrom string) error {
	if next == "" {
		p.day++
		p.cursor = ""
		p.from = time.Time{}
		p.seen = make(map[string]struct{})
		p.done = p.day >= len(p.days)
		return nil
	}

	if _, dup := p.seen[next]; dup || next == p.cursor {
		return &integration.FetchError{Page: p.page, Cursor: next, Err: errRepeatedCursor}
	}
	p.seen[next] = struct{}{}
	p.cursor = next
	p.from = time.Time{}
	if moreFrom != "" {
		if t, err := parseNaverTime(moreFrom, p.days[p.day].Location()); err == nil {
			p.from = t
		}
	}
	return nil
}

var _ integration.ChangedOrderPager = (*ChangedOrdersPager)(nil)
