package integration

import (
	"strings"
	"sync"
	"time"
)

// ChannelCode identifies an external sales channel
type ChannelCode string

const (
	// ChannelNaver represents Naver Smart Store (Naver Commerce API)
	ChannelNaver ChannelCode = "naver"
	// ChannelCafe24 represents a Cafe24 hosted shop
	ChannelCafe24 ChannelCode = "cafe24"
	// ChannelCoupang represents the Coupang marketplace
	ChannelCoupang ChannelCode = "coupang"
)

// AllChannels returns every known channel in display order
func AllChannels() []ChannelCode {
	return []ChannelCode{ChannelNaver, ChannelCafe24, ChannelCoupang}
}

// IsValid returns true if the channel code is known
func (c ChannelCode) IsValid() bool {
	switch c {
	case ChannelNaver, ChannelCafe24, ChannelCoupang:
		return true
	default:
		return false
	}
}

// String returns the string representation of ChannelCode
func (c ChannelCode) String() string {
	return string(c)
}

// DisplayName returns a human-readable name for the channel
func (c ChannelCode) DisplayName() string {
	switch c {
	case ChannelNaver:
		return "네이버 스마트스토어"
	case ChannelCafe24:
		return "카페24"
	case ChannelCoupang:
		return "쿠팡"
	default:
		return string(c)
	}
}

// ParseChannelCode parses a channel code case-insensitively
func ParseChannelCode(s string) (ChannelCode, error) {
	c := ChannelCode(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", ErrInvalidChannel
	}
	return c, nil
}

// DefaultChannelLocation is the time zone the Korean marketplaces report in.
// Falls back to a fixed +09:00 zone when tzdata is unavailable. The same
// *time.Location is returned on every call.
func DefaultChannelLocation() *time.Location {
	return defaultChannelLocation()
}

var defaultChannelLocation = sync.OnceValue(func() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
})
