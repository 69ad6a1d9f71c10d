package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// ChannelCode Tests
// ---------------------------------------------------------------------------

func TestChannelCode_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		code     ChannelCode
		expected bool
	}{
		{"Naver valid", ChannelNaver, true},
		{"Cafe24 valid", ChannelCafe24, true},
		{"Coupang valid", ChannelCoupang, true},
		{"Uppercase invalid", ChannelCode("NAVER"), false},
		{"Invalid code", ChannelCode("gmarket"), false},
		{"Empty code", ChannelCode(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.IsValid())
		})
	}
}

func TestChannelCode_DisplayName(t *testing.T) {
	tests := []struct {
		code     ChannelCode
		expected string
	}{
		{ChannelNaver, "네이버 스마트스토어"},
		{ChannelCafe24, "카페24"},
		{ChannelCoupang, "쿠팡"},
		{ChannelCode("unknown"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.DisplayName())
		})
	}
}

func TestParseChannelCode(t *testing.T) {
	code, err := ParseChannelCode("  Naver ")
	require.NoError(t, err)
	assert.Equal(t, ChannelNaver, code)

	_, err = ParseChannelCode("11st")
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestAllChannels(t *testing.T) {
	for _, c := range AllChannels() {
		assert.True(t, c.IsValid(), c)
	}
	assert.Len(t, AllChannels(), 3)
}
