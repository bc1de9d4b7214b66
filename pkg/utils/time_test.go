package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentTimestamp(t *testing.T) {
	timestamp := GetCurrentTimestamp()
	assert.Greater(t, timestamp, int64(0))

	// Should be close to current time
	now := time.Now().Unix()
	assert.True(t, timestamp-now <= 1)
}

func TestGetCurrentTimestampMilli(t *testing.T) {
	timestamp := GetCurrentTimestampMilli()
	assert.Greater(t, timestamp, int64(0))

	// Should be close to current time
	now := time.Now().UnixMilli()
	assert.True(t, timestamp-now <= 1000)
}

func TestFormatTime(t *testing.T) {
	in := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-15 09:30:00", FormatTime(in))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input     string
		wantError bool
	}{
		{"2023-01-01 12:00:00", false},
		{"2023-12-31 23:59:59", false},
		{"invalid", true},
		{"", true},
		{"2023-01-01", true}, // Wrong format
	}

	for _, tt := range tests {
		result, err := ParseTime(tt.input)
		if tt.wantError {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
			assert.NotZero(t, result)
		}
	}
}

func TestMinTime(t *testing.T) {
	earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)

	assert.Equal(t, earlier, MinTime(earlier, later))
	assert.Equal(t, earlier, MinTime(later, earlier))
	assert.Equal(t, earlier, MinTime(earlier, earlier))
}
