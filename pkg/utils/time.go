package utils

import (
	"time"
)

const (
	// Time format constants
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// GetCurrentTimestamp get current timestamp (seconds)
func GetCurrentTimestamp() int64 {
	return time.Now().Unix()
}

// GetCurrentTimestampMilli get current timestamp (milliseconds)
func GetCurrentTimestampMilli() int64 {
	return time.Now().UnixMilli()
}

// FormatTime format time
func FormatTime(t time.Time) string {
	return t.Format(TimeFormat)
}

// ParseTime parse time string
func ParseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

// MinTime returns the earlier of two times
func MinTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
