package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// ParseDateBound accepts either a calendar date or an RFC3339 timestamp.
// A bare date used as an upper bound covers the whole day.
func ParseDateBound(s string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC3339", s)
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t.UTC(), nil
}

// ConversationID derives a conversation id from a timestamp plus a random suffix,
// e.g. conv_20240501_130405_9f1c2a7b. Two ids minted in the same second still differ.
func ConversationID(t time.Time) string {
	return "conv_" + t.UTC().Format("20060102_150405") + "_" + uuid.NewString()[:8]
}
