package common

import (
	"testing"
	"time"
)

func TestIsFresh(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		updated time.Time
		ttl     time.Duration
		want    bool
	}{
		{"within ttl", now.Add(-30 * time.Second), QuoteTTL, true},
		{"exactly at ttl", now.Add(-QuoteTTL), QuoteTTL, false},
		{"past ttl", now.Add(-2 * time.Hour), QuoteTTL, false},
		{"zero timestamp", time.Time{}, FundamentalsTTL, false},
		{"fundamentals within window", now.Add(-5 * time.Hour), FundamentalsTTL, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFresh(now, tt.updated, tt.ttl); got != tt.want {
				t.Errorf("IsFresh(%v, %v) = %v, want %v", tt.updated, tt.ttl, got, tt.want)
			}
		})
	}
}
