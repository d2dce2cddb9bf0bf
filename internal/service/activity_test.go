package service

import (
	"testing"
	"time"
)

func TestClampDays(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero uses default", 0, 7},
		{"negative uses default", -3, 7},
		{"in range unchanged", 30, 30},
		{"upper bound", 730, 730},
		{"above cap clamped", 10000, 730},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampDays(tt.in); got != tt.want {
				t.Errorf("clampDays(%d) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestStartOfDaysAgo(t *testing.T) {
	got := startOfDaysAgo(7)
	if got.Hour() != 0 || got.Minute() != 0 || got.Second() != 0 {
		t.Errorf("startOfDaysAgo() = %v, want midnight", got)
	}
	if time.Since(got) < 7*24*time.Hour {
		t.Errorf("startOfDaysAgo(7) = %v, less than 7 days ago", got)
	}
	if time.Since(got) > 8*24*time.Hour {
		t.Errorf("startOfDaysAgo(7) = %v, more than 8 days ago", got)
	}
}
