package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestStartOfDay(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{
			name:     "midnight UTC",
			input:    time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
			expected: "2025-11-20 00:00:00 +0000 UTC",
		},
		{
			name:     "noon UTC",
			input:    time.Date(2025, 11, 20, 12, 30, 45, 0, time.UTC),
			expected: "2025-11-20 00:00:00 +0000 UTC",
		},
		{
			name:     "end of day UTC",
			input:    time.Date(2025, 11, 20, 23, 59, 59, 0, time.UTC),
			expected: "2025-11-20 00:00:00 +0000 UTC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StartOfDay(tt.input)

			if result.String() != tt.expected {
				t.Errorf("StartOfDay() = %v, want %v", result, tt.expected)
			}

			if result.Location() != time.UTC {
				t.Errorf("StartOfDay() returned non-UTC: %v", result.Location())
			}
		})
	}
}

func TestEndOfDay(t *testing.T) {
	input := time.Date(2025, 11, 20, 12, 30, 45, 0, time.UTC)
	expected := "2025-11-20 23:59:59.999999999 +0000 UTC"

	result := EndOfDay(input)

	if result.String() != expected {
		t.Errorf("EndOfDay() = %v, want %v", result, expected)
	}
}

func TestToUTC(t *testing.T) {
	// Create time in EST (UTC-5)
	est, _ := time.LoadLocation("America/New_York")
	estTime := time.Date(2025, 11, 20, 12, 0, 0, 0, est)

	utcTime := ToUTC(estTime)

	if utcTime.Location() != time.UTC {
		t.Errorf("ToUTC() returned non-UTC: %v", utcTime.Location())
	}

	// Verify time value is correct (EST noon = UTC 17:00)
	if utcTime.Hour() != 17 {
		t.Errorf("ToUTC() hour = %d, want 17", utcTime.Hour())
	}
}

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		name     string
		a        time.Time
		b        time.Time
		expected int
	}{
		{
			name:     "same day different hours",
			a:        time.Date(2024, 1, 15, 1, 0, 0, 0, time.UTC),
			b:        time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC),
			expected: 0,
		},
		{
			name:     "full month january",
			a:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			b:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			expected: 31,
		},
		{
			name:     "mid period change",
			a:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
			b:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			expected: 17,
		},
		{
			name:     "reversed is negative",
			a:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			b:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			expected: -31,
		},
		{
			name:     "ignores time of day",
			a:        time.Date(2024, 3, 9, 23, 59, 0, 0, time.UTC),
			b:        time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC),
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysBetween(tt.a, tt.b); got != tt.expected {
				t.Errorf("DaysBetween() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name     string
		input    time.Time
		months   int
		expected time.Time
	}{
		{
			name:     "simple month add",
			input:    time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
			months:   1,
			expected: time.Date(2024, 2, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:     "jan 31 clamps to feb 29 leap year",
			input:    time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
			months:   1,
			expected: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "jan 31 clamps to feb 28 non leap",
			input:    time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC),
			months:   1,
			expected: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "may 31 clamps to jun 30",
			input:    time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
			months:   1,
			expected: time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "quarterly across year end",
			input:    time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC),
			months:   3,
			expected: time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := AddMonths(tt.input, tt.months)

			if !result.Equal(tt.expected) {
				t.Errorf("AddMonths() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestAddYears_LeapDayClamps(t *testing.T) {
	input := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	expected := time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)

	result := AddYears(input, 1)

	if !result.Equal(expected) {
		t.Errorf("AddYears() = %v, want %v", result, expected)
	}
}
