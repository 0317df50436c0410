// Fieldsync - Field-Service CRM Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldsync

package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every ten minutes", "*/10 * * * *", false},
		{"daily at three", "0 3 * * *", false},
		{"every six hours", "0 */6 * * *", false},
		{"weekday range", "0 9 * * 1-5", false},
		{"list", "0,15,30,45 * * * *", false},
		{"stepped range", "0-30/10 * * * *", false},
		{"daily descriptor", "@daily", false},
		{"interval descriptor", "@every 15m", false},
		{"extra whitespace", "  30   4 * *  * ", false},
		{"too few fields", "0 3 * *", true},
		{"too many fields", "0 3 * * * *", true},
		{"minute out of range", "60 * * * *", true},
		{"hour out of range", "0 24 * * *", true},
		{"day zero", "0 0 0 * *", true},
		{"zero step", "*/0 * * * *", true},
		{"reversed range", "0 5-2 * * *", true},
		{"not a number", "x * * * *", true},
		{"day-of-week seven", "0 0 * * 7", true},
		{"unknown descriptor", "@fortnightly", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCron_Next(t *testing.T) {
	t.Parallel()
	at := func(y int, m time.Month, d, h, min int) time.Time {
		return time.Date(y, m, d, h, min, 0, 0, time.UTC)
	}
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{"next ten minute slot", "*/10 * * * *", at(2026, 1, 1, 12, 1), at(2026, 1, 1, 12, 10)},
		{"strictly after a match", "*/10 * * * *", at(2026, 1, 1, 12, 10), at(2026, 1, 1, 12, 20)},
		{"seconds are ignored", "*/10 * * * *", at(2026, 1, 1, 12, 9).Add(59 * time.Second), at(2026, 1, 1, 12, 10)},
		{"daily rolls to tomorrow", "0 3 * * *", at(2026, 1, 1, 4, 0), at(2026, 1, 2, 3, 0)},
		{"six hourly", "0 */6 * * *", at(2026, 1, 1, 13, 0), at(2026, 1, 1, 18, 0)},
		{"year rollover", "30 4 * * *", at(2026, 12, 31, 5, 0), at(2027, 1, 1, 4, 30)},
		{"monday from thursday", "0 9 * * 1", at(2026, 1, 1, 0, 0), at(2026, 1, 5, 9, 0)},
		{"sunday", "0 0 * * 0", at(2026, 1, 1, 0, 0), at(2026, 1, 4, 0, 0)},
		{"daily descriptor", "@daily", at(2026, 1, 1, 12, 0), at(2026, 1, 2, 0, 0)},
		{"first of month", "0 0 1 * *", at(2026, 1, 15, 0, 0), at(2026, 2, 1, 0, 0)},
		{"leap day", "0 0 29 2 *", at(2026, 3, 1, 0, 0), at(2028, 2, 29, 0, 0)},
		{"day-of-month or day-of-week", "0 0 15 * 1", at(2026, 1, 6, 0, 0), at(2026, 1, 12, 0, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatalf("ParseCron(%q) error = %v", tt.expr, err)
			}
			if got := c.Next(tt.after, time.UTC); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.after, got, tt.want)
			}
		})
	}
}

func TestCron_NextImpossibleDate(t *testing.T) {
	t.Parallel()
	c, err := ParseCron("0 0 30 2 *")
	if err != nil {
		t.Fatalf("ParseCron() error = %v", err)
	}
	if got := c.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil); !got.IsZero() {
		t.Errorf("Next() = %v, want zero time", got)
	}
}

func TestCron_NextInLocation(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	c, _ := ParseCron("0 3 * * *")
	got := c.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), loc)
	want := time.Date(2026, 1, 1, 3, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}
