// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"testing"
	"time"
)

func TestParseCron(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every minute", "* * * * *", false},
		{"hourly at 30", "30 * * * *", false},
		{"daily at 9:15", "15 9 * * *", false},
		{"weekdays list", "0 9 * * 1,3,5", false},
		{"range with step", "0 9-17/2 * * *", false},
		{"step over wildcard", "*/15 * * * *", false},
		{"too few fields", "* * * *", true},
		{"too many fields", "* * * * * *", true},
		{"minute out of range", "60 * * * *", true},
		{"hour out of range", "0 24 * * *", true},
		{"weekday out of range", "0 0 * * 7", true},
		{"backwards range", "0 17-9 * * *", true},
		{"bad step", "*/0 * * * *", true},
		{"garbage", "banana * * * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCron(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseCron(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCronNext(t *testing.T) {
	// Wednesday 2026-01-07 10:30 UTC.
	from := time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		expr string
		want time.Time
	}{
		{
			name: "every minute",
			expr: "* * * * *",
			want: time.Date(2026, 1, 7, 10, 31, 0, 0, time.UTC),
		},
		{
			name: "hourly at 45",
			expr: "45 * * * *",
			want: time.Date(2026, 1, 7, 10, 45, 0, 0, time.UTC),
		},
		{
			name: "hourly at 15 rolls to next hour",
			expr: "15 * * * *",
			want: time.Date(2026, 1, 7, 11, 15, 0, 0, time.UTC),
		},
		{
			name: "daily at 9 rolls to next day",
			expr: "0 9 * * *",
			want: time.Date(2026, 1, 8, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "weekly friday",
			expr: "0 12 * * 5",
			want: time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC),
		},
		{
			name: "monthly on the 1st",
			expr: "0 0 1 * *",
			want: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "quarter hours",
			expr: "*/15 * * * *",
			want: time.Date(2026, 1, 7, 10, 45, 0, 0, time.UTC),
		},
		{
			name: "specific month",
			expr: "0 0 1 3 *",
			want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseCron(tt.expr)
			if err != nil {
				t.Fatalf("ParseCron(%q) error = %v", tt.expr, err)
			}
			got := expr.Next(from)
			if !got.Equal(tt.want) {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCronNextFromExactMatch(t *testing.T) {
	// Next never returns the from instant itself.
	expr, err := ParseCron("30 10 * * *")
	if err != nil {
		t.Fatalf("ParseCron() error = %v", err)
	}
	from := time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC)
	got := expr.Next(from)
	want := time.Date(2026, 1, 8, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}
}

func TestCronNextImpossible(t *testing.T) {
	// February 30th never exists.
	expr, err := ParseCron("0 0 30 2 *")
	if err != nil {
		t.Fatalf("ParseCron() error = %v", err)
	}
	got := expr.Next(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if !got.IsZero() {
		t.Errorf("Next() = %v, want zero time for an impossible schedule", got)
	}
}
