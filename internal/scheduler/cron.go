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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpr is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
type CronExpr struct {
	minute     []int // 0-59
	hour       []int // 0-23
	dayOfMonth []int // 1-31
	month      []int // 1-12
	dayOfWeek  []int // 0-6, 0 = Sunday
}

// ParseCron parses a cron expression. Supported syntax per field: "*",
// single values, ranges (1-5), steps (*/15, 1-10/2), and comma lists.
func ParseCron(expr string) (*CronExpr, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	c := &CronExpr{}
	var err error

	if c.minute, err = parseField(fields[0], 0, 59); err != nil {
		return nil, fmt.Errorf("invalid minute field: %w", err)
	}
	if c.hour, err = parseField(fields[1], 0, 23); err != nil {
		return nil, fmt.Errorf("invalid hour field: %w", err)
	}
	if c.dayOfMonth, err = parseField(fields[2], 1, 31); err != nil {
		return nil, fmt.Errorf("invalid day-of-month field: %w", err)
	}
	if c.month, err = parseField(fields[3], 1, 12); err != nil {
		return nil, fmt.Errorf("invalid month field: %w", err)
	}
	if c.dayOfWeek, err = parseField(fields[4], 0, 6); err != nil {
		return nil, fmt.Errorf("invalid day-of-week field: %w", err)
	}
	return c, nil
}

func parseField(field string, min, max int) ([]int, error) {
	if field == "*" {
		values := make([]int, max-min+1)
		for i := range values {
			values[i] = min + i
		}
		return values, nil
	}

	var values []int
	for _, part := range strings.Split(field, ",") {
		parsed, err := parseFieldPart(part, min, max)
		if err != nil {
			return nil, err
		}
		values = append(values, parsed...)
	}

	sort.Ints(values)
	return dedupe(values), nil
}

// parseFieldPart handles one comma-separated part: a value, a range, or a
// stepped variant of either.
func parseFieldPart(part string, min, max int) ([]int, error) {
	step := 1
	if idx := strings.Index(part, "/"); idx != -1 {
		parsed, err := strconv.Atoi(part[idx+1:])
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid step: %s", part[idx+1:])
		}
		step = parsed
		part = part[:idx]
	}

	var start, end int
	switch {
	case part == "*":
		start, end = min, max
	case strings.Contains(part, "-"):
		idx := strings.Index(part, "-")
		var err error
		if start, err = strconv.Atoi(part[:idx]); err != nil {
			return nil, fmt.Errorf("invalid range start: %s", part[:idx])
		}
		if end, err = strconv.Atoi(part[idx+1:]); err != nil {
			return nil, fmt.Errorf("invalid range end: %s", part[idx+1:])
		}
	default:
		var err error
		if start, err = strconv.Atoi(part); err != nil {
			return nil, fmt.Errorf("invalid value: %s", part)
		}
		end = start
	}

	if start < min || start > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", start, min, max)
	}
	if end < min || end > max {
		return nil, fmt.Errorf("value %d out of range [%d-%d]", end, min, max)
	}
	if start > end {
		return nil, fmt.Errorf("invalid range: %d > %d", start, end)
	}

	var values []int
	for v := start; v <= end; v += step {
		values = append(values, v)
	}
	return values, nil
}

// Next returns the first time after from that matches the expression, or
// the zero time when nothing matches within four years.
func (c *CronExpr) Next(from time.Time) time.Time {
	t := from.Truncate(time.Minute).Add(time.Minute)
	limit := from.Add(4 * 365 * 24 * time.Hour)

	for t.Before(limit) {
		if !containsInt(c.month, int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !containsInt(c.dayOfMonth, t.Day()) || !containsInt(c.dayOfWeek, int(t.Weekday())) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
			continue
		}
		if !containsInt(c.hour, t.Hour()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
			continue
		}
		if !containsInt(c.minute, t.Minute()) {
			t = t.Add(time.Minute)
			continue
		}
		return t
	}
	return time.Time{}
}

func containsInt(values []int, v int) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func dedupe(sorted []int) []int {
	var out []int
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}
