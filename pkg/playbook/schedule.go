package playbook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScheduleType discriminates the schedule variants.
type ScheduleType string

const (
	ScheduleHourly   ScheduleType = "hourly"
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleMonthly  ScheduleType = "monthly"
	ScheduleAdvanced ScheduleType = "advanced"
)

// Schedule is the recurrence of a schedule trigger. It is a tagged union:
// the Type field selects which of the remaining fields are meaningful. Each
// variant converts to a standard 5-field cron expression.
//
// Schedules travel as a JSON document inside a schedule trigger's string
// input, since step inputs carry primitives only.
type Schedule struct {
	Type ScheduleType

	// Minute of the hour, 0-59. Used by every variant except Advanced.
	Minute int

	// Hour of the day, 0-23. Used by Daily, Weekly and Monthly.
	Hour int

	// Weekdays to fire on, 0=Sunday..6=Saturday. Used by Weekly.
	Weekdays []int

	// DayOfMonth to fire on, 1-31. Used by Monthly.
	DayOfMonth int

	// Cron is a raw 5-field cron expression. Used by Advanced.
	Cron string
}

// scheduleJSON is the wire shape. Pointer fields distinguish "absent" from
// zero values so missing required fields fail with a named error.
type scheduleJSON struct {
	Type       ScheduleType `json:"type"`
	Minute     *int         `json:"minute,omitempty"`
	Hour       *int         `json:"hour,omitempty"`
	Weekdays   []int        `json:"weekdays,omitempty"`
	DayOfMonth *int         `json:"dayOfMonth,omitempty"`
	Cron       *string      `json:"cron,omitempty"`
}

// ParseSchedule decodes a schedule document. A field required by the
// declared type that is absent is a hard error naming the field.
func ParseSchedule(data string) (*Schedule, error) {
	var raw scheduleJSON
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schedule: %w", err)
	}

	s := &Schedule{Type: raw.Type}

	requireMinute := func() error {
		if raw.Minute == nil {
			return fmt.Errorf("schedule type %q requires field \"minute\"", raw.Type)
		}
		if *raw.Minute < 0 || *raw.Minute > 59 {
			return fmt.Errorf("schedule minute %d out of range [0-59]", *raw.Minute)
		}
		s.Minute = *raw.Minute
		return nil
	}
	requireHour := func() error {
		if raw.Hour == nil {
			return fmt.Errorf("schedule type %q requires field \"hour\"", raw.Type)
		}
		if *raw.Hour < 0 || *raw.Hour > 23 {
			return fmt.Errorf("schedule hour %d out of range [0-23]", *raw.Hour)
		}
		s.Hour = *raw.Hour
		return nil
	}

	switch raw.Type {
	case ScheduleHourly:
		if err := requireMinute(); err != nil {
			return nil, err
		}

	case ScheduleDaily:
		if err := requireHour(); err != nil {
			return nil, err
		}
		if err := requireMinute(); err != nil {
			return nil, err
		}

	case ScheduleWeekly:
		if err := requireHour(); err != nil {
			return nil, err
		}
		if err := requireMinute(); err != nil {
			return nil, err
		}
		if len(raw.Weekdays) == 0 {
			return nil, fmt.Errorf("schedule type %q requires field \"weekdays\"", raw.Type)
		}
		for _, d := range raw.Weekdays {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("schedule weekday %d out of range [0-6]", d)
			}
		}
		s.Weekdays = raw.Weekdays

	case ScheduleMonthly:
		if err := requireHour(); err != nil {
			return nil, err
		}
		if err := requireMinute(); err != nil {
			return nil, err
		}
		if raw.DayOfMonth == nil {
			return nil, fmt.Errorf("schedule type %q requires field \"dayOfMonth\"", raw.Type)
		}
		if *raw.DayOfMonth < 1 || *raw.DayOfMonth > 31 {
			return nil, fmt.Errorf("schedule dayOfMonth %d out of range [1-31]", *raw.DayOfMonth)
		}
		s.DayOfMonth = *raw.DayOfMonth

	case ScheduleAdvanced:
		if raw.Cron == nil || *raw.Cron == "" {
			return nil, fmt.Errorf("schedule type %q requires field \"cron\"", raw.Type)
		}
		s.Cron = *raw.Cron

	default:
		return nil, fmt.Errorf("unknown schedule type %q", raw.Type)
	}

	return s, nil
}

// MarshalJSON writes only the fields meaningful for the schedule's type.
func (s *Schedule) MarshalJSON() ([]byte, error) {
	raw := scheduleJSON{Type: s.Type}
	switch s.Type {
	case ScheduleHourly:
		raw.Minute = &s.Minute
	case ScheduleDaily:
		raw.Hour = &s.Hour
		raw.Minute = &s.Minute
	case ScheduleWeekly:
		raw.Hour = &s.Hour
		raw.Minute = &s.Minute
		raw.Weekdays = s.Weekdays
	case ScheduleMonthly:
		raw.Hour = &s.Hour
		raw.Minute = &s.Minute
		raw.DayOfMonth = &s.DayOfMonth
	case ScheduleAdvanced:
		raw.Cron = &s.Cron
	default:
		return nil, fmt.Errorf("unknown schedule type %q", s.Type)
	}
	return json.Marshal(raw)
}

// UnmarshalJSON decodes through ParseSchedule so inline and string-carried
// schedules share one set of rules.
func (s *Schedule) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSchedule(string(data))
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}

// ToCronString converts the schedule to a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
func (s *Schedule) ToCronString() (string, error) {
	switch s.Type {
	case ScheduleHourly:
		return fmt.Sprintf("%d * * * *", s.Minute), nil
	case ScheduleDaily:
		return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour), nil
	case ScheduleWeekly:
		return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, weekdayList(s.Weekdays)), nil
	case ScheduleMonthly:
		return fmt.Sprintf("%d %d %d * *", s.Minute, s.Hour, s.DayOfMonth), nil
	case ScheduleAdvanced:
		return s.Cron, nil
	default:
		return "", fmt.Errorf("unknown schedule type %q", s.Type)
	}
}

// weekdayList renders weekdays as a sorted, deduplicated cron day-of-week
// list, e.g. [3 1 1] -> "1,3".
func weekdayList(days []int) string {
	seen := make(map[int]bool, len(days))
	var uniq []int
	for _, d := range days {
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	sort.Ints(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
