// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package schedule decides whether an agent trigger is due at a given instant.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

const dateLayout = "2006-01-02"

// ErrNoVariant indicates a schedule with neither a day of week nor a specific
// date. Such schedules still fire on the legacy Sunday fallback, but callers
// should surface the misconfiguration to operators.
var ErrNoVariant = errors.New("schedule: neither dayOfWeek nor specificDate set")

// Validate reports schedule misconfigurations. A non-nil error does not stop
// evaluation; IsDue applies defined fallbacks instead of failing.
func Validate(s hangoutdb.Schedule) error {
	if _, err := time.LoadLocation(s.TimeZone); err != nil {
		return fmt.Errorf("schedule: invalid time zone %q: %w", s.TimeZone, err)
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("schedule: time %d:%d out of range", s.Hour, s.Minute) //nolint:err113
	}
	if s.SpecificDate != "" {
		if _, err := time.Parse(dateLayout, s.SpecificDate); err != nil {
			return fmt.Errorf("schedule: invalid specific date %q: %w", s.SpecificDate, err)
		}
		return nil
	}
	if s.DayOfWeek == nil {
		return ErrNoVariant
	}
	if *s.DayOfWeek < 0 || *s.DayOfWeek > 6 {
		return fmt.Errorf("schedule: day of week %d out of range", *s.DayOfWeek) //nolint:err113
	}
	return nil
}

// IsDue reports whether the schedule fires at the given instant. The match is
// exact to the minute in the schedule's own zone, so callers must evaluate at
// minute granularity. IsDue is pure and safe to call redundantly; at-most-once
// dispatch is the caller's responsibility.
//
// A specific-date schedule fires only on that zone-local calendar date at its
// hour and minute. A day-of-week schedule fires weekly, 0 meaning Sunday. A
// schedule with neither set falls back to Sunday.
func IsDue(s hangoutdb.Schedule, now time.Time) bool {
	loc, err := time.LoadLocation(s.TimeZone)
	if err != nil {
		return false
	}
	local := now.In(loc)
	if local.Hour() != s.Hour || local.Minute() != s.Minute {
		return false
	}
	if s.SpecificDate != "" {
		return local.Format(dateLayout) == s.SpecificDate
	}
	day := 0 // legacy fallback: treat an empty schedule as Sunday
	if s.DayOfWeek != nil {
		day = *s.DayOfWeek
	}
	return int(local.Weekday()) == day
}
