// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package hangoutdb

import "time"

// ScheduleKind identifies one of an agent's recurring triggers.
type ScheduleKind string

const (
	// ScheduleKindAvailability asks subscribers about their availability.
	ScheduleKindAvailability ScheduleKind = "availability"
	// ScheduleKindSuggestions sends hangout suggestions to subscribers.
	ScheduleKindSuggestions ScheduleKind = "suggestions"
	// ScheduleKindFinalPlan announces the final hangout plan.
	ScheduleKindFinalPlan ScheduleKind = "finalPlan"
)

// Schedule describes when an agent-initiated message fires. Exactly one of
// DayOfWeek and SpecificDate is meaningful; a specific-date schedule fires at
// most once while a day-of-week schedule fires weekly.
type Schedule struct {
	// DayOfWeek is the weekday the schedule fires on, 0 for Sunday. Nil when
	// the schedule is bound to a specific date instead.
	DayOfWeek *int `firestore:"dayOfWeek" json:"dayOfWeek"`

	// SpecificDate is a calendar date in YYYY-MM-DD form, evaluated in the
	// schedule's own time zone. Empty when the schedule is weekly.
	SpecificDate string `firestore:"specificDate" json:"specificDate"`

	// Hour is the zone-local hour the schedule fires at, 0-23.
	Hour int `firestore:"hour" json:"hour"`

	// Minute is the zone-local minute the schedule fires at, 0-59.
	Minute int `firestore:"minute" json:"minute"`

	// TimeZone is the IANA zone the schedule is evaluated in.
	TimeZone string `firestore:"timeZone" json:"timeZone"`
}

// Schedules holds an agent instance's triggers, one per kind. Availability is
// optional; when absent the availability question is folded into the
// suggestions message.
type Schedules struct {
	// Availability is the optional ask-availability trigger.
	Availability *Schedule `firestore:"availability" json:"availability"`

	// Suggestions is the send-suggestions trigger.
	Suggestions Schedule `firestore:"suggestions" json:"suggestions"`

	// FinalPlan is the announce-final-plan trigger.
	FinalPlan Schedule `firestore:"finalPlan" json:"finalPlan"`
}

// PlanningWindow is the date range a group is planning a hangout within.
type PlanningWindow struct {
	// StartDate is the first candidate date, YYYY-MM-DD.
	StartDate string `firestore:"startDate" json:"startDate"`

	// EndDate is the last candidate date, YYYY-MM-DD.
	EndDate string `firestore:"endDate" json:"endDate"`
}

// Group is an agent instance stored in Firestore: a named, schedulable chat
// participant subscribed to by one or more users.
type Group struct {
	// ID is the unique identifier of the group.
	ID string `firestore:"id"`

	// Name is the display name of the group.
	Name string `firestore:"name"`

	// SubscriberIDs are the IDs of the subscribed users. Order is irrelevant.
	SubscriberIDs []string `firestore:"subscriberIds"`

	// Schedules are the group's agent triggers.
	Schedules Schedules `firestore:"schedules"`

	// CreatorID is the ID of the user who created the group. Only the creator
	// may delete it.
	CreatorID string `firestore:"creatorId"`

	// CreatedAt is the timestamp when the group was created.
	CreatedAt time.Time `firestore:"createdAt"`

	// PlanningWindow is the optional date range being planned for.
	PlanningWindow *PlanningWindow `firestore:"planningWindow"`
}

// FireRecord marks one occurrence of a schedule as dispatched. Its document ID
// is the fire key, so creating it doubles as the at-most-once claim.
type FireRecord struct {
	// Kind is the schedule kind that fired.
	Kind ScheduleKind `firestore:"kind"`

	// FiredAt is the timestamp the occurrence was claimed.
	FiredAt time.Time `firestore:"firedAt"`
}
