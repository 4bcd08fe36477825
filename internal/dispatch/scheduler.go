// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package dispatch runs the server side of the agent: the periodic tick that
// fires scheduled messages and the generation pipeline behind them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
	"github.com/tareksakakini/hangout-agent-sub000/internal/schedule"
)

// Store is the document store surface the scheduler reads and writes.
type Store interface {
	Groups(ctx context.Context) ([]hangoutdb.Group, error)
	ClaimFire(ctx context.Context, groupID string, kind hangoutdb.ScheduleKind, fireKey string, at time.Time) error
	History(ctx context.Context, group hangoutdb.Group) (map[string][]hangoutdb.Message, error)
	Broadcast(ctx context.Context, group hangoutdb.Group, msg hangoutdb.Message) error
}

// NewScheduler returns a Scheduler generating through the given model client
// and dispatching parsed actions through the given dispatcher.
func NewScheduler(store Store, llm agent.Client, dispatcher *agent.Dispatcher) *Scheduler {
	return &Scheduler{
		store:      store,
		llm:        llm,
		dispatcher: dispatcher,
	}
}

// Scheduler evaluates every agent instance's schedules on each tick and runs
// the generation routine for each due occurrence at most once. The fire
// record claimed before generation makes overlapping or retried ticks safe.
type Scheduler struct {
	store      Store
	llm        agent.Client
	dispatcher *agent.Dispatcher
}

// Tick evaluates all groups for the given instant. The external trigger is
// expected to call it at minute granularity. Groups are independent and
// processed concurrently; a failure in one group never blocks the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) error {
	groups, err := s.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: listing groups: %w", err)
	}

	var grp errgroup.Group
	for _, group := range groups {
		grp.Go(func() error {
			s.processGroup(ctx, group, now)
			return nil
		})
	}
	return grp.Wait()
}

func (s *Scheduler) processGroup(ctx context.Context, group hangoutdb.Group, now time.Time) {
	kinds := []struct {
		kind  hangoutdb.ScheduleKind
		sched *hangoutdb.Schedule
	}{
		{hangoutdb.ScheduleKindAvailability, group.Schedules.Availability},
		{hangoutdb.ScheduleKindSuggestions, &group.Schedules.Suggestions},
		{hangoutdb.ScheduleKindFinalPlan, &group.Schedules.FinalPlan},
	}
	for _, k := range kinds {
		if k.sched == nil {
			continue
		}
		if err := schedule.Validate(*k.sched); err != nil {
			slog.WarnContext(ctx, "dispatch: misconfigured schedule",
				"group", group.ID, "kind", k.kind, "error", err)
		}
		if !schedule.IsDue(*k.sched, now) {
			continue
		}

		key := fireKey(k.kind, *k.sched, now)
		err := s.store.ClaimFire(ctx, group.ID, k.kind, key, now)
		if errors.Is(err, hangoutdb.ErrAlreadyFired) {
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "dispatch: claiming fire",
				"group", group.ID, "kind", k.kind, "error", err)
			continue
		}

		if err := s.generate(ctx, group, k.kind, now); err != nil {
			slog.ErrorContext(ctx, "dispatch: generating scheduled message",
				"group", group.ID, "kind", k.kind, "error", err)
		}
	}
}

// fireKey names one occurrence of a schedule: the kind plus the zone-local
// minute it fires at.
func fireKey(kind hangoutdb.ScheduleKind, sched hangoutdb.Schedule, now time.Time) string {
	loc, err := time.LoadLocation(sched.TimeZone)
	if err != nil {
		loc = time.UTC
	}
	return string(kind) + "-" + now.In(loc).Format("2006-01-02T15:04")
}

func (s *Scheduler) generate(ctx context.Context, group hangoutdb.Group, kind hangoutdb.ScheduleKind, now time.Time) error {
	history, err := s.store.History(ctx, group)
	if err != nil {
		return err
	}
	turns, err := contextTurns(group, history)
	if err != nil {
		return err
	}

	prompt := systemPrompt(group, kind, now)
	raw, err := backoff.Retry(ctx, func() (string, error) {
		return s.llm.Complete(ctx, prompt, turns)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("dispatch: completing %s message: %w", kind, err)
	}

	parsed := agent.Parse(raw)
	msg := hangoutdb.Message{
		Text:      parsed.Message,
		SenderID:  group.ID,
		Timestamp: now,
		Side:      hangoutdb.MessageSideBot,
	}
	if err := s.store.Broadcast(ctx, group, msg); err != nil {
		return err
	}

	// The reply is committed; action failures are isolated and reported, never
	// rolled back.
	outcomes := s.dispatcher.Dispatch(ctx, parsed.Actions, agent.Target{GroupID: group.ID})
	if err := agent.Summary(outcomes); err != nil {
		slog.WarnContext(ctx, "dispatch: actions partially failed",
			"group", group.ID, "kind", kind, "error", err)
	}
	return nil
}
