// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownAction indicates a directive named a function the dispatcher does
// not implement.
var ErrUnknownAction = errors.New("agent: unknown action")

// Effects are the side-effecting collaborators actions execute against.
type Effects interface {
	// SendEventCard broadcasts a structured event card to the group.
	SendEventCard(ctx context.Context, groupID string, card SendEventCard) error

	// CreateGroup creates a new group owned by the given user.
	CreateGroup(ctx context.Context, creatorID string, name string, members []string) error

	// NotifyUser sends a one-off message to a single user's chat.
	NotifyUser(ctx context.Context, groupID string, userID string, message string) error
}

// Target identifies the group and acting user a batch of actions runs for.
type Target struct {
	// GroupID is the agent instance the response belongs to.
	GroupID string

	// UserID is the user whose message triggered the response, empty for
	// scheduled agent-initiated responses.
	UserID string
}

// Outcome is the result of dispatching one action.
type Outcome struct {
	// Action is the dispatched action.
	Action Action

	// Err is the action's failure, nil on success.
	Err error
}

// NewDispatcher returns a Dispatcher executing against the given effects.
func NewDispatcher(effects Effects) *Dispatcher {
	return &Dispatcher{
		effects: effects,
	}
}

// Dispatcher executes parsed actions. Each action runs independently: a
// failure is logged and recorded but never stops the remaining actions, since
// the user-facing reply has typically already been committed and must not be
// rolled back for a side-effect failure. No action is retried.
type Dispatcher struct {
	effects Effects
}

// Dispatch executes the actions in order and returns one outcome per action.
func (d *Dispatcher) Dispatch(ctx context.Context, actions []Action, target Target) []Outcome {
	outcomes := make([]Outcome, len(actions))
	for i, action := range actions {
		err := d.dispatch(ctx, action, target)
		if err != nil {
			slog.ErrorContext(ctx, "agent: dispatching action",
				"action", action.Name(), "group", target.GroupID, "error", err)
		}
		outcomes[i] = Outcome{Action: action, Err: err}
	}
	return outcomes
}

func (d *Dispatcher) dispatch(ctx context.Context, action Action, target Target) error {
	switch a := action.(type) {
	case SendEventCard:
		return d.effects.SendEventCard(ctx, target.GroupID, a)
	case CreateGroup:
		return d.effects.CreateGroup(ctx, target.UserID, a.GroupName, a.Members)
	case NotifyUser:
		return d.effects.NotifyUser(ctx, target.GroupID, a.User, a.Message)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action.Name())
	}
}

// Summary folds outcomes into a single error for callers that surface an
// aggregate failure, nil when every action succeeded.
func Summary(outcomes []Outcome) error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Action.Name(), o.Err))
		}
	}
	return errors.Join(errs...)
}
