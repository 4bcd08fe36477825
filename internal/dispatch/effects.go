// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

// EffectsStore is the subset of the document store the action effects write
// through.
type EffectsStore interface {
	Group(ctx context.Context, groupID string) (*hangoutdb.Group, error)
	CreateGroup(ctx context.Context, group *hangoutdb.Group) error
	Broadcast(ctx context.Context, group hangoutdb.Group, msg hangoutdb.Message) error
	EnsureChat(ctx context.Context, userID string, groupID string) (*hangoutdb.Chat, error)
	AppendMessage(ctx context.Context, userID string, chatID string, msg hangoutdb.Message) error
}

// NewEffects returns the store-backed implementation of the agent's action
// effects.
func NewEffects(store EffectsStore) *Effects {
	return &Effects{
		store: store,
	}
}

// Effects executes parsed agent actions against the document store.
type Effects struct {
	store EffectsStore
}

// SendEventCard implements agent.Effects by broadcasting an event-card message
// to every subscriber of the group.
func (e *Effects) SendEventCard(ctx context.Context, groupID string, card agent.SendEventCard) error {
	group, err := e.store.Group(ctx, groupID)
	if err != nil {
		return err
	}
	msg := hangoutdb.Message{
		SenderID:  groupID,
		Timestamp: time.Now(),
		Side:      hangoutdb.MessageSideBot,
		Event: &hangoutdb.EventCard{
			Activity:  card.Activity,
			Location:  card.Location,
			Date:      card.Date,
			Time:      card.Time,
			Attendees: card.Attendees,
		},
	}
	return e.store.Broadcast(ctx, *group, msg)
}

// CreateGroup implements agent.Effects.
func (e *Effects) CreateGroup(ctx context.Context, creatorID string, name string, members []string) error {
	if creatorID == "" {
		return fmt.Errorf("dispatch: create_group requires an acting user") //nolint:err113
	}
	group := hangoutdb.Group{
		Name:          name,
		SubscriberIDs: members,
		CreatorID:     creatorID,
	}
	return e.store.CreateGroup(ctx, &group)
}

// NotifyUser implements agent.Effects by appending a one-off agent message to
// the user's chat with the group.
func (e *Effects) NotifyUser(ctx context.Context, groupID string, userID string, message string) error {
	chat, err := e.store.EnsureChat(ctx, userID, groupID)
	if err != nil {
		return err
	}
	msg := hangoutdb.Message{
		ID:        uuid.NewString(),
		Text:      message,
		SenderID:  groupID,
		Timestamp: time.Now(),
		Side:      hangoutdb.MessageSideBot,
	}
	return e.store.AppendMessage(ctx, userID, chat.ID, msg)
}
