// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package hangoutdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrAlreadyFired indicates a schedule occurrence was already claimed by a
	// previous tick.
	ErrAlreadyFired = errors.New("hangoutdb: schedule occurrence already fired")

	// ErrNotCreator indicates a user other than the creator attempted a
	// creator-only operation.
	ErrNotCreator = errors.New("hangoutdb: user is not the group creator")
)

// NewStore returns a Store backed by the given Firestore client.
func NewStore(client *firestore.Client) *Store {
	return &Store{
		client: client,
	}
}

// Store provides the document operations of the hangout agent: point reads,
// subscriber set updates, batched multi-chat writes, and fire claims.
type Store struct {
	client *firestore.Client
}

// Group returns the group with the given ID.
func (s *Store) Group(ctx context.Context, groupID string) (*Group, error) {
	doc, err := s.client.Collection("groups").Doc(groupID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("hangoutdb: getting group doc: %w", err)
	}
	var group Group
	if err := doc.DataTo(&group); err != nil {
		return nil, fmt.Errorf("hangoutdb: parsing group doc: %w", err)
	}
	return &group, nil
}

// Groups returns all agent instances.
func (s *Store) Groups(ctx context.Context) ([]Group, error) {
	var groups []Group
	docs := s.client.Collection("groups").Documents(ctx)
	defer docs.Stop()
	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("hangoutdb: iterating group docs: %w", err)
		}
		var group Group
		if err := doc.DataTo(&group); err != nil {
			return nil, fmt.Errorf("hangoutdb: parsing group doc: %w", err)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// CreateGroup stores a new group, assigning it an ID if unset. The creator is
// always a subscriber.
func (s *Store) CreateGroup(ctx context.Context, group *Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now()
	}
	found := false
	for _, id := range group.SubscriberIDs {
		if id == group.CreatorID {
			found = true
			break
		}
	}
	if !found {
		group.SubscriberIDs = append(group.SubscriberIDs, group.CreatorID)
	}
	if _, err := s.client.Collection("groups").Doc(group.ID).Set(ctx, group); err != nil {
		return fmt.Errorf("hangoutdb: creating group doc: %w", err)
	}
	return nil
}

// AddSubscriber adds a user to a group's subscriber set.
func (s *Store) AddSubscriber(ctx context.Context, groupID string, userID string) error {
	_, err := s.client.Collection("groups").Doc(groupID).Update(ctx, []firestore.Update{
		{Path: "subscriberIds", Value: firestore.ArrayUnion(userID)},
	})
	if err != nil {
		return fmt.Errorf("hangoutdb: adding subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber removes a user from a group's subscriber set. The group
// itself survives; only deletion by the creator removes it.
func (s *Store) RemoveSubscriber(ctx context.Context, groupID string, userID string) error {
	_, err := s.client.Collection("groups").Doc(groupID).Update(ctx, []firestore.Update{
		{Path: "subscriberIds", Value: firestore.ArrayRemove(userID)},
	})
	if err != nil {
		return fmt.Errorf("hangoutdb: removing subscriber: %w", err)
	}
	return nil
}

// DeleteGroup deletes a group and cascades to every subscriber's chat, its
// messages, and the group's fire records in a single atomic batch. Only the
// creator may delete.
func (s *Store) DeleteGroup(ctx context.Context, groupID string, requesterID string) error {
	group, err := s.Group(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatorID != requesterID {
		return ErrNotCreator
	}

	batch := s.client.Batch()
	for _, userID := range group.SubscriberIDs {
		chatDoc, err := s.chatForGroup(ctx, userID, groupID)
		if err != nil {
			return err
		}
		if chatDoc == nil {
			continue
		}
		if err := s.deleteAll(ctx, batch, chatDoc.Ref.Collection("messages")); err != nil {
			return err
		}
		batch.Delete(chatDoc.Ref)
	}
	groupRef := s.client.Collection("groups").Doc(groupID)
	if err := s.deleteAll(ctx, batch, groupRef.Collection("fires")); err != nil {
		return err
	}
	batch.Delete(groupRef)
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("hangoutdb: committing group delete: %w", err)
	}
	return nil
}

func (s *Store) deleteAll(ctx context.Context, batch *firestore.WriteBatch, col *firestore.CollectionRef) error {
	docs := col.Documents(ctx)
	defer docs.Stop()
	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("hangoutdb: iterating docs for delete: %w", err)
		}
		batch.Delete(doc.Ref)
	}
}

func (s *Store) chatForGroup(ctx context.Context, userID string, groupID string) (*firestore.DocumentSnapshot, error) {
	chats := s.client.Collection("users").Doc(userID).Collection("chats")
	doc, err := chats.Query.Where("groupId", "==", groupID).Limit(1).Documents(ctx).Next()
	if errors.Is(err, iterator.Done) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hangoutdb: getting chat doc: %w", err)
	}
	return doc, nil
}

// EnsureChat returns the chat between the user and the group, creating it if
// it does not exist yet.
func (s *Store) EnsureChat(ctx context.Context, userID string, groupID string) (*Chat, error) {
	doc, err := s.chatForGroup(ctx, userID, groupID)
	if err != nil {
		return nil, err
	}
	if doc != nil {
		var chat Chat
		if err := doc.DataTo(&chat); err != nil {
			return nil, fmt.Errorf("hangoutdb: parsing chat doc: %w", err)
		}
		return &chat, nil
	}

	now := time.Now()
	chat := Chat{
		ID:        uuid.NewString(),
		UserID:    userID,
		GroupID:   groupID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	chats := s.client.Collection("users").Doc(userID).Collection("chats")
	if _, err := chats.Doc(chat.ID).Set(ctx, chat); err != nil {
		return nil, fmt.Errorf("hangoutdb: creating chat doc: %w", err)
	}
	return &chat, nil
}

// AppendMessage appends a message to a chat and refreshes the chat's
// last-message summary in one batch.
func (s *Store) AppendMessage(ctx context.Context, userID string, chatID string, msg Message) error {
	chatRef := s.client.Collection("users").Doc(userID).Collection("chats").Doc(chatID)
	batch := s.client.Batch()
	batch.Set(chatRef.Collection("messages").Doc(msg.ID), msg)
	batch.Update(chatRef, []firestore.Update{
		{Path: "lastMessage", Value: msg.Text},
		{Path: "lastMessageAt", Value: msg.Timestamp},
		{Path: "updatedAt", Value: msg.Timestamp},
	})
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("hangoutdb: committing message append: %w", err)
	}
	return nil
}

// Broadcast writes an agent message to every subscriber's chat in one atomic
// batch, creating missing chats first. Each copy gets its own message ID.
func (s *Store) Broadcast(ctx context.Context, group Group, msg Message) error {
	chats := make([]*Chat, len(group.SubscriberIDs))
	var grp errgroup.Group
	for i, userID := range group.SubscriberIDs {
		grp.Go(func() error {
			chat, err := s.EnsureChat(ctx, userID, group.ID)
			if err != nil {
				return err
			}
			chats[i] = chat
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return err
	}

	batch := s.client.Batch()
	for _, chat := range chats {
		copied := msg
		copied.ID = uuid.NewString()
		chatRef := s.client.Collection("users").Doc(chat.UserID).Collection("chats").Doc(chat.ID)
		batch.Set(chatRef.Collection("messages").Doc(copied.ID), copied)
		batch.Update(chatRef, []firestore.Update{
			{Path: "lastMessage", Value: copied.Text},
			{Path: "lastMessageAt", Value: copied.Timestamp},
			{Path: "updatedAt", Value: copied.Timestamp},
		})
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("hangoutdb: committing broadcast: %w", err)
	}
	return nil
}

// ChatMessages returns a chat's messages ordered by timestamp.
func (s *Store) ChatMessages(ctx context.Context, userID string, chatID string) ([]Message, error) {
	col := s.client.Collection("users").Doc(userID).Collection("chats").Doc(chatID).Collection("messages")
	docs := col.Query.OrderBy("timestamp", firestore.Asc).Documents(ctx)
	defer docs.Stop()
	var messages []Message
	for {
		doc, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("hangoutdb: iterating message docs: %w", err)
		}
		var msg Message
		if err := doc.DataTo(&msg); err != nil {
			return nil, fmt.Errorf("hangoutdb: parsing message doc: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// History returns every subscriber's conversation with the group's agent,
// keyed by user ID. Subscribers without a chat yet map to an empty history.
func (s *Store) History(ctx context.Context, group Group) (map[string][]Message, error) {
	histories := make([]([]Message), len(group.SubscriberIDs))
	var grp errgroup.Group
	for i, userID := range group.SubscriberIDs {
		grp.Go(func() error {
			doc, err := s.chatForGroup(ctx, userID, group.ID)
			if err != nil || doc == nil {
				return err
			}
			msgs, err := s.ChatMessages(ctx, userID, doc.Ref.ID)
			if err != nil {
				return err
			}
			histories[i] = msgs
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	byUser := make(map[string][]Message, len(group.SubscriberIDs))
	for i, userID := range group.SubscriberIDs {
		byUser[userID] = histories[i]
	}
	return byUser, nil
}

// ClaimFire records that a schedule occurrence is being dispatched. It returns
// ErrAlreadyFired if another tick claimed the same occurrence, making dispatch
// at-most-once even under overlapping or retried triggers.
func (s *Store) ClaimFire(ctx context.Context, groupID string, kind ScheduleKind, fireKey string, at time.Time) error {
	ref := s.client.Collection("groups").Doc(groupID).Collection("fires").Doc(fireKey)
	_, err := ref.Create(ctx, FireRecord{Kind: kind, FiredAt: at})
	if status.Code(err) == codes.AlreadyExists {
		return ErrAlreadyFired
	}
	if err != nil {
		return fmt.Errorf("hangoutdb: claiming fire record: %w", err)
	}
	return nil
}

// LastRead returns the user's last-read marker for a chat or group. A missing
// marker reads as the zero time, meaning everything is unread.
func (s *Store) LastRead(ctx context.Context, userID string, entityID string) (time.Time, error) {
	doc, err := s.client.Collection("users").Doc(userID).Collection("reads").Doc(entityID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("hangoutdb: getting read marker: %w", err)
	}
	var marker ReadMarker
	if err := doc.DataTo(&marker); err != nil {
		return time.Time{}, fmt.Errorf("hangoutdb: parsing read marker: %w", err)
	}
	return marker.LastRead, nil
}

// SetLastRead persists the user's last-read marker for a chat or group.
func (s *Store) SetLastRead(ctx context.Context, userID string, entityID string, at time.Time) error {
	ref := s.client.Collection("users").Doc(userID).Collection("reads").Doc(entityID)
	if _, err := ref.Set(ctx, ReadMarker{LastRead: at}); err != nil {
		return fmt.Errorf("hangoutdb: setting read marker: %w", err)
	}
	return nil
}
