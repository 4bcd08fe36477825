// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package sync keeps a client's in-memory view of groups, chats and messages
// consistent with the remote document store. It owns the mapping between
// active change listeners and local caches and reconciles each change batch
// exactly once.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

// ChangeKind is the kind of a document change in a batch.
type ChangeKind int

const (
	// DocumentAdded indicates a document newly matching the subscription.
	DocumentAdded ChangeKind = iota
	// DocumentModified indicates an existing document whose fields changed.
	DocumentModified
	// DocumentRemoved indicates a document that no longer matches.
	DocumentRemoved
)

// Change is one document change within a batch.
type Change struct {
	// Kind is the kind of change.
	Kind ChangeKind

	// ID is the document ID.
	ID string

	// Decode unmarshals the changed document into v. Nil for removals.
	Decode func(v any) error
}

// Batch is an ordered set of changes delivered together by the store.
type Batch []Change

// CancelFunc tears down a listener. After the owning registration is
// released, any callback still in flight is discarded.
type CancelFunc func()

// Query narrows a collection subscription to matching documents.
type Query struct {
	// Field is the document field to filter on.
	Field string

	// Op is the comparison operator, e.g. "==" or "array-contains".
	Op string

	// Value is the operand.
	Value any
}

// Watcher is the document store's change-notification surface.
type Watcher interface {
	// Watch subscribes to a collection path, delivering each change batch to
	// the callback until the returned CancelFunc is called or ctx ends.
	Watch(ctx context.Context, path string, q *Query, deliver func(Batch)) (CancelFunc, error)
}

// Markers persists per-user last-read positions, from which unread counts are
// derived.
type Markers interface {
	// LastRead returns the user's last-read timestamp for a chat or group.
	// The zero time means nothing has been read.
	LastRead(ctx context.Context, userID string, entityID string) (time.Time, error)

	// SetLastRead persists the user's last-read timestamp.
	SetLastRead(ctx context.Context, userID string, entityID string, at time.Time) error
}

// registration maps one collection interest to its cancellation capability.
// live is guarded by the engine mutex; a callback arriving after teardown
// sees live == false and becomes a no-op.
type registration struct {
	live   bool
	cancel CancelFunc
}

type chatState struct {
	chat     hangoutdb.Chat
	messages []hangoutdb.Message
}

// NewEngine returns an Engine for one signed-in user. Close must be called
// when the session ends or every listener it opened leaks.
func NewEngine(watcher Watcher, markers Markers, userID string) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		watcher:   watcher,
		markers:   markers,
		userID:    userID,
		ctx:       ctx,
		cancelCtx: cancel,
		regs:      map[string]*registration{},
		groups:    map[string]hangoutdb.Group{},
		chats:     map[string]*chatState{},
	}
}

// Engine owns the local entity caches and the registry of active listeners.
// All cache mutations are serialized through one mutex, so two change batches
// for the same collection never interleave.
type Engine struct {
	watcher Watcher
	markers Markers
	userID  string

	ctx       context.Context
	cancelCtx context.CancelFunc

	mu     sync.Mutex
	regs   map[string]*registration
	groups map[string]hangoutdb.Group
	chats  map[string]*chatState
}

// SubscribeGroups begins streaming the groups the user subscribes to.
// Re-subscribing replaces the previous registration rather than stacking a
// second one.
func (e *Engine) SubscribeGroups() error {
	q := &Query{Field: "subscriberIds", Op: "array-contains", Value: e.userID}
	return e.subscribe("groups", q, e.applyGroups)
}

// SubscribeChats begins streaming the user's chats. Each synced chat gets its
// own nested message subscription, torn down when the chat is removed.
func (e *Engine) SubscribeChats() error {
	return e.subscribe(e.chatsPath(), nil, e.applyChats)
}

func (e *Engine) chatsPath() string {
	return "users/" + e.userID + "/chats"
}

func (e *Engine) messagesPath(chatID string) string {
	return e.chatsPath() + "/" + chatID + "/messages"
}

// subscribe registers exactly one listener for the path. An existing
// registration for the same path is cancelled first so a change batch is
// never reconciled twice. The apply callback runs under the engine mutex and
// returns followup work (nested subscribe/unsubscribe) to run outside it.
func (e *Engine) subscribe(path string, q *Query, apply func(Batch) []func()) error {
	e.mu.Lock()
	prior := e.regs[path]
	if prior != nil {
		prior.live = false
	}
	reg := &registration{live: true}
	e.regs[path] = reg
	e.mu.Unlock()
	if prior != nil && prior.cancel != nil {
		prior.cancel()
	}

	cancel, err := e.watcher.Watch(e.ctx, path, q, func(b Batch) {
		e.mu.Lock()
		if !reg.live {
			e.mu.Unlock()
			return
		}
		followups := apply(b)
		e.mu.Unlock()
		for _, f := range followups {
			f()
		}
	})
	if err != nil {
		e.mu.Lock()
		if e.regs[path] == reg {
			delete(e.regs, path)
		}
		e.mu.Unlock()
		return fmt.Errorf("sync: watching %s: %w", path, err)
	}

	e.mu.Lock()
	if !reg.live {
		// Torn down while the watch was starting.
		e.mu.Unlock()
		cancel()
		return nil
	}
	reg.cancel = cancel
	e.mu.Unlock()
	return nil
}

// Unsubscribe releases the registration for a collection path. When it
// returns, no further batch for that registration mutates local state.
func (e *Engine) Unsubscribe(path string) {
	e.mu.Lock()
	reg := e.regs[path]
	if reg != nil {
		reg.live = false
		delete(e.regs, path)
	}
	e.mu.Unlock()
	if reg != nil && reg.cancel != nil {
		reg.cancel()
	}
}

// Close tears down every active registration and stops the engine.
func (e *Engine) Close() {
	e.cancelCtx()
	e.mu.Lock()
	regs := make([]*registration, 0, len(e.regs))
	for path, reg := range e.regs {
		reg.live = false
		regs = append(regs, reg)
		delete(e.regs, path)
	}
	e.mu.Unlock()
	for _, reg := range regs {
		if reg.cancel != nil {
			reg.cancel()
		}
	}
}

// applyGroups reconciles a group change batch: added, then modified, then
// removed.
func (e *Engine) applyGroups(b Batch) []func() {
	for _, c := range b {
		if c.Kind != DocumentAdded {
			continue
		}
		if _, ok := e.groups[c.ID]; ok {
			continue
		}
		var group hangoutdb.Group
		if err := c.Decode(&group); err != nil {
			slog.Error("sync: decoding added group", "id", c.ID, "error", err)
			continue
		}
		e.groups[c.ID] = group
	}
	for _, c := range b {
		if c.Kind != DocumentModified {
			continue
		}
		if _, ok := e.groups[c.ID]; !ok {
			continue
		}
		var group hangoutdb.Group
		if err := c.Decode(&group); err != nil {
			slog.Error("sync: decoding modified group", "id", c.ID, "error", err)
			continue
		}
		e.groups[c.ID] = group
	}
	for _, c := range b {
		if c.Kind == DocumentRemoved {
			delete(e.groups, c.ID)
		}
	}
	return nil
}

// applyChats reconciles a chat change batch in the fixed order added,
// modified, removed. A modified chat keeps its locally-held message sequence:
// messages arrive on their own nested stream and must not be clobbered by a
// parent-document update.
func (e *Engine) applyChats(b Batch) []func() {
	var followups []func()
	for _, c := range b {
		if c.Kind != DocumentAdded {
			continue
		}
		if _, ok := e.chats[c.ID]; ok {
			continue
		}
		var chat hangoutdb.Chat
		if err := c.Decode(&chat); err != nil {
			slog.Error("sync: decoding added chat", "id", c.ID, "error", err)
			continue
		}
		e.chats[c.ID] = &chatState{chat: chat}
		path := e.messagesPath(c.ID)
		apply := e.applyMessages(c.ID)
		followups = append(followups, func() {
			if err := e.subscribe(path, nil, apply); err != nil {
				slog.Error("sync: subscribing chat messages", "path", path, "error", err)
			}
		})
	}
	for _, c := range b {
		if c.Kind != DocumentModified {
			continue
		}
		st, ok := e.chats[c.ID]
		if !ok {
			continue
		}
		var chat hangoutdb.Chat
		if err := c.Decode(&chat); err != nil {
			slog.Error("sync: decoding modified chat", "id", c.ID, "error", err)
			continue
		}
		st.chat = chat
	}
	for _, c := range b {
		if c.Kind != DocumentRemoved {
			continue
		}
		if _, ok := e.chats[c.ID]; !ok {
			continue
		}
		delete(e.chats, c.ID)
		path := e.messagesPath(c.ID)
		followups = append(followups, func() {
			e.Unsubscribe(path)
		})
	}
	return followups
}

// applyMessages reconciles one chat's message stream. Messages are append-only
// and kept ordered by timestamp.
func (e *Engine) applyMessages(chatID string) func(Batch) []func() {
	return func(b Batch) []func() {
		st, ok := e.chats[chatID]
		if !ok {
			return nil
		}
		changed := false
		for _, c := range b {
			switch c.Kind {
			case DocumentAdded:
				if slices.ContainsFunc(st.messages, func(m hangoutdb.Message) bool { return m.ID == c.ID }) {
					continue
				}
				var msg hangoutdb.Message
				if err := c.Decode(&msg); err != nil {
					slog.Error("sync: decoding added message", "id", c.ID, "error", err)
					continue
				}
				st.messages = append(st.messages, msg)
				changed = true
			case DocumentModified:
				var msg hangoutdb.Message
				if err := c.Decode(&msg); err != nil {
					slog.Error("sync: decoding modified message", "id", c.ID, "error", err)
					continue
				}
				for i := range st.messages {
					if st.messages[i].ID == c.ID {
						st.messages[i] = msg
						break
					}
				}
			case DocumentRemoved:
				st.messages = slices.DeleteFunc(st.messages, func(m hangoutdb.Message) bool { return m.ID == c.ID })
			}
		}
		if changed {
			slices.SortStableFunc(st.messages, func(a, b hangoutdb.Message) int {
				return a.Timestamp.Compare(b.Timestamp)
			})
		}
		return nil
	}
}

// Groups returns a snapshot of the synced groups.
func (e *Engine) Groups() []hangoutdb.Group {
	e.mu.Lock()
	defer e.mu.Unlock()
	groups := make([]hangoutdb.Group, 0, len(e.groups))
	for _, g := range e.groups {
		groups = append(groups, g)
	}
	return groups
}

// Chat returns the synced chat with the given ID.
func (e *Engine) Chat(chatID string) (hangoutdb.Chat, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.chats[chatID]
	if !ok {
		return hangoutdb.Chat{}, false
	}
	return st.chat, true
}

// Messages returns a snapshot of a chat's message sequence.
func (e *Engine) Messages(chatID string) []hangoutdb.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.chats[chatID]
	if !ok {
		return nil
	}
	return slices.Clone(st.messages)
}

// UnreadChat returns the number of unread messages in a chat: messages
// strictly after the persisted last-read marker, excluding the viewer's own
// and ones carrying only a structured payload.
func (e *Engine) UnreadChat(ctx context.Context, chatID string) (int, error) {
	lastRead, err := e.markers.LastRead(ctx, e.userID, chatID)
	if err != nil {
		return 0, fmt.Errorf("sync: reading chat marker: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.chats[chatID]
	if !ok {
		return 0, nil
	}
	count := 0
	for _, msg := range st.messages {
		if !msg.Timestamp.After(lastRead) {
			continue
		}
		if msg.SenderID == e.userID {
			continue
		}
		if msg.Text == "" && msg.Event != nil {
			continue
		}
		count++
	}
	return count, nil
}

// UnreadGroup returns the number of messages after the group's last-read
// marker in the viewer's chat with that group.
func (e *Engine) UnreadGroup(ctx context.Context, groupID string) (int, error) {
	lastRead, err := e.markers.LastRead(ctx, e.userID, groupID)
	if err != nil {
		return 0, fmt.Errorf("sync: reading group marker: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range e.chats {
		if st.chat.GroupID != groupID {
			continue
		}
		count := 0
		for _, msg := range st.messages {
			if msg.Timestamp.After(lastRead) {
				count++
			}
		}
		return count, nil
	}
	return 0, nil
}

// MarkRead moves the last-read marker for a chat or group to the given time.
func (e *Engine) MarkRead(ctx context.Context, entityID string, at time.Time) error {
	if err := e.markers.SetLastRead(ctx, e.userID, entityID, at); err != nil {
		return fmt.Errorf("sync: setting marker: %w", err)
	}
	return nil
}
