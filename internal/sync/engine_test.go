// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package sync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

type fakeListener struct {
	deliver   func(Batch)
	cancelled bool
}

type fakeWatcher struct {
	mu        sync.Mutex
	listeners map[string][]*fakeListener
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{listeners: map[string][]*fakeListener{}}
}

func (w *fakeWatcher) Watch(_ context.Context, path string, _ *Query, deliver func(Batch)) (CancelFunc, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l := &fakeListener{deliver: deliver}
	w.listeners[path] = append(w.listeners[path], l)
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		l.cancelled = true
	}, nil
}

// send delivers a batch to every live listener on the path, like the store
// notifying each registered subscription.
func (w *fakeWatcher) send(path string, b Batch) {
	w.mu.Lock()
	listeners := append([]*fakeListener(nil), w.listeners[path]...)
	w.mu.Unlock()
	for _, l := range listeners {
		if !l.cancelled {
			l.deliver(b)
		}
	}
}

func (w *fakeWatcher) active(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, l := range w.listeners[path] {
		if !l.cancelled {
			n++
		}
	}
	return n
}

type fakeMarkers struct {
	mu      sync.Mutex
	markers map[string]time.Time
}

func newFakeMarkers() *fakeMarkers {
	return &fakeMarkers{markers: map[string]time.Time{}}
}

func (m *fakeMarkers) LastRead(_ context.Context, userID string, entityID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markers[userID+"/"+entityID], nil
}

func (m *fakeMarkers) SetLastRead(_ context.Context, userID string, entityID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[userID+"/"+entityID] = at
	return nil
}

func chatChange(kind ChangeKind, chat hangoutdb.Chat) Change {
	c := Change{Kind: kind, ID: chat.ID}
	if kind != DocumentRemoved {
		c.Decode = func(v any) error {
			*v.(*hangoutdb.Chat) = chat
			return nil
		}
	}
	return c
}

func messageChange(kind ChangeKind, msg hangoutdb.Message) Change {
	c := Change{Kind: kind, ID: msg.ID}
	if kind != DocumentRemoved {
		c.Decode = func(v any) error {
			*v.(*hangoutdb.Message) = msg
			return nil
		}
	}
	return c
}

func TestModifiedChatPreservesMessages(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	defer e.Close()
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}

	chat := hangoutdb.Chat{ID: "c1", UserID: "alice", GroupID: "g1"}
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, chat)})

	msgPath := "users/alice/chats/c1/messages"
	if got := watcher.active(msgPath); got != 1 {
		t.Fatalf("message listeners = %d, want 1", got)
	}
	now := time.Now()
	watcher.send(msgPath, Batch{
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m1", Text: "hi", Timestamp: now}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m2", Text: "hello", Timestamp: now.Add(time.Second)}),
	})

	chat.LastMessage = "hello"
	watcher.send("users/alice/chats", Batch{chatChange(DocumentModified, chat)})

	got, ok := e.Chat("c1")
	if !ok {
		t.Fatal("chat missing after modify")
	}
	if got.LastMessage != "hello" {
		t.Errorf("LastMessage = %q, want %q", got.LastMessage, "hello")
	}
	msgs := e.Messages("c1")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (parent update must not clobber them)", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("message order = %s, %s, want m1, m2", msgs[0].ID, msgs[1].ID)
	}
}

func TestDuplicateSubscribeReplacesRegistration(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	defer e.Close()

	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}
	if got := watcher.active("users/alice/chats"); got != 1 {
		t.Fatalf("active listeners = %d, want 1", got)
	}

	// A single delivery must reconcile once, not once per subscribe call.
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice"})})
	if got := watcher.active("users/alice/chats/c1/messages"); got != 1 {
		t.Errorf("nested listeners = %d, want 1", got)
	}
}

func TestAddedChatIgnoredWhenPresent(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	defer e.Close()
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}

	chat := hangoutdb.Chat{ID: "c1", UserID: "alice", LastMessage: "first"}
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, chat)})
	watcher.send("users/alice/chats/c1/messages", Batch{
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m1", Text: "hi", Timestamp: time.Now()}),
	})

	// A redundant add for the same ID is dropped, keeping state intact.
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice"})})
	if msgs := e.Messages("c1"); len(msgs) != 1 {
		t.Errorf("messages = %d, want 1", len(msgs))
	}
	got, _ := e.Chat("c1")
	if got.LastMessage != "first" {
		t.Errorf("LastMessage = %q, want %q", got.LastMessage, "first")
	}
}

func TestRemovedChatCancelsNestedSubscription(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	defer e.Close()
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}

	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice"})})
	msgPath := "users/alice/chats/c1/messages"
	if got := watcher.active(msgPath); got != 1 {
		t.Fatalf("nested listeners = %d, want 1", got)
	}

	watcher.send("users/alice/chats", Batch{chatChange(DocumentRemoved, hangoutdb.Chat{ID: "c1"})})
	if got := watcher.active(msgPath); got != 0 {
		t.Errorf("nested listeners after removal = %d, want 0", got)
	}
	if _, ok := e.Chat("c1"); ok {
		t.Error("chat still present after removal")
	}

	// A dangling late batch for the removed chat must be a no-op.
	watcher.send(msgPath, Batch{
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m9", Timestamp: time.Now()}),
	})
	if msgs := e.Messages("c1"); msgs != nil {
		t.Errorf("messages after removal = %v, want none", msgs)
	}
}

func TestNoReconcileAfterClose(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}
	e.Close()

	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice"})})
	if _, ok := e.Chat("c1"); ok {
		t.Error("batch reconciled after Close")
	}
}

func TestMessagesSortedByTimestamp(t *testing.T) {
	watcher := newFakeWatcher()
	e := NewEngine(watcher, newFakeMarkers(), "alice")
	defer e.Close()
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice"})})

	base := time.Now()
	watcher.send("users/alice/chats/c1/messages", Batch{
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m2", Timestamp: base.Add(time.Second)}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m1", Timestamp: base}),
	})
	msgs := e.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("unexpected order: %v", msgs)
	}
}

func TestUnreadChat(t *testing.T) {
	watcher := newFakeWatcher()
	markers := newFakeMarkers()
	e := NewEngine(watcher, markers, "alice")
	defer e.Close()
	if err := e.SubscribeChats(); err != nil {
		t.Fatal(err)
	}
	watcher.send("users/alice/chats", Batch{chatChange(DocumentAdded, hangoutdb.Chat{ID: "c1", UserID: "alice", GroupID: "g1"})})

	t1 := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)
	watcher.send("users/alice/chats/c1/messages", Batch{
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m1", Text: "before marker", SenderID: "g1", Timestamp: t1}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m2", Text: "at marker", SenderID: "g1", Timestamp: t2}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m3", Text: "after marker", SenderID: "g1", Timestamp: t3}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m4", Text: "own message", SenderID: "alice", Timestamp: t3.Add(time.Second)}),
		messageChange(DocumentAdded, hangoutdb.Message{ID: "m5", SenderID: "g1", Timestamp: t3.Add(2 * time.Second), Event: &hangoutdb.EventCard{Activity: "Bowling"}}),
	})

	if err := e.MarkRead(t.Context(), "c1", t2); err != nil {
		t.Fatal(err)
	}

	// Only m3 counts: m1/m2 are at or before the marker, m4 is the viewer's
	// own, m5 carries only a structured payload.
	got, err := e.UnreadChat(t.Context(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("UnreadChat = %d, want 1", got)
	}

	unreadGroup, err := e.UnreadGroup(t.Context(), "g1")
	if err != nil {
		t.Fatal(err)
	}
	if unreadGroup != 5 {
		t.Errorf("UnreadGroup = %d, want 5 (no marker set for group)", unreadGroup)
	}
}
