// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package sendmessage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

type fakeStore struct {
	mu       sync.Mutex
	group    hangoutdb.Group
	appended []hangoutdb.Message
	done     chan struct{}
}

func (f *fakeStore) Group(context.Context, string) (*hangoutdb.Group, error) {
	return &f.group, nil
}

func (f *fakeStore) EnsureChat(_ context.Context, userID string, groupID string) (*hangoutdb.Chat, error) {
	return &hangoutdb.Chat{ID: "c1", UserID: userID, GroupID: groupID}, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, _ string, _ string, msg hangoutdb.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, msg)
	if msg.Side == hangoutdb.MessageSideBot && f.done != nil {
		close(f.done)
	}
	return nil
}

func (f *fakeStore) ChatMessages(context.Context, string, string) ([]hangoutdb.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hangoutdb.Message(nil), f.appended...), nil
}

func (f *fakeStore) messages() []hangoutdb.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hangoutdb.Message(nil), f.appended...)
}

type fakeLLM struct {
	response string
	err      error
	called   chan struct{}
}

func (f *fakeLLM) Complete(context.Context, string, []agent.Turn) (string, error) {
	if f.called != nil {
		select {
		case <-f.called:
		default:
			close(f.called)
		}
	}
	return f.response, f.err
}

type noopEffects struct{}

func (noopEffects) SendEventCard(context.Context, string, agent.SendEventCard) error { return nil }
func (noopEffects) CreateGroup(context.Context, string, string, []string) error      { return nil }
func (noopEffects) NotifyUser(context.Context, string, string, string) error         { return nil }

func TestSendAppendsUserMessageAndReply(t *testing.T) {
	store := &fakeStore{
		group: hangoutdb.Group{ID: "g1", Name: "Beach Day", SubscriberIDs: []string{"alice"}},
		done:  make(chan struct{}),
	}
	llm := &fakeLLM{response: "<response>Sounds fun!</response>"}
	h := NewHandler(store, llm, agent.NewDispatcher(noopEffects{}))

	chatID, messageID, err := h.send(t.Context(), "alice", "g1", "beach this weekend?")
	if err != nil {
		t.Fatal(err)
	}
	if chatID != "c1" || messageID == "" {
		t.Errorf("chatID = %q, messageID = %q", chatID, messageID)
	}

	select {
	case <-store.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
	msgs := store.messages()
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want user + bot", len(msgs))
	}
	if msgs[0].Side != hangoutdb.MessageSideUser || msgs[0].Text != "beach this weekend?" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Side != hangoutdb.MessageSideBot || msgs[1].Text != "Sounds fun!" {
		t.Errorf("second message = %+v", msgs[1])
	}
}

func TestSendSucceedsWhenReplyFails(t *testing.T) {
	store := &fakeStore{
		group: hangoutdb.Group{ID: "g1", SubscriberIDs: []string{"alice"}},
	}
	llm := &fakeLLM{err: errors.New("rate limited"), called: make(chan struct{})}
	h := NewHandler(store, llm, agent.NewDispatcher(noopEffects{}))

	_, _, err := h.send(t.Context(), "alice", "g1", "hello?")
	if err != nil {
		t.Fatalf("send must succeed locally even when the agent fails: %v", err)
	}

	select {
	case <-llm.called:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for llm call")
	}
	msgs := store.messages()
	if len(msgs) != 1 || msgs[0].Side != hangoutdb.MessageSideUser {
		t.Errorf("messages = %+v, want only the user message", msgs)
	}
}
