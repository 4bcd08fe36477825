// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package sendmessage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/curioswitch/go-usegcp/middleware/firebaseauth"
	"github.com/google/uuid"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/dispatch"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

// Store is the document store surface message sending needs.
type Store interface {
	Group(ctx context.Context, groupID string) (*hangoutdb.Group, error)
	EnsureChat(ctx context.Context, userID string, groupID string) (*hangoutdb.Chat, error)
	AppendMessage(ctx context.Context, userID string, chatID string, msg hangoutdb.Message) error
	ChatMessages(ctx context.Context, userID string, chatID string) ([]hangoutdb.Message, error)
}

// NewHandler returns a Handler.
func NewHandler(store Store, llm agent.Client, dispatcher *agent.Dispatcher) *Handler {
	return &Handler{
		store:      store,
		llm:        llm,
		dispatcher: dispatcher,
	}
}

// Handler appends a user's message to their chat and triggers the agent's
// reply pipeline. The append always completes before the reply is attempted;
// a reply failure never fails the send.
type Handler struct {
	store      Store
	llm        agent.Client
	dispatcher *agent.Dispatcher
}

type sendRequest struct {
	GroupID string `json:"groupId"`
	Text    string `json:"text"`
}

type sendResponse struct {
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
}

// SendMessage handles POST /api/chats/send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := firebaseauth.TokenFromContext(ctx).UID

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.GroupID == "" || req.Text == "" {
		http.Error(w, "groupId and text are required", http.StatusBadRequest)
		return
	}

	chatID, messageID, err := h.send(ctx, userID, req.GroupID, req.Text)
	if err != nil {
		slog.ErrorContext(ctx, "sendmessage: appending user message", "error", err)
		http.Error(w, "failed to send message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(sendResponse{ChatID: chatID, MessageID: messageID}); err != nil {
		slog.ErrorContext(ctx, "sendmessage: encoding response", "error", err)
	}
}

// send commits the user's message and starts reply generation in the
// background. It returns as soon as the message is durable so the client
// never blocks on the agent.
func (h *Handler) send(ctx context.Context, userID string, groupID string, text string) (string, string, error) {
	chat, err := h.store.EnsureChat(ctx, userID, groupID)
	if err != nil {
		return "", "", err
	}
	msg := hangoutdb.Message{
		ID:        uuid.NewString(),
		Text:      text,
		SenderID:  userID,
		Timestamp: time.Now(),
		Side:      hangoutdb.MessageSideUser,
	}
	if err := h.store.AppendMessage(ctx, userID, chat.ID, msg); err != nil {
		return "", "", err
	}

	replyCtx := context.WithoutCancel(ctx)
	go func() {
		if err := h.reply(replyCtx, userID, chat); err != nil {
			slog.ErrorContext(replyCtx, "sendmessage: generating reply",
				"chat", chat.ID, "error", err)
		}
	}()
	return chat.ID, msg.ID, nil
}

func (h *Handler) reply(ctx context.Context, userID string, chat *hangoutdb.Chat) error {
	group, err := h.store.Group(ctx, chat.GroupID)
	if err != nil {
		return err
	}
	messages, err := h.store.ChatMessages(ctx, userID, chat.ID)
	if err != nil {
		return err
	}

	prompt := dispatch.ReplyPrompt(*group, userID)
	raw, err := backoff.Retry(ctx, func() (string, error) {
		return h.llm.Complete(ctx, prompt, dispatch.HistoryTurns(messages))
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		return fmt.Errorf("sendmessage: completing reply: %w", err)
	}

	parsed := agent.Parse(raw)
	botMsg := hangoutdb.Message{
		ID:        uuid.NewString(),
		Text:      parsed.Message,
		SenderID:  group.ID,
		Timestamp: time.Now(),
		Side:      hangoutdb.MessageSideBot,
	}
	if err := h.store.AppendMessage(ctx, userID, chat.ID, botMsg); err != nil {
		return err
	}

	outcomes := h.dispatcher.Dispatch(ctx, parsed.Actions, agent.Target{GroupID: group.ID, UserID: userID})
	if err := agent.Summary(outcomes); err != nil {
		slog.WarnContext(ctx, "sendmessage: actions partially failed",
			"chat", chat.ID, "error", err)
	}
	return nil
}
