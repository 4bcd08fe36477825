// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package groups

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/curioswitch/go-usegcp/middleware/firebaseauth"

	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

// Store is the document store surface the group lifecycle needs.
type Store interface {
	CreateGroup(ctx context.Context, group *hangoutdb.Group) error
	AddSubscriber(ctx context.Context, groupID string, userID string) error
	RemoveSubscriber(ctx context.Context, groupID string, userID string) error
	DeleteGroup(ctx context.Context, groupID string, requesterID string) error
}

// NewHandler returns a Handler.
func NewHandler(store Store) *Handler {
	return &Handler{
		store: store,
	}
}

// Handler manages the group lifecycle: create, subscribe, leave, delete.
type Handler struct {
	store Store
}

type createRequest struct {
	Name           string                    `json:"name"`
	Members        []string                  `json:"members"`
	Schedules      hangoutdb.Schedules       `json:"schedules"`
	PlanningWindow *hangoutdb.PlanningWindow `json:"planningWindow"`
}

type createResponse struct {
	GroupID string `json:"groupId"`
}

// Create handles POST /api/groups/create.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := firebaseauth.TokenFromContext(ctx).UID

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	group := hangoutdb.Group{
		Name:           req.Name,
		SubscriberIDs:  req.Members,
		Schedules:      req.Schedules,
		CreatorID:      userID,
		PlanningWindow: req.PlanningWindow,
	}
	if err := h.store.CreateGroup(ctx, &group); err != nil {
		slog.ErrorContext(ctx, "groups: creating group", "error", err)
		http.Error(w, "failed to create group", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(createResponse{GroupID: group.ID}); err != nil {
		slog.ErrorContext(ctx, "groups: encoding response", "error", err)
	}
}

type groupRequest struct {
	GroupID string `json:"groupId"`
}

func decodeGroupRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GroupID == "" {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return "", false
	}
	return req.GroupID, true
}

// Subscribe handles POST /api/groups/subscribe.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := firebaseauth.TokenFromContext(ctx).UID
	groupID, ok := decodeGroupRequest(w, r)
	if !ok {
		return
	}
	if err := h.store.AddSubscriber(ctx, groupID, userID); err != nil {
		slog.ErrorContext(ctx, "groups: adding subscriber", "group", groupID, "error", err)
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Leave handles POST /api/groups/leave. The group survives; only the leaving
// user's membership is removed.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := firebaseauth.TokenFromContext(ctx).UID
	groupID, ok := decodeGroupRequest(w, r)
	if !ok {
		return
	}
	if err := h.store.RemoveSubscriber(ctx, groupID, userID); err != nil {
		slog.ErrorContext(ctx, "groups: removing subscriber", "group", groupID, "error", err)
		http.Error(w, "failed to leave", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Delete handles POST /api/groups/delete. Creator-only; cascades to every
// subscriber's chat.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := firebaseauth.TokenFromContext(ctx).UID
	groupID, ok := decodeGroupRequest(w, r)
	if !ok {
		return
	}
	err := h.store.DeleteGroup(ctx, groupID, userID)
	if errors.Is(err, hangoutdb.ErrNotCreator) {
		http.Error(w, "only the creator can delete a group", http.StatusForbidden)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "groups: deleting group", "group", groupID, "error", err)
		http.Error(w, "failed to delete", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
