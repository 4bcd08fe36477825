// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package tick

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/dispatch"
)

// NewHandler returns a Handler.
func NewHandler(scheduler *dispatch.Scheduler) *Handler {
	return &Handler{
		scheduler: scheduler,
	}
}

// Handler runs one scheduler tick. It is mounted under /internal/ and invoked
// by the external minute-interval trigger; nothing is assumed about missed
// ticks, and a duplicate invocation is safe because each due occurrence is
// claimed before generation.
type Handler struct {
	scheduler *dispatch.Scheduler
}

// Tick handles POST /internal/tick.
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.scheduler.Tick(ctx, time.Now()); err != nil {
		slog.ErrorContext(ctx, "tick: running scheduler tick", "error", err)
		http.Error(w, "tick failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
