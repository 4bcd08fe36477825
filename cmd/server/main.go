// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"github.com/curioswitch/go-curiostack/server"
	"github.com/curioswitch/go-usegcp/middleware/firebaseauth"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/config"
	"github.com/tareksakakini/hangout-agent-sub000/internal/dispatch"
	"github.com/tareksakakini/hangout-agent-sub000/internal/handler/groups"
	"github.com/tareksakakini/hangout-agent-sub000/internal/handler/sendmessage"
	"github.com/tareksakakini/hangout-agent-sub000/internal/handler/tick"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

//go:embed conf/*.yaml
var confFiles embed.FS

func main() {
	conf, _ := fs.Sub(confFiles, "conf")
	os.Exit(server.Main(&config.Config{}, conf, setupServer))
}

func setupServer(ctx context.Context, conf *config.Config, s *server.Server) error {
	mux := server.Mux(s)

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: conf.Google.Project})
	if err != nil {
		return fmt.Errorf("main: create firebase app: %w", err)
	}

	fbAuth, err := fbApp.Auth(ctx)
	if err != nil {
		return fmt.Errorf("main: create firebase auth client: %w", err)
	}

	firestore, err := fbApp.Firestore(ctx)
	if err != nil {
		return fmt.Errorf("main: create firestore client: %w", err)
	}
	defer func() {
		if err := firestore.Close(); err != nil {
			slog.ErrorContext(ctx, "main: close firestore client", "error", err)
		}
	}()

	var llm agent.Client
	switch conf.Agent.Provider {
	case "gemini":
		genAI, err := genai.NewClient(ctx, &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
			Project: conf.Google.Project,
		})
		if err != nil {
			return fmt.Errorf("main: create genai client: %w", err)
		}
		llm = agent.NewGemini(genAI, conf.Agent.Model)
	default:
		oai := openai.NewClient()
		llm = agent.NewOpenAI(&oai, conf.Agent.Model)
	}

	store := hangoutdb.NewStore(firestore)
	dispatcher := agent.NewDispatcher(dispatch.NewEffects(store))
	scheduler := dispatch.NewScheduler(store, llm, dispatcher)

	fbMW := firebaseauth.NewMiddleware(fbAuth)
	mux.Use(middleware.Maybe(fbMW, func(r *http.Request) bool {
		return !strings.HasPrefix(r.URL.Path, "/internal/")
	}))

	groupsHandler := groups.NewHandler(store)
	mux.Post("/api/groups/create", groupsHandler.Create)
	mux.Post("/api/groups/subscribe", groupsHandler.Subscribe)
	mux.Post("/api/groups/leave", groupsHandler.Leave)
	mux.Post("/api/groups/delete", groupsHandler.Delete)

	sendHandler := sendmessage.NewHandler(store, llm, dispatcher)
	mux.Post("/api/chats/send", sendHandler.SendMessage)

	tickHandler := tick.NewHandler(scheduler)
	mux.Post("/internal/tick", tickHandler.Tick)

	if err := server.Start(ctx, s); err != nil {
		return fmt.Errorf("main: starting server: %w", err)
	}
	return nil
}
