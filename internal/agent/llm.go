// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

// Package agent implements the agent response pipeline: calling the language
// model, parsing its raw completion into a reply plus structured actions, and
// dispatching those actions with per-action failure isolation.
package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser represents a turn written by the user.
	RoleUser Role = "user"
	// RoleAssistant represents a turn written by the agent.
	RoleAssistant Role = "assistant"
)

// Turn is a single entry of the conversation history sent to the model.
type Turn struct {
	// Role is the author of the turn.
	Role Role

	// Content is the text of the turn.
	Content string
}

// Client is the language model collaborator. Latency and rate limit handling
// belong to the caller.
type Client interface {
	// Complete generates the agent's next raw response for the given system
	// prompt and ordered conversation history.
	Complete(ctx context.Context, systemPrompt string, history []Turn) (string, error)
}

// NewOpenAI returns a Client backed by the OpenAI chat completions API.
func NewOpenAI(client *openai.Client, model string) *OpenAI {
	return &OpenAI{
		client: client,
		model:  model,
	}
}

// OpenAI implements Client over the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// Complete implements Client.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range history {
		if turn.Role == RoleAssistant {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	res, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("agent: calling chat completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("agent: unexpected completion result: %v", res) //nolint:err113
	}
	return res.Choices[0].Message.Content, nil
}

// NewGemini returns a Client backed by the Gemini generate content API.
func NewGemini(client *genai.Client, model string) *Gemini {
	return &Gemini{
		client: client,
		model:  model,
	}
}

// Gemini implements Client over the Gemini generate content API.
type Gemini struct {
	client *genai.Client
	model  string
}

// Complete implements Client.
func (g *Gemini) Complete(ctx context.Context, systemPrompt string, history []Turn) (string, error) {
	content := make([]*genai.Content, len(history))
	for i, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		content[i] = genai.NewContentFromText(turn.Content, role)
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, content, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleModel),
	})
	if err != nil {
		return "", fmt.Errorf("agent: calling GenerateContent: %w", err)
	}
	if len(res.Candidates) != 1 || len(res.Candidates[0].Content.Parts) != 1 || res.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("agent: unexpected generation result: %v", res) //nolint:err113
	}
	return res.Candidates[0].Content.Parts[0].Text, nil
}
