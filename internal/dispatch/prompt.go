// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tareksakakini/hangout-agent-sub000/internal/agent"
	"github.com/tareksakakini/hangout-agent-sub000/internal/hangoutdb"
)

const responseContract = `
Format your output exactly as follows. Wrap the message for the subscribers in
<response></response> markers. After the closing marker you may emit structured
directives, one per line, of the form:

[action: send_event_card args={activity: Bowling, location: Lucky Strike, date: 2026-09-05, time: 7pm, attendees: alice; bob}]
[action: notify args={user: alice, message: See you Saturday}]

Argument values are plain strings. Separate list elements with semicolons.
Everything you want the subscribers to read must be inside the markers.
`

func systemPrompt(group hangoutdb.Group, kind hangoutdb.ScheduleKind, now time.Time) string {
	intro := fmt.Sprintf(`You are the hangout agent for the group %q. You chat with each
subscriber individually and coordinate a group hangout. Today is %s.
The subscribers are %v.`, group.Name, now.Format("Monday, January 2, 2006"), group.SubscriberIDs)

	if w := group.PlanningWindow; w != nil {
		intro += fmt.Sprintf("\nThe hangout should happen between %s and %s.", w.StartDate, w.EndDate)
	}

	var task string
	switch kind {
	case hangoutdb.ScheduleKindAvailability:
		task = `Ask every subscriber which days and times they are free during the
planning window. Keep it short and friendly.`
	case hangoutdb.ScheduleKindSuggestions:
		task = `Based on the availability each subscriber shared, suggest two or three
concrete hangout options (activity, place, date, time). If availability is
still missing, ask for it first. Attach an event card directive for each
concrete suggestion.`
	case hangoutdb.ScheduleKindFinalPlan:
		task = `Announce the final plan: pick the option that works for the most
subscribers, state the activity, place, date, time and who is expected, and
attach a single event card directive for it.`
	}

	return intro + "\n\n" + task + "\n" + responseContract
}

const replyPrompt = `You are the hangout agent for the group %q. You are chatting with
subscriber %q. Answer their latest message helpfully and keep the group's plan
moving. The subscribers are %v.
` + responseContract

// ReplyPrompt is the system prompt for answering a single subscriber's
// message.
func ReplyPrompt(group hangoutdb.Group, userID string) string {
	return fmt.Sprintf(replyPrompt, group.Name, userID, group.SubscriberIDs)
}

type conversationContext struct {
	UserID   string              `json:"userId"`
	Messages []hangoutdb.Message `json:"messages"`
}

// contextTurns packs every subscriber's conversation into a single user turn
// of structured JSON, the shape the generation prompts expect.
func contextTurns(group hangoutdb.Group, history map[string][]hangoutdb.Message) ([]agent.Turn, error) {
	conversations := make([]conversationContext, 0, len(group.SubscriberIDs))
	for _, userID := range group.SubscriberIDs {
		conversations = append(conversations, conversationContext{
			UserID:   userID,
			Messages: history[userID],
		})
	}
	contextJSON, err := json.Marshal(conversations)
	if err != nil {
		return nil, fmt.Errorf("dispatch: marshaling conversation context: %w", err)
	}
	return []agent.Turn{
		{
			Role:    agent.RoleUser,
			Content: "The conversations so far, as JSON:\n" + string(contextJSON),
		},
	}, nil
}

// HistoryTurns converts one chat's messages into model turns, oldest first.
func HistoryTurns(messages []hangoutdb.Message) []agent.Turn {
	turns := make([]agent.Turn, 0, len(messages))
	for _, msg := range messages {
		role := agent.RoleUser
		if msg.Side == hangoutdb.MessageSideBot {
			role = agent.RoleAssistant
		}
		text := msg.Text
		if text == "" && msg.Event != nil {
			cardJSON, err := json.Marshal(msg.Event)
			if err != nil {
				continue
			}
			text = "[event card] " + string(cardJSON)
		}
		turns = append(turns, agent.Turn{Role: role, Content: text})
	}
	return turns
}
