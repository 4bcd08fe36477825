// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"reflect"
	"testing"
)

func TestParseNoMarkers(t *testing.T) {
	raw := "garbage with no markers"
	parsed := Parse(raw)
	if parsed.Message != raw {
		t.Errorf("Message = %q, want %q", parsed.Message, raw)
	}
	if len(parsed.Actions) != 0 {
		t.Errorf("Actions = %v, want none", parsed.Actions)
	}
}

func TestParseMalformedMarkers(t *testing.T) {
	raw := "<response>never closed"
	parsed := Parse(raw)
	if parsed.Message != raw {
		t.Errorf("Message = %q, want %q", parsed.Message, raw)
	}
	if len(parsed.Actions) != 0 {
		t.Errorf("Actions = %v, want none", parsed.Actions)
	}
}

func TestParseReplyWithNotify(t *testing.T) {
	parsed := Parse("<response>Hi!</response> [action: notify args={user: bob}]")
	if parsed.Message != "Hi!" {
		t.Errorf("Message = %q, want %q", parsed.Message, "Hi!")
	}
	if len(parsed.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(parsed.Actions))
	}
	action, ok := parsed.Actions[0].(NotifyUser)
	if !ok {
		t.Fatalf("action type = %T, want NotifyUser", parsed.Actions[0])
	}
	if action.Name() != "notify" {
		t.Errorf("Name() = %q, want %q", action.Name(), "notify")
	}
	if action.User != "bob" {
		t.Errorf("User = %q, want %q", action.User, "bob")
	}
}

func TestParsePreservesActionOrder(t *testing.T) {
	raw := `<response>Making a group for the beach trip.</response>
[action: create_group args={name: Beach Day, members: alice; bob}]
[action: notify args={user: alice, message: You were added to Beach Day}]
[action: send_event_card args={activity: Beach volleyball, location: North Ave Beach, date: 2026-09-05, time: 2pm, attendees: alice; bob}]`
	parsed := Parse(raw)
	if parsed.Message != "Making a group for the beach trip." {
		t.Errorf("unexpected message %q", parsed.Message)
	}
	if len(parsed.Actions) != 3 {
		t.Fatalf("got %d actions, want 3", len(parsed.Actions))
	}

	create, ok := parsed.Actions[0].(CreateGroup)
	if !ok {
		t.Fatalf("first action type = %T, want CreateGroup", parsed.Actions[0])
	}
	want := CreateGroup{GroupName: "Beach Day", Members: []string{"alice", "bob"}}
	if !reflect.DeepEqual(create, want) {
		t.Errorf("first action = %+v, want %+v", create, want)
	}

	if _, ok := parsed.Actions[1].(NotifyUser); !ok {
		t.Fatalf("second action type = %T, want NotifyUser", parsed.Actions[1])
	}

	card, ok := parsed.Actions[2].(SendEventCard)
	if !ok {
		t.Fatalf("third action type = %T, want SendEventCard", parsed.Actions[2])
	}
	wantCard := SendEventCard{
		Activity:  "Beach volleyball",
		Location:  "North Ave Beach",
		Date:      "2026-09-05",
		Time:      "2pm",
		Attendees: []string{"alice", "bob"},
	}
	if !reflect.DeepEqual(card, wantCard) {
		t.Errorf("third action = %+v, want %+v", card, wantCard)
	}
}

func TestParseUnknownAction(t *testing.T) {
	parsed := Parse("<response>Done.</response> [action: reverse_time args={to: yesterday}]")
	unknown, ok := parsed.Actions[0].(Unknown)
	if !ok {
		t.Fatalf("action type = %T, want Unknown", parsed.Actions[0])
	}
	if unknown.Name() != "reverse_time" {
		t.Errorf("Name() = %q, want %q", unknown.Name(), "reverse_time")
	}
	if unknown.Args["to"] != "yesterday" {
		t.Errorf("Args = %v, want to=yesterday", unknown.Args)
	}
}

func TestParseActionWithoutArgs(t *testing.T) {
	parsed := Parse("<response>Done.</response> [action: notify]")
	if len(parsed.Actions) != 1 {
		t.Fatalf("got %d actions, want 1", len(parsed.Actions))
	}
	action, ok := parsed.Actions[0].(NotifyUser)
	if !ok {
		t.Fatalf("action type = %T, want NotifyUser", parsed.Actions[0])
	}
	if action.User != "" || action.Message != "" {
		t.Errorf("expected empty fields, got %+v", action)
	}
}

func TestParseTrimsReply(t *testing.T) {
	parsed := Parse("<response>\n  How about Saturday?  \n</response>")
	if parsed.Message != "How about Saturday?" {
		t.Errorf("Message = %q, want trimmed reply", parsed.Message)
	}
}
