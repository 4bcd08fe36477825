// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"regexp"
	"strings"
)

// Action is a structured directive embedded in an agent's raw response,
// distinct from its human-readable reply.
type Action interface {
	// Name is the function identifier the directive named.
	Name() string
}

// SendEventCard proposes or finalizes a hangout as a structured event card.
type SendEventCard struct {
	// Activity is the activity being proposed.
	Activity string

	// Location is where the activity takes place.
	Location string

	// Date is the calendar date of the activity, YYYY-MM-DD.
	Date string

	// Time is the start time as free-form text.
	Time string

	// Attendees are the expected attendees.
	Attendees []string
}

// Name implements Action.
func (SendEventCard) Name() string { return "send_event_card" }

// CreateGroup creates a new group with the given members.
type CreateGroup struct {
	// GroupName is the display name of the new group.
	GroupName string

	// Members are the user IDs to subscribe.
	Members []string
}

// Name implements Action.
func (CreateGroup) Name() string { return "create_group" }

// NotifyUser sends a one-off notification message to a single user.
type NotifyUser struct {
	// User is the user to notify.
	User string

	// Message is the notification text.
	Message string
}

// Name implements Action.
func (NotifyUser) Name() string { return "notify" }

// Unknown carries a directive whose function name is not recognized, kept for
// forward compatibility instead of being dropped at parse time.
type Unknown struct {
	// Function is the function identifier the directive named.
	Function string

	// Args are the raw directive arguments.
	Args map[string]string
}

// Name implements Action.
func (a Unknown) Name() string { return a.Function }

// ParsedResponse is the structured form of a raw model completion: the
// user-facing reply plus the ordered actions to dispatch.
type ParsedResponse struct {
	// Message is the user-facing reply.
	Message string

	// Actions are the directives in the order they appeared. Order matters:
	// later actions may depend on earlier ones having been dispatched.
	Actions []Action
}

// The raw wire format is a reply delimited by <response></response> markers,
// optionally followed by directives of the form
//
//	[action: name args={key: value, key2: value2}]
//
// Argument values are flat strings; list-valued arguments (attendees, members)
// separate elements with semicolons.
var (
	replyPattern  = regexp.MustCompile(`(?s)<response>(.*?)</response>`)
	actionPattern = regexp.MustCompile(`\[action:\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*(?:args=\{([^}]*)\})?\s*\]`)
)

// Parse transforms a raw model completion into a ParsedResponse. It never
// executes anything and never fails: when the reply markers are absent or
// malformed the entire raw text becomes the reply with no actions, so a model
// that ignores the output contract still produces a usable message.
func Parse(raw string) ParsedResponse {
	m := replyPattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedResponse{Message: strings.TrimSpace(raw)}
	}

	parsed := ParsedResponse{Message: strings.TrimSpace(m[1])}
	for _, d := range actionPattern.FindAllStringSubmatch(raw, -1) {
		parsed.Actions = append(parsed.Actions, decodeAction(d[1], parseArgs(d[2])))
	}
	return parsed
}

func parseArgs(raw string) map[string]string {
	args := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if key != "" {
			args[key] = value
		}
	}
	return args
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(raw, ";") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func decodeAction(name string, args map[string]string) Action {
	switch name {
	case "send_event_card":
		return SendEventCard{
			Activity:  args["activity"],
			Location:  args["location"],
			Date:      args["date"],
			Time:      args["time"],
			Attendees: splitList(args["attendees"]),
		}
	case "create_group":
		return CreateGroup{
			GroupName: args["name"],
			Members:   splitList(args["members"]),
		}
	case "notify":
		return NotifyUser{
			User:    args["user"],
			Message: args["message"],
		}
	default:
		return Unknown{
			Function: name,
			Args:     args,
		}
	}
}
