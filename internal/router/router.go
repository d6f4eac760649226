// Package router decides whether an inbound message should be answered by
// the Gemini bot.
package router

import (
	"strings"

	"github.com/fpt/gemini-discuss/pkg/discuss"
)

// DefaultAlias is the addressed form accepted in direct chats even when the
// bot has been renamed.
const DefaultAlias = "Gemini"

// Rule names the trigger rule that produced a decision.
type Rule string

const (
	RuleSelf      Rule = "self"      // authored by the bot
	RuleEmpty     Rule = "empty"     // no body and no attachments
	RuleAddressed Rule = "addressed" // direct chat naming the bot
	RuleBroadcast Rule = "broadcast" // posted in the broadcast channel
	RuleNoMatch   Rule = "no_match"
)

// Decision is the outcome of evaluating an event.
type Decision struct {
	Respond bool
	Rule    Rule
}

// Router is a pure decision function over events. It holds no mutable state
// and is safe for concurrent use.
type Router struct {
	bot       discuss.BotIdentity
	broadcast string
	forms     []string
}

// New creates a router for the given bot. broadcastChannelID may be empty,
// in which case only direct chats addressing the bot trigger a reply.
func New(bot discuss.BotIdentity, broadcastChannelID string, aliases ...string) *Router {
	if len(aliases) == 0 {
		aliases = []string{DefaultAlias}
	}

	var forms []string
	if bot.Name != "" {
		forms = append(forms, bot.Name+", ")
	}
	for _, alias := range aliases {
		if alias = strings.TrimSpace(alias); alias != "" {
			forms = append(forms, alias+",")
		}
	}

	return &Router{
		bot:       bot,
		broadcast: broadcastChannelID,
		forms:     forms,
	}
}

// ShouldRespond reports whether ev must be forwarded to Gemini.
func (r *Router) ShouldRespond(ev discuss.Event) bool {
	return r.Decide(ev).Respond
}

// Decide evaluates the trigger rules in order; the first match wins.
func (r *Router) Decide(ev discuss.Event) Decision {
	if r.bot.Is(ev.AuthorID) {
		return Decision{Rule: RuleSelf}
	}

	if strings.TrimSpace(ev.Body) == "" && len(ev.Attachments) == 0 {
		return Decision{Rule: RuleEmpty}
	}

	if ev.ChannelKind == discuss.ChannelKindDirect && r.addressed(ev.Label) {
		return Decision{Respond: true, Rule: RuleAddressed}
	}

	if r.broadcast != "" && (ev.ChannelID == r.broadcast || ev.ThreadID == r.broadcast) {
		return Decision{Respond: true, Rule: RuleBroadcast}
	}

	return Decision{Rule: RuleNoMatch}
}

// BroadcastChannelID returns the always-listening channel, if any.
func (r *Router) BroadcastChannelID() string {
	return r.broadcast
}

func (r *Router) addressed(label string) bool {
	for _, form := range r.forms {
		if strings.Contains(label, form) {
			return true
		}
	}
	return false
}
