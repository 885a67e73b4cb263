package chat

import (
	"fmt"
	"strings"
)

// Role identifies the speaker of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message follows the familiar role/content chat schema (plain text only).
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Mode selects how strictly an inbound conversation is checked.
//
//   - strict: roles user|assistant, turns must alternate, the last turn is the
//     user's and the first role follows the parity of the length. A fixed
//     system prompt is prepended before the provider call.
//   - relaxed: roles user|assistant|system in any order, passed through as-is.
type Mode string

const (
	ModeStrict  Mode = "strict"
	ModeRelaxed Mode = "relaxed"
)

// ParseMode converts a configuration value into a Mode. Empty means strict.
func ParseMode(v string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "strict", "alternating":
		return ModeStrict, nil
	case "relaxed", "passthrough":
		return ModeRelaxed, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q (want strict|relaxed)", v)
	}
}

// AllowedRoles lists the roles accepted in this mode, in display order.
func (m Mode) AllowedRoles() []Role {
	if m == ModeRelaxed {
		return []Role{RoleUser, RoleAssistant, RoleSystem}
	}
	return []Role{RoleUser, RoleAssistant}
}

func (m Mode) allows(r Role) bool {
	for _, allowed := range m.AllowedRoles() {
		if r == allowed {
			return true
		}
	}
	return false
}

// Conversation is a validated, non-empty, ordered list of messages. The zero
// value is empty and is never produced by a successful validation.
type Conversation struct {
	messages []Message
}

func newConversation(msgs []Message) Conversation {
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	return Conversation{messages: cp}
}

// Messages returns a copy of the conversation's messages.
func (c Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of messages.
func (c Conversation) Len() int { return len(c.messages) }

// Last returns the final message, or the zero Message when empty.
func (c Conversation) Last() Message {
	if len(c.messages) == 0 {
		return Message{}
	}
	return c.messages[len(c.messages)-1]
}

// WithSystemPrompt returns a new conversation with a system message in front.
// A blank prompt returns the conversation unchanged.
func (c Conversation) WithSystemPrompt(prompt string) Conversation {
	if strings.TrimSpace(prompt) == "" {
		return c
	}
	msgs := make([]Message, 0, len(c.messages)+1)
	msgs = append(msgs, Message{Role: RoleSystem, Content: prompt})
	msgs = append(msgs, c.messages...)
	return Conversation{messages: msgs}
}
