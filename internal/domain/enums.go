// Package domain defines the core domain models for the chatbot service.
package domain

import "strings"

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is the coarse routing tag attached to an assistant reply.
type Intent string

const (
	IntentGeneral Intent = "general"
	IntentArtist  Intent = "artist"
	IntentAdmin   Intent = "admin"
)

// Intents lists every valid intent in display order.
var Intents = []Intent{IntentGeneral, IntentArtist, IntentAdmin}

// ParseIntent maps free text onto the closed intent set.
// Anything unrecognised becomes IntentGeneral.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentArtist:
		return IntentArtist
	case IntentAdmin:
		return IntentAdmin
	default:
		return IntentGeneral
	}
}

// SessionState is the lifecycle state of a chat session.
type SessionState string

const (
	SessionStateNew    SessionState = "NEW_SESSION"
	SessionStateActive SessionState = "ACTIVE"
	SessionStateEnded  SessionState = "ENDED"
)

// Admin actions evaluated by the authorization policy.
const (
	ActionUpdateConfig  = "chatbot.config.update"
	ActionReadAnalytics = "chatbot.analytics.read"
	ActionTestModel     = "chatbot.test"
)
