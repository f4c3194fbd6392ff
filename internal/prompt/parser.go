package prompt

import (
	"encoding/json"
	"strings"

	"github.com/xiaot623/gogo/gallerybot/internal/domain"
)

// EmptyReplyFallback is returned when the model produced no usable text.
const EmptyReplyFallback = "Sorry, I could not come up with an answer. Please try again."

// Reply is the structured result of a model call.
type Reply struct {
	Text   string
	Intent domain.Intent
}

type wireReply struct {
	Reply  *string `json:"reply"`
	Intent string  `json:"intent"`
}

// Parse extracts {reply, intent} from raw model text. Output that is not a
// JSON object with a non-empty reply is returned verbatim with IntentGeneral.
func Parse(raw string) Reply {
	trimmed := strings.TrimSpace(raw)
	body := stripFences(trimmed)

	var w wireReply
	if err := json.Unmarshal([]byte(body), &w); err == nil && w.Reply != nil && strings.TrimSpace(*w.Reply) != "" {
		return Reply{Text: strings.TrimSpace(*w.Reply), Intent: domain.ParseIntent(w.Intent)}
	}

	if trimmed == "" {
		return Reply{Text: EmptyReplyFallback, Intent: domain.IntentGeneral}
	}
	return Reply{Text: trimmed, Intent: domain.IntentGeneral}
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
