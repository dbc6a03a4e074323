package dialogue

import (
	"time"

	"github.com/google/uuid"

	"medtrak/internal/model"
)

type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one entry of a session transcript.
type Message struct {
	ID               string           `json:"id"`
	Role             Role             `json:"role"`
	Type             model.RecordKind `json:"type"`
	Content          string           `json:"content"`
	MediaURL         string           `json:"mediaUrl,omitempty"`
	AudioDurationSec *int             `json:"audioDurationSec,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
}

func newMessage(role Role, kind model.RecordKind, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Type:      kind,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func assistantText(content string) Message {
	return newMessage(RoleAssistant, model.KindText, content)
}
