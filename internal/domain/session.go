package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TitleState tags how a session's title came to be. A synthesized title
// may only replace a placeholder; a user-set title is never overwritten
// automatically.
type TitleState string

const (
	TitlePlaceholder TitleState = "placeholder"
	TitleUserSet     TitleState = "user_set"
	TitleAutoSet     TitleState = "auto_set"
)

// Message is one turn of a conversation. While a reply is streaming the
// last assistant message holds partial text; once the stream terminates
// the text is final until the next user turn.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ShareState is present only when the underlying record supports public
// sharing. A nil ShareState means the feature is unavailable for this
// session, decided once at load time.
type ShareState struct {
	IsPublic bool
	PublicID uuid.UUID
}

// Session is one conversation thread. Messages are chronological and
// never reordered. SearchText is derived from the title and the message
// tail and must be recomputed whenever either changes.
type Session struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	Title      string
	TitleState TitleState
	Messages   []Message
	Share      *ShareState
	Spend      decimal.Decimal
	CreatedAt  time.Time
	SearchText string
}

// Clone returns a deep copy so callers can hand sessions across
// goroutine boundaries without aliasing the store's slices.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	if s.Share != nil {
		share := *s.Share
		c.Share = &share
	}
	return &c
}

// LastMessage returns the most recent message, or nil for an empty session.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}
