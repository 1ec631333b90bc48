// Package messenger is the contract between the bot core and the chat
// platform, plus its Telegram implementation.
package messenger

import "context"

// MemberStatus is a chat member's role as reported by the platform.
type MemberStatus string

const (
	StatusOwner         MemberStatus = "creator"
	StatusAdministrator MemberStatus = "administrator"
	StatusMember        MemberStatus = "member"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusBanned        MemberStatus = "kicked"
)

// Privileged reports whether the status grants admin rights.
func (s MemberStatus) Privileged() bool {
	return s == StatusOwner || s == StatusAdministrator
}

// Admin is one entry of a chat's administrator list.
type Admin struct {
	UserID int64
	Status MemberStatus
}

// Button is an inline URL button.
type Button struct {
	Text string
	URL  string
}

// Message is an outgoing message.
type Message struct {
	ChatID         int64
	ThreadID       *int
	Text           string
	HTML           bool
	DisablePreview bool
	ReplyTo        int
	Buttons        [][]Button
}

// Messenger is everything the core needs from the platform.
type Messenger interface {
	SendMessage(ctx context.Context, msg Message) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	GetChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]Admin, error)
	// GetPinnedMessage returns ok=false when the chat has no pinned message.
	GetPinnedMessage(ctx context.Context, chatID int64) (messageID int, ok bool, err error)
}
