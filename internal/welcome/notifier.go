// Package welcome composes and posts the combined welcome and registration
// message shown to new chat members.
package welcome

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/suspectuso/welcome-bot/internal/ledger"
	"github.com/suspectuso/welcome-bot/internal/messenger"
)

// Sender posts messages to the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, msg messenger.Message) (int, error)
}

// Templates resolves the per-chat texts and retention.
type Templates interface {
	LoadWelcomeText(chatID int64) string
	LoadRegistrationText(chatID int64) string
	LoadDeleteSeconds(chatID int64) int
}

// Recorder keeps the bot's own messages visible to cleanup.
type Recorder interface {
	Record(chatID int64, e ledger.Entry)
}

// Scheduler arranges the later deletion of a sent welcome.
type Scheduler interface {
	Schedule(chatID int64, messageID int, threadID *int, delay time.Duration) error
}

// Options are the static parts of every welcome.
type Options struct {
	BotID       int64
	TopicID     *int
	SiteURL     string
	RegisterURL string
}

// Notifier sends welcomes
type Notifier struct {
	sender    Sender
	templates Templates
	recorder  Recorder
	scheduler Scheduler
	opts      Options
	log       *slog.Logger
}

// New creates a new Notifier
func New(sender Sender, templates Templates, recorder Recorder, scheduler Scheduler, opts Options, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		sender:    sender,
		templates: templates,
		recorder:  recorder,
		scheduler: scheduler,
		opts:      opts,
		log:       log,
	}
}

// Compose builds the welcome for one member. The welcome template is shown
// verbatim (escaped); the registration template may carry HTML markup.
func (n *Notifier) Compose(chatID, userID int64, name string) messenger.Message {
	text := fmt.Sprintf("%s\n\n%s\n\n%s",
		MentionHTML(userID, name),
		html.EscapeString(n.templates.LoadWelcomeText(chatID)),
		n.templates.LoadRegistrationText(chatID),
	)

	return messenger.Message{
		ChatID:         chatID,
		ThreadID:       n.opts.TopicID,
		Text:           text,
		HTML:           true,
		DisablePreview: true,
		Buttons:        Keyboard(n.opts.SiteURL, n.opts.RegisterURL),
	}
}

// Send posts the welcome, records it and, when the chat has a retention
// configured, schedules its deletion.
func (n *Notifier) Send(ctx context.Context, chatID, userID int64, name string) (int, error) {
	msg := n.Compose(chatID, userID, name)

	messageID, err := n.sender.SendMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("send welcome: %w", err)
	}

	botID := n.opts.BotID
	n.recorder.Record(chatID, ledger.Entry{MessageID: messageID, AuthorID: &botID})

	seconds := n.templates.LoadDeleteSeconds(chatID)
	if seconds > 0 {
		delay := time.Duration(seconds) * time.Second
		if err := n.scheduler.Schedule(chatID, messageID, n.opts.TopicID, delay); err != nil {
			n.log.Warn("schedule welcome deletion",
				"chat_id", chatID,
				"message_id", messageID,
				"error", err,
			)
		}
	}

	n.log.Info("welcome sent",
		"chat_id", chatID,
		"user_id", userID,
		"message_id", messageID,
		"delete_after_seconds", seconds,
	)
	return messageID, nil
}

// MentionHTML links to a user's profile.
func MentionHTML(userID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, html.EscapeString(name))
}

// DisplayName joins first and last name, or returns fallback when both are empty.
func DisplayName(first, last, fallback string) string {
	name := strings.TrimSpace(strings.Join([]string{first, last}, " "))
	if name == "" {
		return fallback
	}
	return name
}
