package messenger

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// Telegram implements Messenger on top of go-telegram/bot.
type Telegram struct {
	bot     *bot.Bot
	limiter *rate.Limiter
}

// NewTelegram wraps b. Deletions are throttled to deleteRPS per second
// (bulk cleanup issues many of them back to back).
func NewTelegram(b *bot.Bot, deleteRPS float64) *Telegram {
	if deleteRPS <= 0 {
		deleteRPS = 20
	}
	burst := int(deleteRPS)
	if burst < 1 {
		burst = 1
	}
	return &Telegram{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(deleteRPS), burst),
	}
}

func (t *Telegram) SendMessage(ctx context.Context, msg Message) (int, error) {
	params := &bot.SendMessageParams{
		ChatID: msg.ChatID,
		Text:   msg.Text,
	}
	if msg.HTML {
		params.ParseMode = models.ParseModeHTML
	}
	if msg.ThreadID != nil {
		params.MessageThreadID = *msg.ThreadID
	}
	if msg.DisablePreview {
		disabled := true
		params.LinkPreviewOptions = &models.LinkPreviewOptions{IsDisabled: &disabled}
	}
	if msg.ReplyTo != 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: msg.ReplyTo}
	}
	if len(msg.Buttons) > 0 {
		params.ReplyMarkup = keyboard(msg.Buttons)
	}

	sent, err := t.bot.SendMessage(ctx, params)
	if err != nil {
		return 0, wrap("send message", err)
	}
	return sent.ID, nil
}

func (t *Telegram) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return wrap("delete message", err)
	}

	_, err := t.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	return wrap("delete message", err)
}

func (t *Telegram) GetChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error) {
	member, err := t.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return "", wrap("get chat member", err)
	}
	return memberStatus(member.Type), nil
}

func (t *Telegram) GetChatAdministrators(ctx context.Context, chatID int64) ([]Admin, error) {
	members, err := t.bot.GetChatAdministrators(ctx, &bot.GetChatAdministratorsParams{
		ChatID: chatID,
	})
	if err != nil {
		return nil, wrap("get chat administrators", err)
	}

	admins := make([]Admin, 0, len(members))
	for _, m := range members {
		if id := memberUserID(m); id != 0 {
			admins = append(admins, Admin{UserID: id, Status: memberStatus(m.Type)})
		}
	}
	return admins, nil
}

func (t *Telegram) GetPinnedMessage(ctx context.Context, chatID int64) (int, bool, error) {
	chat, err := t.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return 0, false, wrap("get chat", err)
	}
	if chat.PinnedMessage == nil {
		return 0, false, nil
	}
	return chat.PinnedMessage.ID, true, nil
}

func memberStatus(t models.ChatMemberType) MemberStatus {
	switch t {
	case models.ChatMemberTypeOwner:
		return StatusOwner
	case models.ChatMemberTypeAdministrator:
		return StatusAdministrator
	case models.ChatMemberTypeMember:
		return StatusMember
	case models.ChatMemberTypeRestricted:
		return StatusRestricted
	case models.ChatMemberTypeLeft:
		return StatusLeft
	case models.ChatMemberTypeBanned:
		return StatusBanned
	}
	return ""
}

func memberUserID(m models.ChatMember) int64 {
	switch m.Type {
	case models.ChatMemberTypeOwner:
		if m.Owner != nil && m.Owner.User != nil {
			return m.Owner.User.ID
		}
	case models.ChatMemberTypeAdministrator:
		if m.Administrator != nil {
			return m.Administrator.User.ID
		}
	}
	return 0
}

func keyboard(rows [][]Button) *models.InlineKeyboardMarkup {
	markup := &models.InlineKeyboardMarkup{}
	for _, row := range rows {
		var buttons []models.InlineKeyboardButton
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, URL: b.URL})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}
