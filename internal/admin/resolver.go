// Package admin decides whether a user holds elevated privileges in a chat.
package admin

import (
	"context"
	"log/slog"

	"github.com/suspectuso/welcome-bot/internal/messenger"
)

// Platform is the subset of the messenger used for privilege checks.
type Platform interface {
	GetChatMember(ctx context.Context, chatID, userID int64) (messenger.MemberStatus, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]messenger.Admin, error)
}

// Resolver evaluates the static override set first, then live platform
// queries. Nothing is cached between calls.
type Resolver struct {
	platform  Platform
	overrides map[int64]bool
	log       *slog.Logger
}

// New creates a resolver. overrides is the configured super-admin set.
func New(platform Platform, overrides map[int64]bool, log *slog.Logger) *Resolver {
	if overrides == nil {
		overrides = make(map[int64]bool)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{platform: platform, overrides: overrides, log: log}
}

// IsOverride reports whether userID is in the static override set.
func (r *Resolver) IsOverride(userID int64) bool {
	return r.overrides[userID]
}

// IsAdmin never returns an error: failed platform queries count as "not
// admin" and fall through to the next tier.
func (r *Resolver) IsAdmin(ctx context.Context, chatID, userID int64) bool {
	if r.IsOverride(userID) {
		return true
	}

	status, err := r.platform.GetChatMember(ctx, chatID, userID)
	if err == nil && status.Privileged() {
		return true
	}
	if err != nil {
		r.log.Debug("chat member query failed",
			"chat_id", chatID,
			"user_id", userID,
			"kind", messenger.Classify(err),
			"error", err,
		)
	}

	// some chats reject one query type but allow the other
	admins, err := r.platform.GetChatAdministrators(ctx, chatID)
	if err != nil {
		r.log.Debug("chat administrators query failed",
			"chat_id", chatID,
			"kind", messenger.Classify(err),
			"error", err,
		)
		return false
	}
	for _, a := range admins {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// IsPrivileged is the cheaper check used while cleaning: the override set
// and a single member status query, without the administrator-list fallback.
// ok is false when the status query failed.
func (r *Resolver) IsPrivileged(ctx context.Context, chatID, userID int64) (privileged, ok bool) {
	if r.IsOverride(userID) {
		return true, true
	}
	status, err := r.platform.GetChatMember(ctx, chatID, userID)
	if err != nil {
		r.log.Debug("chat member query failed",
			"chat_id", chatID,
			"user_id", userID,
			"kind", messenger.Classify(err),
			"error", err,
		)
		return false, false
	}
	return status.Privileged(), true
}
