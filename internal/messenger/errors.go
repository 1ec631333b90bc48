package messenger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-telegram/bot"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient platform error")
)

// Kind names an error class for logs and metric labels.
type Kind string

const (
	KindOK               Kind = "ok"
	KindPermissionDenied Kind = "permission_denied"
	KindNotFound         Kind = "not_found"
	KindTransient        Kind = "transient"
	KindOther            Kind = "error"
)

// Classify maps an error returned by a Messenger into its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindOther
	}
}

var (
	notFoundMarkers = []string{
		"not found",
		"message_id_invalid",
		"message identifier is not specified",
		"user_not_participant",
	}
	permissionMarkers = []string{
		"forbidden",
		"not enough rights",
		"can't be deleted",
		"have no rights",
		"chat_admin_required",
		"member list is inaccessible",
		"need administrator rights",
	}
	transientMarkers = []string{
		"too many requests",
		"timeout",
		"connection reset",
		"connection refused",
		"eof",
		"bad gateway",
		"internal server error",
	}
)

// wrap annotates a raw platform error with its taxonomy sentinel.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if sentinel := sentinelFor(err); sentinel != nil {
		return fmt.Errorf("%s: %w: %w", op, sentinel, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sentinelFor(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTransient
	}
	if errors.Is(err, bot.ErrorForbidden) {
		return ErrPermissionDenied
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, notFoundMarkers):
		return ErrNotFound
	case containsAny(msg, permissionMarkers):
		return ErrPermissionDenied
	case containsAny(msg, transientMarkers):
		return ErrTransient
	}
	return nil
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
