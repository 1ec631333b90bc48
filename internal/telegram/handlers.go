package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/suspectuso/welcome-bot/internal/admin"
	"github.com/suspectuso/welcome-bot/internal/cleanup"
	"github.com/suspectuso/welcome-bot/internal/config"
	"github.com/suspectuso/welcome-bot/internal/ledger"
	"github.com/suspectuso/welcome-bot/internal/messenger"
	"github.com/suspectuso/welcome-bot/internal/scheduler"
	"github.com/suspectuso/welcome-bot/internal/storage"
	"github.com/suspectuso/welcome-bot/internal/welcome"
)

const msgRunInGroup = "ℹ️ Por favor ejecuta este comando dentro del grupo."

// Chat types as reported in Chat.Type
const (
	chatTypePrivate    = "private"
	chatTypeSupergroup = "supergroup"
)

// Deps are the components the update handlers drive.
type Deps struct {
	Messenger   messenger.Messenger
	Settings    *storage.Storage
	Ledger      *ledger.Ledger
	Admins      *admin.Resolver
	Scheduler   *scheduler.Scheduler
	Cleaner     *cleanup.Engine
	Welcome     *welcome.Notifier
	BotID       int64
	BotUsername string
}

// Bot routes telegram updates to the welcome, cleanup and configuration flows
type Bot struct {
	bot      *bot.Bot
	cfg      *config.Config
	msgr     messenger.Messenger
	settings *storage.Storage
	ledger   *ledger.Ledger
	admins   *admin.Resolver
	sched    *scheduler.Scheduler
	cleaner  *cleanup.Engine
	welcome  *welcome.Notifier
	states   *WaitStates
	botID    int64
	username string
	log      *slog.Logger

	autoCleanChecked sync.Map
}

// New creates the update router
func New(cfg *config.Config, d Deps, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		cfg:      cfg,
		msgr:     d.Messenger,
		settings: d.Settings,
		ledger:   d.Ledger,
		admins:   d.Admins,
		sched:    d.Scheduler,
		cleaner:  d.Cleaner,
		welcome:  d.Welcome,
		states:   NewWaitStates(),
		botID:    d.BotID,
		username: d.BotUsername,
		log:      log,
	}
}

// Attach registers the router as the catch-all handler of tg.
func (b *Bot) Attach(tg *bot.Bot) {
	b.bot = tg
	tg.RegisterHandlerMatchFunc(func(*models.Update) bool { return true }, b.Handle)
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// States exposes the waiting-input state table.
func (b *Bot) States() *WaitStates {
	return b.states
}

// Handle processes one update. Every message from an allowed chat is
// recorded in the ledger before anything else happens.
func (b *Bot) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		msg = update.ChannelPost
	}
	if msg == nil {
		return
	}

	chatID := msg.Chat.ID
	if !b.cfg.ChatAllowed(chatID) {
		return
	}

	b.record(msg)
	b.ensureAutoClean(chatID)

	if len(msg.NewChatMembers) > 0 {
		b.handleNewMembers(ctx, msg)
		return
	}
	if msg.From == nil || isService(msg) {
		return
	}

	if name, args, ok := b.parseCommand(msg.Text); ok {
		if name != "" {
			b.handleCommand(ctx, msg, name, args)
		}
		return
	}

	b.handleWaiting(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *models.Message, name string, args []string) {
	b.log.Debug("command",
		"command", name,
		"chat_id", msg.Chat.ID,
		"user_id", msg.From.ID,
	)

	switch name {
	case "help":
		b.helpHandler(ctx, msg)
	case "whoami":
		b.whoamiHandler(ctx, msg)
	case "debug_admin":
		b.debugAdminHandler(ctx, msg)
	case "id":
		b.idHandler(ctx, msg)
	case "test_welcome":
		b.testWelcome(ctx, msg)
	case "get_welcome":
		b.getWelcomeHandler(ctx, msg)
	case "set_welcome":
		b.setTextHandler(ctx, msg, AwaitingWelcomeText)
	case "reset_welcome":
		b.resetWelcomeHandler(ctx, msg)
	case "get_registration":
		b.getRegistrationHandler(ctx, msg)
	case "set_registration":
		b.setTextHandler(ctx, msg, AwaitingRegistrationText)
	case "reset_registration":
		b.resetRegistrationHandler(ctx, msg)
	case "cancelar", "cancel":
		b.cancelHandler(ctx, msg)
	case "get_welcome_delete":
		b.getWelcomeDeleteHandler(ctx, msg)
	case "set_welcome_delete":
		b.setWelcomeDeleteHandler(ctx, msg, args)
	case "reset_welcome_delete":
		b.resetWelcomeDeleteHandler(ctx, msg)
	case "clean_chat":
		b.cleanChatHandler(ctx, msg, args)
	case "set_auto_clean":
		b.setAutoCleanHandler(ctx, msg, args)
	case "get_auto_clean":
		b.getAutoCleanHandler(ctx, msg)
	}
}

// --- Handlers ---

func (b *Bot) helpHandler(ctx context.Context, msg *models.Message) {
	b.reply(ctx, msg, helpText, true)
}

func (b *Bot) whoamiHandler(ctx context.Context, msg *models.Message) {
	username := msg.From.Username
	if username == "" {
		username = "-"
	}
	b.reply(ctx, msg, fmt.Sprintf("Tu user_id: %d\nUsername: @%s", msg.From.ID, username), false)
}

func (b *Bot) debugAdminHandler(ctx context.Context, msg *models.Message) {
	user := msg.From
	isAdmin := b.admins.IsAdmin(ctx, msg.Chat.ID, user.ID)

	username := user.Username
	if username == "" {
		username = "N/A"
	}

	text := fmt.Sprintf(
		"🔍 <b>Debug de permisos</b>\n"+
			"User ID: <code>%d</code>\n"+
			"Username: @%s\n"+
			"Chat ID: <code>%d</code>\n"+
			"Chat Type: %s\n"+
			"Es admin: %s\n"+
			"En SUPER_ADMIN_IDS: %s\n\n"+
			"<i>Revisa los logs del bot para más detalles técnicos.</i>",
		user.ID, username, msg.Chat.ID, msg.Chat.Type,
		yesNo(isAdmin), yesNo(b.admins.IsOverride(user.ID)),
	)
	b.reply(ctx, msg, text, true)
}

func (b *Bot) idHandler(ctx context.Context, msg *models.Message) {
	text := fmt.Sprintf("chat_id: %d", msg.Chat.ID)
	if msg.MessageThreadID != 0 {
		text += fmt.Sprintf(", topic_id: %d", msg.MessageThreadID)
	}
	b.reply(ctx, msg, text, false)
}

func (b *Bot) testWelcome(ctx context.Context, msg *models.Message) {
	name := welcome.DisplayName(msg.From.FirstName, msg.From.LastName, "miembro")
	if _, err := b.welcome.Send(ctx, msg.Chat.ID, msg.From.ID, name); err != nil {
		b.log.Error("send test welcome", "chat_id", msg.Chat.ID, "error", err)
	}
}

func (b *Bot) getWelcomeHandler(ctx context.Context, msg *models.Message) {
	text := fmt.Sprintf("📝 Bienvenida actual (chat %d):\n\n%s", msg.Chat.ID, b.settings.LoadWelcomeText(msg.Chat.ID))
	b.reply(ctx, msg, text, false)
}

func (b *Bot) getRegistrationHandler(ctx context.Context, msg *models.Message) {
	text := fmt.Sprintf("📝 Mensaje de registro actual (chat %d):\n\n%s", msg.Chat.ID, b.settings.LoadRegistrationText(msg.Chat.ID))
	b.reply(ctx, msg, text, true)
}

func (b *Bot) setTextHandler(ctx context.Context, msg *models.Message, kind WaitKind) {
	if !b.authorize(ctx, msg, deniedText(kind)) {
		return
	}

	b.states.Begin(msg.Chat.ID, msg.From.ID, kind)
	b.log.Info("waiting for text",
		"chat_id", msg.Chat.ID,
		"user_id", msg.From.ID,
		"kind", kind,
	)

	what := "como bienvenida"
	title := "bienvenida"
	if kind == AwaitingRegistrationText {
		what = "para invitar a registrarse"
		title = "registro"
	}

	text := fmt.Sprintf(
		"✏️ <b>Configuración de mensaje de %s</b>\n\n"+
			"📝 Por favor, envía ahora el mensaje que quieres usar %s.\n\n"+
			"💡 <i>Puedes usar saltos de línea, emojis y formatear el texto como desees. "+
			"El próximo mensaje que envíes será usado exactamente como lo escribas.</i>\n\n"+
			"❌ Escribe /cancelar para cancelar esta operación.",
		title, what,
	)
	b.reply(ctx, msg, text, true)
}

func (b *Bot) resetWelcomeHandler(ctx context.Context, msg *models.Message) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden resetear la bienvenida.") {
		return
	}
	if err := b.settings.ResetWelcomeText(msg.Chat.ID); err != nil {
		b.log.Error("reset welcome text", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, "❌ No se pudo restaurar la bienvenida.", false)
		return
	}
	b.reply(ctx, msg, "↩️ Bienvenida restaurada a la versión por defecto.", false)
	b.testWelcome(ctx, msg)
}

func (b *Bot) resetRegistrationHandler(ctx context.Context, msg *models.Message) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden resetear el mensaje de registro.") {
		return
	}
	if err := b.settings.ResetRegistrationText(msg.Chat.ID); err != nil {
		b.log.Error("reset registration text", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, "❌ No se pudo restaurar el mensaje de registro.", false)
		return
	}
	b.reply(ctx, msg, "↩️ Mensaje de registro restaurado a la versión por defecto.", false)
	b.testWelcome(ctx, msg)
}

func (b *Bot) cancelHandler(ctx context.Context, msg *models.Message) {
	if b.states.Cancel(msg.Chat.ID, msg.From.ID) {
		b.reply(ctx, msg, "❌ Operación cancelada.", false)
		return
	}
	b.reply(ctx, msg, "ℹ️ No hay ninguna operación en curso para cancelar.", false)
}

func (b *Bot) getWelcomeDeleteHandler(ctx context.Context, msg *models.Message) {
	eff := b.settings.LoadDeleteSeconds(msg.Chat.ID)
	glob := b.settings.DefaultDeleteSeconds()

	state := "activo"
	if eff == 0 {
		state = "desactivado"
	}

	text := fmt.Sprintf(
		"⏱️ Auto-borrado de bienvenida\n"+
			"• Valor efectivo en este chat: %d s (%s)\n"+
			"• Valor global por .env: %d s\n\n"+
			"Usa /set_welcome_delete <segundos|off> para cambiarlo en este chat,\n"+
			"o /reset_welcome_delete para volver al valor global.",
		eff, state, glob,
	)
	b.reply(ctx, msg, text, false)
}

func (b *Bot) setWelcomeDeleteHandler(ctx context.Context, msg *models.Message, args []string) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden cambiar este ajuste.") {
		return
	}
	if len(args) == 0 {
		b.reply(ctx, msg, "Uso: /set_welcome_delete <segundos|off>. Ej: /set_welcome_delete 180", false)
		return
	}

	seconds, ok := parseToggle(args[0])
	if !ok {
		b.reply(ctx, msg, "❌ Valor inválido. Usa un entero ≥ 0 o 'off'.", false)
		return
	}

	if err := b.settings.SaveDeleteSeconds(msg.Chat.ID, seconds); err != nil {
		b.log.Error("save delete seconds", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, "❌ No se pudo guardar el ajuste.", false)
		return
	}

	text := fmt.Sprintf("✅ Auto-borrado actualizado para este chat: %d s", seconds)
	if seconds == 0 {
		text += " (desactivado)"
	}
	b.reply(ctx, msg, text, false)
}

func (b *Bot) resetWelcomeDeleteHandler(ctx context.Context, msg *models.Message) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden resetear este ajuste.") {
		return
	}
	if err := b.settings.ResetDeleteSeconds(msg.Chat.ID); err != nil {
		b.log.Error("reset delete seconds", "chat_id", msg.Chat.ID, "error", err)
		b.reply(ctx, msg, "❌ No se pudo restaurar el ajuste.", false)
		return
	}

	glob := b.settings.DefaultDeleteSeconds()
	text := fmt.Sprintf("↩️ Auto-borrado restaurado al valor global: %d s", glob)
	if glob == 0 {
		text += " (desactivado)"
	}
	b.reply(ctx, msg, text, false)
}

func (b *Bot) cleanChatHandler(ctx context.Context, msg *models.Message, args []string) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden limpiar el chat.") {
		return
	}

	chatID := msg.Chat.ID
	limit := b.cfg.CleanDefaultLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			b.reply(ctx, msg, fmt.Sprintf(
				"❌ Valor inválido. Usa un entero entre 1 y %d. Ej: /clean_chat %d",
				b.cfg.CleanMaxLimit, b.cfg.CleanDefaultLimit,
			), false)
			return
		}
		limit = min(max(n, 1), b.cfg.CleanMaxLimit)
	}

	res := b.cleaner.Clean(ctx, chatID, limit, cleanup.TriggerManual)

	// usually already removed by the run itself
	if err := b.msgr.DeleteMessage(ctx, chatID, msg.ID); err == nil {
		b.ledger.Forget(chatID, msg.ID)
	}

	out := messenger.Message{
		ChatID: chatID,
		Text: fmt.Sprintf(
			"🧹 Limpieza completada. Eliminados: %s. Fijados omitidos: %s. Admins omitidos: %s. Fallidos: %s.",
			humanize.Comma(int64(res.Deleted)),
			humanize.Comma(int64(res.SkippedPinned)),
			humanize.Comma(int64(res.SkippedPrivileged)),
			humanize.Comma(int64(res.Failed)),
		),
		DisablePreview: true,
	}
	if msg.MessageThreadID != 0 {
		thread := msg.MessageThreadID
		out.ThreadID = &thread
	}

	summaryID, err := b.msgr.SendMessage(ctx, out)
	if err != nil {
		b.log.Error("send cleanup summary", "chat_id", chatID, "error", err)
		return
	}
	b.recordOwn(chatID, summaryID)

	delay := time.Duration(b.cfg.SummaryDeleteSeconds) * time.Second
	if err := b.sched.Schedule(chatID, summaryID, out.ThreadID, delay); err != nil {
		b.log.Warn("schedule summary deletion", "chat_id", chatID, "message_id", summaryID, "error", err)
	}
}

func (b *Bot) setAutoCleanHandler(ctx context.Context, msg *models.Message, args []string) {
	if !b.authorize(ctx, msg, "🚫 Solo administradores/owner pueden programar limpieza automática.") {
		return
	}
	if len(args) == 0 {
		b.reply(ctx, msg, "Uso: /set_auto_clean <horas|off>. Ej: /set_auto_clean 12", false)
		return
	}

	hours, ok := parseToggle(args[0])
	if !ok {
		b.reply(ctx, msg, "❌ Valor inválido. Usa un entero ≥ 0 u 'off'.", false)
		return
	}

	chatID := msg.Chat.ID
	if err := b.settings.SaveAutoCleanHours(chatID, hours); err != nil {
		b.log.Error("save auto-clean hours", "chat_id", chatID, "error", err)
		b.reply(ctx, msg, "❌ No se pudo guardar el ajuste.", false)
		return
	}
	b.cleaner.ScheduleRecurring(chatID, hours)
	b.autoCleanChecked.Store(chatID, true)

	if hours == 0 {
		b.reply(ctx, msg, "✅ Auto-clean desactivado.", false)
		return
	}
	b.reply(ctx, msg, fmt.Sprintf("✅ Auto-clean programado cada %d h.", hours), false)
}

func (b *Bot) getAutoCleanHandler(ctx context.Context, msg *models.Message) {
	hours := b.settings.LoadAutoCleanHours(msg.Chat.ID)
	if hours == 0 {
		b.reply(ctx, msg, "🧹 Auto-clean desactivado en este chat.", false)
		return
	}
	b.reply(ctx, msg, fmt.Sprintf(
		"🧹 Auto-clean cada %d h, hasta %s mensajes por ronda.",
		hours, humanize.Comma(int64(b.cleaner.AutoLimit)),
	), false)
}

func (b *Bot) handleNewMembers(ctx context.Context, msg *models.Message) {
	chatID := msg.Chat.ID

	if err := b.msgr.DeleteMessage(ctx, chatID, msg.ID); err != nil {
		b.log.Debug("delete join notice",
			"chat_id", chatID,
			"message_id", msg.ID,
			"kind", messenger.Classify(err),
			"error", err,
		)
	} else {
		b.ledger.Forget(chatID, msg.ID)
	}

	for _, m := range msg.NewChatMembers {
		if m.IsBot {
			continue
		}
		name := welcome.DisplayName(m.FirstName, m.LastName, "nuevo miembro")
		if _, err := b.welcome.Send(ctx, chatID, m.ID, name); err != nil {
			b.log.Error("send welcome",
				"chat_id", chatID,
				"user_id", m.ID,
				"kind", messenger.Classify(err),
				"error", err,
			)
		}
	}
}

func (b *Bot) handleWaiting(ctx context.Context, msg *models.Message) {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	chatID, userID := msg.Chat.ID, msg.From.ID
	kind, res := b.states.Capture(ctx, chatID, userID, text, b.admins, b.settings)

	switch res {
	case CaptureIdle:
		return
	case CaptureEmpty:
		b.reply(ctx, msg, "❌ El mensaje no puede estar vacío. Envía un mensaje con texto o usa /cancelar.", false)
	case CaptureDenied:
		b.reply(ctx, msg, deniedText(kind), false)
	case CaptureFailed:
		b.log.Error("save captured text", "chat_id", chatID, "user_id", userID, "kind", kind)
		b.reply(ctx, msg, "❌ No se pudo guardar el mensaje. Inténtalo de nuevo o usa /cancelar.", false)
	case CaptureSaved:
		b.log.Info("text updated", "chat_id", chatID, "user_id", userID, "kind", kind)
		confirm := "✅ ¡Mensaje de bienvenida actualizado correctamente!"
		if kind == AwaitingRegistrationText {
			confirm = "✅ ¡Mensaje de registro actualizado correctamente!"
		}
		b.reply(ctx, msg, confirm, false)
		b.testWelcome(ctx, msg)
	}
}

// --- Helpers ---

// authorize gates mutating commands: private chats are reserved for super
// admins, groups require admin rights.
func (b *Bot) authorize(ctx context.Context, msg *models.Message, denied string) bool {
	userID := msg.From.ID
	if msg.Chat.Type == chatTypePrivate && !b.admins.IsOverride(userID) {
		b.reply(ctx, msg, msgRunInGroup, false)
		return false
	}
	if !b.admins.IsAdmin(ctx, msg.Chat.ID, userID) {
		b.log.Info("command denied", "chat_id", msg.Chat.ID, "user_id", userID)
		b.reply(ctx, msg, denied, false)
		return false
	}
	return true
}

func (b *Bot) reply(ctx context.Context, msg *models.Message, text string, html bool) {
	id, err := b.msgr.SendMessage(ctx, messenger.Message{
		ChatID:         msg.Chat.ID,
		Text:           text,
		HTML:           html,
		DisablePreview: true,
		ReplyTo:        msg.ID,
	})
	if err != nil {
		b.log.Error("send message",
			"chat_id", msg.Chat.ID,
			"kind", messenger.Classify(err),
			"error", err,
		)
		return
	}
	b.recordOwn(msg.Chat.ID, id)
}

func (b *Bot) record(msg *models.Message) {
	var author *int64
	if msg.From != nil {
		id := msg.From.ID
		author = &id
	}

	raw := strings.TrimSpace(msg.Text)
	if raw == "" {
		raw = strings.TrimSpace(msg.Caption)
	}

	b.ledger.Record(msg.Chat.ID, ledger.Entry{
		MessageID: msg.ID,
		AuthorID:  author,
		IsCommand: strings.HasPrefix(raw, "/"),
		IsService: isService(msg),
	})
}

func (b *Bot) recordOwn(chatID int64, messageID int) {
	botID := b.botID
	b.ledger.Record(chatID, ledger.Entry{MessageID: messageID, AuthorID: &botID})
}

// ensureAutoClean arms a configured auto-clean the first time a chat is seen.
func (b *Bot) ensureAutoClean(chatID int64) {
	if _, seen := b.autoCleanChecked.LoadOrStore(chatID, true); seen {
		return
	}
	if b.cleaner.IsArmed(chatID) {
		return
	}
	if hours := b.settings.LoadAutoCleanHours(chatID); hours > 0 {
		b.cleaner.ScheduleRecurring(chatID, hours)
	}
}

// parseCommand splits "/name@bot arg..." into a lowercase name and its
// arguments. ok is true for any command; name is empty when the command is
// addressed to another bot.
func (b *Bot) parseCommand(text string) (name string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", nil, false
	}

	name = strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if at := strings.IndexByte(name, '@'); at >= 0 {
		target := name[at+1:]
		name = name[:at]
		if b.username != "" && !strings.EqualFold(target, b.username) {
			return "", nil, true
		}
	}
	return name, fields[1:], true
}

func isService(msg *models.Message) bool {
	return len(msg.NewChatMembers) > 0 ||
		msg.LeftChatMember != nil ||
		pinNotice(msg) ||
		msg.NewChatTitle != "" ||
		len(msg.NewChatPhoto) > 0 ||
		msg.DeleteChatPhoto ||
		msg.GroupChatCreated ||
		msg.SupergroupChatCreated ||
		msg.ChannelChatCreated
}

// pinNotice reports a "message pinned" event. PinnedMessage is a value whose
// zero Type already means a regular message, so only its pointers count.
func pinNotice(msg *models.Message) bool {
	return msg.PinnedMessage.Message != nil || msg.PinnedMessage.InaccessibleMessage != nil
}

// parseToggle accepts a non-negative integer or off/desactivar.
func parseToggle(raw string) (int, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "off" || raw == "desactivar" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func deniedText(kind WaitKind) string {
	if kind == AwaitingRegistrationText {
		return "🚫 Solo administradores/owner pueden cambiar el mensaje de registro."
	}
	return "🚫 Solo administradores/owner pueden cambiar la bienvenida."
}

func yesNo(v bool) string {
	if v {
		return "✅ SÍ"
	}
	return "❌ NO"
}
