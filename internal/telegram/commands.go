package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Commands is the list shown by clients when typing "/".
var Commands = []models.BotCommand{
	{Command: "help", Description: "Ver ayuda y lista de comandos"},
	{Command: "whoami", Description: "Ver tu user_id"},
	{Command: "debug_admin", Description: "Debug de permisos de admin"},
	{Command: "id", Description: "Mostrar chat_id y (si aplica) topic_id"},
	{Command: "test_welcome", Description: "Probar mensaje único combinado"},
	{Command: "get_welcome", Description: "Ver texto de bienvenida actual"},
	{Command: "set_welcome", Description: "Cambiar bienvenida (admins/owner)"},
	{Command: "reset_welcome", Description: "Restaurar bienvenida por defecto (admins/owner)"},
	{Command: "get_registration", Description: "Ver texto de registro actual"},
	{Command: "set_registration", Description: "Cambiar mensaje de registro (admins/owner)"},
	{Command: "reset_registration", Description: "Restaurar mensaje de registro por defecto (admins/owner)"},
	{Command: "cancelar", Description: "Cancelar operación en curso"},
	{Command: "get_welcome_delete", Description: "Ver el tiempo de auto-borrado actual"},
	{Command: "set_welcome_delete", Description: "Cambiar auto-borrado de bienvenida (admins/owner)"},
	{Command: "reset_welcome_delete", Description: "Volver al auto-borrado global (.env)"},
	{Command: "clean_chat", Description: "Eliminar últimos N mensajes no fijados (admins)"},
	{Command: "set_auto_clean", Description: "Programar limpieza automática por horas (admins)"},
	{Command: "get_auto_clean", Description: "Ver la limpieza automática de este chat"},
}

const helpText = "🤖 <b>Comandos disponibles</b>\n" +
	"/help — Ver esta ayuda\n" +
	"/whoami — Ver tu user_id\n" +
	"/debug_admin — Debug de permisos de admin\n" +
	"/id — Mostrar chat_id y (si aplica) topic_id\n" +
	"/test_welcome — Probar mensaje único combinado\n\n" +
	"<b>📝 Mensajes de bienvenida:</b>\n" +
	"/get_welcome — Ver texto de bienvenida actual\n" +
	"/set_welcome — Cambiar bienvenida (admins/owner)\n" +
	"/reset_welcome — Restaurar bienvenida por defecto\n\n" +
	"<b>🧹 Auto-borrado de bienvenida:</b>\n" +
	"/get_welcome_delete — Ver tiempo de auto-borrado\n" +
	"/set_welcome_delete &lt;segundos|off&gt; — Cambiar auto-borrado en este chat\n" +
	"/reset_welcome_delete — Volver al valor global (.env)\n\n" +
	"<b>📋 Mensajes de registro:</b>\n" +
	"/get_registration — Ver texto de registro actual\n" +
	"/set_registration — Cambiar mensaje de registro (admins/owner)\n" +
	"/reset_registration — Restaurar mensaje de registro por defecto\n\n" +
	"/cancelar — Cancelar operación en curso\n\n" +
	"<b>🧹 Limpieza del chat:</b>\n" +
	"/clean_chat [N] — Borra los últimos N mensajes no fijados (admins)\n" +
	"/set_auto_clean &lt;horas|off&gt; — Programa limpieza automática (admins)\n" +
	"/get_auto_clean — Ver la limpieza automática programada\n"

// PublishCommands registers Commands with the platform.
func (b *Bot) PublishCommands(ctx context.Context) error {
	if b.bot == nil {
		return nil
	}
	if _, err := b.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: Commands}); err != nil {
		return fmt.Errorf("set my commands: %w", err)
	}
	return nil
}
