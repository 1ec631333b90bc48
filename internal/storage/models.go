package storage

// Setting keys stored per chat
const (
	KeyWelcomeText      = "welcome_text"
	KeyRegistrationText = "registration_text"
	KeyDeleteSeconds    = "welcome_delete_seconds"
	KeyAutoCleanHours   = "auto_clean_hours"
)

// AutoCleanConfig is the recurring cleanup setting of a chat (0 = disabled)
type AutoCleanConfig struct {
	ChatID        int64
	IntervalHours int
}

// DefaultWelcome is used when a chat has no custom welcome text
const DefaultWelcome = `👋 ¡Bienvenid@ a QvaClick!

🚀 Comunidad para contratar y ofrecer servicios freelance. Impulsamos el trabajo remoto como una vía real de desarrollo personal y económico.

🔗 Empieza aquí: https://qvaclick.com`

// DefaultRegistration is used when a chat has no custom registration text
const DefaultRegistration = `📝 <b>¿Aún no tienes cuenta en QvaClick?</b>
Por favor regístrate para participar según tu rol:

• <b>Freelancer</b>: ofrece tus servicios, crea tu portafolio y recibe propuestas.
• <b>Empleador</b>: publica proyectos, recibe propuestas y contrata con confianza.`
