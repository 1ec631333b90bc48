package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Telegram
	BotToken       string
	AllowedChatIDs map[int64]bool
	SuperAdminIDs  map[int64]bool
	WelcomeTopicID *int

	// Welcome
	WelcomeDeleteSeconds int
	SiteURL              string
	RegisterURL          string

	// Storage
	DBPath  string
	DataDir string

	// Cleanup
	LedgerCapacity       int
	CleanDefaultLimit    int
	CleanMaxLimit        int
	SummaryDeleteSeconds int
	DeleteRPS            float64

	// Observability
	MetricsPort int
	LogLevel    slog.Level
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:       getEnv("BOT_TOKEN", ""),
		AllowedChatIDs: ParseIDs(getEnv("ALLOWED_CHAT_IDS", "")),
		SuperAdminIDs:  ParseIDs(getEnv("SUPER_ADMIN_IDS", "")),

		// Welcome
		WelcomeDeleteSeconds: max(0, getEnvInt("WELCOME_DELETE_SECONDS", 0)),
		SiteURL:              getEnv("SITE_URL", "https://qvaclick.com"),
		RegisterURL:          strings.TrimSuffix(getEnv("REGISTER_URL", "https://www.qvaclick.com/register/"), "?"),

		// Storage
		DBPath:  getEnv("DB_PATH", "./welcome.db"),
		DataDir: getEnv("DATA_DIR", "./data"),

		// Cleanup
		LedgerCapacity:       getEnvInt("LEDGER_CAPACITY", 1000),
		CleanDefaultLimit:    getEnvInt("CLEAN_DEFAULT_LIMIT", 200),
		CleanMaxLimit:        getEnvInt("CLEAN_MAX_LIMIT", 1000),
		SummaryDeleteSeconds: getEnvInt("SUMMARY_DELETE_SECONDS", 5),
		DeleteRPS:            getEnvFloat("DELETE_RPS", 20),

		// Observability
		MetricsPort: getEnvInt("METRICS_PORT", 9090),
		LogLevel:    parseLevel(getEnv("LOG_LEVEL", "info")),
	}

	if raw := getEnv("WELCOME_TOPIC_ID", ""); raw != "" {
		if id, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			cfg.WelcomeTopicID = &id
		}
	}

	if cfg.LedgerCapacity <= 0 {
		cfg.LedgerCapacity = 1000
	}
	if cfg.CleanMaxLimit <= 0 {
		cfg.CleanMaxLimit = 1000
	}
	if cfg.CleanDefaultLimit <= 0 || cfg.CleanDefaultLimit > cfg.CleanMaxLimit {
		cfg.CleanDefaultLimit = min(200, cfg.CleanMaxLimit)
	}

	return cfg
}

// ChatAllowed reports whether the bot should act in chatID. An empty allow
// list means every chat is allowed.
func (c *Config) ChatAllowed(chatID int64) bool {
	return len(c.AllowedChatIDs) == 0 || c.AllowedChatIDs[chatID]
}

// ParseIDs accepts ids separated by commas, semicolons or spaces. Empty and
// non-numeric tokens are ignored.
func ParseIDs(raw string) map[int64]bool {
	ids := make(map[int64]bool)
	raw = strings.NewReplacer(";", ",", " ", ",").Replace(raw)
	for _, idStr := range strings.Split(raw, ",") {
		idStr = strings.TrimSpace(idStr)
		if idStr == "" {
			continue
		}
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}
