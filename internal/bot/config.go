package bot

import (
	"time"

	"github.com/example/flashbot/internal/session"
)

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Delay before a missed card is moved back in the queue
	ThinkTime time.Duration
	// Per-user review state is dropped after this much inactivity
	SessionIdle time.Duration
	// Users allowed to import the catalog
	AdminUserIDs []int64
	// Reminder hour given to new users
	DefaultNotificationHour int
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		ThinkTime:               session.DefaultThinkTime,
		SessionIdle:             12 * time.Hour,
		DefaultNotificationHour: 9,
	}
}
