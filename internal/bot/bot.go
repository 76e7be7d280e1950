package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/example/flashbot/internal/database"
	"github.com/example/flashbot/internal/session"
	"github.com/example/flashbot/internal/spaced_repetition"
	"github.com/example/flashbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jmoiron/sqlx"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// sender is the part of the Telegram API the bot uses
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// userState is everything the bot keeps in memory for one user.
// The scheduler and progress are loaded from the database on first use.
type userState struct {
	mu        sync.Mutex
	userID    int64
	chatID    int64
	store     *database.StateRepository
	scheduler *spaced_repetition.Scheduler
	progress  *session.Progress

	session   *session.Session
	cards     map[int64]models.Card
	messageID int
	popups    int

	awaitingImport bool
}

// close cancels a pending miss of the active session
func (u *userState) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.endSession(nil)
}

// endSession drops the active session if it is s, or any session when s is nil
func (u *userState) endSession(s *session.Session) {
	if u.session == nil || (s != nil && u.session != s) {
		return
	}
	u.session.Close()
	u.session = nil
}

// activeSession returns the running session with the given id, nil when stale
func (u *userState) activeSession(sid string) *session.Session {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil || u.session.ID() != sid {
		return nil
	}
	return u.session
}

// Bot represents the Telegram bot application
type Bot struct {
	api    sender
	db     *sqlx.DB
	cards  *database.CardRepository
	users  *database.UserRepository
	config *BotConfig
	states *cache.Cache
	admins map[int64]bool
	log    *zap.Logger
	http   *http.Client

	now   func() time.Time
	after session.AfterFunc
}

// New creates a new bot instance
func New(api sender, db *sqlx.DB, config *BotConfig, log *zap.Logger) *Bot {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	b := &Bot{
		api:    api,
		db:     db,
		cards:  database.NewCardRepository(db),
		users:  database.NewUserRepository(db),
		config: config,
		states: cache.New(config.SessionIdle, 10*time.Minute),
		admins: make(map[int64]bool),
		log:    log,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
	for _, id := range config.AdminUserIDs {
		b.admins[id] = true
	}

	b.states.OnEvicted(func(key string, v interface{}) {
		if st, ok := v.(*userState); ok {
			st.close()
			b.log.Debug("user state evicted", zap.String("user", key))
		}
	})
	return b
}

// Run handles updates until ctx is done or the channel is closed
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	b.log.Info("bot is running")
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// Stop cancels pending answers of every cached user
func (b *Bot) Stop() {
	for _, item := range b.states.Items() {
		if st, ok := item.Object.(*userState); ok {
			st.close()
		}
	}
	b.log.Info("bot stopped")
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var (
		chatID int64
		err    error
	)

	switch {
	case update.Message != nil && update.Message.From != nil:
		chatID = update.Message.Chat.ID
		if update.Message.IsCommand() {
			err = b.HandleCommand(ctx, update.Message)
		} else {
			err = b.HandleMessage(ctx, update.Message)
		}
	case update.CallbackQuery != nil:
		if update.CallbackQuery.Message != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		err = b.HandleCallback(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		b.log.Error("failed to handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
		if chatID != 0 {
			_ = b.sendMessage(tgbotapi.NewMessage(chatID, "❌ Something went wrong. Please try again later."))
		}
	}
}

// state returns the cached state of a user, loading it on first use
func (b *Bot) state(userID, chatID int64) *userState {
	key := strconv.FormatInt(userID, 10)
	if v, ok := b.states.Get(key); ok {
		st := v.(*userState)
		// Refresh the idle timer
		b.states.Set(key, st, cache.DefaultExpiration)
		return st
	}

	store := database.NewStateRepository(b.db, userID)
	log := b.log.With(zap.Int64("user", userID))
	st := &userState{
		userID: userID,
		chatID: chatID,
		store:  store,
		scheduler: spaced_repetition.NewScheduler(store,
			spaced_repetition.WithClock(b.now),
			spaced_repetition.WithLogger(log.Named("scheduler"))),
		progress: session.NewProgress(store, b.now, log.Named("progress")),
	}

	if err := b.states.Add(key, st, cache.DefaultExpiration); err != nil {
		// Another update loaded it first
		if v, ok := b.states.Get(key); ok {
			return v.(*userState)
		}
	}
	return st
}

// cachedState returns the state of a user if it is in memory
func (b *Bot) cachedState(userID int64) (*userState, bool) {
	v, ok := b.states.Get(strconv.FormatInt(userID, 10))
	if !ok {
		return nil, false
	}
	return v.(*userState), true
}

// SendReminders implements the scheduler.Notifier interface
func (b *Bot) SendReminders(userID int64, count int) error {
	// In private chats the chat ID equals the user ID
	msg := tgbotapi.NewMessage(userID, fmt.Sprintf("⏰ You have %d %s waiting for review!", count, plural(count, "card", "cards")))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "▶️ Start review", CallbackData: callbackReview}},
	})

	if err := b.sendMessage(msg); err != nil {
		return fmt.Errorf("failed to send reminder to user %d: %w", userID, err)
	}
	b.log.Info("reminder sent", zap.Int64("user", userID), zap.Int("due", count))
	return nil
}

// DueCount returns how many catalog cards are due for the user: never reviewed or past their review time
func (b *Bot) DueCount(ctx context.Context, userID int64) (int, error) {
	cards, err := b.cards.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	var sched *spaced_repetition.Scheduler
	if st, ok := b.cachedState(userID); ok {
		sched = st.scheduler
	} else {
		sched = spaced_repetition.NewScheduler(database.NewStateRepository(b.db, userID),
			spaced_repetition.WithClock(b.now), spaced_repetition.WithLogger(b.log))
	}

	now := b.now().UnixMilli()
	due := 0
	for _, card := range cards {
		if !sched.HasStats(card.ID) || sched.Stats(card.ID).NextReviewAt <= now {
			due++
		}
	}
	return due, nil
}

// ResetDaily starts a new day of progress for every cached user.
// Users not in memory roll over when their state is next loaded.
func (b *Bot) ResetDaily() int {
	n := 0
	for _, item := range b.states.Items() {
		if st, ok := item.Object.(*userState); ok && st.progress.Rollover() {
			n++
		}
	}
	return n
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	_, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// editMessage applies an edit to an existing message
func (b *Bot) editMessage(msg tgbotapi.Chattable) error {
	if _, err := b.api.Request(msg); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn("failed to answer callback", zap.Error(err))
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
