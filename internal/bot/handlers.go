package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/flashbot/internal/database"
	"github.com/example/flashbot/internal/excel"
	"github.com/example/flashbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Constants for callback data
const (
	callbackMainMenu     = "main_menu"
	callbackReview       = "review"
	callbackStats        = "stats"
	callbackCodes        = "codes"
	callbackHelp         = "help"
	callbackReset        = "reset"
	callbackResetConfirm = "reset_confirm"
	callbackResetCancel  = "reset_cancel"
	callbackWait         = "wait"
)

// Telegram rejects longer messages
const maxMessageLength = 4096

// MainMenuButtons returns the main menu keyboard layout
func (b *Bot) MainMenuButtons() [][]MenuButton {
	return [][]MenuButton{
		{{Text: "▶️ Review", CallbackData: callbackReview}},
		{{Text: "📊 Statistics", CallbackData: callbackStats}, {Text: "📋 Codes", CallbackData: callbackCodes}},
		{{Text: "❓ Help", CallbackData: callbackHelp}, {Text: "🗑 Reset", CallbackData: callbackReset}},
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	if err := b.registerUser(ctx, message.From); err != nil {
		return err
	}

	chatID := message.Chat.ID
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(message)
	case "help":
		err = b.handleHelp(chatID)
	case "review":
		err = b.startReview(ctx, message.From.ID, chatID)
	case "stats":
		err = b.handleStats(ctx, message.From.ID, chatID)
	case "codes":
		err = b.handleCodes(ctx, chatID)
	case "add":
		err = b.handleAdd(ctx, message)
	case "import":
		err = b.handleImportCommand(message)
	case "reset":
		err = b.handleReset(chatID)
	case "notify":
		err = b.handleNotifyCommand(ctx, message)
	case "time":
		err = b.handleTimeCommand(ctx, message)
	default:
		err = b.handleUnknownCommand(chatID)
	}
	return err
}

// HandleMessage handles plain messages: catalog uploads after /import
func (b *Bot) HandleMessage(ctx context.Context, message *tgbotapi.Message) error {
	st, ok := b.cachedState(message.From.ID)
	if ok {
		st.mu.Lock()
		awaiting := st.awaitingImport
		st.awaitingImport = false
		st.mu.Unlock()

		if awaiting {
			return b.processImport(ctx, message)
		}
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, "I don't understand. Use /help to see the available commands.")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.From == nil {
		return fmt.Errorf("invalid callback data: required fields are missing")
	}

	if strings.HasPrefix(callback.Data, prefixFlip) ||
		strings.HasPrefix(callback.Data, prefixOK) ||
		strings.HasPrefix(callback.Data, prefixMiss) {
		return b.handleReviewCallback(callback)
	}
	if callback.Data == callbackWait {
		b.answerCallback(callback.ID, "⏳ Take a moment to memorize the code…")
		return nil
	}

	// Always send an answer to the callback query to remove the loading state
	b.answerCallback(callback.ID, "")

	chatID := callback.Message.Chat.ID
	userID := callback.From.ID

	switch callback.Data {
	case callbackMainMenu:
		return b.showMainMenu(chatID)
	case callbackReview:
		return b.startReview(ctx, userID, chatID)
	case callbackStats:
		return b.handleStats(ctx, userID, chatID)
	case callbackCodes:
		return b.handleCodes(ctx, chatID)
	case callbackHelp:
		return b.handleHelp(chatID)
	case callbackReset:
		return b.handleReset(chatID)
	case callbackResetConfirm:
		return b.handleResetConfirm(ctx, callback)
	case callbackResetCancel:
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, callback.Message.MessageID,
			"Reset cancelled. Your progress is safe.", createKeyboard(b.MainMenuButtons()))
		return b.editMessage(edit)
	default:
		return b.sendMessage(tgbotapi.NewMessage(chatID, "⚠️ Unknown action"))
	}
}

func (b *Bot) registerUser(ctx context.Context, from *tgbotapi.User) error {
	_, err := b.users.GetByID(ctx, from.ID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return err
	}

	user := &models.User{
		ID:                  from.ID,
		Username:            from.UserName,
		FirstName:           from.FirstName,
		NotificationEnabled: true,
		NotificationHour:    b.config.DefaultNotificationHour,
	}
	if err := b.users.Register(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	b.log.Info("user registered", zap.Int64("user", from.ID), zap.String("username", from.UserName))
	return nil
}

func (b *Bot) handleStart(message *tgbotapi.Message) error {
	text := fmt.Sprintf("👋 Welcome, %s!\n\n", message.From.FirstName) +
		"I help you memorize product codes with spaced repetition.\n\n" +
		"🔹 How it works:\n" +
		"1. I show a product, you recall its code\n" +
		"2. Tap \"Show code\" to check yourself\n" +
		"3. Tell me whether you knew it\n" +
		"4. Missed cards come back later in the same review, known cards come back after days"

	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleHelp(chatID int64) error {
	text := "📖 Help\n\n" +
		"/review - Start a review\n" +
		"/stats - Show your statistics\n" +
		"/codes - List all product codes\n" +
		"/add <code> <name> - Add a product\n" +
		"/reset - Erase your progress\n" +
		"/notify on|off - Turn reminders on or off\n" +
		"/time <hour> - Set the reminder hour (0-23)\n" +
		"/import - Upload a catalog (admins only)\n\n" +
		"🔄 Review intervals: 1 day, 3 days, then growing with how easy the card is for you."

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "⬅️ Back to menu", CallbackData: callbackMainMenu}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) showMainMenu(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "🤖 Main menu")
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleStats(ctx context.Context, userID, chatID int64) error {
	cards, err := b.cards.GetAll(ctx)
	if err != nil {
		return err
	}

	st := b.state(userID, chatID)
	global := st.scheduler.GlobalStats()

	var total models.ReviewStat
	var next *models.ReviewStat
	now := b.now().UnixMilli()
	for _, stat := range st.scheduler.AllStats() {
		total.TotalAttempts += stat.TotalAttempts
		total.CorrectAttempts += stat.CorrectAttempts
		if stat.NextReviewAt > now && (next == nil || stat.NextReviewAt < next.NextReviewAt) {
			stat := stat
			next = &stat
		}
	}

	done := min(st.progress.Count(), len(cards))

	var text strings.Builder
	text.WriteString("📊 Your statistics\n\n")
	fmt.Fprintf(&text, "Products in catalog: %d\n", len(cards))
	fmt.Fprintf(&text, "Cards studied: %d\n", global.TotalCards)
	fmt.Fprintf(&text, "Mastered: %d\n", global.MasteredCards)
	fmt.Fprintf(&text, "Due for review: %d\n", global.ReviewDueCount)
	fmt.Fprintf(&text, "Accuracy: %.0f%% (%d/%d)\n", total.Accuracy()*100, total.CorrectAttempts, total.TotalAttempts)
	if next != nil {
		fmt.Fprintf(&text, "Next card due: %s\n", next.NextReview().In(b.now().Location()).Format("02 Jan 15:04"))
	}
	text.WriteString("\n")
	fmt.Fprintf(&text, "Today: %s %d/%d", progressBar(done, len(cards), 10), done, len(cards))

	msg := tgbotapi.NewMessage(chatID, text.String())
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

func (b *Bot) handleCodes(ctx context.Context, chatID int64) error {
	cards, err := b.cards.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		return b.sendMessage(tgbotapi.NewMessage(chatID, "📭 The catalog is empty."))
	}

	lines := make([]string, 0, len(cards)+1)
	lines = append(lines, fmt.Sprintf("📋 Product codes (%d):\n", len(cards)))
	for _, c := range cards {
		lines = append(lines, fmt.Sprintf("%s - %s", c.Back, c.Front))
	}

	for _, chunk := range splitMessage(lines, maxMessageLength) {
		if err := b.sendMessage(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) handleAdd(ctx context.Context, message *tgbotapi.Message) error {
	code, name, err := excel.ParseLine(message.CommandArguments())
	if err != nil {
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "Please specify the product: /add <code> <name>"))
	}

	card := &models.Card{Front: name, Back: code}
	err = b.cards.Create(ctx, card)
	switch {
	case errors.Is(err, database.ErrDuplicateCode):
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("⚠️ Code %s already exists.", code)))
	case errors.Is(err, database.ErrInvalidCard):
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "⚠️ The code must contain digits only."))
	case err != nil:
		return err
	}

	b.log.Info("card added", zap.Int64("card", card.ID), zap.String("code", card.Back), zap.Int64("by", message.From.ID))
	return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("✅ Added %s - %s", card.Back, card.Front)))
}

func (b *Bot) handleImportCommand(message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		msg := tgbotapi.NewMessage(message.Chat.ID, "This command is only available for administrators.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		return b.sendMessage(msg)
	}

	st := b.state(message.From.ID, message.Chat.ID)
	st.mu.Lock()
	st.awaitingImport = true
	st.mu.Unlock()

	text := "📥 Send an .xlsx or .csv file (code in column A, name in column B, first row is a header)\n" +
		"or a message with one product per line:\n\n4011 - Banana\n4131 - Apple"
	return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, text))
}

func (b *Bot) processImport(ctx context.Context, message *tgbotapi.Message) error {
	var (
		result *excel.ImportResult
		err    error
	)

	if doc := message.Document; doc != nil {
		body, derr := b.download(ctx, doc.FileID)
		if derr != nil {
			return derr
		}
		defer body.Close()
		result, err = excel.Import(ctx, body, doc.FileName, excel.DefaultImportConfig(), b.cards)
	} else {
		result, err = excel.Import(ctx, strings.NewReader(message.Text), "message.txt", excel.DefaultImportConfig(), b.cards)
	}
	if err != nil {
		b.log.Warn("import failed", zap.Error(err))
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, fmt.Sprintf("❌ Import failed: %v", err)))
	}

	b.log.Info("catalog imported",
		zap.Int64("by", message.From.ID),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))

	msg := tgbotapi.NewMessage(message.Chat.ID, "📥 Import finished\n\n"+result.Summary())
	msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
	return b.sendMessage(msg)
}

// download fetches a file the user sent to the bot
func (b *Bot) download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get file URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (b *Bot) handleReset(chatID int64) error {
	msg := tgbotapi.NewMessage(chatID, "⚠️ This erases all your review history and today's progress. Continue?")
	msg.ReplyMarkup = createKeyboard([][]MenuButton{
		{{Text: "🗑 Yes, reset", CallbackData: callbackResetConfirm}, {Text: "Cancel", CallbackData: callbackResetCancel}},
	})
	return b.sendMessage(msg)
}

func (b *Bot) handleResetConfirm(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	st := b.state(callback.From.ID, callback.Message.Chat.ID)

	st.mu.Lock()
	st.endSession(nil)
	st.scheduler.Reset()
	st.progress.Reset()
	st.mu.Unlock()

	if err := st.store.Clear(ctx); err != nil {
		return err
	}
	// Clear removed the saved date, write the empty day back
	st.progress.Reset()

	b.log.Info("progress reset", zap.Int64("user", callback.From.ID))
	edit := tgbotapi.NewEditMessageTextAndMarkup(callback.Message.Chat.ID, callback.Message.MessageID,
		"✅ Your progress was reset.", createKeyboard(b.MainMenuButtons()))
	return b.editMessage(edit)
}

func (b *Bot) handleNotifyCommand(ctx context.Context, message *tgbotapi.Message) error {
	var enabled bool
	switch strings.ToLower(strings.TrimSpace(message.CommandArguments())) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "Please specify on or off: /notify <on|off>"))
	}

	if err := b.users.SetNotificationEnabled(ctx, message.From.ID, enabled); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	text := fmt.Sprintf("✅ Reminders %s", boolToEnabledString(enabled))
	return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, text))
}

func (b *Bot) handleTimeCommand(ctx context.Context, message *tgbotapi.Message) error {
	args := strings.TrimSpace(message.CommandArguments())
	if args == "" {
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "Please specify the hour (0-23): /time <hour>"))
	}

	hour, err := strconv.Atoi(args)
	if err != nil || hour < 0 || hour > 23 {
		return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, "Please specify a valid hour (0-23)"))
	}

	if err := b.users.SetNotificationHour(ctx, message.From.ID, hour); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}

	text := fmt.Sprintf("✅ Reminder time set to %d:00", hour)
	return b.sendMessage(tgbotapi.NewMessage(message.Chat.ID, text))
}

func (b *Bot) handleUnknownCommand(chatID int64) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, "Unknown command. Use /help to see the available commands."))
}

// boolToEnabledString converts a boolean to a human-readable enabled/disabled string
func boolToEnabledString(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// splitMessage joins lines into chunks no longer than limit
func splitMessage(lines []string, limit int) []string {
	var (
		chunks []string
		sb     strings.Builder
	)
	for _, line := range lines {
		if sb.Len() > 0 && sb.Len()+len(line)+1 > limit {
			chunks = append(chunks, sb.String())
			sb.Reset()
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(line)
	}
	if sb.Len() > 0 {
		chunks = append(chunks, sb.String())
	}
	return chunks
}
