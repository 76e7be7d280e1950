package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/flashbot/internal/session"
	"github.com/example/flashbot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Callback data of the review keyboard; the suffix is the session id
const (
	prefixFlip = "flip:"
	prefixOK   = "ok:"
	prefixMiss = "miss:"
)

type popupMessage struct {
	title   string
	message string
}

// Shown in turn after every miss. {product} and {code} are substituted.
var popupMessages = []popupMessage{
	{"Study and memorize!", "Remember: the code of {product} is {code}. Try to keep this number for next time!"},
	{"Keep learning!", "The correct code of {product} is {code}. Practice and you will memorize it!"},
	{"Don't give up!", "The code of {product} is {code}. Review it carefully and you'll get there!"},
	{"Focus on learning!", "Memorize: {product} has the code {code}. You can do it!"},
	{"Try again!", "Write it down: the code of {product} is {code}. Keep practicing!"},
	{"Mistakes are part of it!", "The code of {product} is {code}. Use this moment to learn!"},
	{"Persistence is key!", "Remember well: {product} = code {code}. Keep studying!"},
	{"Every mistake teaches!", "The correct code of {product} is {code}. You will memorize it!"},
	{"Focus on the code!", "{product} has the code {code}. Pay attention to this number!"},
	{"Study time!", "The code of {product} is {code}. Try to picture it and memorize it!"},
}

// startReview builds a new queue from the catalog and shows its first card.
// A running session of the user is closed first.
func (b *Bot) startReview(ctx context.Context, userID, chatID int64) error {
	cards, err := b.cards.GetAll(ctx)
	if err != nil {
		return err
	}

	if len(cards) == 0 {
		msg := tgbotapi.NewMessage(chatID, "📭 The catalog is empty. Add a product with /add <code> <name>.")
		msg.ReplyMarkup = createKeyboard(b.MainMenuButtons())
		return b.sendMessage(msg)
	}

	st := b.state(userID, chatID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.endSession(nil)
	if st.progress.Rollover() {
		b.log.Info("daily progress rolled over", zap.Int64("user", userID))
	}
	st.chatID = chatID
	st.cards = make(map[int64]models.Card, len(cards))
	for _, c := range cards {
		st.cards[c.ID] = c
	}

	queue := session.NewQueue(st.scheduler)
	queue.Initialize(models.CardIDs(cards), b.now())

	opts := []session.Option{
		session.WithThinkTime(b.config.ThinkTime),
		session.WithLogger(b.log.With(zap.Int64("user", userID))),
	}
	if b.after != nil {
		opts = append(opts, session.WithAfterFunc(b.after))
	}
	st.session = session.New(queue, st.progress, opts...)

	id, _ := queue.Current()
	msg := tgbotapi.NewMessage(chatID, b.cardText(st, id, false))
	msg.ReplyMarkup = reviewKeyboard(st.session.ID(), false)

	sent, err := b.api.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send card: %w", err)
	}
	st.messageID = sent.MessageID

	b.log.Info("review started", zap.Int64("user", userID), zap.Int("cards", queue.Len()))
	return nil
}

// handleReviewCallback handles flip, ok and miss presses. Presses from a
// session that is no longer active are answered and otherwise ignored.
func (b *Bot) handleReviewCallback(callback *tgbotapi.CallbackQuery) error {
	var action, sid string
	for _, prefix := range []string{prefixFlip, prefixOK, prefixMiss} {
		if strings.HasPrefix(callback.Data, prefix) {
			action, sid = prefix, strings.TrimPrefix(callback.Data, prefix)
			break
		}
	}

	st := b.state(callback.From.ID, callback.Message.Chat.ID)
	sess := st.activeSession(sid)
	if sess == nil {
		b.answerCallback(callback.ID, "This review has ended. Start a new one with /review.")
		return nil
	}
	if sess.Suspended() {
		b.answerCallback(callback.ID, "⏳ Take a moment to memorize the code…")
		return nil
	}

	chatID, messageID := callback.Message.Chat.ID, callback.Message.MessageID

	switch action {
	case prefixFlip:
		b.answerCallback(callback.ID, "")
		id, ok := sess.Current()
		if !ok {
			return nil
		}
		st.mu.Lock()
		text := b.cardText(st, id, true)
		st.mu.Unlock()
		return b.editMessage(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, reviewKeyboard(sid, true)))

	case prefixOK:
		out, err := sess.Correct()
		if err != nil {
			return b.answerSessionError(callback.ID, err)
		}
		b.answerCallback(callback.ID, "✅")
		return b.showOutcome(st, sess, chatID, messageID, out)

	default:
		return b.handleMiss(st, sess, callback, chatID, messageID)
	}
}

// handleMiss captures the miss, then shows the educational popup for the
// captured card with the buttons disabled. The next card is shown once the
// think-time elapsed and the miss was applied.
func (b *Bot) handleMiss(st *userState, sess *session.Session, callback *tgbotapi.CallbackQuery, chatID int64, messageID int) error {
	id, err := sess.Incorrect(func(out session.Outcome) {
		if err := b.showOutcome(st, sess, chatID, messageID, out); err != nil {
			b.log.Error("failed to show next card", zap.Int64("user", st.userID), zap.Error(err))
		}
	})
	if err != nil {
		return b.answerSessionError(callback.ID, err)
	}

	st.mu.Lock()
	card := st.card(id)
	popup := popupMessages[st.popups%len(popupMessages)]
	st.popups++
	st.mu.Unlock()

	if b.config.ThinkTime <= 0 {
		b.answerCallback(callback.ID, fmt.Sprintf("%s: code %s", card.Front, card.Back))
		return nil
	}

	b.answerCallback(callback.ID, "")
	text := popupText(popup, card, b.config.ThinkTime.Seconds())
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, waitKeyboard())
	if err := b.editMessage(edit); err != nil {
		b.log.Warn("failed to show miss popup", zap.Error(err))
	}
	return nil
}

// showOutcome replaces the card message with the next card or the completion summary
func (b *Bot) showOutcome(st *userState, sess *session.Session, chatID int64, messageID int, out session.Outcome) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session != sess {
		return nil
	}
	if out.Complete() {
		text := fmt.Sprintf("🎉 All cards reviewed!\n\n%s", b.progressLine(st))
		st.endSession(sess)
		return b.editMessage(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, createKeyboard(b.MainMenuButtons())))
	}

	text := b.cardText(st, out.Next, false)
	return b.editMessage(tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, reviewKeyboard(sess.ID(), false)))
}

func (b *Bot) answerSessionError(callbackID string, err error) error {
	switch {
	case errors.Is(err, session.ErrSuspended):
		b.answerCallback(callbackID, "⏳ Take a moment to memorize the code…")
	case errors.Is(err, session.ErrEmpty), errors.Is(err, session.ErrClosed):
		b.answerCallback(callbackID, "This review has ended. Start a new one with /review.")
	default:
		b.answerCallback(callbackID, "")
		return err
	}
	return nil
}

// card returns the catalog entry of id; u.mu must be held
func (u *userState) card(id int64) models.Card {
	if c, ok := u.cards[id]; ok {
		return c
	}
	return models.Card{ID: id, Front: fmt.Sprintf("#%d", id), Back: "?"}
}

// cardText renders the front of a card, and its back when flipped; st.mu must be held
func (b *Bot) cardText(st *userState, id int64, flipped bool) string {
	card := st.card(id)

	var sb strings.Builder
	fmt.Fprintf(&sb, "🛒 %s\n\n", card.Front)
	if flipped {
		fmt.Fprintf(&sb, "🔢 Code: %s\n\n", card.Back)
	} else {
		sb.WriteString("❓ What is the code?\n\n")
	}
	if st.session != nil {
		fmt.Fprintf(&sb, "Left in this review: %d\n", st.session.Remaining())
	}
	sb.WriteString(b.progressLine(st))
	return sb.String()
}

// progressLine renders today's correct answers against the catalog size; st.mu must be held
func (b *Bot) progressLine(st *userState) string {
	total := len(st.cards)
	done := min(st.progress.Count(), total)
	return fmt.Sprintf("Today: %s %d/%d", progressBar(done, total, 10), done, total)
}

func progressBar(current, total, width int) string {
	filled := 0
	if total > 0 {
		filled = current * width / total
	}
	filled = max(0, min(filled, width))
	return strings.Repeat("▓", filled) + strings.Repeat("░", width-filled)
}

func popupText(p popupMessage, card models.Card, seconds float64) string {
	msg := strings.NewReplacer("{product}", card.Front, "{code}", card.Back).Replace(p.message)
	return fmt.Sprintf("💡 %s\n\nProduct: %s\nCode: %s\n\n%s\n\n⏳ Next card in %.0f seconds…",
		p.title, card.Front, card.Back, msg, seconds)
}

func reviewKeyboard(sid string, flipped bool) tgbotapi.InlineKeyboardMarkup {
	answers := []MenuButton{
		{Text: "✅ I knew it", CallbackData: prefixOK + sid},
		{Text: "❌ I missed it", CallbackData: prefixMiss + sid},
	}
	if flipped {
		return createKeyboard([][]MenuButton{answers})
	}
	return createKeyboard([][]MenuButton{
		{{Text: "🔄 Show code", CallbackData: prefixFlip + sid}},
		answers,
	})
}

// waitKeyboard replaces the answer buttons during the think-time
func waitKeyboard() tgbotapi.InlineKeyboardMarkup {
	return createKeyboard([][]MenuButton{
		{{Text: "⏳ Memorize the code…", CallbackData: callbackWait}},
	})
}
