package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

type telegramClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramNotifier alerts the teacher's chat about bookings and
// cancellations.
type TelegramNotifier struct {
	client telegramClient
	chatID any
	loc    *time.Location
}

// NewTelegramNotifier does not call the Bot API until the first notice.
// chatID is a numeric id or an @channel name.
func NewTelegramNotifier(token, chatID string, loc *time.Location) (*TelegramNotifier, error) {
	b, err := bot.New(token, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramNotifier(b, chatID, loc), nil
}

func newTelegramNotifier(client telegramClient, chatID string, loc *time.Location) *TelegramNotifier {
	if loc == nil {
		loc = time.UTC
	}
	var id any = strings.TrimSpace(chatID)
	if n, err := strconv.ParseInt(chatID, 10, 64); err == nil {
		id = n
	}
	return &TelegramNotifier{client: client, chatID: id, loc: loc}
}

func (t *TelegramNotifier) Booked(ctx context.Context, b model.Booking) error {
	text := fmt.Sprintf("📚 <b>New booking</b>\n%s\n%s &lt;%s&gt;\n%s",
		t.when(b), escapeHTML(b.StudentName), escapeHTML(b.StudentEmail), escapeHTML(b.ServiceType))
	if b.Message != "" {
		text += "\n💬 " + escapeHTML(b.Message)
	}
	return t.send(ctx, text)
}

func (t *TelegramNotifier) Cancelled(ctx context.Context, b model.Booking, by Actor) error {
	who := "student"
	if by == ActorTeacher {
		who = "you"
	}
	text := fmt.Sprintf("❌ <b>Booking cancelled by %s</b>\n%s\n%s\n%s",
		who, t.when(b), escapeHTML(b.StudentName), escapeHTML(b.ServiceType))
	return t.send(ctx, text)
}

func (t *TelegramNotifier) when(b model.Booking) string {
	return b.StartTime.In(t.loc).Format("Mon Jan 2 15:04 MST")
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	_, err := t.client.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeHTML(s string) string { return htmlEscaper.Replace(s) }
