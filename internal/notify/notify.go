// Package notify delivers story announcements to every subscriber of an
// account.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"story_bot/internal/metrics"
	"story_bot/internal/model"
)

// DefaultRate is the outbound message budget per second.
const DefaultRate = 20

// Sender delivers one message to one chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, opts model.RenderOptions) error
}

// Result counts the outcome of one fan-out.
type Result struct {
	Sent   int
	Failed int
}

// Fanout sends a notification to each subscriber independently.
type Fanout struct {
	sender  Sender
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Fanout limited to perSecond messages per second.
func New(sender Sender, perSecond int, log *slog.Logger) *Fanout {
	if perSecond <= 0 {
		perSecond = DefaultRate
	}
	return &Fanout{
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		log:     log,
	}
}

// NotifyAll announces item of account to every subscriber. A failed send is
// logged and counted and never stops delivery to the others. Cancellation
// stops the fan-out and counts the remaining subscribers as failed.
func (f *Fanout) NotifyAll(ctx context.Context, account string, item model.Item, subscribers []int64) Result {
	text := FormatNotification(account, item)
	opts := model.RenderOptions{
		ParseMode:             tgbotapi.ModeMarkdown,
		DisableWebPagePreview: true,
	}

	var res Result
	for i, chatID := range subscribers {
		if err := f.limiter.Wait(ctx); err != nil {
			res.Failed += len(subscribers) - i
			f.log.Warn("notification fan-out aborted", "account", account, "story_id", item.ID, "remaining", len(subscribers)-i, "error", err)
			break
		}

		err := f.sender.Send(ctx, chatID, text, opts)
		metrics.RecordNotification(err)
		if err != nil {
			res.Failed++
			f.log.Error("send notification", "account", account, "story_id", item.ID, "chat_id", chatID, "error", err)
			continue
		}
		res.Sent++
		f.log.Debug("notification sent", "account", account, "story_id", item.ID, "chat_id", chatID)
	}
	return res
}

// FormatNotification renders the Markdown announcement of a new story.
func FormatNotification(account string, item model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New story from @%s\n", tgbotapi.EscapeText(tgbotapi.ModeMarkdown, account))
	fmt.Fprintf(&b, "It's a %s", kindLabel(item.Kind))
	if !item.TakenAt.IsZero() {
		t := item.TakenAt.UTC()
		fmt.Fprintf(&b, ", posted around %s on %s (UTC)", t.Format("3:04 PM"), t.Format("Jan 2, 2006"))
	}
	b.WriteString(".")
	return b.String()
}

func kindLabel(k model.MediaKind) string {
	switch k {
	case model.MediaVideo:
		return "video"
	case model.MediaImage:
		return "photo"
	default:
		return "story"
	}
}
