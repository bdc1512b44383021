package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vnmetals/silverwatch/internal/detector"
	"github.com/vnmetals/silverwatch/internal/logger"
	"github.com/vnmetals/silverwatch/internal/registry"
	"github.com/vnmetals/silverwatch/internal/render"
	"github.com/vnmetals/silverwatch/internal/scheduler"
)

const helpText = `🤖 *Silver price bot*

/price \- current prices \(fetched on demand\)
/spread \- buy/sell spreads
/history \- recent buy price trail
/subscribe \- receive change alerts in this chat
/unsubscribe \- stop receiving alerts
/status \- bot health
/help \- this message`

// AuditReader exposes the delivery audit counter for status display.
type AuditReader interface {
	NotificationCount() (int, error)
}

// Shell answers bot commands from state the poll loop maintains. The
// on-demand /price fetch never feeds the change detector, so a command
// can not swallow an alert the next poll would have produced.
type Shell struct {
	store          *detector.Store
	reg            *registry.Registry
	fetcher        scheduler.Fetcher
	status         func() scheduler.State
	audit          AuditReader
	primaryProduct string
	historyWindow  time.Duration
}

// NewShell creates a command shell over the bot's live components.
func NewShell(store *detector.Store, reg *registry.Registry, fetcher scheduler.Fetcher, status func() scheduler.State, primaryProduct string) *Shell {
	return &Shell{
		store:          store,
		reg:            reg,
		fetcher:        fetcher,
		status:         status,
		primaryProduct: primaryProduct,
		historyWindow:  24 * time.Hour,
	}
}

// SetAudit enables the notifications-sent counter in /status.
func (s *Shell) SetAudit(a AuditReader) {
	s.audit = a
}

// Respond produces the MarkdownV2 reply for one command, or "" when the
// command is unknown.
func (s *Shell) Respond(ctx context.Context, command, args string, chatID int64) string {
	switch command {
	case "start":
		s.reg.Add(chatID)
		return "👋 *Welcome\\!* This chat is now subscribed to silver price alerts\\.\n\nUse /help to see what I can do\\."
	case "help":
		return helpText
	case "subscribe":
		if s.reg.Add(chatID) {
			return "🔔 Subscribed\\. This chat will receive price change alerts\\."
		}
		return "🔔 Already subscribed\\."
	case "unsubscribe":
		if s.reg.Remove(chatID) {
			return "🔕 Unsubscribed\\. This chat will no longer receive alerts\\."
		}
		return "🔕 This chat was not subscribed\\."
	case "price":
		return s.currentPrices(ctx)
	case "spread":
		snapshot, ok := s.store.Last()
		if !ok {
			return "📊 No prices observed yet\\. Try again after the next poll\\."
		}
		return render.SpreadSummary(snapshot)
	case "history":
		product := strings.TrimSpace(args)
		if product == "" {
			product = s.primaryProduct
		}
		return render.History(s.store.HistoryWithin(s.historyWindow), product, 12)
	case "status":
		return s.statusReport()
	default:
		return ""
	}
}

// currentPrices fetches a fresh snapshot for display. On fetch failure
// it falls back to the last adopted snapshot rather than erroring out.
func (s *Shell) currentPrices(ctx context.Context) string {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	snapshot, err := s.fetcher.Fetch(fetchCtx)
	if err != nil || snapshot.Empty() {
		if err != nil {
			logger.Warn("On-demand fetch failed: %v", err)
		}
		var ok bool
		if snapshot, ok = s.store.Last(); !ok {
			return "💰 Price source is unavailable and no prices have been observed yet\\."
		}
	}
	return render.CurrentPrices(snapshot)
}

func (s *Shell) statusReport() string {
	state := s.status()

	var health string
	switch {
	case state.ConsecutiveFailures == 0:
		health = "🟢 healthy"
	case state.Alerted:
		health = fmt.Sprintf("🔴 source down \\(%d consecutive failures\\)", state.ConsecutiveFailures)
	default:
		health = fmt.Sprintf("🟡 degraded \\(%d consecutive failures\\)", state.ConsecutiveFailures)
	}

	lastSuccess := "never"
	if !state.LastSuccessAt.IsZero() {
		lastSuccess = state.LastSuccessAt.Format("15:04 02/01/2006")
	}

	report := fmt.Sprintf("ℹ️ *Bot status*\n\n%s\n🕐 Last successful poll: %s\n🔔 Subscribers: %d\n🗂 Snapshots in memory: %d",
		health,
		render.Escape(lastSuccess),
		s.reg.Len(),
		s.store.HistoryLen())

	if s.audit != nil {
		if n, err := s.audit.NotificationCount(); err != nil {
			logger.Warn("Failed to read notification count: %v", err)
		} else {
			report += fmt.Sprintf("\n📨 Notifications sent: %d", n)
		}
	}
	return report
}
