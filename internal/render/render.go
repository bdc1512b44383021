// Package render formats outbound Telegram messages. Rendering is
// pure: every function maps domain values to MarkdownV2 text and keeps
// no state, so the message surface can change without touching the
// detection or delivery pipeline.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/vnmetals/silverwatch/internal/models"
)

const timeLayout = "15:04 02/01/2006"

// FormatPrice renders a đồng amount with dot thousand separators,
// e.g. 1234000 -> "1.234.000".
func FormatPrice(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := fmt.Sprintf("%d", n)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
		if len(digits) > lead {
			b.WriteByte('.')
		}
	}
	for i := lead; i < len(digits); i += 3 {
		b.WriteString(digits[i : i+3])
		if i+3 < len(digits) {
			b.WriteByte('.')
		}
	}
	return b.String()
}

// signed prefixes positive amounts with "+" so deltas read as moves.
func signed(n int64) string {
	if n > 0 {
		return "+" + FormatPrice(n)
	}
	return FormatPrice(n)
}

func directionEmoji(delta int64) string {
	switch {
	case delta > 0:
		return "📈"
	case delta < 0:
		return "📉"
	default:
		return "➡️"
	}
}

// ChangeAlert renders one alert message covering every changed product
// in a dispatch cycle.
func ChangeAlert(changes []models.ChangeRecord) string {
	var b strings.Builder
	b.WriteString("🚨 *Silver price update*\n\n")

	for _, c := range changes {
		b.WriteString(fmt.Sprintf("%s *%s*\n", directionEmoji(c.BuyDelta()), escapeMarkdownV2(c.ProductName)))
		if c.IsNew {
			b.WriteString(fmt.Sprintf("   🆕 Now quoted at %s VND\n", escapeMarkdownV2(FormatPrice(c.Current.BuyPrice))))
		} else {
			b.WriteString(fmt.Sprintf("   💵 Buy: %s → %s VND \\(%s, %s\\)\n",
				escapeMarkdownV2(FormatPrice(c.Previous.BuyPrice)),
				escapeMarkdownV2(FormatPrice(c.Current.BuyPrice)),
				escapeMarkdownV2(signed(c.BuyDelta())),
				escapeMarkdownV2(fmt.Sprintf("%+.2f%%", c.BuyDeltaPct()))))
			if c.SellDelta() != 0 {
				b.WriteString(fmt.Sprintf("   💴 Sell: %s → %s VND\n",
					escapeMarkdownV2(FormatPrice(c.Previous.SellPrice)),
					escapeMarkdownV2(FormatPrice(c.Current.SellPrice))))
			}
		}
		if c.Current.HasSellPrice() {
			b.WriteString(fmt.Sprintf("   📊 Spread: %s VND \\(%s\\)\n",
				escapeMarkdownV2(FormatPrice(c.Current.Spread())),
				escapeMarkdownV2(fmt.Sprintf("%.2f%%", c.Current.SpreadPct()))))
		}
		b.WriteString("\n")
	}

	if len(changes) > 0 {
		b.WriteString(fmt.Sprintf("🕐 %s", escapeMarkdownV2(changes[len(changes)-1].Current.ObservedAt.Format(timeLayout))))
	}
	return b.String()
}

// CurrentPrices renders the full current quotation table.
func CurrentPrices(snapshot models.Snapshot) string {
	var b strings.Builder
	b.WriteString("💰 *Current silver prices*\n\n")
	writeProductLines(&b, snapshot)
	b.WriteString(fmt.Sprintf("🕐 %s", escapeMarkdownV2(snapshot.CapturedAt.Format(timeLayout))))
	return b.String()
}

func writeProductLines(b *strings.Builder, snapshot models.Snapshot) {
	for _, name := range snapshot.ProductNames() {
		r := snapshot.Prices[name]
		b.WriteString(fmt.Sprintf("🔸 *%s*\n", escapeMarkdownV2(name)))
		if r.Unit != "" {
			b.WriteString(fmt.Sprintf("   📊 Unit: %s\n", escapeMarkdownV2(r.Unit)))
		}
		b.WriteString(fmt.Sprintf("   💵 Buy: %s VND\n", escapeMarkdownV2(FormatPrice(r.BuyPrice))))
		if r.HasSellPrice() {
			b.WriteString(fmt.Sprintf("   💴 Sell: %s VND\n", escapeMarkdownV2(FormatPrice(r.SellPrice))))
			b.WriteString(fmt.Sprintf("   📊 Spread: %s VND \\(%s\\)\n",
				escapeMarkdownV2(FormatPrice(r.Spread())),
				escapeMarkdownV2(fmt.Sprintf("%.2f%%", r.SpreadPct()))))
		} else {
			b.WriteString("   💴 Sell: not offered\n")
		}
		b.WriteString("\n")
	}
}

// ScheduledUpdate renders the fixed-time group price update. The
// movement line against the previous snapshot is included only for
// the primary product and only when the buy price moved by more than
// 0.1%, matching the noise floor of the periodic update.
func ScheduledUpdate(current models.Snapshot, previous *models.Snapshot, primary string) string {
	var b strings.Builder
	b.WriteString("🔔 *Periodic silver price update*\n\n")
	writeProductLines(&b, current)

	if previous != nil {
		cur, haveCur := current.Prices[primary]
		prev, havePrev := previous.Prices[primary]
		if haveCur && havePrev && prev.BuyPrice > 0 {
			delta := cur.BuyPrice - prev.BuyPrice
			pct := float64(delta) / float64(prev.BuyPrice) * 100
			if pct > 0.1 || pct < -0.1 {
				b.WriteString(fmt.Sprintf("%s *Movement:* %s VND \\(%s\\)\n\n",
					directionEmoji(delta),
					escapeMarkdownV2(signed(delta)),
					escapeMarkdownV2(fmt.Sprintf("%+.2f%%", pct))))
			}
		}
	}

	b.WriteString(fmt.Sprintf("🕐 %s", escapeMarkdownV2(current.CapturedAt.Format(timeLayout))))
	return b.String()
}

// DailySummary renders the end-of-day report for one product: the
// day's high, low, and current buy price plus the trading range.
func DailySummary(product string, high, low, current int64, at time.Time) string {
	var b strings.Builder
	b.WriteString("📊 *End\\-of\\-day silver report*\n\n")
	b.WriteString(fmt.Sprintf("🔸 *%s*\n\n", escapeMarkdownV2(product)))
	b.WriteString(fmt.Sprintf("📈 Highest: %s VND\n", escapeMarkdownV2(FormatPrice(high))))
	b.WriteString(fmt.Sprintf("📉 Lowest: %s VND\n", escapeMarkdownV2(FormatPrice(low))))
	b.WriteString(fmt.Sprintf("💰 Current: %s VND\n\n", escapeMarkdownV2(FormatPrice(current))))
	b.WriteString(fmt.Sprintf("📊 Range: %s VND\n", escapeMarkdownV2(FormatPrice(high-low))))
	if low > 0 {
		b.WriteString(fmt.Sprintf("📊 Range pct: %s\n", escapeMarkdownV2(fmt.Sprintf("%.2f%%", float64(high-low)/float64(low)*100))))
	}
	b.WriteString(fmt.Sprintf("\n🕐 %s", escapeMarkdownV2(at.Format(timeLayout))))
	return b.String()
}

// SpreadSummary renders buy/sell spreads for every product that quotes
// a sell price.
func SpreadSummary(snapshot models.Snapshot) string {
	var b strings.Builder
	b.WriteString("📊 *Buy/sell spreads*\n\n")
	any := false
	for _, name := range snapshot.ProductNames() {
		r := snapshot.Prices[name]
		if !r.HasSellPrice() {
			continue
		}
		any = true
		b.WriteString(fmt.Sprintf("🔸 *%s*\n   📈 %s VND \\(%s\\)\n\n",
			escapeMarkdownV2(name),
			escapeMarkdownV2(FormatPrice(r.Spread())),
			escapeMarkdownV2(fmt.Sprintf("%.2f%%", r.SpreadPct()))))
	}
	if !any {
		b.WriteString("No products currently quote a sell price\\.")
	}
	return b.String()
}

// History renders the buy price trail of one product across the given
// snapshots, newest last, capped at limit entries.
func History(snapshots []models.Snapshot, product string, limit int) string {
	var entries []models.PriceRecord
	for _, snap := range snapshots {
		if r, ok := snap.Prices[product]; ok {
			entries = append(entries, r)
		}
	}
	if len(entries) == 0 {
		return "📊 No price history recorded yet\\."
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 *Price history: %s*\n\n", escapeMarkdownV2(product)))
	for _, r := range entries {
		b.WriteString(fmt.Sprintf("🕐 %s: %s VND\n",
			escapeMarkdownV2(r.ObservedAt.Format(timeLayout)),
			escapeMarkdownV2(FormatPrice(r.BuyPrice))))
	}

	if len(entries) >= 2 {
		last := entries[len(entries)-1]
		prev := entries[len(entries)-2]
		delta := last.BuyPrice - prev.BuyPrice
		var pct float64
		if prev.BuyPrice > 0 {
			pct = float64(delta) / float64(prev.BuyPrice) * 100
		}
		b.WriteString(fmt.Sprintf("\n%s *Latest move:* %s VND \\(%s\\)",
			directionEmoji(delta),
			escapeMarkdownV2(signed(delta)),
			escapeMarkdownV2(fmt.Sprintf("%+.2f%%", pct))))
	}
	return b.String()
}

// HealthAlert renders the throttled sustained-outage notice for the
// group destination.
func HealthAlert(failures int, lastSuccess time.Time) string {
	var since string
	if lastSuccess.IsZero() {
		since = "no successful fetch since startup"
	} else {
		since = fmt.Sprintf("last success %s ago", time.Since(lastSuccess).Round(time.Minute))
	}
	return fmt.Sprintf("⚠️ *Price source unavailable*\n%d consecutive failed fetches, %s\\.",
		failures, escapeMarkdownV2(since))
}

// Recovery renders the notice sent once a sustained outage ends.
func Recovery(failures int) string {
	return fmt.Sprintf("✅ *Price source recovered* after %d consecutive failure\\(s\\)", failures)
}

// Escape escapes special characters for Telegram MarkdownV2. Dynamic
// text interpolated into hand-built messages must pass through it.
func Escape(text string) string {
	return escapeMarkdownV2(text)
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
