package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/vnmetals/silverwatch/internal/detector"
	"github.com/vnmetals/silverwatch/internal/models"
	"github.com/vnmetals/silverwatch/internal/registry"
	"github.com/vnmetals/silverwatch/internal/scheduler"
)

func TestNewClient_InvalidGroupChatID(t *testing.T) {
	// The bot token validation happens first (network call), so we use a
	// clearly invalid format to exercise the chat ID parsing error path.
	_, err := NewClient("", "not-a-number", 3, time.Second)
	if err == nil {
		t.Error("Expected error for invalid group chat ID, got nil")
	}
}

func TestUnreachableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bot blocked", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, true},
		{"chat not found", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, true},
		{"deactivated", &tgbotapi.Error{Code: 400, Message: "Forbidden: user is deactivated"}, true},
		{"rate limited", &tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, false},
		{"server error", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, false},
		{"plain error", errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unreachable(tt.err); got != tt.want {
				t.Errorf("unreachable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type memPersister struct {
	ids []int64
}

func (p *memPersister) LoadSubscribers() ([]int64, error) { return p.ids, nil }
func (p *memPersister) SaveSubscribers(ids []int64) error { p.ids = ids; return nil }

type fixedFetcher struct {
	snapshot models.Snapshot
	err      error
}

func (f *fixedFetcher) Fetch(ctx context.Context) (models.Snapshot, error) {
	return f.snapshot, f.err
}

func newTestShell(t *testing.T, fetcher scheduler.Fetcher, state scheduler.State) (*Shell, *registry.Registry, *detector.Store) {
	t.Helper()
	reg, err := registry.Load(&memPersister{})
	if err != nil {
		t.Fatalf("registry.Load: %v", err)
	}
	store := detector.NewStore(10)
	shell := NewShell(store, reg, fetcher, func() scheduler.State { return state }, "BẠC 999 1KG")
	return shell, reg, store
}

func snapshotWithPrice(buy int64) models.Snapshot {
	snap := models.NewSnapshot(time.Now())
	snap.Prices["BẠC 999 1KG"] = models.PriceRecord{
		ProductName: "BẠC 999 1KG",
		Unit:        "Kg",
		BuyPrice:    buy,
		SellPrice:   buy + 30000,
		ObservedAt:  snap.CapturedAt,
	}
	return snap
}

func TestShellSubscribeLifecycle(t *testing.T) {
	shell, reg, _ := newTestShell(t, &fixedFetcher{}, scheduler.State{})

	reply := shell.Respond(context.Background(), "subscribe", "", 42)
	if !strings.Contains(reply, "Subscribed") {
		t.Errorf("unexpected subscribe reply: %q", reply)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", reg.Len())
	}

	reply = shell.Respond(context.Background(), "subscribe", "", 42)
	if !strings.Contains(reply, "Already") {
		t.Errorf("duplicate subscribe should report already subscribed: %q", reply)
	}

	reply = shell.Respond(context.Background(), "unsubscribe", "", 42)
	if !strings.Contains(reply, "Unsubscribed") {
		t.Errorf("unexpected unsubscribe reply: %q", reply)
	}
	if reg.Len() != 0 {
		t.Errorf("expected 0 subscribers, got %d", reg.Len())
	}

	reply = shell.Respond(context.Background(), "unsubscribe", "", 42)
	if !strings.Contains(reply, "not subscribed") {
		t.Errorf("unexpected second unsubscribe reply: %q", reply)
	}
}

func TestShellStartSubscribes(t *testing.T) {
	shell, reg, _ := newTestShell(t, &fixedFetcher{}, scheduler.State{})

	if reply := shell.Respond(context.Background(), "start", "", 7); !strings.Contains(reply, "Welcome") {
		t.Errorf("unexpected start reply: %q", reply)
	}
	if reg.Len() != 1 {
		t.Errorf("expected /start to subscribe the chat, got %d subscribers", reg.Len())
	}
}

func TestShellPriceUsesFreshFetch(t *testing.T) {
	shell, _, store := newTestShell(t, &fixedFetcher{snapshot: snapshotWithPrice(1020000)}, scheduler.State{})

	reply := shell.Respond(context.Background(), "price", "", 7)
	if !strings.Contains(reply, "1\\.020\\.000") {
		t.Errorf("expected fetched price in reply: %q", reply)
	}
	// On-demand display must never establish a detection baseline.
	if _, ok := store.Last(); ok {
		t.Error("on-demand fetch must not adopt a snapshot")
	}
}

func TestShellPriceFallsBackToLastSnapshot(t *testing.T) {
	shell, _, store := newTestShell(t, &fixedFetcher{err: errors.New("timeout")}, scheduler.State{})
	store.Adopt(snapshotWithPrice(1000000))

	reply := shell.Respond(context.Background(), "price", "", 7)
	if !strings.Contains(reply, "1\\.000\\.000") {
		t.Errorf("expected fallback to last adopted snapshot: %q", reply)
	}
}

func TestShellPriceNothingObserved(t *testing.T) {
	shell, _, _ := newTestShell(t, &fixedFetcher{err: errors.New("timeout")}, scheduler.State{})

	reply := shell.Respond(context.Background(), "price", "", 7)
	if !strings.Contains(reply, "unavailable") {
		t.Errorf("expected unavailable notice: %q", reply)
	}
}

func TestShellHistoryDefaultsToPrimaryProduct(t *testing.T) {
	shell, _, store := newTestShell(t, &fixedFetcher{}, scheduler.State{})
	store.Adopt(snapshotWithPrice(1000000))
	store.Adopt(snapshotWithPrice(1020000))

	reply := shell.Respond(context.Background(), "history", "", 7)
	if !strings.Contains(reply, "BẠC 999 1KG") {
		t.Errorf("expected primary product history: %q", reply)
	}
	if !strings.Contains(reply, "Latest move") {
		t.Errorf("expected latest move line: %q", reply)
	}
}

func TestShellStatus(t *testing.T) {
	state := scheduler.State{ConsecutiveFailures: 4, Alerted: true}
	shell, reg, _ := newTestShell(t, &fixedFetcher{}, state)
	reg.Add(1)
	reg.Add(2)

	reply := shell.Respond(context.Background(), "status", "", 7)
	if !strings.Contains(reply, "source down") {
		t.Errorf("expected alerted health line: %q", reply)
	}
	if !strings.Contains(reply, "Subscribers: 2") {
		t.Errorf("expected subscriber count: %q", reply)
	}
	if !strings.Contains(reply, "never") {
		t.Errorf("expected never-succeeded marker: %q", reply)
	}
}

func TestShellUnknownCommandIsSilent(t *testing.T) {
	shell, _, _ := newTestShell(t, &fixedFetcher{}, scheduler.State{})
	if reply := shell.Respond(context.Background(), "frobnicate", "", 7); reply != "" {
		t.Errorf("unknown command should produce no reply, got %q", reply)
	}
}

type fakeAudit struct {
	count int
	err   error
}

func (f *fakeAudit) NotificationCount() (int, error) { return f.count, f.err }

func TestShellStatusIncludesNotificationCount(t *testing.T) {
	shell, _, _ := newTestShell(t, &fixedFetcher{}, scheduler.State{})
	shell.SetAudit(&fakeAudit{count: 17})

	reply := shell.Respond(context.Background(), "status", "", 7)
	if !strings.Contains(reply, "Notifications sent: 17") {
		t.Errorf("expected notification count in status: %q", reply)
	}
}

func TestShellStatusAuditFailureOmitsCount(t *testing.T) {
	shell, _, _ := newTestShell(t, &fixedFetcher{}, scheduler.State{})
	shell.SetAudit(&fakeAudit{err: errors.New("database is locked")})

	reply := shell.Respond(context.Background(), "status", "", 7)
	if strings.Contains(reply, "Notifications sent") {
		t.Errorf("audit failure should omit the counter, not fail status: %q", reply)
	}
	if !strings.Contains(reply, "Bot status") {
		t.Errorf("status should still render: %q", reply)
	}
}
