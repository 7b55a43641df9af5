package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
	"github.com/tbourn/go-premium-bot/internal/repo"
)

// ----- Fake sender -----

type sentMessage struct {
	UserID   int64
	Text     string
	WithMenu bool
}

// fakeSender records outbound directives and can simulate per-recipient
// delivery failures (e.g. a user who blocked the bot).
type fakeSender struct {
	mu      sync.Mutex
	user    []sentMessage
	admin   []string
	failFor map[int64]bool
}

func (f *fakeSender) SendToUser(_ context.Context, userID int64, text string, withMenu bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[userID] {
		return errors.New("blocked by user")
	}
	f.user = append(f.user, sentMessage{UserID: userID, Text: text, WithMenu: withMenu})
	return nil
}

func (f *fakeSender) SendToAdmin(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.admin = append(f.admin, text)
	return nil
}

func (f *fakeSender) lastUser(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.user) == 0 {
		t.Fatalf("no user message sent")
	}
	return f.user[len(f.user)-1]
}

const testAdminID int64 = 99

func newTestSession(t *testing.T) (*SessionService, *fakeSender, *gorm.DB) {
	t.Helper()
	db := newServiceDB(t)
	sender := &fakeSender{failFor: map[int64]bool{}}
	keys := NewKeyService(db)
	admin := NewAdminService(db, keys, sender, testAdminID)
	session := NewSessionService(db, keys, admin, sender, "@dev")
	return session, sender, db
}

func mustGetUser(t *testing.T, db *gorm.DB, id int64) *domain.UserAccount {
	t.Helper()
	u, err := repo.GetUser(context.Background(), db, id)
	if err != nil {
		t.Fatalf("GetUser(%d): %v", id, err)
	}
	return u
}

// ----- Command handling -----

func TestHandle_StartGreetsWithMenu(t *testing.T) {
	s, sender, db := newTestSession(t)

	err := s.Handle(context.Background(), Event{
		Kind: EventCommand, UserID: 7, DisplayName: "ann", Command: "start",
	})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	msg := sender.lastUser(t)
	if msg.UserID != 7 || !msg.WithMenu || !strings.Contains(msg.Text, "Hello ann") {
		t.Fatalf("unexpected greeting: %+v", msg)
	}
	u := mustGetUser(t, db, 7)
	if u.DisplayName != "ann" || u.PendingMode != domain.PendingNone {
		t.Fatalf("unexpected account after /start: %+v", u)
	}
}

func TestHandle_UnknownCommandResendsMenu(t *testing.T) {
	s, sender, _ := newTestSession(t)

	if err := s.Handle(context.Background(), Event{
		Kind: EventCommand, UserID: 7, DisplayName: "ann", Command: "help",
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msg := sender.lastUser(t)
	if !msg.WithMenu {
		t.Fatalf("expected menu for unknown command: %+v", msg)
	}
}

func TestHandle_NonAdminPrivilegedCommandIsSilent(t *testing.T) {
	s, sender, db := newTestSession(t)

	if err := s.Handle(context.Background(), Event{
		Kind: EventCommand, UserID: 7, DisplayName: "ann",
		Command: "genk", Args: []string{"30"}, ArgText: "30",
	}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sender.user) != 0 || len(sender.admin) != 0 {
		t.Fatalf("forbidden command must produce no feedback: user=%v admin=%v", sender.user, sender.admin)
	}
	total, err := repo.CountKeys(context.Background(), db)
	if err != nil {
		t.Fatalf("CountKeys: %v", err)
	}
	if total != 0 {
		t.Fatalf("forbidden command must not mutate, %d keys stored", total)
	}
}

// ----- Redeem flow -----

func TestHandle_RedeemFlow_EndToEnd(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	// Press "redeem" on a fresh account: prompt + pending mode.
	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
		t.Fatalf("redeem button: %v", err)
	}
	if msg := sender.lastUser(t); msg.Text != msgRedeemPrompt {
		t.Fatalf("expected details prompt, got %+v", msg)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingRedeemDetails {
		t.Fatalf("pending mode = %q, want redeem details", u.PendingMode)
	}

	// Submit the details: audit + admin notice + confirmation + flag.
	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "need help"}); err != nil {
		t.Fatalf("details: %v", err)
	}
	if len(sender.admin) != 1 || !strings.Contains(sender.admin[0], "need help") || !strings.Contains(sender.admin[0], "7") {
		t.Fatalf("admin notice missing details or user id: %v", sender.admin)
	}
	if msg := sender.lastUser(t); msg.Text != msgRedeemThanks {
		t.Fatalf("expected confirmation, got %+v", msg)
	}
	u := mustGetUser(t, db, 7)
	if !u.FreeRedeemUsed || u.PendingMode != domain.PendingNone {
		t.Fatalf("flow did not settle: %+v", u)
	}
	var audited int64
	if err := db.Model(&domain.RedeemRequest{}).Where("user_id = ?", 7).Count(&audited).Error; err != nil || audited != 1 {
		t.Fatalf("audit rows = %d (err %v), want 1", audited, err)
	}

	// The one free redeem is spent: the next press is denied.
	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
		t.Fatalf("second redeem button: %v", err)
	}
	if msg := sender.lastUser(t); msg.Text != msgRedeemDenied {
		t.Fatalf("expected denial, got %+v", msg)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingNone {
		t.Fatalf("denied press must not set a pending mode: %+v", u)
	}
}

func TestHandle_PremiumRedeemDoesNotConsumeFreeFlag(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	if _, err := repo.TouchUser(ctx, db, 7, "ann"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.SetPremiumUntil(ctx, db, 7, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("premium: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
			t.Fatalf("redeem button #%d: %v", i, err)
		}
		if msg := sender.lastUser(t); msg.Text != msgRedeemPrompt {
			t.Fatalf("premium user must always get the prompt: %+v", msg)
		}
		if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "more please"}); err != nil {
			t.Fatalf("details #%d: %v", i, err)
		}
	}

	if u := mustGetUser(t, db, 7); u.FreeRedeemUsed {
		t.Fatalf("premium submissions must not consume the free redeem: %+v", u)
	}
}

func TestHandle_RedeemDeliveryFailureStillSettles(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
		t.Fatalf("redeem button: %v", err)
	}
	sender.mu.Lock()
	sender.failFor[7] = true
	sender.mu.Unlock()

	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "details"}); err != nil {
		t.Fatalf("delivery failure must not abort the transition: %v", err)
	}
	u := mustGetUser(t, db, 7)
	if !u.FreeRedeemUsed || u.PendingMode != domain.PendingNone {
		t.Fatalf("state transition incomplete despite swallowed send error: %+v", u)
	}
}

// ----- Key activation flow -----

func TestHandle_BuyFlow_EndToEnd(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	issued, err := s.Keys.Issue(ctx, 30)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonBuy}); err != nil {
		t.Fatalf("buy button: %v", err)
	}
	if msg := sender.lastUser(t); msg.Text != msgKeyPrompt {
		t.Fatalf("expected key prompt, got %+v", msg)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingKey {
		t.Fatalf("pending mode = %q, want await key", u.PendingMode)
	}

	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: issued.Token}); err != nil {
		t.Fatalf("activation: %v", err)
	}

	u := mustGetUser(t, db, 7)
	if u.PremiumUntil == nil || !u.PremiumUntil.Equal(issued.ExpiresAt) {
		t.Fatalf("premium window %v, want %v", u.PremiumUntil, issued.ExpiresAt)
	}
	if u.PendingMode != domain.PendingNone {
		t.Fatalf("pending mode not cleared: %+v", u)
	}
	if msg := sender.lastUser(t); !strings.Contains(msg.Text, "Premium activated") {
		t.Fatalf("expected activation confirm, got %+v", msg)
	}
	if len(sender.admin) != 1 || !strings.Contains(sender.admin[0], "ann") || !strings.Contains(sender.admin[0], issued.Token) {
		t.Fatalf("admin notification incomplete: %v", sender.admin)
	}

	// Single-use: the token is gone now.
	if _, err := s.Keys.Consume(ctx, issued.Token); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("token should be consumed, got %v", err)
	}
}

func TestHandle_InvalidKeyClearsPending(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonBuy}); err != nil {
		t.Fatalf("buy button: %v", err)
	}
	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "NOT-A-KEY"}); err != nil {
		t.Fatalf("invalid key: %v", err)
	}

	if msg := sender.lastUser(t); msg.Text != msgInvalidKey {
		t.Fatalf("expected invalid-key message, got %+v", msg)
	}
	u := mustGetUser(t, db, 7)
	if u.PendingMode != domain.PendingNone || u.PremiumUntil != nil {
		t.Fatalf("miss must clear pending and grant nothing: %+v", u)
	}
}

func TestHandle_ExpiredKeyGrantsElapsedWindow(t *testing.T) {
	s, _, db := newTestSession(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	if _, err := repo.CreateKey(ctx, db, "OLDKEY0OLDKEY000", past); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonBuy}); err != nil {
		t.Fatalf("buy button: %v", err)
	}
	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "OLDKEY0OLDKEY000"}); err != nil {
		t.Fatalf("activation: %v", err)
	}

	u := mustGetUser(t, db, 7)
	if u.PremiumUntil == nil || !u.PremiumUntil.Equal(past) {
		t.Fatalf("elapsed window should still be recorded: %+v", u)
	}
	if IsPremiumActive(u.PremiumUntil, time.Now().UTC()) {
		t.Fatalf("elapsed window must not count as active")
	}
}

// ----- Menu behavior -----

func TestHandle_MenuActionOverridesPending(t *testing.T) {
	s, _, db := newTestSession(t)
	ctx := context.Background()

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
		t.Fatalf("redeem button: %v", err)
	}
	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonBuy}); err != nil {
		t.Fatalf("buy button: %v", err)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingKey {
		t.Fatalf("last menu action must win: %+v", u)
	}
}

func TestHandle_StaticButtons(t *testing.T) {
	s, sender, _ := newTestSession(t)
	ctx := context.Background()

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonService}); err != nil {
		t.Fatalf("service button: %v", err)
	}
	if msg := sender.lastUser(t); !strings.Contains(msg.Text, "Spotify") {
		t.Fatalf("expected service list, got %+v", msg)
	}

	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonDev}); err != nil {
		t.Fatalf("dev button: %v", err)
	}
	if msg := sender.lastUser(t); msg.Text != "@dev" {
		t.Fatalf("expected dev contact, got %+v", msg)
	}
}

func TestHandle_FreeTextOutsidePendingResendsMenu(t *testing.T) {
	s, sender, _ := newTestSession(t)

	if err := s.Handle(context.Background(), Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "hello?"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	msg := sender.lastUser(t)
	if msg.Text != msgMenu || !msg.WithMenu {
		t.Fatalf("expected menu resend, got %+v", msg)
	}
}

func TestHandle_UnrecognizedPendingModeResets(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	if _, err := repo.TouchUser(ctx, db, 7, "ann"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Simulate a mode written by a different (newer/older) build.
	if err := db.Model(&domain.UserAccount{}).Where("id = ?", 7).
		Update("pending_mode", "await_carrier_pigeon").Error; err != nil {
		t.Fatalf("corrupt mode: %v", err)
	}

	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "anything"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingNone {
		t.Fatalf("unknown mode must be reset, got %q", u.PendingMode)
	}
	if msg := sender.lastUser(t); !msg.WithMenu {
		t.Fatalf("expected menu after reset, got %+v", msg)
	}
}

// ----- Ban handling -----

func TestHandle_BannedUserIsInert(t *testing.T) {
	s, sender, db := newTestSession(t)
	ctx := context.Background()

	if _, err := repo.TouchUser(ctx, db, 7, "ann"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := repo.BanUser(ctx, db, 7); err != nil {
		t.Fatalf("ban: %v", err)
	}

	// Buttons and commands get the notice, nothing more.
	if err := s.Handle(ctx, Event{Kind: EventButton, UserID: 7, DisplayName: "ann", Button: ButtonRedeem}); err != nil {
		t.Fatalf("button: %v", err)
	}
	if msg := sender.lastUser(t); msg.Text != msgBanned {
		t.Fatalf("expected ban notice, got %+v", msg)
	}
	if u := mustGetUser(t, db, 7); u.PendingMode != domain.PendingNone {
		t.Fatalf("banned press must not mutate session state: %+v", u)
	}

	// Plain text from a banned user is dropped silently.
	before := len(sender.user)
	if err := s.Handle(ctx, Event{Kind: EventText, UserID: 7, DisplayName: "ann", Text: "hello"}); err != nil {
		t.Fatalf("text: %v", err)
	}
	if len(sender.user) != before {
		t.Fatalf("banned text must be silent, got %v", sender.user[before:])
	}
}
