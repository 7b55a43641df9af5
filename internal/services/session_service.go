// Package services – SessionService
//
// This file implements the per-user session state machine. Each inbound
// event is an independent unit of work: the router touches the account row,
// rejects banned users, dispatches on event kind, and resolves the pending
// mode recorded in the registry. Pending modes are always reset before or
// immediately after the terminal response of the flow they belong to, and a
// new menu action silently overrides whatever was pending (last action wins).
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
	"github.com/tbourn/go-premium-bot/internal/repo"
)

// User-facing message texts.
const (
	msgBanned       = "You are banned."
	msgMenu         = "Use the menu below:"
	msgRedeemDenied = "Free users can redeem only once. Buy premium for unlimited requests."
	msgRedeemPrompt = "Enter details for your redeem request:"
	msgKeyPrompt    = "Please send your premium key to activate:"
	msgServices     = "Services:\n1. Prime Video\n2. Spotify\n3. Crunchyroll\n4. Turbo VPN\n5. Hotspot Shield VPN"
	msgRedeemThanks = "Your redeem request was sent to the admin. Thank you!"
	msgInvalidKey   = "Invalid key. Please check and try again."
)

// Inline keyboard button identifiers, shared with the Telegram adapter.
const (
	ButtonRedeem  = "redeem"
	ButtonBuy     = "buy"
	ButtonService = "service"
	ButtonDev     = "dev"
)

// SessionService routes inbound events through the entitlement policy and
// mutates the user registry and key store accordingly.
type SessionService struct {
	// DB is the GORM handle used for registry access.
	DB *gorm.DB
	// Keys consumes premium keys on activation.
	Keys *KeyService
	// Admin handles the privileged command surface.
	Admin *AdminService
	// Sender delivers outbound directives.
	Sender Sender
	// DevContact is the static reply to the "dev" menu button.
	DevContact string
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, keys *KeyService, admin *AdminService, sender Sender, devContact string) *SessionService {
	return &SessionService{DB: db, Keys: keys, Admin: admin, Sender: sender, DevContact: devContact}
}

// Handle processes one inbound event to completion. Storage write failures
// propagate to the caller (the transport replies 200 to Telegram regardless);
// outbound delivery failures are logged and swallowed.
func (s *SessionService) Handle(ctx context.Context, ev Event) error {
	u, err := repo.TouchUser(ctx, s.DB, ev.UserID, ev.DisplayName)
	if err != nil {
		eventsProcessed.WithLabelValues(string(ev.Kind), "error").Inc()
		return err
	}

	if u.Banned {
		// Silent on plain text, explicit notice on deliberate actions.
		if ev.Kind != EventText {
			s.send(ctx, u.ID, msgBanned, false)
		}
		eventsProcessed.WithLabelValues(string(ev.Kind), "banned").Inc()
		return nil
	}

	switch ev.Kind {
	case EventCommand:
		err = s.handleCommand(ctx, u, ev)
	case EventButton:
		err = s.handleButton(ctx, u, ev)
	case EventText:
		err = s.handleText(ctx, u, ev)
	default:
		log.Warn().Str("kind", string(ev.Kind)).Msg("unknown event kind")
		s.send(ctx, u.ID, msgMenu, true)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	eventsProcessed.WithLabelValues(string(ev.Kind), outcome).Inc()
	return err
}

func (s *SessionService) handleCommand(ctx context.Context, u *domain.UserAccount, ev Event) error {
	if handled, err := s.Admin.HandleCommand(ctx, ev); handled {
		if errors.Is(err, ErrForbidden) {
			// Fail closed without feedback for non-admin callers.
			return nil
		}
		return err
	}

	switch ev.Command {
	case "start":
		name := u.DisplayName
		if name == "" {
			name = "there"
		}
		s.send(ctx, u.ID, fmt.Sprintf("Hello %s!\n\nUse the buttons below to interact.", name), true)
	default:
		s.send(ctx, u.ID, msgMenu, true)
	}
	return nil
}

func (s *SessionService) handleButton(ctx context.Context, u *domain.UserAccount, ev Event) error {
	now := time.Now().UTC()

	switch ev.Button {
	case ButtonRedeem:
		if !CanStartFreeRedeem(u, now) {
			s.send(ctx, u.ID, msgRedeemDenied, false)
			return nil
		}
		if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingRedeemDetails); err != nil {
			return err
		}
		s.send(ctx, u.ID, msgRedeemPrompt, false)

	case ButtonBuy:
		if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingKey); err != nil {
			return err
		}
		s.send(ctx, u.ID, msgKeyPrompt, false)

	case ButtonService:
		s.send(ctx, u.ID, msgServices, false)

	case ButtonDev:
		s.send(ctx, u.ID, s.DevContact, false)

	default:
		log.Warn().Str("button", ev.Button).Int64("user_id", u.ID).Msg("unknown button")
		s.send(ctx, u.ID, msgMenu, true)
	}
	return nil
}

func (s *SessionService) handleText(ctx context.Context, u *domain.UserAccount, ev Event) error {
	switch u.PendingMode {
	case domain.PendingRedeemDetails:
		return s.resolveRedeem(ctx, u, strings.TrimSpace(ev.Text))
	case domain.PendingKey:
		return s.resolveKey(ctx, u, strings.TrimSpace(ev.Text))
	case domain.PendingNone:
		s.send(ctx, u.ID, msgMenu, true)
		return nil
	default:
		// A mode this build does not know. Reset instead of letting it
		// linger across unrelated messages.
		log.Warn().Str("mode", string(u.PendingMode)).Int64("user_id", u.ID).Msg("unrecognized pending mode, resetting")
		if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingNone); err != nil {
			return err
		}
		s.send(ctx, u.ID, msgMenu, true)
		return nil
	}
}

// resolveRedeem terminates the AwaitingRedeemDetails flow: audit write,
// admin notification, conditional free-redeem consumption, reset, confirm.
// A failed audit write propagates and leaves the mode pending so the user
// can resend.
func (s *SessionService) resolveRedeem(ctx context.Context, u *domain.UserAccount, details string) error {
	if _, err := repo.CreateRedeemRequest(ctx, s.DB, u.ID, u.DisplayName, details); err != nil {
		return err
	}

	s.notifyAdmin(ctx, fmt.Sprintf("Redeem request from %s (%d):\n\n%s", u.DisplayName, u.ID, details))

	if ShouldMarkFreeRedeemUsed(u, time.Now().UTC()) {
		if err := repo.MarkFreeRedeemUsed(ctx, s.DB, u.ID); err != nil {
			return err
		}
	}
	if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingNone); err != nil {
		return err
	}
	s.send(ctx, u.ID, msgRedeemThanks, false)
	return nil
}

// resolveKey terminates the AwaitingKey flow: consume the token, set the
// entitlement window, reset, confirm, notify the admin. The consume and the
// premium write are two separate operations; a crash between them loses the
// key without granting the window (accepted gap, not a guarantee).
func (s *SessionService) resolveKey(ctx context.Context, u *domain.UserAccount, token string) error {
	k, err := s.Keys.Consume(ctx, token)
	if errors.Is(err, ErrKeyNotFound) {
		if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingNone); err != nil {
			return err
		}
		s.send(ctx, u.ID, msgInvalidKey, false)
		return nil
	}
	if err != nil {
		return err
	}

	if err := repo.SetPremiumUntil(ctx, s.DB, u.ID, k.ExpiresAt); err != nil {
		return err
	}
	if !k.ExpiresAt.After(time.Now().UTC()) {
		log.Warn().Int64("user_id", u.ID).Str("token", token).Time("expires_at", k.ExpiresAt).
			Msg("consumed key grants an already-elapsed window")
	}
	if err := repo.SetPendingMode(ctx, s.DB, u.ID, domain.PendingNone); err != nil {
		return err
	}

	until := k.ExpiresAt.Format(time.RFC3339)
	s.send(ctx, u.ID, fmt.Sprintf("Premium activated until %s", until), false)
	s.notifyAdmin(ctx, fmt.Sprintf("User %s (%d) activated premium until %s with key %s", u.DisplayName, u.ID, until, token))
	return nil
}

// send delivers text to a user, logging delivery failures without
// propagating them.
func (s *SessionService) send(ctx context.Context, userID int64, text string, withMenu bool) {
	if err := s.Sender.SendToUser(ctx, userID, text, withMenu); err != nil {
		log.Warn().Err(err).Int64("user_id", userID).Msg("send failed")
	}
}

// notifyAdmin delivers text to the admin, logging delivery failures without
// propagating them.
func (s *SessionService) notifyAdmin(ctx context.Context, text string) {
	if err := s.Sender.SendToAdmin(ctx, text); err != nil {
		log.Warn().Err(err).Msg("admin notification delivery failed")
	}
}
