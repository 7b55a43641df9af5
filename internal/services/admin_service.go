// Package services – AdminService
//
// This file implements the privileged operations reachable through admin
// commands: key issuance, broadcast, ban/unban, and the status report.
// Caller identity is a single configured admin id compared by equality;
// there is no role hierarchy. Replies and best-effort notifications go out
// through the injected Sender, and per-recipient delivery failures never
// abort the enclosing operation.
package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
	"github.com/tbourn/go-premium-bot/internal/repo"
)

// AdminService implements the privileged command surface of the bot.
type AdminService struct {
	// DB is the GORM handle used for registry access.
	DB *gorm.DB
	// Keys issues and stores premium keys.
	Keys *KeyService
	// Sender delivers replies and notifications.
	Sender Sender
	// AdminID is the only identity allowed to run privileged operations.
	AdminID int64
}

// NewAdminService constructs an AdminService.
func NewAdminService(db *gorm.DB, keys *KeyService, sender Sender, adminID int64) *AdminService {
	return &AdminService{DB: db, Keys: keys, Sender: sender, AdminID: adminID}
}

// IssueKey generates a single-use key valid for days. See KeyService.Issue.
func (s *AdminService) IssueKey(ctx context.Context, days int) (*domain.PremiumKey, error) {
	return s.Keys.Issue(ctx, days)
}

// Broadcast delivers text to every known user independently. Per-recipient
// failures are logged and swallowed; the returned count is the number of
// apparent successes. Users registered after the id snapshot may be skipped.
func (s *AdminService) Broadcast(ctx context.Context, text string) (int, error) {
	ids, err := repo.ListUserIDs(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		if err := s.Sender.SendToUser(ctx, id, text, false); err != nil {
			broadcastDeliveries.WithLabelValues("error").Inc()
			log.Warn().Err(err).Int64("user_id", id).Msg("broadcast delivery failed")
			continue
		}
		broadcastDeliveries.WithLabelValues("ok").Inc()
		sent++
	}
	return sent, nil
}

// Ban sets the target's ban flag and notifies the target best-effort.
// Returns ErrUserNotFound when the target was never seen by the bot.
func (s *AdminService) Ban(ctx context.Context, target int64) error {
	if err := repo.BanUser(ctx, s.DB, target); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := s.Sender.SendToUser(ctx, target, "You have been banned by the admin.", false); err != nil {
		log.Warn().Err(err).Int64("user_id", target).Msg("ban notice delivery failed")
	}
	return nil
}

// Unban clears the target's ban flag and notifies the target best-effort.
// Returns ErrUserNotFound when the target was never seen by the bot.
func (s *AdminService) Unban(ctx context.Context, target int64) error {
	if err := repo.UnbanUser(ctx, s.DB, target); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if err := s.Sender.SendToUser(ctx, target, "You have been unbanned by the admin.", false); err != nil {
		log.Warn().Err(err).Int64("user_id", target).Msg("unban notice delivery failed")
	}
	return nil
}

// Status gathers the registry aggregates plus the count of unredeemed keys.
func (s *AdminService) Status(ctx context.Context, now time.Time) (repo.UserStats, int64, error) {
	stats, err := repo.CollectUserStats(ctx, s.DB, now)
	if err != nil {
		return stats, 0, err
	}
	keys, err := repo.CountKeys(ctx, s.DB)
	if err != nil {
		return stats, 0, err
	}
	return stats, keys, nil
}

// HandleCommand processes an inbound event when it names a privileged
// command. The first return value reports whether the command was an admin
// command at all; when it is and the caller is not the admin, ErrForbidden
// is returned and no mutation happens.
func (s *AdminService) HandleCommand(ctx context.Context, ev Event) (bool, error) {
	switch ev.Command {
	case "genk", "broadcast", "ban", "unban", "st":
	default:
		return false, nil
	}
	if ev.UserID != s.AdminID {
		return true, ErrForbidden
	}

	switch ev.Command {
	case "genk":
		return true, s.handleIssueKey(ctx, ev)
	case "broadcast":
		return true, s.handleBroadcast(ctx, ev)
	case "ban":
		return true, s.handleBanToggle(ctx, ev, true)
	case "unban":
		return true, s.handleBanToggle(ctx, ev, false)
	case "st":
		return true, s.handleStatus(ctx)
	}
	return true, nil
}

func (s *AdminService) handleIssueKey(ctx context.Context, ev Event) error {
	if len(ev.Args) < 1 {
		s.reply(ctx, "Usage: /genk <days>")
		return nil
	}
	days, err := strconv.Atoi(ev.Args[0])
	if err != nil || days <= 0 {
		s.reply(ctx, "Days must be a positive integer.")
		return nil
	}
	k, err := s.IssueKey(ctx, days)
	if err != nil {
		return err
	}
	s.reply(ctx, fmt.Sprintf("Key generated:\n%s\nExpires: %s", k.Token, k.ExpiresAt.Format(time.RFC3339)))
	return nil
}

func (s *AdminService) handleBroadcast(ctx context.Context, ev Event) error {
	if ev.ArgText == "" {
		s.reply(ctx, "Usage: /broadcast <message>")
		return nil
	}
	sent, err := s.Broadcast(ctx, ev.ArgText)
	if err != nil {
		return err
	}
	s.reply(ctx, fmt.Sprintf("Broadcast sent to %d users.", sent))
	return nil
}

func (s *AdminService) handleBanToggle(ctx context.Context, ev Event, ban bool) error {
	verb := "ban"
	if !ban {
		verb = "unban"
	}
	if len(ev.Args) < 1 {
		s.reply(ctx, fmt.Sprintf("Usage: /%s <user_id>", verb))
		return nil
	}
	target, err := strconv.ParseInt(ev.Args[0], 10, 64)
	if err != nil || target <= 0 {
		s.reply(ctx, "Invalid user id.")
		return nil
	}
	if ban {
		err = s.Ban(ctx, target)
	} else {
		err = s.Unban(ctx, target)
	}
	if errors.Is(err, ErrUserNotFound) {
		s.reply(ctx, "User not found.")
		return nil
	}
	if err != nil {
		return err
	}
	if ban {
		s.reply(ctx, fmt.Sprintf("Banned %d", target))
	} else {
		s.reply(ctx, fmt.Sprintf("Unbanned %d", target))
	}
	return nil
}

func (s *AdminService) handleStatus(ctx context.Context) error {
	stats, keys, err := s.Status(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	s.reply(ctx, fmt.Sprintf(
		"Bot status\n\nTotal users: %d\nPremium active: %d\nFree redeem used: %d\nBanned: %d\nUnredeemed keys: %d",
		stats.Total, stats.PremiumActive, stats.FreeRedeemUsed, stats.Banned, keys))
	return nil
}

// reply sends text back to the admin, logging delivery failures.
func (s *AdminService) reply(ctx context.Context, text string) {
	if err := s.Sender.SendToAdmin(ctx, text); err != nil {
		log.Warn().Err(err).Msg("admin reply delivery failed")
	}
}
