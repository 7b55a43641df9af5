// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the UserAccount
// model (the user registry).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an account is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-premium-bot/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// UserStats aggregates the registry counts reported by the admin status
// command. PremiumActive is evaluated against the instant passed to
// CollectUserStats.
type UserStats struct {
	Total          int64
	PremiumActive  int64
	FreeRedeemUsed int64
	Banned         int64
}

// TouchUser upserts the account row for id, refreshing DisplayName. A row
// that does not exist yet is created with all flags at their defaults
// (not banned, free redeem unused, no premium window, idle session).
// It returns the current state of the account.
func TouchUser(ctx context.Context, db *gorm.DB, id int64, displayName string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = domain.UserAccount{
			ID:          id,
			DisplayName: displayName,
			PendingMode: domain.PendingNone,
			CreatedAt:   time.Now().UTC(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			return nil, err
		}
		return &u, nil
	}
	if err != nil {
		return nil, err
	}
	if displayName != "" && displayName != u.DisplayName {
		if err := db.WithContext(ctx).
			Model(&domain.UserAccount{}).
			Where("id = ?", id).
			Update("display_name", displayName).Error; err != nil {
			return nil, err
		}
		u.DisplayName = displayName
	}
	return &u, nil
}

// GetUser fetches a single account by id, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.UserAccount, error) {
	var u domain.UserAccount
	if err := db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SetPendingMode records which input the user's session is waiting for.
// Returns ErrNotFound when the account does not exist.
func SetPendingMode(ctx context.Context, db *gorm.DB, id int64, mode domain.PendingMode) error {
	return updateUserField(ctx, db, id, "pending_mode", mode)
}

// MarkFreeRedeemUsed permanently consumes the user's one lifetime free
// redeem. Returns ErrNotFound when the account does not exist.
func MarkFreeRedeemUsed(ctx context.Context, db *gorm.DB, id int64) error {
	return updateUserField(ctx, db, id, "free_redeem_used", true)
}

// SetPremiumUntil unconditionally overwrites the user's entitlement window.
// A later activation always replaces an earlier one, even when it shortens
// the window. Returns ErrNotFound when the account does not exist.
func SetPremiumUntil(ctx context.Context, db *gorm.DB, id int64, until time.Time) error {
	return updateUserField(ctx, db, id, "premium_until", until.UTC())
}

// BanUser sets the ban flag. The operation is idempotent: banning an
// already banned user succeeds without effect.
func BanUser(ctx context.Context, db *gorm.DB, id int64) error {
	return updateUserField(ctx, db, id, "banned", true)
}

// UnbanUser clears the ban flag. Idempotent, like BanUser.
func UnbanUser(ctx context.Context, db *gorm.DB, id int64) error {
	return updateUserField(ctx, db, id, "banned", false)
}

// ListUserIDs returns the ids of every known account, in no particular
// order. Used by broadcast; callers must tolerate ids added after the
// snapshot was taken being absent.
func ListUserIDs(ctx context.Context, db *gorm.DB) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.UserAccount{}).
		Pluck("id", &ids).Error
	return ids, err
}

// CountUsers returns the number of accounts matching the given condition.
// Pass a nil query to count every account.
func CountUsers(ctx context.Context, db *gorm.DB, query any, args ...any) (int64, error) {
	var total int64
	q := db.WithContext(ctx).Model(&domain.UserAccount{})
	if query != nil {
		q = q.Where(query, args...)
	}
	err := q.Count(&total).Error
	return total, err
}

// CollectUserStats gathers the aggregate counts for the status report.
// Premium activity is evaluated strictly against now.
func CollectUserStats(ctx context.Context, db *gorm.DB, now time.Time) (UserStats, error) {
	var s UserStats
	var err error
	if s.Total, err = CountUsers(ctx, db, nil); err != nil {
		return s, err
	}
	if s.PremiumActive, err = CountUsers(ctx, db, "premium_until IS NOT NULL AND premium_until > ?", now.UTC()); err != nil {
		return s, err
	}
	if s.FreeRedeemUsed, err = CountUsers(ctx, db, "free_redeem_used = ?", true); err != nil {
		return s, err
	}
	if s.Banned, err = CountUsers(ctx, db, "banned = ?", true); err != nil {
		return s, err
	}
	return s, nil
}

// updateUserField updates a single column of the account row, mapping a
// zero-row result to ErrNotFound.
func updateUserField(ctx context.Context, db *gorm.DB, id int64, column string, value any) error {
	res := db.WithContext(ctx).
		Model(&domain.UserAccount{}).
		Where("id = ?", id).
		Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
