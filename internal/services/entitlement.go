// Package services – entitlement policy
//
// This file implements the pure decision logic of the entitlement system.
// None of these functions touch storage or transport; they take scalar
// snapshots of account state plus an evaluation instant and return decisions.
// Keeping them pure makes the redeem/activation rules trivially testable and
// keeps the router free of policy details.
package services

import (
	"time"

	"github.com/tbourn/go-premium-bot/internal/domain"
)

// IsPremiumActive reports whether an entitlement window is active at now.
// An absent window is never active; a present one is active iff it ends
// strictly after now.
func IsPremiumActive(premiumUntil *time.Time, now time.Time) bool {
	return premiumUntil != nil && premiumUntil.After(now)
}

// CanStartFreeRedeem reports whether the account may start a redeem flow.
// Premium users may always redeem; non-premium users get exactly one
// lifetime free redeem.
func CanStartFreeRedeem(u *domain.UserAccount, now time.Time) bool {
	if IsPremiumActive(u.PremiumUntil, now) {
		return true
	}
	return !u.FreeRedeemUsed
}

// ShouldMarkFreeRedeemUsed decides whether submitting a redeem request
// consumes the one-time free redeem. The audit write always happens; the
// flag is set only when the user was neither premium nor already marked.
func ShouldMarkFreeRedeemUsed(u *domain.UserAccount, now time.Time) bool {
	return !IsPremiumActive(u.PremiumUntil, now) && !u.FreeRedeemUsed
}
