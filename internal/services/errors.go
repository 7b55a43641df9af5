// Package services implements the business logic of the entitlement bot:
// the pure entitlement policy, the single-use key service, the per-user
// session router, and the privileged admin operations.
//
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers. Mapping to
// user-facing wording happens at the router/transport layer.
package services

import "errors"

var (
	// ErrKeyNotFound indicates that a premium key does not exist in the
	// store, either because it never did or because it was already
	// consumed. Reported to the submitting user as an invalid key.
	ErrKeyNotFound = errors.New("premium key not found")

	// ErrInvalidArgument is returned when an admin command carries
	// malformed arguments (for example a non-positive day count). No
	// mutation happens in that case.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden is returned when a non-admin identity invokes a
	// privileged operation. The router swallows it silently, matching the
	// fail-closed-without-feedback behavior of the command surface.
	ErrForbidden = errors.New("forbidden")

	// ErrUserNotFound indicates that the targeted account does not exist.
	ErrUserNotFound = errors.New("user not found")
)
