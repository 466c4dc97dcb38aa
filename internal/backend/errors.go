// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"fmt"

	"github.com/omnichat/omnichat-tui/internal/catalog"
)

// Error taxonomy. Credential errors are kept distinguishable from transport
// errors so the caller can redirect the user to credential entry instead of
// just printing a failure.
var (
	// ErrNotConfigured indicates the provider has no credential/endpoint set.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrAuthFailed indicates an invalid, expired, or revoked API key.
	ErrAuthFailed = errors.New("API key is invalid or expired")

	// ErrRateLimited indicates the provider rejected the call for quota.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnknownProvider indicates no backend is registered for the provider.
	ErrUnknownProvider = errors.New("no backend registered for provider")
)

// UnsupportedModeError reports a mode dispatched to a provider that lacks
// the capability. Callers are expected to constrain mode by the capability
// table first, so reaching this is a programming error — it fails loudly.
type UnsupportedModeError struct {
	Provider catalog.Provider
	Mode     catalog.Mode
}

func (e *UnsupportedModeError) Error() string {
	return fmt.Sprintf("%s does not support %s", e.Provider, e.Mode)
}

// APIError is a non-2xx response from a provider API.
type APIError struct {
	Provider catalog.Provider
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s error [%s] (HTTP %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error (HTTP %d): %s", e.Provider, e.Status, e.Message)
}

// Is maps authentication and quota statuses onto the sentinel errors so
// callers can use errors.Is without knowing the provider.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrAuthFailed:
		return e.Status == 401 || e.Status == 403
	case ErrRateLimited:
		return e.Status == 429
	default:
		return false
	}
}

// IsCredentialError reports whether err means the stored key is bad and the
// user should be sent back to credential entry.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrNotConfigured)
}
