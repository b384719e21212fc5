package credentials

import "errors"

// Errors for credential resolution.
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrCredentialsExpired  = errors.New("credentials expired")
)

// Errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfiles      = errors.New("no profiles configured")
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileName     = errors.New("profile name is required")
)
