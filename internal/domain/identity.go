package domain

import (
	"strings"
)

// Identity scopes one progression ledger: a user's personal progress, or
// the progress of a managed sub-profile (for example a student profile under
// a parent or tutor account).
type Identity struct {
	UserID    string
	ProfileID string // empty means the user's own personal progress
}

// ParseIdentity normalizes raw caller input into an Identity.
// Empty strings and the "null"/"undefined" sentinels that clients send for
// missing profiles are all treated as an absent profile.
func ParseIdentity(userID, profileID string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if isAbsent(userID) {
		return Identity{}, &ValidationError{Field: "user_id", Reason: "must not be empty", Err: ErrInvalidIdentity}
	}

	profileID = strings.TrimSpace(profileID)
	if isAbsent(profileID) {
		profileID = ""
	}

	return Identity{UserID: userID, ProfileID: profileID}, nil
}

// PersonalIdentity returns the identity for a user's own progress.
func PersonalIdentity(userID string) Identity {
	return Identity{UserID: userID}
}

// NormalizeProfileID maps the absent sentinels to the empty string.
func NormalizeProfileID(profileID string) string {
	profileID = strings.TrimSpace(profileID)
	if isAbsent(profileID) {
		return ""
	}
	return profileID
}

// HasProfile reports whether the identity targets a sub-profile.
func (i Identity) HasProfile() bool {
	return i.ProfileID != ""
}

// Matches reports whether a stored row's profile column belongs to this identity.
func (i Identity) Matches(profileID string) bool {
	return NormalizeProfileID(profileID) == NormalizeProfileID(i.ProfileID)
}

// Canonical validates the identity and returns it in the normalized form
// ParseIdentity produces. Every lookup and every write uses this form, so
// {u1, "null"} and {u1, ""} address the same ledger.
func (i Identity) Canonical() (Identity, error) {
	return ParseIdentity(i.UserID, i.ProfileID)
}

func (i Identity) String() string {
	if i.HasProfile() {
		return i.UserID + "/" + i.ProfileID
	}
	return i.UserID
}

func isAbsent(v string) bool {
	switch strings.ToLower(v) {
	case "", "null", "undefined", "none":
		return true
	}
	return false
}
