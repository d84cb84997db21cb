package domain

import (
	"errors"
	"testing"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		name        string
		userID      string
		profileID   string
		wantProfile string
		wantErr     bool
	}{
		{"personal", "u1", "", "", false},
		{"null sentinel", "u1", "null", "", false},
		{"undefined sentinel", "u1", "undefined", "", false},
		{"uppercase sentinel", "u1", "NULL", "", false},
		{"profile", "u1", "kid-1", "kid-1", false},
		{"trims", " u1 ", " kid-1 ", "kid-1", false},
		{"empty user", "", "kid-1", "", true},
		{"null user", "null", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseIdentity(tt.userID, tt.profileID)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseIdentity() error = %v; want ErrValidation", err)
				}
				if !errors.Is(err, ErrInvalidIdentity) {
					t.Errorf("ParseIdentity() error = %v; want ErrInvalidIdentity", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseIdentity() error = %v", err)
			}
			if id.UserID != "u1" {
				t.Errorf("UserID = %q; want %q", id.UserID, "u1")
			}
			if id.ProfileID != tt.wantProfile {
				t.Errorf("ProfileID = %q; want %q", id.ProfileID, tt.wantProfile)
			}
		})
	}
}

func TestIdentityMatches(t *testing.T) {
	personal := PersonalIdentity("u1")
	kid := Identity{UserID: "u1", ProfileID: "kid-1"}

	if !personal.Matches("") || !personal.Matches("null") {
		t.Error("personal identity should match absent profile columns")
	}
	if personal.Matches("kid-1") {
		t.Error("personal identity should not match a sub-profile row")
	}
	if !kid.Matches("kid-1") {
		t.Error("profile identity should match its own rows")
	}
	if kid.Matches("") {
		t.Error("profile identity should not fall back to the personal row")
	}
}

func TestIdentityCanonical(t *testing.T) {
	tests := []struct {
		name string
		in   Identity
		want Identity
	}{
		{"null sentinel", Identity{UserID: "u1", ProfileID: "null"}, PersonalIdentity("u1")},
		{"padded", Identity{UserID: " u1 ", ProfileID: " kid "}, Identity{UserID: "u1", ProfileID: "kid"}},
		{"already canonical", Identity{UserID: "u1", ProfileID: "kid"}, Identity{UserID: "u1", ProfileID: "kid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Canonical()
			if err != nil {
				t.Fatalf("Canonical() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Canonical() = %+v; want %+v", got, tt.want)
			}
		})
	}

	if _, err := (Identity{UserID: "undefined"}).Canonical(); !errors.Is(err, ErrInvalidIdentity) {
		t.Errorf("Canonical() error = %v; want ErrInvalidIdentity", err)
	}
	if !(Identity{UserID: "u1", ProfileID: "null"}).Matches("") {
		t.Error("a raw null profile should match the personal column")
	}
}

func TestIdentityString(t *testing.T) {
	if got := PersonalIdentity("u1").String(); got != "u1" {
		t.Errorf("String() = %q; want %q", got, "u1")
	}
	if got := (Identity{UserID: "u1", ProfileID: "p"}).String(); got != "u1/p" {
		t.Errorf("String() = %q; want %q", got, "u1/p")
	}
}
