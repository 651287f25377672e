package auth

import (
	"errors"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	const password = "Turn3very#Page"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == password {
		t.Fatalf("unusable hash %q", hash)
	}
	if !CheckPassword(password, hash) {
		t.Fatalf("correct password rejected")
	}
	if CheckPassword("Turn3very#Pace", hash) {
		t.Fatalf("wrong password accepted")
	}
}

func TestValidatePasswordPolicy(t *testing.T) {
	if err := ValidatePassword("Turn3very#Page"); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}

	weak := map[string]string{
		"too short":    "Sh0rt#pw",
		"no uppercase": "quiet4reading#corner",
		"no lowercase": "QUIET4READING#CORNER",
		"no digit":     "QuietReading#Corner",
		"no special":   "Quiet4ReadingCorner",
	}
	for name, pw := range weak {
		if err := ValidatePassword(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("%s: err = %v, want ErrWeakPassword", name, err)
		}
	}
}
