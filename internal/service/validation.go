package service

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"github.com/liquidweavergit/rmp-admin-site-sub000/internal/autherr"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 128
)

var (
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return autherr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return autherr.Validation("invalid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return autherr.Validation("password must be between %d and %d characters", minPasswordLen, maxPasswordLen)
	}
	if !uppercaseRe.MatchString(password) || !lowercaseRe.MatchString(password) || !digitRe.MatchString(password) {
		return autherr.Validation("password must contain upper case, lower case and a digit")
	}
	return nil
}

// normalizePhone keeps a leading + and digits, dropping spaces, dashes, dots
// and parentheses. Anything else is rejected.
func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", autherr.Validation("phone is required")
	}
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r == '+' && i == 0:
			b.WriteRune(r)
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", autherr.Validation("invalid phone number")
		}
	}
	out := b.String()
	digits := strings.TrimPrefix(out, "+")
	if len(digits) < 7 || len(digits) > 15 {
		return "", autherr.Validation("invalid phone number")
	}
	if !strings.HasPrefix(out, "+") {
		out = "+" + out
	}
	return out, nil
}

func displayNameOrDefault(name, email string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
