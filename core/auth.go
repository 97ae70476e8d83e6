package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minPasswordLength = 8

// genericFailureMessage is shown when the upstream gives no usable message.
const genericFailureMessage = "Something went wrong, please try again."

var (
	// ErrInvalidEmail is returned when the email does not look like local@domain.tld.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrWeakPassword is returned when the password is too short or misses a letter or a digit.
	ErrWeakPassword = errors.New("password must be at least 8 characters long and contain both letters and numbers")
	// ErrTransport wraps network and decoding failures talking to the remote API.
	ErrTransport = errors.New("remote api unreachable")
	// ErrRequestInFlight is returned when a form is submitted again before its previous call finished.
	ErrRequestInFlight = errors.New("request already in progress")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// AuthFailureError is a credential or registration rejection reported by the remote API.
type AuthFailureError struct {
	Status  int
	Message string
}

func (e *AuthFailureError) Error() string {
	return fmt.Sprintf("auth failed (status %d): %s", e.Status, e.Message)
}

// ValidateCredentials checks email and password shape. It returns nil,
// ErrInvalidEmail or ErrWeakPassword; the email is checked first.
func ValidateCredentials(email, password string) error {
	if !emailPattern.MatchString(email) || strings.IndexFunc(email, isBlank) >= 0 {
		return ErrInvalidEmail
	}
	if !strongEnough(password) {
		return ErrWeakPassword
	}
	return nil
}

// isBlank widens the RE2 \s class (ASCII only) to \v, Unicode spaces and the BOM.
func isBlank(r rune) bool {
	return unicode.IsSpace(r) || unicode.Is(unicode.Zs, r) || r == '\uFEFF'
}

func strongEnough(password string) bool {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return false
	}
	var letter, digit bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return letter && digit
}

// UserMessage turns any error produced by the auth flows into the text shown to the user.
func UserMessage(err error) string {
	var authErr *AuthFailureError
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidEmail):
		return "Invalid email address."
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 8 characters long and contain both letters and numbers."
	case errors.Is(err, ErrRequestInFlight):
		return "Please wait for the previous request to finish."
	case errors.Is(err, ErrNotLoggedIn):
		return "Please log in first."
	case errors.Is(err, ErrInvalidExpense):
		return err.Error()
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &apiErr):
		return apiErr.Message
	default:
		return genericFailureMessage
	}
}
