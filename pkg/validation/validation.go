package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// IDRegex validates document and user id format
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateDocumentID validates document ID
func ValidateDocumentID(documentID string) error {
	if documentID == "" {
		return fmt.Errorf("document ID is required")
	}
	if len(documentID) > 100 {
		return fmt.Errorf("document ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(documentID) {
		return fmt.Errorf("invalid document ID format")
	}
	return nil
}

// ValidateUserID validates external user ID
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}
	if len(userID) > 100 {
		return fmt.Errorf("user ID is too long (max 100 characters)")
	}
	if !IDRegex.MatchString(userID) {
		return fmt.Errorf("invalid user ID format")
	}
	return nil
}

// ValidateGrantableRole validates a role value that may be granted through
// the membership list. Owner is implicit and never grantable.
func ValidateGrantableRole(role string) error {
	switch role {
	case "viewer", "editor":
		return nil
	case "":
		return fmt.Errorf("role is required")
	default:
		return fmt.Errorf("role must be viewer or editor")
	}
}
