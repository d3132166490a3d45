package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxContactName    = 100
	maxContactEmail   = 254
	maxContactMessage = 5000
)

type ContactMessage struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate applies the contact page rules and returns every failing field.
func (c *ContactMessage) Validate() ValidationErrors {
	errs := ValidationErrors{}
	name := strings.TrimSpace(c.Name)
	email := strings.TrimSpace(c.Email)
	message := strings.TrimSpace(c.Message)

	switch {
	case name == "":
		errs["name"] = FieldError{Field: "name", Kind: ErrorRequired, Message: "Name is required"}
	case utf8.RuneCountInString(name) > maxContactName:
		errs["name"] = FieldError{Field: "name", Kind: ErrorInvalidFormat, Message: "Name must be 100 characters or less"}
	}

	switch {
	case email == "":
		errs["email"] = FieldError{Field: "email", Kind: ErrorRequired, Message: "Email is required"}
	case len(email) > maxContactEmail:
		errs["email"] = FieldError{Field: "email", Kind: ErrorInvalidFormat, Message: "Email must be 254 characters or less"}
	case !emailPattern.MatchString(email):
		errs["email"] = FieldError{Field: "email", Kind: ErrorInvalidFormat, Message: "Invalid email format"}
	}

	switch {
	case message == "":
		errs["message"] = FieldError{Field: "message", Kind: ErrorRequired, Message: "Message is required"}
	case utf8.RuneCountInString(message) > maxContactMessage:
		errs["message"] = FieldError{Field: "message", Kind: ErrorInvalidFormat, Message: "Message must be 5000 characters or less"}
	}

	return errs
}
