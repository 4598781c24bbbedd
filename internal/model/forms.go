package model

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MinContactMessageLength is the minimum length of a contact message.
const MinContactMessageLength = 10

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	expiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])\s*/\s*([0-9]{2})$`)
	cvcPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
)

// FieldErrors maps a form field name to a human-readable message.
// A non-empty FieldErrors blocks submission.
type FieldErrors map[string]string

// Error implements the error interface.
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for field := range fe {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+fe[field])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// add records msg for field unless the field already has a message.
func (fe FieldErrors) add(field, msg string) {
	if _, exists := fe[field]; !exists {
		fe[field] = msg
	}
}

// orNil returns nil when no field failed so callers can compare against nil.
func (fe FieldErrors) orNil() FieldErrors {
	if len(fe) == 0 {
		return nil
	}
	return fe
}

// CheckoutForm carries shipping and payment details. Payment details are
// validated for shape only; no payment is ever processed.
type CheckoutForm struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address"`
	Apartment  string `json:"apartment,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	Zip        string `json:"zip"`
	CardNumber string `json:"cardNumber"`
	Expiry     string `json:"expiry"`
	CVC        string `json:"cvc"`
}

// Validate returns the per-field errors of the form, or nil.
func (f *CheckoutForm) Validate() FieldErrors {
	errs := FieldErrors{}

	required := []struct {
		field string
		value string
		label string
	}{
		{"firstName", f.FirstName, "First name"},
		{"lastName", f.LastName, "Last name"},
		{"email", f.Email, "Email"},
		{"address", f.Address, "Street address"},
		{"city", f.City, "City"},
		{"state", f.State, "State"},
		{"zip", f.Zip, "ZIP code"},
		{"cardNumber", f.CardNumber, "Card number"},
		{"expiry", f.Expiry, "Expiry date"},
		{"cvc", f.CVC, "CVC"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs.add(r.field, r.label+" is required")
		}
	}

	if email := strings.TrimSpace(f.Email); email != "" && !emailPattern.MatchString(email) {
		errs.add("email", "Please enter a valid email")
	}

	if card := strings.TrimSpace(f.CardNumber); card != "" && !validCardNumber(card) {
		errs.add("cardNumber", "Please enter a valid card number")
	}

	if expiry := strings.TrimSpace(f.Expiry); expiry != "" && !expiryPattern.MatchString(expiry) {
		errs.add("expiry", "Expiry date must be in MM/YY format")
	}

	if cvc := strings.TrimSpace(f.CVC); cvc != "" && !cvcPattern.MatchString(cvc) {
		errs.add("cvc", "CVC must be 3 or 4 digits")
	}

	return errs.orNil()
}

// validCardNumber accepts 13 to 19 digits, optionally grouped by spaces or dashes.
func validCardNumber(card string) bool {
	digits := 0
	for _, r := range card {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 13 && digits <= 19
}

// ContactForm is a customer support message.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate returns the per-field errors of the form, or nil.
func (f *ContactForm) Validate() FieldErrors {
	errs := FieldErrors{}

	if strings.TrimSpace(f.Name) == "" {
		errs.add("name", "Name is required")
	}

	email := strings.TrimSpace(f.Email)
	switch {
	case email == "":
		errs.add("email", "Email is required")
	case !emailPattern.MatchString(email):
		errs.add("email", "Please enter a valid email")
	}

	if strings.TrimSpace(f.Subject) == "" {
		errs.add("subject", "Subject is required")
	}

	message := strings.TrimSpace(f.Message)
	switch {
	case message == "":
		errs.add("message", "Message is required")
	case utf8.RuneCountInString(message) < MinContactMessageLength:
		errs.add("message", "Message must be at least 10 characters")
	}

	return errs.orNil()
}
