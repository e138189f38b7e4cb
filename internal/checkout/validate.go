package checkout

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/Majdabbassi/chellymobil-sub000/internal/models"
)

var (
	ErrContactName  = errors.New("guardian name is required")
	ErrContactEmail = errors.New("guardian email is invalid")
	ErrContactPhone = errors.New("guardian phone is invalid")
)

// ValidateContact is the single gate both fulfillment paths run before any
// network call: non-empty names, an RFC-shaped email, and a phone with at
// least 8 digits. It returns the contact with the phone rewritten to
// canonical international form.
func ValidateContact(contact models.GuardianContact, defaultPrefix string) (models.GuardianContact, error) {
	contact.FirstName = strings.TrimSpace(contact.FirstName)
	contact.LastName = strings.TrimSpace(contact.LastName)
	contact.Email = strings.TrimSpace(contact.Email)

	if contact.FirstName == "" || contact.LastName == "" {
		return models.GuardianContact{}, ErrContactName
	}
	if _, err := mail.ParseAddress(contact.Email); err != nil {
		return models.GuardianContact{}, ErrContactEmail
	}

	phone, err := NormalizePhone(contact.Phone, defaultPrefix)
	if err != nil {
		return models.GuardianContact{}, err
	}
	contact.Phone = phone
	return contact, nil
}

// NormalizePhone strips formatting, folds a 00 international prefix to +, and
// prefixes bare national numbers (with or without a leading trunk 0) with the
// configured country prefix.
func NormalizePhone(raw, defaultPrefix string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '(', ')':
			return -1
		}
		return r
	}, strings.TrimSpace(raw))

	international := strings.HasPrefix(cleaned, "+")
	cleaned = strings.TrimPrefix(cleaned, "+")
	if strings.HasPrefix(cleaned, "00") {
		international = true
		cleaned = strings.TrimPrefix(cleaned, "00")
	}

	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", ErrContactPhone
		}
	}
	if !international {
		cleaned = strings.TrimPrefix(cleaned, "0")
	}
	if len(cleaned) < 8 {
		return "", ErrContactPhone
	}
	if international {
		return "+" + cleaned, nil
	}
	return defaultPrefix + cleaned, nil
}
