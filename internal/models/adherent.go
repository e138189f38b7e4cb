package models

import "strings"

type Adherent struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (a Adherent) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// GuardianContact is the paying guardian's contact block. It is validated by
// the checkout package before any submission; the phone field there is
// rewritten to canonical international form.
type GuardianContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}
