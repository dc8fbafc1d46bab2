package domain

import "time"

// User is the read-only profile served by the user directory.
// Coin balances live in the ledger, not here.
type User struct {
	ID           string
	Nickname     string
	ProfileImage string
	BirthDate    time.Time
	Gender       Gender
}

func (u *User) HasBirthDate() bool { return u != nil && !u.BirthDate.IsZero() }

// Age counts the birth year as one: currentYear - birthYear + 1.
func Age(birth, now time.Time) int {
	return now.Year() - birth.Year() + 1
}
