package domain

import (
	"strings"
	"time"
)

// Gender is the restriction a challenge places on who may join.
type Gender string

const (
	GenderNone   Gender = "NONE"
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

func ParseGender(s string) Gender {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MALE", "M":
		return GenderMale
	case "FEMALE", "F":
		return GenderFemale
	default:
		return GenderNone
	}
}

// Status is derived from the time window on every read and never stored.
type Status string

const (
	StatusUpcoming  Status = "UPCOMING"
	StatusOngoing   Status = "ONGOING"
	StatusCompleted Status = "COMPLETED"
)

// DeriveStatus applies the three-state rule shared by challenges and missions.
func DeriveStatus(start, end, now time.Time) Status {
	if now.Before(start) {
		return StatusUpcoming
	}
	if now.After(end) {
		return StatusCompleted
	}
	return StatusOngoing
}

// Challenge is stored as JSON under challenge:<id>.
// Started and Finished are write-path flags owned by the daily sweep.
type Challenge struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Introduce           string    `json:"introduce,omitempty"`
	VerificationGuide   string    `json:"verification_guide,omitempty"`
	StartDate           time.Time `json:"start_date"`
	EndDate             time.Time `json:"end_date"`
	Goal                int       `json:"goal"`
	StartAge            int       `json:"start_age"`
	EndAge              *int      `json:"end_age,omitempty"`
	Gender              Gender    `json:"gender"`
	MaxMember           *int      `json:"max_member,omitempty"`
	CreatorID           string    `json:"creator_id"`
	CoinAmount          int64     `json:"coin_amount"`
	Participants        []string  `json:"participants"`
	SuccessParticipants []string  `json:"success_participants"`
	Started             bool      `json:"started"`
	Finished            bool      `json:"finished"`
	CreatedAt           time.Time `json:"created_at"`
}

func (c *Challenge) Status(now time.Time) Status { return DeriveStatus(c.StartDate, c.EndDate, now) }

func (c *Challenge) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// RemoveParticipant drops userID keeping the remaining join order.
func (c *Challenge) RemoveParticipant(userID string) bool {
	out := c.Participants[:0]
	removed := false
	for _, p := range c.Participants {
		if p == userID {
			removed = true
			continue
		}
		out = append(out, p)
	}
	c.Participants = out
	return removed
}

func (c *Challenge) IsFull() bool {
	return c.MaxMember != nil && len(c.Participants) >= *c.MaxMember
}

// AgeAllowed checks age against [StartAge, EndAge]; without EndAge only the lower bound applies.
func (c *Challenge) AgeAllowed(age int) bool {
	if age < c.StartAge {
		return false
	}
	return c.EndAge == nil || age <= *c.EndAge
}

// GenderAllowed reports whether a user of gender g may join.
func (c *Challenge) GenderAllowed(g Gender) bool {
	return c.Gender == "" || c.Gender == GenderNone || c.Gender == g
}

// Pool is the total stake escrowed by the current participants.
func (c *Challenge) Pool() int64 { return int64(len(c.Participants)) * c.CoinAmount }
