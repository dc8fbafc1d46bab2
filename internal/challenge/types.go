package challenge

import (
    "time"

    "github.com/park285/cheese-challenge/internal/domain"
)

// CreateRequest carries the creator-supplied fields of a new challenge.
type CreateRequest struct {
    Title             string
    Introduce         string
    VerificationGuide string
    StartDate         time.Time
    EndDate           time.Time
    Goal              int
    StartAge          int
    EndAge            *int
    Gender            domain.Gender
    MaxMember         *int
    CoinAmount        int64
}

// View is a challenge as seen by one user.
type View struct {
    Challenge        *domain.Challenge
    Status           domain.Status
    ParticipantCount int
    IsParticipating  bool
}

// Progress reports one participant's achievement so far.
type Progress struct {
    ChallengeID      string
    ParticipantCount int
    StartDate        time.Time
    EndDate          time.Time
    Goal             int
    Achievement      int
}

// LeaveResult echoes the refund issued on leave.
type LeaveResult struct {
    Refunded int64
    Balance  int64
}

// SweepReport summarizes one DailySweep run.
type SweepReport struct {
    Started  int
    Finished int
    Failed   int
    Paid     int64
}
