// Package repository holds the collaborators that live outside Redis: the user
// directory, the activity source and the settlement archive.
package repository

import (
	"context"
	"time"

	"github.com/park285/cheese-challenge/internal/domain"
)

// UserDirectory serves read-only profiles. GetUser returns nil, nil for unknown ids.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error)
}

// ActivitySource lists qualifying submission times for a participant.
// Rejected submissions are never returned.
type ActivitySource interface {
	ActivityTimes(ctx context.Context, challengeID, userID string, from, to time.Time) ([]time.Time, error)
}

// SettlementArchive durably records finished settlements.
type SettlementArchive interface {
	ArchiveChallenge(ctx context.Context, rec ChallengeSettlement) error
	ArchiveMission(ctx context.Context, rec MissionSettlement) error
}

type ChallengeSettlement struct {
	ChallengeID  string
	Title        string
	Stake        int64
	Pool         int64
	RewardEach   int64
	Participants []string
	Succeeded    []string
	Achievements map[string]int
	SettledAt    time.Time
}

type MissionSettlement struct {
	MissionID    int64
	Title        string
	Reward       int64
	Participants int
	Winners      []string
	SettledAt    time.Time
}

const VerificationRejected = "rejected"
