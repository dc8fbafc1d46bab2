package mission

import (
    "fmt"
    "strings"
    "time"

    "github.com/park285/cheese-challenge/internal/domain"
)

// CancelPolicy decides whether a participation can be cancelled once rewards are paid.
type CancelPolicy string

const (
    CancelAllow                CancelPolicy = "allow"
    CancelBlockAfterSettlement CancelPolicy = "block_after_settlement"
)

func ParseCancelPolicy(s string) (CancelPolicy, error) {
    switch CancelPolicy(strings.ToLower(strings.TrimSpace(s))) {
    case "", CancelAllow:
        return CancelAllow, nil
    case CancelBlockAfterSettlement:
        return CancelBlockAfterSettlement, nil
    }
    return "", fmt.Errorf("unknown mission cancel policy %q", s)
}

// Spec is the administrator-supplied definition of a mission.
type Spec struct {
    Title       string
    Description string
    Type        string
    StartTime   time.Time
    EndTime     time.Time
    IsLongTerm  bool
    RewardTopN  int
    Reward      int64
}

// Patch updates only the non-nil fields.
type Patch struct {
    Title       *string
    Description *string
    Type        *string
    StartTime   *time.Time
    EndTime     *time.Time
    IsLongTerm  *bool
    RewardTopN  *int
    Reward      *int64
}

// RankEntry is one line of a mission leaderboard.
type RankEntry struct {
    Rank         int
    UserID       string
    Name         string
    ProfileImage string
    Result       float64
}

// Detail is a mission as seen by one viewer.
type Detail struct {
    Mission         *domain.Mission
    Status          domain.Status
    IsParticipating bool
    MyResult        *float64
    MyRank          *int
    MyName          *string
    MyProfileImage  *string
    Rankings        []RankEntry
}

type Listed struct {
    Mission *domain.Mission
    Status  domain.Status
}

// SettlementReport summarizes one DailySettlement run.
type SettlementReport struct {
    Settled int
    Failed  int
    Paid    int64
}
