package domain

import "time"

// FeedKind tags the two shapes merged into a user's challenge list.
type FeedKind string

const (
	FeedGroup FeedKind = "GROUP"
	FeedEvent FeedKind = "EVENT"
)

// FeedItem is the common shape of a challenge (Group) or mission (Event).
// ChallengeID is set for Group items and MissionID for Event items.
type FeedItem struct {
	Kind          FeedKind
	ChallengeID   string
	MissionID     int64
	Title         string
	MaxMember     *int
	CurrentMember *int
	StartDate     time.Time
	EndDate       time.Time
	IsStarted     bool
	IsFinished    bool
	SortKey       int64
}

func ChallengeFeedItem(c *Challenge, now time.Time) FeedItem {
	n := len(c.Participants)
	return FeedItem{
		Kind:          FeedGroup,
		ChallengeID:   c.ID,
		Title:         c.Title,
		MaxMember:     c.MaxMember,
		CurrentMember: &n,
		StartDate:     c.StartDate,
		EndDate:       c.EndDate,
		IsStarted:     !c.StartDate.After(now),
		IsFinished:    c.EndDate.Before(now),
		SortKey:       c.StartDate.UnixMilli(),
	}
}

func MissionFeedItem(m *Mission, now time.Time) FeedItem {
	return FeedItem{
		Kind:       FeedEvent,
		MissionID:  m.ID,
		Title:      m.Title,
		StartDate:  m.StartTime,
		EndDate:    m.EndTime,
		IsStarted:  !m.StartTime.After(now),
		IsFinished: m.EndTime.Before(now),
		SortKey:    m.StartTime.UnixMilli(),
	}
}
