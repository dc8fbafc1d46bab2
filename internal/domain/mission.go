package domain

import "time"

// Mission is an administrator-defined event ranked by submitted results.
type Mission struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Type               string    `json:"type,omitempty"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	IsLongTerm         bool      `json:"is_long_term"`
	RewardTopN         int       `json:"reward_top_n"`
	Reward             int64     `json:"reward"`
	RewardsDistributed bool      `json:"rewards_distributed"`
	CreatedAt          time.Time `json:"created_at"`
}

func (m *Mission) Status(now time.Time) Status { return DeriveStatus(m.StartTime, m.EndTime, now) }

// Participation is keyed by (MissionID, UserID).
type Participation struct {
	MissionID  int64     `json:"mission_id"`
	UserID     string    `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
	ResultData *float64  `json:"result_data"`
	Completed  bool      `json:"completed"`
	Rewarded   bool      `json:"rewarded"`
}

func (p *Participation) HasResult() bool { return p != nil && p.ResultData != nil }
