package repository

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/park285/cheese-challenge/internal/domain"
)

type activity struct {
    at     time.Time
    status string
}

// Memory is a development-only in-memory implementation used when no DB is configured.
type Memory struct {
    mu sync.RWMutex

    users      map[string]*domain.User
    activities map[string][]activity // challengeID|userID -> submissions

    challengeSettlements map[string]ChallengeSettlement
    missionSettlements   map[int64]MissionSettlement
}

func NewMemory() *Memory {
    return &Memory{
        users:                make(map[string]*domain.User),
        activities:           make(map[string][]activity),
        challengeSettlements: make(map[string]ChallengeSettlement),
        missionSettlements:   make(map[int64]MissionSettlement),
    }
}

func (m *Memory) PutUser(u *domain.User) {
    if u == nil { return }
    cp := *u
    m.mu.Lock()
    m.users[u.ID] = &cp
    m.mu.Unlock()
}

// AddActivity records a submission; status "rejected" never qualifies.
func (m *Memory) AddActivity(challengeID, userID string, at time.Time, status string) {
    key := activityKey(challengeID, userID)
    m.mu.Lock()
    m.activities[key] = append(m.activities[key], activity{at: at, status: strings.ToLower(strings.TrimSpace(status))})
    m.mu.Unlock()
}

func (m *Memory) GetUser(ctx context.Context, id string) (*domain.User, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    u, ok := m.users[id]
    if !ok { return nil, nil }
    cp := *u
    return &cp, nil
}

func (m *Memory) GetUsers(ctx context.Context, ids []string) (map[string]*domain.User, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    out := make(map[string]*domain.User, len(ids))
    for _, id := range ids {
        if u, ok := m.users[id]; ok {
            cp := *u
            out[id] = &cp
        }
    }
    return out, nil
}

func (m *Memory) ActivityTimes(ctx context.Context, challengeID, userID string, from, to time.Time) ([]time.Time, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    var out []time.Time
    for _, a := range m.activities[activityKey(challengeID, userID)] {
        if a.status == VerificationRejected { continue }
        if a.at.Before(from) || a.at.After(to) { continue }
        out = append(out, a.at)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
    return out, nil
}

func (m *Memory) ArchiveChallenge(ctx context.Context, rec ChallengeSettlement) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, exists := m.challengeSettlements[rec.ChallengeID]; !exists {
        m.challengeSettlements[rec.ChallengeID] = rec
    }
    return nil
}

func (m *Memory) ArchiveMission(ctx context.Context, rec MissionSettlement) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, exists := m.missionSettlements[rec.MissionID]; !exists {
        m.missionSettlements[rec.MissionID] = rec
    }
    return nil
}

func (m *Memory) ChallengeSettlement(id string) (ChallengeSettlement, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    rec, ok := m.challengeSettlements[id]
    return rec, ok
}

func (m *Memory) MissionSettlement(id int64) (MissionSettlement, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    rec, ok := m.missionSettlements[id]
    return rec, ok
}

func activityKey(challengeID, userID string) string { return challengeID + "|" + userID }
