package challenge

import (
    "context"
    "sort"
    "strings"
    "time"

    "github.com/park285/cheese-challenge/internal/achievement"
    "github.com/park285/cheese-challenge/internal/domain"
    "github.com/park285/cheese-challenge/pkg/challengedto"
)

const listLimit = 15

// Progress computes userID's achievement in the challenge from the activity source.
func (m *Manager) Progress(ctx context.Context, challengeID, userID string) (*Progress, error) {
    if strings.TrimSpace(challengeID) == "" || strings.TrimSpace(userID) == "" { return nil, challengedto.ErrInvalidArgs }
    ch, err := m.store.LoadChallenge(ctx, nil, challengeID)
    if err != nil { return nil, err }
    if ch == nil { return nil, challengedto.ErrChallengeNotFound }
    pct, err := m.achievementOf(ctx, ch, userID)
    if err != nil { return nil, err }
    return &Progress{
        ChallengeID:      ch.ID,
        ParticipantCount: len(ch.Participants),
        StartDate:        ch.StartDate,
        EndDate:          ch.EndDate,
        Goal:             ch.Goal,
        Achievement:      pct,
    }, nil
}

func (m *Manager) achievementOf(ctx context.Context, ch *domain.Challenge, userID string) (int, error) {
    times, err := m.activity.ActivityTimes(ctx, ch.ID, userID, ch.StartDate, ch.EndDate)
    if err != nil { return 0, err }
    w := achievement.Window{Start: ch.StartDate, End: ch.EndDate, Goal: ch.Goal}
    return achievement.Percent(w, times, m.loc), nil
}

// ForUser lists every challenge userID currently participates in.
func (m *Manager) ForUser(ctx context.Context, userID string) ([]*domain.Challenge, error) {
    ids, err := m.store.ChallengeIDsByUser(ctx, userID)
    if err != nil { return nil, err }
    list, err := m.store.LoadChallenges(ctx, ids)
    if err != nil { return nil, err }
    out := list[:0]
    for _, ch := range list {
        if ch.HasParticipant(userID) { out = append(out, ch) }
    }
    return out, nil
}

// Recent lists challenges created in the last 7 days, newest first.
func (m *Manager) Recent(ctx context.Context) ([]*domain.Challenge, error) {
    ids, err := m.store.ChallengesCreatedSince(ctx, m.now().AddDate(0, 0, -7), listLimit)
    if err != nil { return nil, err }
    return m.store.LoadChallenges(ctx, ids)
}

// Popular ranks challenges created in the last month by participant count and
// falls back to all challenges when fewer than a full page qualify.
func (m *Manager) Popular(ctx context.Context) ([]*domain.Challenge, error) {
    list, err := m.popularSince(ctx, m.now().AddDate(0, -1, 0))
    if err != nil { return nil, err }
    if len(list) < listLimit {
        return m.popularSince(ctx, time.Time{})
    }
    return list, nil
}

func (m *Manager) popularSince(ctx context.Context, since time.Time) ([]*domain.Challenge, error) {
    ids, err := m.store.ChallengesCreatedSince(ctx, since, 0)
    if err != nil { return nil, err }
    list, err := m.store.LoadChallenges(ctx, ids)
    if err != nil { return nil, err }
    sort.SliceStable(list, func(i, j int) bool { return len(list[i].Participants) > len(list[j].Participants) })
    if len(list) > listLimit { list = list[:listLimit] }
    return list, nil
}
