package mission

import (
    "context"
    "sort"
    "strings"

    "github.com/park285/cheese-challenge/internal/domain"
    "github.com/park285/cheese-challenge/pkg/challengedto"
)

const (
    detailTop   = 20
    unknownName = "알 수 없음"
)

// rank orders participations with a result by descending result. Ties keep
// the input order, which is join order when read from the store.
func rank(parts []*domain.Participation) []*domain.Participation {
    out := make([]*domain.Participation, 0, len(parts))
    for _, p := range parts {
        if p.HasResult() { out = append(out, p) }
    }
    sort.SliceStable(out, func(i, j int) bool { return *out[i].ResultData > *out[j].ResultData })
    return out
}

// Ranking returns the full leaderboard with 1-indexed ranks.
func (m *Manager) Ranking(ctx context.Context, missionID int64) ([]RankEntry, error) {
    ms, err := m.store.LoadMission(ctx, nil, missionID)
    if err != nil { return nil, err }
    if ms == nil { return nil, challengedto.ErrMissionNotFound }
    parts, err := m.store.LoadParticipations(ctx, nil, missionID)
    if err != nil { return nil, err }
    ranked := rank(parts)
    out := make([]RankEntry, len(ranked))
    for i, p := range ranked {
        out[i] = RankEntry{Rank: i + 1, UserID: p.UserID, Result: *p.ResultData}
    }
    return out, nil
}

// Detail returns the mission with the viewer's standing and the top of the leaderboard.
func (m *Manager) Detail(ctx context.Context, missionID int64, viewerID string) (*Detail, error) {
    ms, err := m.store.LoadMission(ctx, nil, missionID)
    if err != nil { return nil, err }
    if ms == nil { return nil, challengedto.ErrMissionNotFound }
    parts, err := m.store.LoadParticipations(ctx, nil, missionID)
    if err != nil { return nil, err }

    ids := make([]string, 0, len(parts)+1)
    for _, p := range parts { ids = append(ids, p.UserID) }
    viewerID = strings.TrimSpace(viewerID)
    if viewerID != "" { ids = append(ids, viewerID) }
    users, err := m.users.GetUsers(ctx, ids)
    if err != nil { return nil, err }

    d := &Detail{Mission: ms, Status: ms.Status(m.now()), Rankings: []RankEntry{}}
    for _, p := range parts {
        if viewerID != "" && p.UserID == viewerID { d.IsParticipating = true }
    }
    for i, p := range rank(parts) {
        e := RankEntry{Rank: i + 1, UserID: p.UserID, Name: unknownName, Result: *p.ResultData}
        if u, ok := users[p.UserID]; ok {
            if u.Nickname != "" { e.Name = u.Nickname }
            e.ProfileImage = u.ProfileImage
        }
        if p.UserID == viewerID {
            r, n := e.Result, e.Rank
            d.MyResult, d.MyRank = &r, &n
        }
        if i < detailTop { d.Rankings = append(d.Rankings, e) }
    }
    if u, ok := users[viewerID]; ok && viewerID != "" {
        name, img := u.Nickname, u.ProfileImage
        d.MyName = &name
        if img != "" { d.MyProfileImage = &img }
    }
    return d, nil
}

// List returns the missions that have not ended yet, by start ascending.
func (m *Manager) List(ctx context.Context) ([]Listed, error) {
    ids, err := m.store.MissionIDs(ctx)
    if err != nil { return nil, err }
    missions, err := m.store.LoadMissions(ctx, ids)
    if err != nil { return nil, err }
    now := m.now()
    out := make([]Listed, 0, len(missions))
    for _, ms := range missions {
        if !ms.EndTime.After(now) { continue }
        out = append(out, Listed{Mission: ms, Status: ms.Status(now)})
    }
    return out, nil
}

// Mine returns the missions userID joined, most recently joined first.
func (m *Manager) Mine(ctx context.Context, userID string) ([]Listed, error) {
    userID = strings.TrimSpace(userID)
    if userID == "" { return nil, challengedto.ErrInvalidArgs }
    ids, err := m.store.MissionIDsByUser(ctx, userID)
    if err != nil { return nil, err }
    missions, err := m.store.LoadMissions(ctx, ids)
    if err != nil { return nil, err }

    joined := make(map[int64]int64, len(missions))
    for _, ms := range missions {
        p, err := m.store.LoadParticipation(ctx, nil, ms.ID, userID)
        if err != nil { return nil, err }
        if p != nil { joined[ms.ID] = p.JoinedAt.UnixNano() }
    }
    now := m.now()
    out := make([]Listed, 0, len(missions))
    for _, ms := range missions {
        if _, ok := joined[ms.ID]; !ok { continue }
        out = append(out, Listed{Mission: ms, Status: ms.Status(now)})
    }
    sort.SliceStable(out, func(i, j int) bool { return joined[out[i].Mission.ID] > joined[out[j].Mission.ID] })
    return out, nil
}
