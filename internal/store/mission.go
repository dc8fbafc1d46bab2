package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strconv"
    "time"

    "github.com/redis/go-redis/v9"

    "github.com/park285/cheese-challenge/internal/domain"
)

func (s *Store) NextMissionID(ctx context.Context) (int64, error) {
    return s.rdb.Incr(ctx, keyMissionSeq).Result()
}

// LoadMission returns nil, nil when the mission does not exist.
func (s *Store) LoadMission(ctx context.Context, c redis.Cmdable, id int64) (*domain.Mission, error) {
    if c == nil { c = s.rdb }
    raw, err := c.Get(ctx, MissionKey(id)).Bytes()
    if errors.Is(err, redis.Nil) { return nil, nil }
    if err != nil { return nil, err }
    var m domain.Mission
    if err := json.Unmarshal(raw, &m); err != nil { return nil, fmt.Errorf("decode mission %d: %w", id, err) }
    return &m, nil
}

func (s *Store) LoadMissions(ctx context.Context, ids []int64) ([]*domain.Mission, error) {
    if len(ids) == 0 { return nil, nil }
    keys := make([]string, len(ids))
    for i, id := range ids { keys[i] = MissionKey(id) }
    vals, err := s.rdb.MGet(ctx, keys...).Result()
    if err != nil { return nil, err }
    out := make([]*domain.Mission, 0, len(vals))
    for i, v := range vals {
        str, ok := v.(string)
        if !ok { continue }
        var m domain.Mission
        if err := json.Unmarshal([]byte(str), &m); err != nil { return nil, fmt.Errorf("decode mission %d: %w", ids[i], err) }
        out = append(out, &m)
    }
    return out, nil
}

func (s *Store) QueueSaveMission(ctx context.Context, pipe redis.Pipeliner, m *domain.Mission) error {
    raw, err := json.Marshal(m)
    if err != nil { return err }
    id := strconv.FormatInt(m.ID, 10)
    pipe.Set(ctx, MissionKey(m.ID), raw, 0)
    pipe.ZAdd(ctx, keyMissionAll, redis.Z{Score: float64(m.StartTime.UnixMilli()), Member: id})
    if m.RewardsDistributed {
        pipe.ZRem(ctx, keyMissionUnsettled, id)
    } else {
        pipe.ZAdd(ctx, keyMissionUnsettled, redis.Z{Score: float64(m.EndTime.UnixMilli()), Member: id})
    }
    return nil
}

// QueueDeleteMission removes the mission, its participations and every index entry.
func (s *Store) QueueDeleteMission(ctx context.Context, pipe redis.Pipeliner, id int64, userIDs []string) {
    member := strconv.FormatInt(id, 10)
    pipe.Del(ctx, MissionKey(id), MissionPartsKey(id), MissionOrderKey(id))
    pipe.ZRem(ctx, keyMissionAll, member)
    pipe.ZRem(ctx, keyMissionUnsettled, member)
    for _, u := range userIDs {
        pipe.SRem(ctx, missionUserIdx(u), member)
    }
}

// LoadParticipation returns nil, nil when the user has not joined.
func (s *Store) LoadParticipation(ctx context.Context, c redis.Cmdable, missionID int64, userID string) (*domain.Participation, error) {
    if c == nil { c = s.rdb }
    raw, err := c.HGet(ctx, MissionPartsKey(missionID), userID).Bytes()
    if errors.Is(err, redis.Nil) { return nil, nil }
    if err != nil { return nil, err }
    var p domain.Participation
    if err := json.Unmarshal(raw, &p); err != nil { return nil, fmt.Errorf("decode participation %d/%s: %w", missionID, userID, err) }
    return &p, nil
}

// LoadParticipations returns every participation in join order.
func (s *Store) LoadParticipations(ctx context.Context, c redis.Cmdable, missionID int64) ([]*domain.Participation, error) {
    if c == nil { c = s.rdb }
    order, err := c.LRange(ctx, MissionOrderKey(missionID), 0, -1).Result()
    if err != nil { return nil, err }
    if len(order) == 0 { return nil, nil }
    vals, err := c.HMGet(ctx, MissionPartsKey(missionID), order...).Result()
    if err != nil { return nil, err }
    out := make([]*domain.Participation, 0, len(vals))
    for i, v := range vals {
        str, ok := v.(string)
        if !ok { continue }
        var p domain.Participation
        if err := json.Unmarshal([]byte(str), &p); err != nil { return nil, fmt.Errorf("decode participation %d/%s: %w", missionID, order[i], err) }
        out = append(out, &p)
    }
    return out, nil
}

// QueueSaveParticipation writes p; joined appends it to the join order and the user's index.
func (s *Store) QueueSaveParticipation(ctx context.Context, pipe redis.Pipeliner, p *domain.Participation, joined bool) error {
    raw, err := json.Marshal(p)
    if err != nil { return err }
    pipe.HSet(ctx, MissionPartsKey(p.MissionID), p.UserID, raw)
    if joined {
        pipe.RPush(ctx, MissionOrderKey(p.MissionID), p.UserID)
        pipe.SAdd(ctx, missionUserIdx(p.UserID), strconv.FormatInt(p.MissionID, 10))
    }
    return nil
}

func (s *Store) QueueRemoveParticipation(ctx context.Context, pipe redis.Pipeliner, missionID int64, userID string) {
    pipe.HDel(ctx, MissionPartsKey(missionID), userID)
    pipe.LRem(ctx, MissionOrderKey(missionID), 0, userID)
    pipe.SRem(ctx, missionUserIdx(userID), strconv.FormatInt(missionID, 10))
}

// MissionsEndedUnsettled lists missions with end strictly before t and rewards not yet distributed, by end ascending.
func (s *Store) MissionsEndedUnsettled(ctx context.Context, t time.Time) ([]int64, error) {
    ids, err := s.rdb.ZRangeByScore(ctx, keyMissionUnsettled, &redis.ZRangeBy{
        Min: "-inf",
        Max: "(" + strconv.FormatInt(t.UnixMilli(), 10),
    }).Result()
    if err != nil { return nil, err }
    return parseIDs(ids), nil
}

// MissionIDs returns every mission ordered by start ascending.
func (s *Store) MissionIDs(ctx context.Context) ([]int64, error) {
    ids, err := s.rdb.ZRange(ctx, keyMissionAll, 0, -1).Result()
    if err != nil { return nil, err }
    return parseIDs(ids), nil
}

func (s *Store) MissionIDsByUser(ctx context.Context, userID string) ([]int64, error) {
    ids, err := s.rdb.SMembers(ctx, missionUserIdx(userID)).Result()
    if err != nil { return nil, err }
    return parseIDs(ids), nil
}

func parseIDs(raw []string) []int64 {
    out := make([]int64, 0, len(raw))
    for _, r := range raw {
        if n, err := strconv.ParseInt(r, 10, 64); err == nil { out = append(out, n) }
    }
    return out
}
