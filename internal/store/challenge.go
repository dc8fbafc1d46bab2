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

// Store owns the Redis layout of challenge and mission records and their indexes.
// Load methods take a redis.Cmdable so callers can read through a WATCHed *redis.Tx;
// Queue methods stage writes on the caller's pipeline.
type Store struct{ rdb redis.UniversalClient }

func New(rdb redis.UniversalClient) *Store { return &Store{rdb: rdb} }

func (s *Store) Client() redis.UniversalClient { return s.rdb }

// LoadChallenge returns nil, nil when the challenge does not exist.
func (s *Store) LoadChallenge(ctx context.Context, c redis.Cmdable, id string) (*domain.Challenge, error) {
    if c == nil { c = s.rdb }
    raw, err := c.Get(ctx, ChallengeKey(id)).Bytes()
    if errors.Is(err, redis.Nil) { return nil, nil }
    if err != nil { return nil, err }
    var ch domain.Challenge
    if err := json.Unmarshal(raw, &ch); err != nil { return nil, fmt.Errorf("decode challenge %s: %w", id, err) }
    return &ch, nil
}

// LoadChallenges skips ids that no longer resolve.
func (s *Store) LoadChallenges(ctx context.Context, ids []string) ([]*domain.Challenge, error) {
    if len(ids) == 0 { return nil, nil }
    keys := make([]string, len(ids))
    for i, id := range ids { keys[i] = ChallengeKey(id) }
    vals, err := s.rdb.MGet(ctx, keys...).Result()
    if err != nil { return nil, err }
    out := make([]*domain.Challenge, 0, len(vals))
    for i, v := range vals {
        str, ok := v.(string)
        if !ok { continue }
        var ch domain.Challenge
        if err := json.Unmarshal([]byte(str), &ch); err != nil { return nil, fmt.Errorf("decode challenge %s: %w", ids[i], err) }
        out = append(out, &ch)
    }
    return out, nil
}

// QueueSaveChallenge writes the record and keeps the sweep and membership indexes in step with it.
func (s *Store) QueueSaveChallenge(ctx context.Context, pipe redis.Pipeliner, ch *domain.Challenge) error {
    raw, err := json.Marshal(ch)
    if err != nil { return err }
    pipe.Set(ctx, ChallengeKey(ch.ID), raw, 0)
    pipe.ZAddNX(ctx, keyChallengeCreated, redis.Z{Score: float64(ch.CreatedAt.UnixMilli()), Member: ch.ID})
    if ch.Started {
        pipe.ZRem(ctx, keyChallengeUnstarted, ch.ID)
    } else {
        pipe.ZAdd(ctx, keyChallengeUnstarted, redis.Z{Score: float64(ch.StartDate.UnixMilli()), Member: ch.ID})
    }
    if ch.Finished {
        pipe.ZRem(ctx, keyChallengeUnfinished, ch.ID)
        for _, u := range ch.SuccessParticipants {
            pipe.SAdd(ctx, challengeSuccessIdx(u), ch.ID)
        }
    } else {
        pipe.ZAdd(ctx, keyChallengeUnfinished, redis.Z{Score: float64(ch.EndDate.UnixMilli()), Member: ch.ID})
    }
    for _, u := range ch.Participants {
        pipe.SAdd(ctx, challengeUserIdx(u), ch.ID)
    }
    return nil
}

// QueueUnindexParticipant drops the membership index entry for a user who left.
func (s *Store) QueueUnindexParticipant(ctx context.Context, pipe redis.Pipeliner, challengeID, userID string) {
    pipe.SRem(ctx, challengeUserIdx(userID), challengeID)
}

// ChallengesStartingBetween lists unstarted challenges with start in [from, to].
func (s *Store) ChallengesStartingBetween(ctx context.Context, from, to time.Time) ([]string, error) {
    return s.rdb.ZRangeByScore(ctx, keyChallengeUnstarted, &redis.ZRangeBy{
        Min: strconv.FormatInt(from.UnixMilli(), 10),
        Max: strconv.FormatInt(to.UnixMilli(), 10),
    }).Result()
}

// ChallengesEndedBefore lists unfinished challenges with end strictly before t, oldest first.
func (s *Store) ChallengesEndedBefore(ctx context.Context, t time.Time) ([]string, error) {
    return s.rdb.ZRangeByScore(ctx, keyChallengeUnfinished, &redis.ZRangeBy{
        Min: "-inf",
        Max: "(" + strconv.FormatInt(t.UnixMilli(), 10),
    }).Result()
}

// ChallengesCreatedSince lists ids created at or after t, newest first, up to limit (0 = all).
func (s *Store) ChallengesCreatedSince(ctx context.Context, t time.Time, limit int64) ([]string, error) {
    return s.rdb.ZRevRangeByScore(ctx, keyChallengeCreated, &redis.ZRangeBy{
        Min:   strconv.FormatInt(t.UnixMilli(), 10),
        Max:   "+inf",
        Count: limit,
    }).Result()
}

func (s *Store) ChallengeIDsByUser(ctx context.Context, userID string) ([]string, error) {
    return s.rdb.SMembers(ctx, challengeUserIdx(userID)).Result()
}

func (s *Store) CountSucceeded(ctx context.Context, userID string) (int64, error) {
    return s.rdb.SCard(ctx, challengeSuccessIdx(userID)).Result()
}
