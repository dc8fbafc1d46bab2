// Package mission runs administrator-defined missions: participation,
// result submission, leaderboards and the daily reward settlement.
package mission

import (
    "context"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-challenge/internal/domain"
    "github.com/park285/cheese-challenge/internal/ledger"
    "github.com/park285/cheese-challenge/internal/metrics"
    "github.com/park285/cheese-challenge/internal/notify"
    "github.com/park285/cheese-challenge/internal/obslog"
    "github.com/park285/cheese-challenge/internal/redisx"
    "github.com/park285/cheese-challenge/internal/repository"
    "github.com/park285/cheese-challenge/internal/store"
    "github.com/park285/cheese-challenge/pkg/challengedto"
)

const reasonReward = "mission_reward"

type Deps struct {
    Store      *store.Store
    Ledger     *ledger.Ledger
    Users      repository.UserDirectory
    Archive    repository.SettlementArchive
    Notifier   notify.Notifier
    Dispatcher *notify.Dispatcher
}

type Manager struct {
    rdb      redis.UniversalClient
    store    *store.Store
    ledger   *ledger.Ledger
    users    repository.UserDirectory
    archive  repository.SettlementArchive
    notifier notify.Notifier
    dispatch *notify.Dispatcher

    policy  CancelPolicy
    now     func() time.Time
    retries int
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
    return func(m *Manager) { if now != nil { m.now = now } }
}

func WithMaxRetries(n int) Option {
    return func(m *Manager) { if n > 0 { m.retries = n } }
}

func WithCancelPolicy(p CancelPolicy) Option {
    return func(m *Manager) { if p != "" { m.policy = p } }
}

func NewManager(d Deps, opts ...Option) *Manager {
    m := &Manager{
        rdb:      d.Store.Client(),
        store:    d.Store,
        ledger:   d.Ledger,
        users:    d.Users,
        archive:  d.Archive,
        notifier: d.Notifier,
        dispatch: d.Dispatcher,
        policy:   CancelAllow,
        now:      time.Now,
        retries:  redisx.DefaultMaxRetries,
    }
    if m.notifier == nil { m.notifier = notify.Nop{} }
    for _, o := range opts { o(m) }
    return m
}

func validate(s Spec) error {
    if strings.TrimSpace(s.Title) == "" { return challengedto.ErrInvalidArgs.WithMessage("mission title is required") }
    if !s.EndTime.After(s.StartTime) { return challengedto.ErrInvalidDates.WithMessage("mission end must be after start") }
    if s.Reward < 0 { return challengedto.ErrInvalidAmount }
    return nil
}

// Create stores a new mission with a counter-allocated id.
func (m *Manager) Create(ctx context.Context, s Spec) (ms *domain.Mission, err error) {
    defer func() { metrics.RecordOperation("mission_create", challengedto.CodeOf(err)) }()
    s.Title = strings.TrimSpace(s.Title)
    if err := validate(s); err != nil { return nil, err }

    id, err := m.store.NextMissionID(ctx)
    if err != nil { return nil, err }
    ms = &domain.Mission{
        ID:          id,
        Title:       s.Title,
        Description: s.Description,
        Type:        s.Type,
        StartTime:   s.StartTime,
        EndTime:     s.EndTime,
        IsLongTerm:  s.IsLongTerm,
        RewardTopN:  s.RewardTopN,
        Reward:      s.Reward,
        CreatedAt:   m.now(),
    }
    pipe := m.rdb.TxPipeline()
    if err := m.store.QueueSaveMission(ctx, pipe, ms); err != nil { return nil, err }
    if _, err := pipe.Exec(ctx); err != nil { return nil, err }

    obslog.L().Info("mission_create", zap.Int64("mission_id", id), zap.String("title", ms.Title), zap.Int("top_n", ms.RewardTopN), zap.Int64("reward", ms.Reward))
    return ms, nil
}

// Update applies p to the mission. The settled flag is never changed here.
func (m *Manager) Update(ctx context.Context, id int64, p Patch) (out *domain.Mission, err error) {
    defer func() { metrics.RecordOperation("mission_update", challengedto.CodeOf(err)) }()
    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        ms, err := m.store.LoadMission(ctx, tx, id)
        if err != nil { return err }
        if ms == nil { return challengedto.ErrMissionNotFound }
        applyPatch(ms, p)
        if err := validate(Spec{Title: ms.Title, StartTime: ms.StartTime, EndTime: ms.EndTime, Reward: ms.Reward}); err != nil { return err }
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveMission(ctx, pipe, ms); err != nil { return err }
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = ms
        return nil
    }, store.MissionKey(id))
    if err != nil { return nil, err }
    obslog.L().Info("mission_update", zap.Int64("mission_id", id))
    return out, nil
}

func applyPatch(ms *domain.Mission, p Patch) {
    if p.Title != nil { ms.Title = strings.TrimSpace(*p.Title) }
    if p.Description != nil { ms.Description = *p.Description }
    if p.Type != nil { ms.Type = *p.Type }
    if p.StartTime != nil { ms.StartTime = *p.StartTime }
    if p.EndTime != nil { ms.EndTime = *p.EndTime }
    if p.IsLongTerm != nil { ms.IsLongTerm = *p.IsLongTerm }
    if p.RewardTopN != nil { ms.RewardTopN = *p.RewardTopN }
    if p.Reward != nil { ms.Reward = *p.Reward }
}

// Delete removes the mission together with every participation.
func (m *Manager) Delete(ctx context.Context, id int64) (err error) {
    defer func() { metrics.RecordOperation("mission_delete", challengedto.CodeOf(err)) }()
    var removed int
    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        ms, err := m.store.LoadMission(ctx, tx, id)
        if err != nil { return err }
        if ms == nil { return challengedto.ErrMissionNotFound }
        users, err := tx.LRange(ctx, store.MissionOrderKey(id), 0, -1).Result()
        if err != nil { return err }
        pipe := tx.TxPipeline()
        m.store.QueueDeleteMission(ctx, pipe, id, users)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        removed = len(users)
        return nil
    }, store.MissionKey(id), store.MissionPartsKey(id), store.MissionOrderKey(id))
    if err != nil { return err }
    obslog.L().Info("mission_delete", zap.Int64("mission_id", id), zap.Int("participations", removed))
    return nil
}

// Participate joins userID to the mission. A repeated call returns the
// existing participation unchanged.
func (m *Manager) Participate(ctx context.Context, missionID int64, userID string) (p *domain.Participation, err error) {
    defer func() { metrics.RecordOperation("mission_participate", challengedto.CodeOf(err)) }()
    userID = strings.TrimSpace(userID)
    if userID == "" { return nil, challengedto.ErrInvalidArgs }

    created := false
    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        created = false
        ms, err := m.store.LoadMission(ctx, tx, missionID)
        if err != nil { return err }
        if ms == nil { return challengedto.ErrMissionNotFound }
        existing, err := m.store.LoadParticipation(ctx, tx, missionID, userID)
        if err != nil { return err }
        if existing != nil {
            p = existing
            return nil
        }
        np := &domain.Participation{MissionID: missionID, UserID: userID, JoinedAt: m.now()}
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveParticipation(ctx, pipe, np, true); err != nil { return err }
        if _, err := pipe.Exec(ctx); err != nil { return err }
        p, created = np, true
        return nil
    }, store.MissionKey(missionID), store.MissionPartsKey(missionID))
    if err != nil { return nil, err }
    if created {
        obslog.L().Info("mission_participate", zap.Int64("mission_id", missionID), zap.String("user_id", userID))
    }
    return p, nil
}

// SubmitResult overwrites the participant's result. Short-term missions are
// completed by the submission itself.
func (m *Manager) SubmitResult(ctx context.Context, missionID int64, userID string, result float64) (p *domain.Participation, err error) {
    defer func() { metrics.RecordOperation("mission_submit", challengedto.CodeOf(err)) }()
    userID = strings.TrimSpace(userID)
    if userID == "" { return nil, challengedto.ErrInvalidArgs }

    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        cur, err := m.store.LoadParticipation(ctx, tx, missionID, userID)
        if err != nil { return err }
        if cur == nil { return challengedto.ErrParticipationNotFound }
        ms, err := m.store.LoadMission(ctx, tx, missionID)
        if err != nil { return err }
        if ms == nil { return challengedto.ErrMissionNotFound }
        now := m.now()
        if ms.StartTime.After(now) { return challengedto.ErrMissionNotStarted }
        if ms.EndTime.Before(now) { return challengedto.ErrMissionFinished }

        r := result
        cur.ResultData = &r
        if !ms.IsLongTerm { cur.Completed = true }
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveParticipation(ctx, pipe, cur, false); err != nil { return err }
        if _, err := pipe.Exec(ctx); err != nil { return err }
        p = cur
        return nil
    }, store.MissionKey(missionID), store.MissionPartsKey(missionID))
    if err != nil { return nil, err }

    obslog.L().Info("mission_submit",
        zap.Int64("mission_id", missionID),
        zap.String("user_id", userID),
        zap.Float64("result", result),
        zap.Bool("completed", p.Completed),
    )
    return p, nil
}

// MarkCompleted completes a long-term participation; the decision is made by the caller.
func (m *Manager) MarkCompleted(ctx context.Context, missionID int64, userID string) (err error) {
    defer func() { metrics.RecordOperation("mission_complete", challengedto.CodeOf(err)) }()
    return redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        cur, err := m.store.LoadParticipation(ctx, tx, missionID, userID)
        if err != nil { return err }
        if cur == nil { return challengedto.ErrParticipationNotFound }
        if cur.Completed { return nil }
        cur.Completed = true
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveParticipation(ctx, pipe, cur, false); err != nil { return err }
        _, err = pipe.Exec(ctx)
        return err
    }, store.MissionPartsKey(missionID))
}

// Cancel removes the participation. Whether a rewarded mission may still be
// cancelled depends on the manager's CancelPolicy; the reward is never clawed back.
func (m *Manager) Cancel(ctx context.Context, missionID int64, userID string) (err error) {
    defer func() { metrics.RecordOperation("mission_cancel", challengedto.CodeOf(err)) }()
    userID = strings.TrimSpace(userID)
    if userID == "" { return challengedto.ErrInvalidArgs }

    var rewarded bool
    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        cur, err := m.store.LoadParticipation(ctx, tx, missionID, userID)
        if err != nil { return err }
        if cur == nil { return challengedto.ErrParticipationNotFound }
        if m.policy == CancelBlockAfterSettlement {
            ms, err := m.store.LoadMission(ctx, tx, missionID)
            if err != nil { return err }
            if ms != nil && ms.RewardsDistributed { return challengedto.ErrMissionSettled }
        }
        pipe := tx.TxPipeline()
        m.store.QueueRemoveParticipation(ctx, pipe, missionID, userID)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        rewarded = cur.Rewarded
        return nil
    }, store.MissionKey(missionID), store.MissionPartsKey(missionID))
    if err != nil { return err }

    obslog.L().Info("mission_cancel", zap.Int64("mission_id", missionID), zap.String("user_id", userID), zap.Bool("was_rewarded", rewarded))
    return nil
}
