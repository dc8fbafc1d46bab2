package challenge

import (
    "context"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-challenge/internal/domain"
    "github.com/park285/cheese-challenge/internal/ledger"
    "github.com/park285/cheese-challenge/internal/metrics"
    "github.com/park285/cheese-challenge/internal/obslog"
    "github.com/park285/cheese-challenge/internal/redisx"
    "github.com/park285/cheese-challenge/internal/repository"
    "github.com/park285/cheese-challenge/internal/store"
    "github.com/park285/cheese-challenge/pkg/challengedto"
)

// settlement is the outcome of finishing one challenge.
type settlement struct {
    ch           *domain.Challenge
    achievements map[string]int
    pool         int64
    rewardEach   int64
}

// DailySweep runs the start pass and then the finish pass. Each record is
// handled in its own transaction; a failing record is logged, left for the
// next run, and does not stop the others.
func (m *Manager) DailySweep(ctx context.Context) (SweepReport, error) {
    var rep SweepReport
    now := m.now()

    started, failed, err := m.startPass(ctx, now)
    rep.Started, rep.Failed = started, failed
    if err != nil { return rep, err }

    finished, failed, paid, err := m.finishPass(ctx, now)
    rep.Finished, rep.Paid = finished, paid
    rep.Failed += failed
    if err != nil { return rep, err }

    obslog.L().Info("challenge_sweep_done",
        zap.Int("started", rep.Started),
        zap.Int("finished", rep.Finished),
        zap.Int("failed", rep.Failed),
        zap.Int64("paid", rep.Paid),
    )
    return rep, nil
}

func (m *Manager) dayBounds(now time.Time) (time.Time, time.Time) {
    local := now.In(m.loc)
    start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, m.loc)
    return start, start.AddDate(0, 0, 1).Add(-time.Millisecond)
}

func (m *Manager) startPass(ctx context.Context, now time.Time) (started, failed int, err error) {
    from, to := m.dayBounds(now)
    ids, err := m.store.ChallengesStartingBetween(ctx, from, to)
    if err != nil { return 0, 0, err }
    for _, id := range ids {
        if err := ctx.Err(); err != nil { return started, failed, err }
        ch, err := m.markStarted(ctx, id)
        if err != nil {
            failed++
            metrics.RecordSweepRecord("start", "error")
            obslog.L().Error("challenge_start_error", zap.String("challenge_id", id), zap.Error(err))
            continue
        }
        if ch == nil { continue }
        started++
        metrics.RecordSweepRecord("start", "ok")
        obslog.L().Info("challenge_start", zap.String("challenge_id", id), zap.Int("participants", len(ch.Participants)))
        if len(ch.Participants) > 0 {
            participants, title := ch.Participants, ch.Title
            m.dispatch.Go("notify_challenge_start", func(ctx context.Context) error {
                return m.notifier.NotifyChallengeStart(ctx, participants, title, id)
            }, zap.String("challenge_id", id))
        }
    }
    return started, failed, nil
}

// markStarted returns nil when the record is gone or already started.
func (m *Manager) markStarted(ctx context.Context, id string) (*domain.Challenge, error) {
    var out *domain.Challenge
    err := redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        out = nil
        ch, err := m.store.LoadChallenge(ctx, tx, id)
        if err != nil || ch == nil || ch.Started { return err }
        ch.Started = true
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveChallenge(ctx, pipe, ch); err != nil { return err }
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = ch
        return nil
    }, store.ChallengeKey(id))
    return out, err
}

func (m *Manager) finishPass(ctx context.Context, now time.Time) (finished, failed int, paid int64, err error) {
    ids, err := m.store.ChallengesEndedBefore(ctx, now)
    if err != nil { return 0, 0, 0, err }
    for _, id := range ids {
        if err := ctx.Err(); err != nil { return finished, failed, paid, err }
        s, err := m.settle(ctx, id, now)
        if err != nil {
            failed++
            metrics.RecordSweepRecord("finish", "error")
            obslog.L().Error("challenge_settle_error",
                zap.String("challenge_id", id),
                zap.String("code", challengedto.CodeOf(err)),
                zap.Error(err),
            )
            continue
        }
        if s == nil { continue }
        finished++
        total := s.rewardEach * int64(len(s.ch.SuccessParticipants))
        paid += total
        metrics.RecordSweepRecord("finish", "ok")
        metrics.RecordPayout("challenge", total)
        obslog.L().Info("challenge_settle",
            zap.String("challenge_id", id),
            zap.Int("participants", len(s.ch.Participants)),
            zap.Int("succeeded", len(s.ch.SuccessParticipants)),
            zap.Int64("pool", s.pool),
            zap.Int64("reward_each", s.rewardEach),
        )
        m.afterSettle(ctx, s, now)
    }
    return finished, failed, paid, nil
}

// settle computes achievements, credits the winners and marks the challenge
// finished in one transaction. It returns nil when there is nothing to do.
func (m *Manager) settle(ctx context.Context, id string, now time.Time) (*settlement, error) {
    var out *settlement
    err := redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        out = nil
        ch, err := m.store.LoadChallenge(ctx, tx, id)
        if err != nil || ch == nil || ch.Finished { return err }
        if !ch.EndDate.Before(now) { return nil }

        s := &settlement{ch: ch, achievements: make(map[string]int, len(ch.Participants))}
        success := make([]string, 0, len(ch.Participants))
        for _, uid := range ch.Participants {
            pct, err := m.achievementOf(ctx, ch, uid)
            if err != nil { return err }
            s.achievements[uid] = pct
            if pct == 100 { success = append(success, uid) }
        }
        s.pool = ch.Pool()
        var postings []ledger.Posting
        if len(success) > 0 {
            s.rewardEach = s.pool / int64(len(success))
            postings = make([]ledger.Posting, 0, len(success))
            for _, uid := range success {
                postings = append(postings, ledger.Posting{UserID: uid, Delta: s.rewardEach, Reason: reasonReward, Ref: ch.ID})
            }
        }
        batch, err := m.ledger.Prepare(ctx, tx, postings)
        if err != nil { return err }

        ch.SuccessParticipants = success
        ch.Finished = true
        // A challenge whose start day was missed must not accept leaves after settlement.
        ch.Started = true
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveChallenge(ctx, pipe, ch); err != nil { return err }
        batch.Queue(ctx, pipe)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = s
        return nil
    }, store.ChallengeKey(id))
    return out, err
}

// afterSettle archives the settlement and schedules the end notifications.
// Nothing here can undo the committed settlement.
func (m *Manager) afterSettle(ctx context.Context, s *settlement, now time.Time) {
    ch := s.ch
    if m.archive != nil {
        rec := repository.ChallengeSettlement{
            ChallengeID:  ch.ID,
            Title:        ch.Title,
            Stake:        ch.CoinAmount,
            Pool:         s.pool,
            RewardEach:   s.rewardEach,
            Participants: ch.Participants,
            Succeeded:    ch.SuccessParticipants,
            Achievements: s.achievements,
            SettledAt:    now,
        }
        if err := m.archive.ArchiveChallenge(ctx, rec); err != nil {
            obslog.L().Warn("challenge_archive_error", zap.String("challenge_id", ch.ID), zap.Error(err))
        }
    }

    succeeded := make(map[string]struct{}, len(ch.SuccessParticipants))
    for _, u := range ch.SuccessParticipants { succeeded[u] = struct{}{} }
    var failedUsers []string
    for _, u := range ch.Participants {
        if _, ok := succeeded[u]; !ok { failedUsers = append(failedUsers, u) }
    }
    id, title, reward := ch.ID, ch.Title, s.rewardEach
    if winners := ch.SuccessParticipants; len(winners) > 0 {
        m.dispatch.Go("notify_challenge_success", func(ctx context.Context) error {
            return m.notifier.NotifyChallengeEnd(ctx, winners, title, id, true, reward)
        }, zap.String("challenge_id", id))
    }
    if len(failedUsers) > 0 {
        m.dispatch.Go("notify_challenge_failure", func(ctx context.Context) error {
            return m.notifier.NotifyChallengeEnd(ctx, failedUsers, title, id, false, 0)
        }, zap.String("challenge_id", id))
    }
}
