package mission

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

type payout struct {
    mission      *domain.Mission
    participants int
    winners      []string
}

// DailySettlement pays the top finishers of every ended, unsettled mission.
// A mission that fails is logged and left for the next run.
func (m *Manager) DailySettlement(ctx context.Context) (SettlementReport, error) {
    var rep SettlementReport
    now := m.now()
    ids, err := m.store.MissionsEndedUnsettled(ctx, now)
    if err != nil { return rep, err }

    for _, id := range ids {
        if err := ctx.Err(); err != nil { return rep, err }
        p, err := m.settle(ctx, id, now)
        if err != nil {
            rep.Failed++
            metrics.RecordSweepRecord("mission", "error")
            obslog.L().Error("mission_settle_error",
                zap.Int64("mission_id", id),
                zap.String("code", challengedto.CodeOf(err)),
                zap.Error(err),
            )
            continue
        }
        if p == nil { continue }
        rep.Settled++
        total := p.mission.Reward * int64(len(p.winners))
        rep.Paid += total
        metrics.RecordSweepRecord("mission", "ok")
        metrics.RecordPayout("mission", total)
        obslog.L().Info("mission_settle",
            zap.Int64("mission_id", id),
            zap.Int("participants", p.participants),
            zap.Strings("winners", p.winners),
            zap.Int64("reward", p.mission.Reward),
        )
        m.afterSettle(ctx, p, now)
    }

    obslog.L().Info("mission_settlement_done", zap.Int("settled", rep.Settled), zap.Int("failed", rep.Failed), zap.Int64("paid", rep.Paid))
    return rep, nil
}

func (m *Manager) settle(ctx context.Context, id int64, now time.Time) (*payout, error) {
    var out *payout
    err := redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        out = nil
        ms, err := m.store.LoadMission(ctx, tx, id)
        if err != nil || ms == nil || ms.RewardsDistributed { return err }
        if !ms.EndTime.Before(now) { return nil }
        parts, err := m.store.LoadParticipations(ctx, tx, id)
        if err != nil { return err }

        ranked := rank(parts)
        topN := ms.RewardTopN
        if topN < 0 { topN = 0 }
        if topN > len(ranked) { topN = len(ranked) }
        winners := ranked[:topN]

        postings := make([]ledger.Posting, 0, len(winners))
        for _, w := range winners {
            postings = append(postings, ledger.Posting{UserID: w.UserID, Delta: ms.Reward, Reason: reasonReward, Ref: store.MissionKey(id)})
        }
        batch, err := m.ledger.Prepare(ctx, tx, postings)
        if err != nil { return err }

        ms.RewardsDistributed = true
        pipe := tx.TxPipeline()
        ids := make([]string, 0, len(winners))
        for _, w := range winners {
            w.Rewarded = true
            if err := m.store.QueueSaveParticipation(ctx, pipe, w, false); err != nil { return err }
            ids = append(ids, w.UserID)
        }
        if err := m.store.QueueSaveMission(ctx, pipe, ms); err != nil { return err }
        batch.Queue(ctx, pipe)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        out = &payout{mission: ms, participants: len(parts), winners: ids}
        return nil
    }, store.MissionKey(id), store.MissionPartsKey(id))
    return out, err
}

// afterSettle archives the payout and tells each winner their rank.
func (m *Manager) afterSettle(ctx context.Context, p *payout, now time.Time) {
    ms := p.mission
    if m.archive != nil {
        rec := repository.MissionSettlement{
            MissionID:    ms.ID,
            Title:        ms.Title,
            Reward:       ms.Reward,
            Participants: p.participants,
            Winners:      p.winners,
            SettledAt:    now,
        }
        if err := m.archive.ArchiveMission(ctx, rec); err != nil {
            obslog.L().Warn("mission_archive_error", zap.Int64("mission_id", ms.ID), zap.Error(err))
        }
    }
    for i, uid := range p.winners {
        place, id, title, reward := i+1, ms.ID, ms.Title, ms.Reward
        m.dispatch.Go("notify_mission_reward", func(ctx context.Context) error {
            return m.notifier.NotifyMissionReward(ctx, uid, title, id, place, reward)
        }, zap.Int64("mission_id", id), zap.String("user_id", uid))
    }
}
