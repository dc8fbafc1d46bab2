// Package challenge owns the challenge lifecycle: create, join, leave and the
// daily sweep that starts challenges and settles the finished ones.
package challenge

import (
    "context"
    "strings"
    "time"

    "github.com/google/uuid"
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

const (
    reasonStake  = "challenge_stake"
    reasonRefund = "challenge_refund"
    reasonReward = "challenge_reward"
)

// Deps are the collaborators a Manager needs. Notifier, Chat and Archive may be nil.
type Deps struct {
    Store      *store.Store
    Ledger     *ledger.Ledger
    Users      repository.UserDirectory
    Activity   repository.ActivitySource
    Archive    repository.SettlementArchive
    Notifier   notify.Notifier
    Chat       notify.ChatRooms
    Dispatcher *notify.Dispatcher
}

type Manager struct {
    rdb      redis.UniversalClient
    store    *store.Store
    ledger   *ledger.Ledger
    users    repository.UserDirectory
    activity repository.ActivitySource
    archive  repository.SettlementArchive
    notifier notify.Notifier
    chat     notify.ChatRooms
    dispatch *notify.Dispatcher

    loc     *time.Location
    now     func() time.Time
    retries int
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
    return func(m *Manager) { if now != nil { m.now = now } }
}

// WithLocation sets the zone used for calendar-day boundaries.
func WithLocation(loc *time.Location) Option {
    return func(m *Manager) { if loc != nil { m.loc = loc } }
}

func WithMaxRetries(n int) Option {
    return func(m *Manager) { if n > 0 { m.retries = n } }
}

func NewManager(d Deps, opts ...Option) *Manager {
    m := &Manager{
        rdb:      d.Store.Client(),
        store:    d.Store,
        ledger:   d.Ledger,
        users:    d.Users,
        activity: d.Activity,
        archive:  d.Archive,
        notifier: d.Notifier,
        chat:     d.Chat,
        dispatch: d.Dispatcher,
        loc:      time.Local,
        now:      time.Now,
        retries:  redisx.DefaultMaxRetries,
    }
    if m.notifier == nil { m.notifier = notify.Nop{} }
    if m.chat == nil { m.chat = notify.Nop{} }
    for _, o := range opts { o(m) }
    return m
}

// Create validates the request, debits the creator's stake and stores the
// challenge with the creator as its only participant, all in one transaction.
func (m *Manager) Create(ctx context.Context, creatorID string, req CreateRequest) (ch *domain.Challenge, err error) {
    defer func() { metrics.RecordOperation("challenge_create", challengedto.CodeOf(err)) }()
    creatorID = strings.TrimSpace(creatorID)
    req.Title = strings.TrimSpace(req.Title)
    if creatorID == "" || req.Title == "" || req.Goal < 0 || req.StartAge < 0 { return nil, challengedto.ErrInvalidArgs }
    if req.CoinAmount < 0 { return nil, challengedto.ErrInvalidAmount }
    if req.MaxMember != nil && *req.MaxMember < 1 { return nil, challengedto.ErrInvalidArgs }
    if req.EndAge != nil && *req.EndAge < req.StartAge { return nil, challengedto.ErrInvalidArgs }

    user, err := m.users.GetUser(ctx, creatorID)
    if err != nil { return nil, err }
    if user == nil { return nil, challengedto.ErrUserNotFound }

    bal, err := m.ledger.Balance(ctx, creatorID)
    if err != nil { return nil, err }
    if bal < req.CoinAmount { return nil, challengedto.ErrInsufficientCoins }

    now := m.now()
    if !req.StartDate.After(now) {
        return nil, challengedto.ErrInvalidDates.WithMessage("start date must be in the future")
    }
    if !req.EndDate.After(req.StartDate) {
        return nil, challengedto.ErrInvalidDates.WithMessage("end date must be after start date")
    }
    if !req.EndDate.After(now) {
        return nil, challengedto.ErrInvalidDates.WithMessage("end date must be in the future")
    }

    gender := req.Gender
    if gender == "" { gender = domain.GenderNone }
    ch = &domain.Challenge{
        ID:                  uuid.NewString(),
        Title:               req.Title,
        Introduce:           req.Introduce,
        VerificationGuide:   req.VerificationGuide,
        StartDate:           req.StartDate,
        EndDate:             req.EndDate,
        Goal:                req.Goal,
        StartAge:            req.StartAge,
        EndAge:              req.EndAge,
        Gender:              gender,
        MaxMember:           req.MaxMember,
        CreatorID:           creatorID,
        CoinAmount:          req.CoinAmount,
        Participants:        []string{creatorID},
        SuccessParticipants: []string{},
        CreatedAt:           now,
    }
    if !user.HasBirthDate() || !ch.AgeAllowed(domain.Age(user.BirthDate, now)) {
        return nil, challengedto.ErrAgeRestriction
    }

    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        batch, err := m.ledger.Prepare(ctx, tx, []ledger.Posting{{UserID: creatorID, Delta: -ch.CoinAmount, Reason: reasonStake, Ref: ch.ID}})
        if err != nil { return err }
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveChallenge(ctx, pipe, ch); err != nil { return err }
        batch.Queue(ctx, pipe)
        _, err = pipe.Exec(ctx)
        return err
    }, ledger.AccountKey(creatorID))
    if err != nil { return nil, err }

    obslog.L().Info("challenge_create",
        zap.String("challenge_id", ch.ID),
        zap.String("creator_id", creatorID),
        zap.Int64("stake", ch.CoinAmount),
        zap.Time("start", ch.StartDate),
        zap.Time("end", ch.EndDate),
    )
    spec := notify.RoomSpec{ChallengeID: ch.ID, Title: ch.Title, CreatorID: creatorID, StartDate: ch.StartDate, EndDate: ch.EndDate, MaxMember: ch.MaxMember}
    m.dispatch.Go("chat_create_room", func(ctx context.Context) error {
        return m.chat.CreateRoom(ctx, spec)
    }, zap.String("challenge_id", ch.ID))
    return ch, nil
}

// Join adds userID to the challenge and debits the stake atomically.
// Checks run in a fixed order so each failure kind is reported deterministically.
func (m *Manager) Join(ctx context.Context, challengeID, userID string) (ch *domain.Challenge, err error) {
    defer func() { metrics.RecordOperation("challenge_join", challengedto.CodeOf(err)) }()
    challengeID, userID = strings.TrimSpace(challengeID), strings.TrimSpace(userID)
    if challengeID == "" || userID == "" { return nil, challengedto.ErrInvalidArgs }

    cur, err := m.store.LoadChallenge(ctx, nil, challengeID)
    if err != nil { return nil, err }
    if cur == nil { return nil, challengedto.ErrChallengeNotFound }
    user, err := m.users.GetUser(ctx, userID)
    if err != nil { return nil, err }
    if user == nil { return nil, challengedto.ErrUserNotFound }

    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        c, err := m.store.LoadChallenge(ctx, tx, challengeID)
        if err != nil { return err }
        if c == nil { return challengedto.ErrChallengeNotFound }
        now := m.now()
        if !c.GenderAllowed(user.Gender) { return challengedto.ErrGenderRestriction }
        if !user.HasBirthDate() { return challengedto.ErrUserNotFound.WithMessage("user birth date is not registered") }
        if !c.AgeAllowed(domain.Age(user.BirthDate, now)) { return challengedto.ErrAgeRestriction }
        if c.IsFull() { return challengedto.ErrChallengeFull }
        if c.HasParticipant(userID) { return challengedto.ErrAlreadyJoined }
        batch, err := m.ledger.Prepare(ctx, tx, []ledger.Posting{{UserID: userID, Delta: -c.CoinAmount, Reason: reasonStake, Ref: c.ID}})
        if err != nil { return err }
        if c.EndDate.Before(now) { return challengedto.ErrAlreadyFinished }
        if !c.StartDate.After(now) { return challengedto.ErrAlreadyStarted }

        c.Participants = append(c.Participants, userID)
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveChallenge(ctx, pipe, c); err != nil { return err }
        batch.Queue(ctx, pipe)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        ch = c
        return nil
    }, store.ChallengeKey(challengeID), ledger.AccountKey(userID))
    if err != nil { return nil, err }

    obslog.L().Info("challenge_join",
        zap.String("challenge_id", ch.ID),
        zap.String("user_id", userID),
        zap.Int("participants", len(ch.Participants)),
    )
    member := notify.Member{UserID: userID, Nickname: user.Nickname}
    m.dispatch.Go("chat_add_participant", func(ctx context.Context) error {
        return m.chat.AddParticipant(ctx, challengeID, member)
    }, zap.String("challenge_id", challengeID), zap.String("user_id", userID))
    return ch, nil
}

// Leave removes userID before the challenge has started and refunds the stake.
func (m *Manager) Leave(ctx context.Context, challengeID, userID string) (res *LeaveResult, err error) {
    defer func() { metrics.RecordOperation("challenge_leave", challengedto.CodeOf(err)) }()
    challengeID, userID = strings.TrimSpace(challengeID), strings.TrimSpace(userID)
    if challengeID == "" || userID == "" { return nil, challengedto.ErrInvalidArgs }

    cur, err := m.store.LoadChallenge(ctx, nil, challengeID)
    if err != nil { return nil, err }
    if cur == nil { return nil, challengedto.ErrChallengeNotFound }
    if cur.Started { return nil, challengedto.ErrAlreadyStarted }
    user, err := m.users.GetUser(ctx, userID)
    if err != nil { return nil, err }
    if user == nil { return nil, challengedto.ErrUserNotFound }

    err = redisx.Watch(ctx, m.rdb, m.retries, func(tx *redis.Tx) error {
        c, err := m.store.LoadChallenge(ctx, tx, challengeID)
        if err != nil { return err }
        if c == nil { return challengedto.ErrChallengeNotFound }
        if c.Started || c.Finished { return challengedto.ErrAlreadyStarted }
        if !c.RemoveParticipant(userID) { return challengedto.ErrNotAParticipant }
        batch, err := m.ledger.Prepare(ctx, tx, []ledger.Posting{{UserID: userID, Delta: c.CoinAmount, Reason: reasonRefund, Ref: c.ID}})
        if err != nil { return err }
        pipe := tx.TxPipeline()
        if err := m.store.QueueSaveChallenge(ctx, pipe, c); err != nil { return err }
        m.store.QueueUnindexParticipant(ctx, pipe, c.ID, userID)
        batch.Queue(ctx, pipe)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        res = &LeaveResult{Refunded: c.CoinAmount, Balance: batch.Projected(userID)}
        return nil
    }, store.ChallengeKey(challengeID))
    if err != nil { return nil, err }

    obslog.L().Info("challenge_leave",
        zap.String("challenge_id", challengeID),
        zap.String("user_id", userID),
        zap.Int64("refunded", res.Refunded),
    )
    member := notify.Member{UserID: userID, Nickname: user.Nickname}
    m.dispatch.Go("chat_remove_participant", func(ctx context.Context) error {
        return m.chat.RemoveParticipant(ctx, challengeID, member)
    }, zap.String("challenge_id", challengeID), zap.String("user_id", userID))
    return res, nil
}

// Get returns the challenge with its derived status for viewerID.
func (m *Manager) Get(ctx context.Context, challengeID, viewerID string) (*View, error) {
    ch, err := m.store.LoadChallenge(ctx, nil, challengeID)
    if err != nil { return nil, err }
    if ch == nil { return nil, challengedto.ErrChallengeNotFound }
    return &View{
        Challenge:        ch,
        Status:           ch.Status(m.now()),
        ParticipantCount: len(ch.Participants),
        IsParticipating:  viewerID != "" && ch.HasParticipant(viewerID),
    }, nil
}

// CountCompleted is the number of challenges userID finished at 100%.
func (m *Manager) CountCompleted(ctx context.Context, userID string) (int64, error) {
    if strings.TrimSpace(userID) == "" { return 0, challengedto.ErrInvalidArgs }
    return m.store.CountSucceeded(ctx, userID)
}
