// Package ledger keeps per-user coin balances in Redis.
//
// Balances never go negative: debits are validated against the balance read
// inside a WATCH on the account key, and rejected rather than clamped.
// Credits are plain INCRBY and need no WATCH because accounts are never deleted.
package ledger

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-challenge/internal/obslog"
    "github.com/park285/cheese-challenge/internal/redisx"
    "github.com/park285/cheese-challenge/pkg/challengedto"
)

const (
    keyJournal            = "ledger:journal"
    defaultJournalEntries = 10000
)

func AccountKey(userID string) string { return "ledger:acct:" + strings.TrimSpace(userID) }

// Posting is a signed balance change. Negative deltas are debits.
type Posting struct {
    UserID string
    Delta  int64
    Reason string
    Ref    string
}

// Entry is one committed posting as recorded in the journal.
type Entry struct {
    ID     string    `json:"id"`
    UserID string    `json:"user_id"`
    Delta  int64     `json:"delta"`
    Reason string    `json:"reason"`
    Ref    string    `json:"ref,omitempty"`
    At     time.Time `json:"at"`
}

type Ledger struct {
    rdb        redis.UniversalClient
    maxJournal int64
    retries    int
    now        func() time.Time
}

type Option func(*Ledger)

func WithJournalLimit(n int64) Option {
    return func(l *Ledger) { if n > 0 { l.maxJournal = n } }
}

func WithClock(now func() time.Time) Option {
    return func(l *Ledger) { if now != nil { l.now = now } }
}

func WithMaxRetries(n int) Option {
    return func(l *Ledger) { if n > 0 { l.retries = n } }
}

func New(rdb redis.UniversalClient, opts ...Option) *Ledger {
    l := &Ledger{rdb: rdb, maxJournal: defaultJournalEntries, retries: redisx.DefaultMaxRetries, now: time.Now}
    for _, o := range opts { o(l) }
    return l
}

// Open creates the account with an initial balance. It reports false when the account already exists.
func (l *Ledger) Open(ctx context.Context, userID string, initial int64) (bool, error) {
    if strings.TrimSpace(userID) == "" { return false, challengedto.ErrInvalidArgs }
    if initial < 0 { return false, challengedto.ErrInvalidAmount }
    ok, err := l.rdb.SetNX(ctx, AccountKey(userID), initial, 0).Result()
    if err != nil { return false, fmt.Errorf("open account: %w", err) }
    if ok {
        obslog.L().Info("ledger_open", zap.String("user_id", userID), zap.Int64("initial", initial))
    }
    return ok, nil
}

func (l *Ledger) Balance(ctx context.Context, userID string) (int64, error) {
    return balance(ctx, l.rdb, userID)
}

// Debit removes amount from the user's balance and returns the new balance.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64, reason, ref string) (int64, error) {
    if amount < 0 { return 0, challengedto.ErrInvalidAmount }
    return l.apply(ctx, Posting{UserID: userID, Delta: -amount, Reason: reason, Ref: ref})
}

// Credit adds amount to an existing account and returns the new balance.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, reason, ref string) (int64, error) {
    if amount < 0 { return 0, challengedto.ErrInvalidAmount }
    return l.apply(ctx, Posting{UserID: userID, Delta: amount, Reason: reason, Ref: ref})
}

func (l *Ledger) apply(ctx context.Context, p Posting) (int64, error) {
    if strings.TrimSpace(p.UserID) == "" { return 0, challengedto.ErrInvalidArgs }
    var after int64
    err := redisx.Watch(ctx, l.rdb, l.retries, func(tx *redis.Tx) error {
        b, err := l.Prepare(ctx, tx, []Posting{p})
        if err != nil { return err }
        pipe := tx.TxPipeline()
        b.Queue(ctx, pipe)
        if _, err := pipe.Exec(ctx); err != nil { return err }
        after = b.Projected(p.UserID)
        return nil
    }, AccountKey(p.UserID))
    if err != nil { return 0, err }
    obslog.L().Info("ledger_post",
        zap.String("user_id", p.UserID),
        zap.Int64("delta", p.Delta),
        zap.Int64("balance", after),
        zap.String("reason", p.Reason),
        zap.String("ref", p.Ref),
    )
    return after, nil
}

// Batch is a validated set of postings ready to be staged in a MULTI.
type Batch struct {
    l         *Ledger
    postings  []Posting
    projected map[string]int64
}

// Prepare validates postings against balances read through c, normally the
// *redis.Tx of the caller's WATCH. Every account must exist and no balance may
// end below zero. Callers that debit must WATCH AccountKey for each debited user.
func (l *Ledger) Prepare(ctx context.Context, c redis.Cmdable, postings []Posting) (*Batch, error) {
    b := &Batch{l: l, projected: make(map[string]int64, len(postings))}
    for _, p := range postings {
        if strings.TrimSpace(p.UserID) == "" { return nil, challengedto.ErrInvalidArgs }
        cur, ok := b.projected[p.UserID]
        if !ok {
            bal, err := balance(ctx, c, p.UserID)
            if err != nil { return nil, err }
            cur = bal
        }
        if cur+p.Delta < 0 {
            return nil, challengedto.ErrInsufficientCoins
        }
        b.projected[p.UserID] = cur + p.Delta
        if p.Delta != 0 { b.postings = append(b.postings, p) }
    }
    return b, nil
}

// Projected is the balance the user will hold once the batch commits.
func (b *Batch) Projected(userID string) int64 { return b.projected[userID] }

func (b *Batch) Len() int { return len(b.postings) }

// Queue stages the balance changes and journal entries on pipe.
func (b *Batch) Queue(ctx context.Context, pipe redis.Pipeliner) {
    if b == nil || len(b.postings) == 0 { return }
    now := b.l.now()
    entries := make([]any, 0, len(b.postings))
    for _, p := range b.postings {
        pipe.IncrBy(ctx, AccountKey(p.UserID), p.Delta)
        raw, _ := json.Marshal(Entry{ID: uuid.NewString(), UserID: p.UserID, Delta: p.Delta, Reason: p.Reason, Ref: p.Ref, At: now})
        entries = append(entries, raw)
    }
    pipe.LPush(ctx, keyJournal, entries...)
    pipe.LTrim(ctx, keyJournal, 0, b.l.maxJournal-1)
}

// Journal returns the most recent entries, newest first.
func (l *Ledger) Journal(ctx context.Context, limit int64) ([]Entry, error) {
    if limit <= 0 { limit = 50 }
    raws, err := l.rdb.LRange(ctx, keyJournal, 0, limit-1).Result()
    if err != nil { return nil, fmt.Errorf("read journal: %w", err) }
    out := make([]Entry, 0, len(raws))
    for _, raw := range raws {
        var e Entry
        if err := json.Unmarshal([]byte(raw), &e); err != nil {
            obslog.L().Warn("ledger_journal_decode", zap.Error(err))
            continue
        }
        out = append(out, e)
    }
    return out, nil
}

func balance(ctx context.Context, c redis.Cmdable, userID string) (int64, error) {
    n, err := c.Get(ctx, AccountKey(userID)).Int64()
    if errors.Is(err, redis.Nil) { return 0, challengedto.ErrAccountNotFound }
    if err != nil { return 0, fmt.Errorf("read balance %s: %w", userID, err) }
    return n, nil
}
