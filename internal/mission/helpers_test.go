package mission

import (
    "context"
    "sync"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/park285/cheese-challenge/internal/domain"
    "github.com/park285/cheese-challenge/internal/ledger"
    "github.com/park285/cheese-challenge/internal/notify"
    "github.com/park285/cheese-challenge/internal/repository"
    "github.com/park285/cheese-challenge/internal/store"
)

var kst = time.FixedZone("KST", 9*60*60)

type testClock struct {
    mu sync.Mutex
    t  time.Time
}

func (c *testClock) Now() time.Time { c.mu.Lock(); defer c.mu.Unlock(); return c.t }
func (c *testClock) Set(t time.Time) { c.mu.Lock(); c.t = t; c.mu.Unlock() }

type rewardCall struct {
    user   string
    rank   int
    reward int64
}

type rewardRecorder struct {
    notify.Nop
    mu    sync.Mutex
    calls []rewardCall
}

func (r *rewardRecorder) NotifyMissionReward(ctx context.Context, userID, title string, missionID int64, rank int, reward int64) error {
    r.mu.Lock(); defer r.mu.Unlock()
    r.calls = append(r.calls, rewardCall{user: userID, rank: rank, reward: reward})
    return nil
}

type fixture struct {
    m     *Manager
    mr    *miniredis.Miniredis
    st    *store.Store
    led   *ledger.Ledger
    repo  *repository.Memory
    clock *testClock
    notes *rewardRecorder
    disp  *notify.Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    f := &fixture{
        mr:    mr,
        st:    store.New(rdb),
        led:   ledger.New(rdb),
        repo:  repository.NewMemory(),
        clock: &testClock{t: time.Date(2026, 6, 10, 10, 0, 0, 0, kst)},
        notes: &rewardRecorder{},
        disp:  notify.NewDispatcher(0, 2, time.Second),
    }
    t.Cleanup(func() { _ = f.disp.Close(context.Background()) })
    base := []Option{WithClock(f.clock.Now), WithMaxRetries(64)}
    f.m = NewManager(Deps{
        Store:      f.st,
        Ledger:     f.led,
        Users:      f.repo,
        Archive:    f.repo,
        Notifier:   f.notes,
        Dispatcher: f.disp,
    }, append(base, opts...)...)
    return f
}

func (f *fixture) addUser(t *testing.T, id string, coins int64) {
    t.Helper()
    f.repo.PutUser(&domain.User{ID: id, Nickname: "nick-" + id, ProfileImage: id + ".png"})
    if _, err := f.led.Open(context.Background(), id, coins); err != nil { t.Fatalf("ledger.Open: %v", err) }
}

func (f *fixture) balance(t *testing.T, id string) int64 {
    t.Helper()
    bal, err := f.led.Balance(context.Background(), id)
    if err != nil { t.Fatalf("Balance(%s): %v", id, err) }
    return bal
}

// ongoing creates a mission that started an hour ago and ends in a day.
func (f *fixture) ongoing(t *testing.T, topN int, reward int64) *domain.Mission {
    t.Helper()
    now := f.clock.Now()
    ms, err := f.m.Create(context.Background(), Spec{
        Title:      "10k steps",
        StartTime:  now.Add(-time.Hour),
        EndTime:    now.Add(24 * time.Hour),
        RewardTopN: topN,
        Reward:     reward,
    })
    if err != nil { t.Fatalf("Create: %v", err) }
    return ms
}

// submitAll joins each user in order and records their result.
func (f *fixture) submitAll(t *testing.T, id int64, results map[string]float64, order ...string) {
    t.Helper()
    ctx := context.Background()
    for _, u := range order {
        if _, err := f.m.Participate(ctx, id, u); err != nil { t.Fatalf("Participate(%s): %v", u, err) }
        if r, ok := results[u]; ok {
            if _, err := f.m.SubmitResult(ctx, id, u, r); err != nil { t.Fatalf("SubmitResult(%s): %v", u, err) }
        }
    }
}
