package challenge

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

type endCall struct {
    users     []string
    succeeded bool
    reward    int64
}

type recordingNotifier struct {
    mu     sync.Mutex
    err    error
    starts [][]string
    ends   []endCall
}

func (n *recordingNotifier) NotifyChallengeStart(ctx context.Context, ids []string, title, challengeID string) error {
    n.mu.Lock(); defer n.mu.Unlock()
    n.starts = append(n.starts, append([]string(nil), ids...))
    return n.err
}

func (n *recordingNotifier) NotifyChallengeEnd(ctx context.Context, ids []string, title, challengeID string, succeeded bool, reward int64) error {
    n.mu.Lock(); defer n.mu.Unlock()
    n.ends = append(n.ends, endCall{users: append([]string(nil), ids...), succeeded: succeeded, reward: reward})
    return n.err
}

func (n *recordingNotifier) NotifyMissionReward(context.Context, string, string, int64, int, int64) error { return nil }

type recordingChat struct {
    mu      sync.Mutex
    created []string
    added   []string
    removed []string
}

func (c *recordingChat) CreateRoom(ctx context.Context, spec notify.RoomSpec) error {
    c.mu.Lock(); defer c.mu.Unlock()
    c.created = append(c.created, spec.ChallengeID)
    return nil
}

func (c *recordingChat) AddParticipant(ctx context.Context, challengeID string, member notify.Member) error {
    c.mu.Lock(); defer c.mu.Unlock()
    c.added = append(c.added, member.UserID)
    return nil
}

func (c *recordingChat) RemoveParticipant(ctx context.Context, challengeID string, member notify.Member) error {
    c.mu.Lock(); defer c.mu.Unlock()
    c.removed = append(c.removed, member.UserID)
    return nil
}

type fixture struct {
    m     *Manager
    mr    *miniredis.Miniredis
    st    *store.Store
    led   *ledger.Ledger
    repo  *repository.Memory
    clock *testClock
    notes *recordingNotifier
    chat  *recordingChat
    disp  *notify.Dispatcher
}

func newFixture(t *testing.T) *fixture {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })

    f := &fixture{
        mr:    mr,
        st:    store.New(rdb),
        led:   ledger.New(rdb, ledger.WithMaxRetries(128)),
        repo:  repository.NewMemory(),
        clock: &testClock{t: time.Date(2026, 6, 10, 10, 0, 0, 0, kst)},
        notes: &recordingNotifier{},
        chat:  &recordingChat{},
        disp:  notify.NewDispatcher(0, 4, time.Second),
    }
    t.Cleanup(func() { _ = f.disp.Close(context.Background()) })
    f.m = NewManager(Deps{
        Store:      f.st,
        Ledger:     f.led,
        Users:      f.repo,
        Activity:   f.repo,
        Archive:    f.repo,
        Notifier:   f.notes,
        Chat:       f.chat,
        Dispatcher: f.disp,
    }, WithClock(f.clock.Now), WithLocation(kst), WithMaxRetries(128))
    return f
}

// addUser registers a 32-year-old (counting rule) user with a funded account.
func (f *fixture) addUser(t *testing.T, id string, gender domain.Gender, coins int64) {
    t.Helper()
    f.addUserBorn(t, id, gender, coins, 1995)
}

func (f *fixture) addUserBorn(t *testing.T, id string, gender domain.Gender, coins int64, year int) {
    t.Helper()
    f.repo.PutUser(&domain.User{ID: id, Nickname: id, BirthDate: time.Date(year, 3, 1, 0, 0, 0, 0, kst), Gender: gender})
    if _, err := f.led.Open(context.Background(), id, coins); err != nil { t.Fatalf("ledger.Open: %v", err) }
}

func (f *fixture) balance(t *testing.T, id string) int64 {
    t.Helper()
    bal, err := f.led.Balance(context.Background(), id)
    if err != nil { t.Fatalf("Balance(%s): %v", id, err) }
    return bal
}

// tomorrowAt9 is the day after the fixture's starting clock, 09:00 local.
func (f *fixture) tomorrowAt9() time.Time {
    n := f.clock.Now()
    return time.Date(n.Year(), n.Month(), n.Day()+1, 9, 0, 0, 0, kst)
}

func (f *fixture) create(t *testing.T, creator string, mutate func(*CreateRequest)) *domain.Challenge {
    t.Helper()
    start := f.tomorrowAt9()
    req := CreateRequest{
        Title:      "morning run",
        StartDate:  start,
        EndDate:    start.AddDate(0, 0, 14),
        Goal:       2,
        StartAge:   20,
        Gender:     domain.GenderNone,
        CoinAmount: 100,
    }
    if mutate != nil { mutate(&req) }
    ch, err := f.m.Create(context.Background(), creator, req)
    if err != nil { t.Fatalf("Create: %v", err) }
    return ch
}

func intp(n int) *int { return &n }
