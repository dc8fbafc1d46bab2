package enginebuilder

import (
    "context"
    "net/http"
    "net/http/httptest"
    "sync/atomic"
    "testing"
    "time"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/park285/cheese-challenge/internal/config"
    "github.com/park285/cheese-challenge/internal/mission"
    "github.com/park285/cheese-challenge/internal/repository"
)

func newRedis(t *testing.T) redis.UniversalClient {
    t.Helper()
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestWireRunsDailyJobsEndToEnd(t *testing.T) {
    var pushes atomic.Int32
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path == "/notifications" { pushes.Add(1) }
        w.WriteHeader(http.StatusNoContent)
    }))
    defer srv.Close()

    cfg := &config.AppConfig{
        NotifyBaseURL:     srv.URL,
        NotifyTimeout:     time.Second,
        JournalMaxEntries: 100,
        SweepLocation:     time.UTC,
    }
    mem := repository.NewMemory()
    e, err := Wire(newRedis(t), cfg, mem)
    if err != nil { t.Fatalf("Wire: %v", err) }
    if e.Memory != mem { t.Fatalf("memory repository not exposed") }
    ctx := context.Background()

    if _, err := e.Ledger.Open(ctx, "u1", 0); err != nil { t.Fatalf("Open: %v", err) }
    now := time.Now()
    ms, err := e.Missions.Create(ctx, mission.Spec{Title: "sprint", StartTime: now.Add(-time.Minute), EndTime: now.Add(300 * time.Millisecond), RewardTopN: 1, Reward: 25})
    if err != nil { t.Fatalf("Create: %v", err) }
    if _, err := e.Missions.Participate(ctx, ms.ID, "u1"); err != nil { t.Fatalf("Participate: %v", err) }
    if _, err := e.Missions.SubmitResult(ctx, ms.ID, "u1", 3); err != nil { t.Fatalf("SubmitResult: %v", err) }

    time.Sleep(400 * time.Millisecond)
    if err := e.Scheduler.RunNow(ctx); err != nil { t.Fatalf("RunNow: %v", err) }
    if bal, _ := e.Ledger.Balance(ctx, "u1"); bal != 25 { t.Fatalf("balance = %d, want 25", bal) }
    if _, ok := mem.MissionSettlement(ms.ID); !ok { t.Fatalf("settlement not archived") }

    e.Dispatcher.Wait()
    if pushes.Load() != 1 { t.Fatalf("reward push count = %d", pushes.Load()) }

    cctx, cancel := context.WithTimeout(ctx, time.Second)
    defer cancel()
    if err := e.Close(cctx); err != nil { t.Fatalf("Close: %v", err) }
}

func TestWireRejectsBadSettings(t *testing.T) {
    if _, err := Wire(newRedis(t), &config.AppConfig{MissionCancelPolicy: "sometimes"}, repository.NewMemory()); err == nil {
        t.Fatalf("unknown cancel policy accepted")
    }
    if _, err := Wire(newRedis(t), &config.AppConfig{SweepCron: "not a cron"}, repository.NewMemory()); err == nil {
        t.Fatalf("bad cron accepted")
    }
}

func TestNewRequiresReachableRedis(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    if _, err := New(ctx, &config.AppConfig{RedisURL: "redis://127.0.0.1:1/0"}); err == nil {
        t.Fatalf("expected connection error")
    }
}
