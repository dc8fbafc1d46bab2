package redisx

import (
    "context"
    "errors"
    "testing"

    miniredis "github.com/alicebob/miniredis/v2"
    "github.com/redis/go-redis/v9"

    "github.com/park285/cheese-challenge/pkg/challengedto"
)

func TestParseURL(t *testing.T) {
    opts, err := ParseURL("redis://:secret@127.0.0.1:6380/3")
    if err != nil { t.Fatalf("ParseURL: %v", err) }
    if opts.Addr != "127.0.0.1:6380" || opts.Password != "secret" || opts.DB != 3 {
        t.Fatalf("unexpected options: addr=%q db=%d", opts.Addr, opts.DB)
    }
    tlsOpts, err := ParseURL("rediss://cache.internal:6379")
    if err != nil { t.Fatalf("ParseURL rediss: %v", err) }
    if tlsOpts.TLSConfig == nil || tlsOpts.TLSConfig.ServerName != "cache.internal" { t.Fatalf("expected TLS config") }
    if _, err := ParseURL("http://localhost:6379"); err == nil { t.Fatalf("expected scheme error") }
    if _, err := ParseURL("redis://localhost:6379/x"); err == nil { t.Fatalf("expected db error") }
}

func TestOpenPings(t *testing.T) {
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
    if err != nil { t.Fatalf("Open: %v", err) }
    _ = rdb.Close()
    if _, err := Open(context.Background(), " "); err == nil { t.Fatalf("expected error for empty url") }
}

func TestWatchExhaustsRetries(t *testing.T) {
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    ctx := context.Background()

    calls := 0
    err = Watch(ctx, rdb, 3, func(tx *redis.Tx) error {
        calls++
        return redis.TxFailedErr
    }, "k")
    if !errors.Is(err, challengedto.ErrConcurrentUpdate) { t.Fatalf("expected ErrConcurrentUpdate, got %v", err) }
    if calls != 3 { t.Fatalf("expected 3 attempts, got %d", calls) }

    boom := errors.New("boom")
    if err := Watch(ctx, rdb, 3, func(tx *redis.Tx) error { return boom }, "k"); !errors.Is(err, boom) {
        t.Fatalf("expected passthrough error, got %v", err)
    }
}

func TestGetJSON(t *testing.T) {
    mr, err := miniredis.Run()
    if err != nil { t.Fatalf("miniredis: %v", err) }
    t.Cleanup(mr.Close)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    ctx := context.Background()

    var v struct{ N int `json:"n"` }
    ok, err := GetJSON(ctx, rdb, "missing", &v)
    if err != nil || ok { t.Fatalf("missing key: ok=%v err=%v", ok, err) }
    _ = mr.Set("present", `{"n":7}`)
    ok, err = GetJSON(ctx, rdb, "present", &v)
    if err != nil || !ok || v.N != 7 { t.Fatalf("present key: ok=%v err=%v n=%d", ok, err, v.N) }
}
