package redisx

import (
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "strconv"
    "strings"

    "github.com/redis/go-redis/v9"

    "github.com/park285/cheese-challenge/pkg/challengedto"
)

// DefaultMaxRetries bounds optimistic WATCH retries before giving up with ErrConcurrentUpdate.
const DefaultMaxRetries = 16

// ParseURL accepts redis:// and rediss:// URLs with an optional /<db> path.
func ParseURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    if u.Host == "" { return nil, fmt.Errorf("redis url missing host") }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        n, err := strconv.Atoi(p)
        if err != nil { return nil, fmt.Errorf("invalid redis db %q", p) }
        db = n
    }
    opts := &redis.Options{Addr: u.Host, DB: db}
    if u.User != nil {
        opts.Username = u.User.Username()
        opts.Password, _ = u.User.Password()
        if opts.Username == "default" { opts.Username = "" }
    }
    if u.Scheme == "rediss" {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
    }
    return opts, nil
}

// Open parses redisURL, connects and pings.
func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
    if strings.TrimSpace(redisURL) == "" {
        return nil, fmt.Errorf("REDIS_URL required")
    }
    opts, err := ParseURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return rdb, nil
}

// Watch runs fn inside WATCH on keys and retries on redis.TxFailedErr.
// Exhausting maxRetries yields challengedto.ErrConcurrentUpdate.
func Watch(ctx context.Context, rdb redis.UniversalClient, maxRetries int, fn func(tx *redis.Tx) error, keys ...string) error {
    if maxRetries <= 0 { maxRetries = DefaultMaxRetries }
    for i := 0; i < maxRetries; i++ {
        err := rdb.Watch(ctx, fn, keys...)
        if err == nil { return nil }
        if !errors.Is(err, redis.TxFailedErr) { return err }
        if ctx.Err() != nil { return ctx.Err() }
    }
    return challengedto.ErrConcurrentUpdate
}

// GetJSON loads key into v. It reports false when the key is absent.
func GetJSON(ctx context.Context, c redis.Cmdable, key string, v any) (bool, error) {
    raw, err := c.Get(ctx, key).Bytes()
    if errors.Is(err, redis.Nil) { return false, nil }
    if err != nil { return false, err }
    if err := json.Unmarshal(raw, v); err != nil { return false, fmt.Errorf("decode %s: %w", key, err) }
    return true, nil
}
