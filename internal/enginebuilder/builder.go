package enginebuilder

import (
    "context"
    "errors"
    "fmt"
    "strings"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/park285/cheese-challenge/internal/challenge"
    "github.com/park285/cheese-challenge/internal/config"
    "github.com/park285/cheese-challenge/internal/feed"
    "github.com/park285/cheese-challenge/internal/ledger"
    "github.com/park285/cheese-challenge/internal/mission"
    "github.com/park285/cheese-challenge/internal/msgcat"
    "github.com/park285/cheese-challenge/internal/notify"
    "github.com/park285/cheese-challenge/internal/obslog"
    "github.com/park285/cheese-challenge/internal/redisx"
    "github.com/park285/cheese-challenge/internal/repository"
    "github.com/park285/cheese-challenge/internal/scheduler"
    "github.com/park285/cheese-challenge/internal/store"
)

// Engine holds every wired component of the service.
type Engine struct {
    Redis      redis.UniversalClient
    Store      *store.Store
    Ledger     *ledger.Ledger
    Challenges *challenge.Manager
    Missions   *mission.Manager
    Feed       *feed.Service
    Scheduler  *scheduler.Scheduler
    Dispatcher *notify.Dispatcher

    // Memory is set when no DATABASE_URL is configured.
    Memory *repository.Memory
    pg     *repository.Postgres
}

// Externals is everything the engine reads from or archives to outside Redis.
type Externals interface {
    repository.UserDirectory
    repository.ActivitySource
    repository.SettlementArchive
}

// New connects to Redis and, when DATABASE_URL is set, postgres, then wires
// the managers. Without postgres the in-memory repository is used.
func New(ctx context.Context, cfg *config.AppConfig) (*Engine, error) {
    if cfg == nil { return nil, fmt.Errorf("nil config") }
    rdb, err := redisx.Open(ctx, cfg.RedisURL)
    if err != nil { return nil, fmt.Errorf("init redis: %w", err) }

    if strings.TrimSpace(cfg.DatabaseURL) == "" {
        obslog.L().Warn("engine_memory_repository", zap.String("reason", "DATABASE_URL is empty"))
        e, err := Wire(rdb, cfg, repository.NewMemory())
        if err != nil { _ = rdb.Close() }
        return e, err
    }
    pg, err := repository.Open(cfg.DatabaseURL)
    if err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("init postgres: %w", err)
    }
    if err := pg.EnsureSchema(ctx); err != nil {
        _ = pg.Close()
        _ = rdb.Close()
        return nil, fmt.Errorf("ensure schema: %w", err)
    }
    e, err := Wire(rdb, cfg, pg)
    if err != nil {
        _ = pg.Close()
        _ = rdb.Close()
        return nil, err
    }
    return e, nil
}

// Wire builds an engine on an existing Redis client. ext serves the user
// directory, activity source and settlement archive.
func Wire(rdb redis.UniversalClient, cfg *config.AppConfig, ext Externals) (*Engine, error) {
    e := &Engine{
        Redis:  rdb,
        Store:  store.New(rdb),
        Ledger: ledger.New(rdb, ledger.WithJournalLimit(cfg.JournalMaxEntries), ledger.WithMaxRetries(cfg.MaxWatchRetries)),
    }
    switch r := ext.(type) {
    case *repository.Memory:
        e.Memory = r
    case *repository.Postgres:
        e.pg = r
    }
    e.Dispatcher = notify.NewDispatcher(cfg.NotifyRatePerSec, cfg.NotifyWorkers, cfg.NotifyTimeout)
    e.Feed = feed.New(e.Store, nil)
    if err := e.wireManagers(cfg, ext); err != nil {
        _ = e.Dispatcher.Close(context.Background())
        return nil, err
    }
    return e, nil
}

func (e *Engine) wireManagers(cfg *config.AppConfig, ext Externals) error {
    cat, err := msgcat.New(cfg.MessageOverrideDir)
    if err != nil { return fmt.Errorf("load messages: %w", err) }

    var notifier notify.Notifier = notify.Nop{}
    if cfg.NotifyBaseURL != "" {
        notifier = notify.NewWebhookNotifier(newClient(cfg.NotifyBaseURL, cfg), cat)
    }
    var chat notify.ChatRooms = notify.Nop{}
    if cfg.ChatBaseURL != "" {
        chat = notify.NewWebhookChat(newClient(cfg.ChatBaseURL, cfg), cat)
    }
    policy, err := mission.ParseCancelPolicy(cfg.MissionCancelPolicy)
    if err != nil { return err }

    e.Challenges = challenge.NewManager(challenge.Deps{
        Store:      e.Store,
        Ledger:     e.Ledger,
        Users:      ext,
        Activity:   ext,
        Archive:    ext,
        Notifier:   notifier,
        Chat:       chat,
        Dispatcher: e.Dispatcher,
    }, challenge.WithLocation(cfg.SweepLocation), challenge.WithMaxRetries(cfg.MaxWatchRetries))
    e.Missions = mission.NewManager(mission.Deps{
        Store:      e.Store,
        Ledger:     e.Ledger,
        Users:      ext,
        Archive:    ext,
        Notifier:   notifier,
        Dispatcher: e.Dispatcher,
    }, mission.WithCancelPolicy(policy), mission.WithMaxRetries(cfg.MaxWatchRetries))

    sch, err := scheduler.New(cfg.SweepCron, cfg.SweepLocation, Jobs(e.Challenges, e.Missions)...)
    if err != nil { return err }
    e.Scheduler = sch

    obslog.L().Info("engine_wired",
        zap.Bool("postgres", e.pg != nil),
        zap.Bool("notify_webhook", cfg.NotifyBaseURL != ""),
        zap.Bool("chat_webhook", cfg.ChatBaseURL != ""),
        zap.String("cancel_policy", string(policy)),
        zap.String("sweep_cron", cfg.SweepCron),
    )
    return nil
}

func newClient(baseURL string, cfg *config.AppConfig) *notify.Client {
    opts := []notify.Option{notify.WithTimeout(cfg.NotifyTimeout), notify.WithRetry(cfg.NotifyRetries)}
    if tok := cfg.NotifyToken; tok != "" {
        opts = append(opts, notify.WithHeaderProvider(func() map[string]string {
            return map[string]string{"Authorization": "Bearer " + tok}
        }))
    }
    return notify.NewClient(baseURL, opts...)
}

// Jobs is the daily run: the challenge sweep first, then mission settlement.
func Jobs(c *challenge.Manager, m *mission.Manager) []scheduler.Job {
    return []scheduler.Job{
        {Name: "challenge_sweep", Run: func(ctx context.Context) error {
            _, err := c.DailySweep(ctx)
            return err
        }},
        {Name: "mission_settlement", Run: func(ctx context.Context) error {
            _, err := m.DailySettlement(ctx)
            return err
        }},
    }
}

// Close stops the scheduler, drains pending side effects and closes connections.
func (e *Engine) Close(ctx context.Context) error {
    var errs []error
    if e.Scheduler != nil {
        if err := e.Scheduler.Stop(ctx); err != nil { errs = append(errs, fmt.Errorf("stop scheduler: %w", err)) }
    }
    if err := e.Dispatcher.Close(ctx); err != nil { errs = append(errs, fmt.Errorf("drain side effects: %w", err)) }
    if e.pg != nil {
        if err := e.pg.Close(); err != nil { errs = append(errs, err) }
    }
    if err := e.Redis.Close(); err != nil { errs = append(errs, err) }
    return errors.Join(errs...)
}
