package main

import (
    "context"
    "errors"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    appcfg "github.com/park285/cheese-challenge/internal/config"
    "github.com/park285/cheese-challenge/internal/enginebuilder"
    "github.com/park285/cheese-challenge/internal/metrics"
    "github.com/park285/cheese-challenge/internal/obslog"
)

func main() {
    cfg, err := appcfg.Load()
    if err != nil {
        log.Fatalf("config error: %v", err)
    }
    if err := obslog.InitFromEnv(); err != nil {
        log.Fatalf("logger init error: %v", err)
    }
    defer obslog.Sync()

    bctx, bcancel := context.WithTimeout(context.Background(), 15*time.Second)
    engine, err := enginebuilder.New(bctx, cfg)
    bcancel()
    if err != nil {
        obslog.L().Fatal("engine_init_error", zap.Error(err))
    }

    var metricsSrv *http.Server
    if cfg.MetricsAddr != "" {
        mux := http.NewServeMux()
        mux.Handle("/metrics", metrics.Handler())
        mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
            if err := engine.Redis.Ping(r.Context()).Err(); err != nil {
                http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
                return
            }
            _, _ = w.Write([]byte("ok"))
        })
        metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
        go func() {
            if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
                obslog.L().Error("metrics_server_error", zap.Error(err))
            }
        }()
    }

    engine.Scheduler.Start()
    obslog.L().Info("challenge_engine_started",
        zap.String("sweep_cron", cfg.SweepCron),
        zap.String("timezone", cfg.SweepTimezone),
        zap.Time("next_run", engine.Scheduler.Next()),
        zap.String("metrics_addr", cfg.MetricsAddr),
    )

    if cfg.RunSweepOnBoot {
        go func() {
            if err := engine.Scheduler.RunNow(context.Background()); err != nil {
                obslog.L().Warn("boot_sweep_error", zap.Error(err))
            }
        }()
    }

    // Wait for termination signal
    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
    sig := <-sigCh
    obslog.L().Info("challenge_engine_stopping", zap.String("signal", sig.String()))

    sctx, scancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer scancel()
    if metricsSrv != nil {
        _ = metricsSrv.Shutdown(sctx)
    }
    if err := engine.Close(sctx); err != nil {
        obslog.L().Warn("challenge_engine_close_error", zap.Error(err))
    }
}
