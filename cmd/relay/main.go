// Command relay runs next to a printer that the API host cannot reach
// directly. It pops finished tickets from the Redis relay queue and writes
// them to the local device.
package main

import (
	"context"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"posprint/internal/config"
	"posprint/internal/pkg/logger"
	"posprint/internal/pkg/shutdown"
	"posprint/internal/ports"
	"posprint/internal/printer"
	"posprint/internal/worker"
	"posprint/internal/worker/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: "posprint-relay",
	})

	if cfg.Printer.Backend == "relay" {
		log.Error("relay agent needs a local printer backend", "backend", cfg.Printer.Backend)
		os.Exit(1)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 15*time.Second)

	redis.SetLogger(log.WithComponent("redis"))
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	shutdownMgr.RegisterCloser("redis", rdb)

	q := queue.NewRedisQueue(rdb, cfg.Relay.Queue)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = q.Ping(pingCtx)
	cancel()
	if err != nil {
		log.LogFatal("failed to ping Redis", err, "addr", cfg.Redis.Addr)
	}

	sink, err := printer.NewSink(cfg, nil)
	if err != nil {
		log.LogFatal("failed to build printer sink", err)
	}
	if c, ok := sink.(ports.Closer); ok {
		shutdownMgr.RegisterCloser("printer", c)
	}

	runCtx, stop := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		log.Info("relay agent started", "queue", q.Name(), "backend", sink.Name())
		_ = worker.RunRelay(runCtx, worker.RelayDeps{
			Queue:      q,
			Sink:       sink,
			Log:        log,
			PopTimeout: cfg.Relay.PopTimeout,
		})
	}()
	shutdownMgr.Register("relay", func(ctx context.Context) error {
		stop()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
		os.Exit(1)
	}
}
