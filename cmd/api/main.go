package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"posprint/internal/config"
	"posprint/internal/escpos"
	"posprint/internal/httpapi"
	"posprint/internal/httpapi/handlers"
	"posprint/internal/pkg/logger"
	"posprint/internal/pkg/shutdown"
	"posprint/internal/ports"
	"posprint/internal/printer"
	"posprint/internal/repositories"
	"posprint/internal/storage"
	"posprint/internal/worker"
	"posprint/internal/worker/processor"
	"posprint/internal/worker/renderer"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().LogFatal("invalid configuration", err)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		AddSource:   cfg.Log.AddSource,
		ServiceName: "posprint-api",
	})
	log.Info("starting print server", "version", version, "backend", cfg.Printer.Backend)

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Redis is only needed when tickets are relayed to a remote agent.
	var rdb redis.Cmdable
	if cfg.Printer.Backend == "relay" {
		redis.SetLogger(log.WithComponent("redis"))
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		shutdownMgr.RegisterCloser("redis", client)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.LogFatal("failed to ping Redis", err, "addr", cfg.Redis.Addr)
		}
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
		rdb = client
	}

	sink, err := printer.NewSink(cfg, rdb)
	if err != nil {
		log.LogFatal("failed to build printer sink", err)
	}
	if c, ok := sink.(ports.Closer); ok {
		shutdownMgr.RegisterCloser("printer", c)
	}
	if name, ok := sink.DefaultDeviceName(ctx); ok {
		log.Info("printer ready", "backend", sink.Name(), "device", name)
	} else {
		log.Warn("no default printer, jobs will fail until one is available", "backend", sink.Name())
	}

	enc := escpos.New(escpos.Config{
		LineSpacing:     byte(cfg.Ticket.LineSpacing),
		FeedLines:       byte(cfg.Ticket.FeedLines),
		QRCaptionTop:    cfg.Ticket.QRCaptionTop,
		QRCaptionBottom: cfg.Ticket.QRCaptionBottom,
		Transliterate:   cfg.Ticket.Transliterate,
	})
	proc := processor.New(processor.Deps{
		Encoder:        enc,
		DPI:            cfg.Printer.DPI,
		QRSizeMM:       cfg.Ticket.QRSizeMM,
		PaperWidthDots: cfg.Printer.PaperWidthDots,
		Log:            log,
	})

	var recorder worker.Recorder
	var journal handlers.Journal
	if cfg.Journal.Driver != "" {
		repo, err := repositories.OpenJournal(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			log.LogFatal("failed to open print journal", err, "driver", cfg.Journal.Driver)
		}
		shutdownMgr.RegisterCloser("journal", repo)

		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = repo.EnsureSchema(schemaCtx)
		cancel()
		if err != nil {
			log.LogFatal("failed to prepare print journal", err, "driver", cfg.Journal.Driver)
		}
		log.Info("print journal ready", "driver", cfg.Journal.Driver)
		recorder, journal = repo, repo
	}

	if cfg.Printer.PurgeOnStart {
		purgeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := sink.PurgeBacklog(purgeCtx); err != nil {
			log.Warn("startup purge failed", "backend", sink.Name(), "error", err.Error())
		} else {
			log.Info("printer backlog cleared on startup", "backend", sink.Name())
		}
		cancel()
	}

	sched := worker.NewScheduler(worker.SchedulerDeps{
		Sink:     sink,
		Encoder:  proc,
		Recorder: recorder,
		Log:      log,
		Config: worker.Config{
			Capacity:         cfg.Queue.Capacity,
			SubmitTimeout:    cfg.Queue.SubmitTimeout,
			PurgeSettle:      cfg.Queue.PurgeSettle,
			BacklogHighWater: cfg.Queue.BacklogHighWater,
			StallPause:       cfg.Queue.StallPause,
			FailureThreshold: cfg.Queue.FailureThreshold,
			RecoveryPause:    cfg.Queue.RecoveryPause,
			JobInterval:      cfg.Queue.JobInterval,
		},
	})
	shutdownMgr.Register("scheduler", sched.Shutdown)

	var pdf renderer.Renderer
	if r, err := renderer.New(renderer.Config{
		BinaryPath: cfg.Renderer.PdftoppmPath,
		DPI:        cfg.Renderer.DPI,
		Timeout:    cfg.Renderer.Timeout,
	}); err != nil {
		log.Warn("PDF printing disabled", "error", err.Error())
	} else {
		pdf = r
	}

	var archiver handlers.Archiver
	if cfg.Storage.ArchiveEnabled {
		sp, err := storage.NewProvider(ctx, cfg.Storage)
		if err != nil {
			log.LogFatal("failed to initialize storage provider", err)
		}
		archiver = storage.NewArchiver(sp)
		log.Info("PDF archive enabled", "provider", sp.Provider())
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handlers: handlers.Deps{
			Scheduler: sched,
			Sink:      sink,
			Renderer:  pdf,
			Journal:   journal,
			Archiver:  archiver,
			RDB:       rdb,
			Version:   version,
		},
		HTTP: cfg.HTTP,
		Log:  log,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	if err := shutdownMgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
		os.Exit(1)
	}
}
