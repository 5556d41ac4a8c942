package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"posprint/internal/httpkit"
	"posprint/internal/models"
	"posprint/internal/pkg/logger"
	"posprint/internal/ports"
	"posprint/internal/worker"
	"posprint/internal/worker/renderer"
)

// Scheduler is the part of worker.Scheduler the handlers drive.
type Scheduler interface {
	Submit(ctx context.Context, job models.Job) error
	ClearBacklog(ctx context.Context) error
	Stats() worker.Stats
}

type Journal interface {
	Summary(ctx context.Context, since time.Time) (models.JournalSummary, error)
	Recent(ctx context.Context, limit int) ([]models.JobOutcome, error)
	Ping(ctx context.Context) error
}

type Archiver interface {
	Provider() string
	ArchivePDF(ctx context.Context, id string, data []byte) (string, error)
}

// Deps wires the handlers. Renderer, Journal, Archiver and RDB are
// optional; the endpoints that need a missing one answer 503.
type Deps struct {
	Scheduler Scheduler
	Sink      ports.PrinterSink
	Renderer  renderer.Renderer
	Journal   Journal
	Archiver  Archiver
	RDB       redis.Cmdable
	Log       *logger.Logger
	Version   string
}

type Handler struct {
	sched    Scheduler
	sink     ports.PrinterSink
	renderer renderer.Renderer
	journal  Journal
	archiver Archiver
	rdb      redis.Cmdable
	log      *logger.Logger
	version  string
	now      func() time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		sched:    d.Scheduler,
		sink:     d.Sink,
		renderer: d.Renderer,
		journal:  d.Journal,
		archiver: d.Archiver,
		rdb:      d.RDB,
		log:      log.WithComponent("http"),
		version:  d.Version,
		now:      time.Now,
	}
}

// Log returns the handler logger for error wrapping in the router.
func (h *Handler) Log() *logger.Logger { return h.log }

func writeSuccess(w http.ResponseWriter, message string, jobIDs ...string) {
	httpkit.WriteSuccess(w, message, jobIDs...)
}
