package handlers

import (
	"net/http"
	"strconv"
	"time"

	"posprint/internal/httpkit"
	"posprint/internal/models"
	"posprint/internal/pkg/errors"
	"posprint/internal/worker"
)

type statusResponse struct {
	Status         string                 `json:"status"`
	Backend        string                 `json:"backend"`
	DefaultPrinter *string                `json:"default_printer"`
	BacklogDepth   int                    `json:"backlog_depth"`
	Queue          worker.Stats           `json:"queue"`
	Today          *models.JournalSummary `json:"today,omitempty"`
}

// Status reports the default device, queue health and today's totals.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	resp := statusResponse{
		Status:       "online",
		Backend:      h.sink.Name(),
		BacklogDepth: h.sink.BacklogDepth(ctx),
		Queue:        h.sched.Stats(),
	}
	if name, ok := h.sink.DefaultDeviceName(ctx); ok {
		resp.DefaultPrinter = &name
	}
	if !resp.Queue.Running {
		resp.Status = "stopping"
	}

	if h.journal != nil {
		now := h.now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		sum, err := h.journal.Summary(ctx, midnight)
		if err != nil {
			h.log.FromContext(ctx).Warn("journal summary failed", "error", err)
		} else {
			resp.Today = &sum
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, resp)
	return nil
}

type journalResponse struct {
	Outcomes []models.JobOutcome `json:"outcomes"`
	Count    int                 `json:"count"`
}

// Journal returns the most recent job outcomes, newest first.
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) error {
	if h.journal == nil {
		return errors.Unavailable("print journal")
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errors.ValidationField("limit", "limit must be a positive integer")
		}
		limit = n
	}
	outcomes, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		return err
	}
	if outcomes == nil {
		outcomes = []models.JobOutcome{}
	}
	httpkit.WriteJSON(w, http.StatusOK, journalResponse{Outcomes: outcomes, Count: len(outcomes)})
	return nil
}
