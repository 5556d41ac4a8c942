package handlers

import (
	"net/http"

	"posprint/internal/httpkit"
	"posprint/internal/models"
	"posprint/internal/pkg/errors"
	"posprint/internal/ports"
)

// OpenDrawer queues the cash drawer pulse.
func (h *Handler) OpenDrawer(w http.ResponseWriter, r *http.Request) error {
	job := models.NewDrawerJob()
	if err := h.sched.Submit(r.Context(), job); err != nil {
		return err
	}
	writeSuccess(w, "drawer command queued", job.ID)
	return nil
}

// CutPaper queues a full cut. It goes through the queue like every other
// device command so it cannot split a ticket in progress.
func (h *Handler) CutPaper(w http.ResponseWriter, r *http.Request) error {
	job := models.NewCutJob()
	if err := h.sched.Submit(r.Context(), job); err != nil {
		return err
	}
	writeSuccess(w, "cut command queued", job.ID)
	return nil
}

func (h *Handler) ClearQueue(w http.ResponseWriter, r *http.Request) error {
	if err := h.sched.ClearBacklog(r.Context()); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "handlers.ClearQueue", "clearing printer queue")
	}
	writeSuccess(w, "print queue cleared")
	return nil
}

type printersResponse struct {
	Printers []string `json:"printers"`
	Count    int      `json:"count"`
	Default  string   `json:"default,omitempty"`
}

// Printers lists the devices the backend can see.
func (h *Handler) Printers(w http.ResponseWriter, r *http.Request) error {
	lister, ok := h.sink.(ports.DeviceLister)
	if !ok {
		return errors.Newf(errors.CodeUnavailable, "printer backend %q cannot list devices", h.sink.Name())
	}
	names, err := lister.ListDevices(r.Context())
	if err != nil {
		return err
	}
	if names == nil {
		names = []string{}
	}
	def, _ := h.sink.DefaultDeviceName(r.Context())
	httpkit.WriteJSON(w, http.StatusOK, printersResponse{Printers: names, Count: len(names), Default: def})
	return nil
}
