package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"posprint/internal/httpkit"
	"posprint/internal/models"
	"posprint/internal/pkg/errors"
)

type printTextRequest struct {
	Text     string `json:"text"`
	CutAfter *bool  `json:"cut_after"`
	QRData   string `json:"qr_data"`
}

// PrintText queues a plain-text ticket with an optional QR image.
func (h *Handler) PrintText(w http.ResponseWriter, r *http.Request) error {
	var req printTextRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.ValidationField("body", "invalid JSON: "+err.Error())
	}
	if req.Text == "" {
		return errors.ValidationField("text", "text is required")
	}
	cut := true
	if req.CutAfter != nil {
		cut = *req.CutAfter
	}

	var qr []byte
	if req.QRData != "" {
		var err error
		qr, err = decodeBase64(req.QRData)
		if err != nil {
			return errors.ValidationField("qr_data", "qr_data is not valid base64")
		}
	}

	job := models.NewTextJob(req.Text, cut, qr)
	if err := h.sched.Submit(r.Context(), job); err != nil {
		return err
	}
	writeSuccess(w, "text queued for printing", job.ID)
	return nil
}

type printPDFRequest struct {
	PDFData string `json:"pdf_data"`
}

// Print rasterizes a PDF and queues one job per page. The document is
// archived first when an archive is configured; archive failures do not
// block printing.
func (h *Handler) Print(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	var req printPDFRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.ValidationField("body", "invalid JSON: "+err.Error())
	}
	if req.PDFData == "" {
		return errors.ValidationField("pdf_data", "pdf_data is required")
	}
	pdf, err := decodeBase64(req.PDFData)
	if err != nil {
		return errors.ValidationField("pdf_data", "pdf_data is not valid base64")
	}
	if h.renderer == nil {
		return errors.Unavailable("pdf renderer")
	}

	docID := models.NewID()
	if h.archiver != nil {
		key, err := h.archiver.ArchivePDF(ctx, docID, pdf)
		if err != nil {
			log.Warn("pdf archive failed", "document_id", docID, "provider", h.archiver.Provider(), "error", err)
		} else {
			log.Info("pdf archived", "document_id", docID, "provider", h.archiver.Provider(), "object_key", key)
		}
	}

	pages, err := h.renderer.Render(ctx, pdf)
	if err != nil {
		return err
	}

	jobs := models.NewImagePageJobs(docID, pages)
	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		if err := h.sched.Submit(ctx, j); err != nil {
			return h.partialDocument(ctx, docID, j, ids, err)
		}
		ids = append(ids, j.ID)
	}
	log.Info("pdf queued", "document_id", docID, "pages", len(ids))
	writeSuccess(w, "pdf queued for printing", ids...)
	return nil
}

// partialDocument handles a page rejected after earlier pages of the same
// document were queued. Those pages cannot be recalled, so a cut is queued
// behind them and their ids are reported to the client.
func (h *Handler) partialDocument(ctx context.Context, docID string, failed models.ImagePageJob, accepted []string, err error) error {
	e := errors.Wrapf(err, "handlers.Print", "queueing page %d of %d", failed.Page, failed.PageCount)
	if len(accepted) == 0 {
		return e
	}

	log := h.log.FromContext(ctx).With("document_id", docID)
	cut := models.NewCutJob()
	if cerr := h.sched.Submit(ctx, cut); cerr != nil {
		log.Error("partial document left uncut", "pages_queued", len(accepted), "error", cerr.Error())
	} else {
		log.Warn("partial document queued with closing cut", "pages_queued", len(accepted), "cut_job_id", cut.ID)
		e.WithField("cut_job_id", cut.ID)
	}
	return e.
		WithField("document_id", docID).
		WithField("pages_queued", len(accepted)).
		WithField("job_ids", accepted)
}

// decodeBase64 accepts standard or URL-safe alphabets, padded or not, and
// an optional data URI prefix.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.Validation("invalid base64")
}
