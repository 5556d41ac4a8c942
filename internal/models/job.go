package models

import (
	"image"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText      Kind = "text"
	KindImagePage Kind = "image_page"
	KindDrawer    Kind = "drawer"
	KindCut       Kind = "cut"
)

// Job is one unit of printer work. The set of implementations is closed;
// jobs are values and must not be mutated after submission.
type Job interface {
	JobID() string
	Kind() Kind
	isJob()
}

// TextJob prints a plain-text ticket, optionally headed by a QR code image.
type TextJob struct {
	ID       string
	Body     string
	CutAfter bool
	// QRImage is an encoded image (PNG, JPEG...), nil when absent.
	QRImage []byte
}

// ImagePageJob prints one rendered page of a document.
type ImagePageJob struct {
	ID         string
	DocumentID string
	Pixels     image.Image
	Page       int
	PageCount  int
	IsLastPage bool
}

type DrawerJob struct {
	ID string
}

type CutJob struct {
	ID string
}

func (j TextJob) JobID() string      { return j.ID }
func (j ImagePageJob) JobID() string { return j.ID }
func (j DrawerJob) JobID() string    { return j.ID }
func (j CutJob) JobID() string       { return j.ID }

func (TextJob) Kind() Kind      { return KindText }
func (ImagePageJob) Kind() Kind { return KindImagePage }
func (DrawerJob) Kind() Kind    { return KindDrawer }
func (CutJob) Kind() Kind       { return KindCut }

func (TextJob) isJob()      {}
func (ImagePageJob) isJob() {}
func (DrawerJob) isJob()    {}
func (CutJob) isJob()       {}

func NewID() string {
	return uuid.NewString()
}

// NewTextJob copies qr so later changes by the caller cannot reach the queue.
func NewTextJob(body string, cutAfter bool, qr []byte) TextJob {
	var img []byte
	if len(qr) > 0 {
		img = append([]byte(nil), qr...)
	}
	return TextJob{ID: NewID(), Body: body, CutAfter: cutAfter, QRImage: img}
}

// NewImagePageJobs builds one job per page; only the final page is flagged
// last so the paper is cut once per document.
func NewImagePageJobs(documentID string, pages []image.Image) []ImagePageJob {
	jobs := make([]ImagePageJob, 0, len(pages))
	for i, p := range pages {
		jobs = append(jobs, ImagePageJob{
			ID:         NewID(),
			DocumentID: documentID,
			Pixels:     p,
			Page:       i + 1,
			PageCount:  len(pages),
			IsLastPage: i == len(pages)-1,
		})
	}
	return jobs
}

func NewDrawerJob() DrawerJob { return DrawerJob{ID: NewID()} }

func NewCutJob() CutJob { return CutJob{ID: NewID()} }

// JobOutcome records how the worker finished one job.
type JobOutcome struct {
	JobID     string        `json:"job_id"`
	Kind      Kind          `json:"kind"`
	Bytes     int           `json:"bytes"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// JournalSummary aggregates outcomes over a time window.
type JournalSummary struct {
	Since     time.Time `json:"since"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Bytes     int64     `json:"bytes"`
}
