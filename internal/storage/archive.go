package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"posprint/internal/ports"
)

// Archiver files submitted PDF documents under
// tickets/YYYYMMDD/ticket_<unix>_<id>.pdf.
type Archiver struct {
	sp  Provider
	now func() time.Time
}

func NewArchiver(sp Provider) *Archiver {
	return &Archiver{sp: sp, now: time.Now}
}

func (a *Archiver) Provider() string { return a.sp.Provider() }

// ArchivePDF stores data and returns the provider's key for it.
func (a *Archiver) ArchivePDF(ctx context.Context, id string, data []byte) (string, error) {
	key := ObjectKey(a.now(), id)
	out, err := a.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "application/pdf",
		Reader:      bytes.NewReader(data),
		Size:        int64(len(data)),
	})
	if err != nil {
		return "", err
	}
	return out.ObjectKey, nil
}

func ObjectKey(t time.Time, id string) string {
	t = t.UTC()
	return fmt.Sprintf("tickets/%s/ticket_%d_%s.pdf", t.Format("20060102"), t.Unix(), id)
}
