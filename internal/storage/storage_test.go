package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/config"
	"posprint/internal/pkg/errors"
)

func TestObjectKey(t *testing.T) {
	ts := time.Date(2026, 10, 18, 23, 30, 0, 0, time.FixedZone("CST", -6*3600))
	assert.Equal(t, "tickets/20261019/ticket_1792387800_abc.pdf", ObjectKey(ts, "abc"))
}

func TestArchiverLocalFS(t *testing.T) {
	root := t.TempDir()
	sp, err := NewProvider(context.Background(), config.StorageConfig{Provider: "localfs", LocalRoot: root})
	require.NoError(t, err)

	a := NewArchiver(sp)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	key, err := a.ArchivePDF(context.Background(), "doc1", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, "tickets/20260102/ticket_1767323045_doc1.pdf", key)
	assert.Equal(t, "localfs", a.Provider())

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))
}

func TestNewProviderValidation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.StorageConfig
		field string
	}{
		{"unknown", config.StorageConfig{Provider: "s3"}, "storage.provider"},
		{"localfs without root", config.StorageConfig{Provider: "localfs"}, "storage.local_root"},
		{"gdrive without secret", config.StorageConfig{Provider: "gdrive", GDriveClientID: "id", GDriveRefreshToken: "rt"}, "gdrive.client_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}

func TestNewProviderGDrive(t *testing.T) {
	sp, err := NewProvider(context.Background(), config.StorageConfig{
		Provider:           "gdrive",
		GDriveClientID:     "id",
		GDriveClientSecret: "secret",
		GDriveRefreshToken: "rt",
	})
	require.NoError(t, err)
	assert.Equal(t, "gdrive", sp.Provider())
}
