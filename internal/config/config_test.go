package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posprint/internal/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, "spooler", cfg.Printer.Backend)
	assert.Equal(t, 203, cfg.Printer.DPI)
	assert.Equal(t, 576, cfg.Printer.PaperWidthDots)
	assert.True(t, cfg.Printer.PurgeOnStart)

	assert.Equal(t, 50, cfg.Queue.Capacity)
	assert.Equal(t, 5*time.Second, cfg.Queue.SubmitTimeout)
	assert.Equal(t, 2*time.Second, cfg.Queue.PurgeSettle)
	assert.Equal(t, 5, cfg.Queue.BacklogHighWater)
	assert.Equal(t, 2*time.Second, cfg.Queue.StallPause)
	assert.Equal(t, 3, cfg.Queue.FailureThreshold)
	assert.Equal(t, 3*time.Second, cfg.Queue.RecoveryPause)
	assert.Equal(t, 200*time.Millisecond, cfg.Queue.JobInterval)

	assert.Equal(t, 24, cfg.Ticket.LineSpacing)
	assert.Equal(t, 6, cfg.Ticket.FeedLines)
	assert.Equal(t, 35.0, cfg.Ticket.QRSizeMM)
	assert.True(t, cfg.Ticket.Transliterate)

	assert.Equal(t, 180, cfg.Renderer.DPI)
	assert.Equal(t, "localfs", cfg.Storage.Provider)
	assert.Empty(t, cfg.Journal.Driver)
	assert.Equal(t, "posprint:tickets", cfg.Relay.Queue)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PRINTER_BACKEND", "TCP")
	t.Setenv("PRINTER_TCP_ADDRESS", "192.168.1.50:9100")
	t.Setenv("QUEUE_CAPACITY", "10")
	t.Setenv("QUEUE_SUBMIT_TIMEOUT", "750ms")
	t.Setenv("TICKET_TRANSLITERATE", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://pos.local, http://localhost:5173")
	t.Setenv("JOURNAL_DRIVER", "sqlite3")
	t.Setenv("JOURNAL_DSN", "file:journal.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Printer.Backend)
	assert.Equal(t, "192.168.1.50:9100", cfg.Printer.TCPAddress)
	assert.Equal(t, 10, cfg.Queue.Capacity)
	assert.Equal(t, 750*time.Millisecond, cfg.Queue.SubmitTimeout)
	assert.False(t, cfg.Ticket.Transliterate)
	assert.Equal(t, []string{"http://pos.local", "http://localhost:5173"}, cfg.HTTP.CORSAllowedOrigins)
	assert.Equal(t, "sqlite3", cfg.Journal.Driver)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posprint.yaml")
	content := []byte(`
printer:
  backend: usb
  usb_vendor_id: 1208
queue:
  capacity: 7
ticket:
  qr_caption_top: "Escanee el QR"
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv(ConfigFileEnv, path)
	t.Setenv("QUEUE_CAPACITY", "9")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "usb", cfg.Printer.Backend)
	assert.Equal(t, 1208, cfg.Printer.USBVendorID)
	assert.Equal(t, 9, cfg.Queue.Capacity, "env overrides file")
	assert.Equal(t, "Escanee el QR", cfg.Ticket.QRCaptionTop)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"unknown backend", map[string]string{"PRINTER_BACKEND": "bluetooth"}, "printer.backend"},
		{"tcp without address", map[string]string{"PRINTER_BACKEND": "tcp"}, "printer.tcp_address"},
		{"zero capacity", map[string]string{"QUEUE_CAPACITY": "0"}, "queue.capacity"},
		{"zero feed", map[string]string{"TICKET_FEED_LINES": "0"}, "ticket.feed_lines"},
		{"journal without dsn", map[string]string{"JOURNAL_DRIVER": "postgres"}, "journal.dsn"},
		{"bad journal driver", map[string]string{"JOURNAL_DRIVER": "mysql", "JOURNAL_DSN": "x"}, "journal.driver"},
		{"bad storage", map[string]string{"STORAGE_PROVIDER": "s3"}, "storage.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, errors.IsValidation(err))
			assert.Equal(t, tt.field, errors.GetFields(err)["field"])
		})
	}
}
