// Package config loads process settings from an optional config file and
// the environment. Keys map to env vars by upper-casing and replacing "."
// with "_": printer.backend is read from PRINTER_BACKEND.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"posprint/internal/pkg/errors"
)

// ConfigFileEnv points at an explicit config file (yaml, toml or json).
const ConfigFileEnv = "POSPRINT_CONFIG"

type Config struct {
	HTTP     HTTPConfig
	Log      LogConfig
	Printer  PrinterConfig
	Queue    QueueConfig
	Ticket   TicketConfig
	Renderer RendererConfig
	Storage  StorageConfig
	Journal  JournalConfig
	Redis    RedisConfig
	Relay    RelayConfig
}

type HTTPConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	HandlerTimeout     time.Duration
	MaxBodyBytes       int64
	CORSAllowedOrigins []string
}

type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

type PrinterConfig struct {
	// Backend is one of spooler, usb, tcp, relay.
	Backend string
	// Name selects a spooler queue; empty uses the system default.
	Name           string
	DPI            int
	PaperWidthDots int
	PurgeOnStart   bool

	USBVendorID  int
	USBProductID int

	TCPAddress      string
	TCPDialTimeout  time.Duration
	TCPWriteTimeout time.Duration
}

type QueueConfig struct {
	Capacity         int
	SubmitTimeout    time.Duration
	PurgeSettle      time.Duration
	BacklogHighWater int
	StallPause       time.Duration
	FailureThreshold int
	RecoveryPause    time.Duration
	JobInterval      time.Duration
}

type TicketConfig struct {
	LineSpacing     int
	FeedLines       int
	QRSizeMM        float64
	QRCaptionTop    string
	QRCaptionBottom string
	Transliterate   bool
}

type RendererConfig struct {
	PdftoppmPath string
	DPI          int
	Timeout      time.Duration
}

type StorageConfig struct {
	ArchiveEnabled bool
	Provider       string
	LocalRoot      string

	GDriveClientID     string
	GDriveClientSecret string
	GDriveRefreshToken string
	GDriveFolderID     string
}

type JournalConfig struct {
	// Driver is empty (disabled), postgres or sqlite3.
	Driver string
	DSN    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RelayConfig struct {
	Queue      string
	PopTimeout time.Duration
}

var backends = map[string]bool{"spooler": true, "usb": true, "tcp": true, "relay": true}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 60*time.Second)
	v.SetDefault("http.idle_timeout", 120*time.Second)
	v.SetDefault("http.handler_timeout", 45*time.Second)
	v.SetDefault("http.max_body_bytes", int64(20<<20))
	v.SetDefault("cors.allowed_origins", "*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.source", false)

	v.SetDefault("printer.backend", "spooler")
	v.SetDefault("printer.name", "")
	v.SetDefault("printer.dpi", 203)
	v.SetDefault("printer.paper_width_dots", 576)
	v.SetDefault("printer.purge_on_start", true)
	v.SetDefault("printer.usb_vendor_id", 0)
	v.SetDefault("printer.usb_product_id", 0)
	v.SetDefault("printer.tcp_address", "")
	v.SetDefault("printer.tcp_dial_timeout", 3*time.Second)
	v.SetDefault("printer.tcp_write_timeout", 10*time.Second)

	v.SetDefault("queue.capacity", 50)
	v.SetDefault("queue.submit_timeout", 5*time.Second)
	v.SetDefault("queue.purge_settle", 2*time.Second)
	v.SetDefault("queue.backlog_high_water", 5)
	v.SetDefault("queue.stall_pause", 2*time.Second)
	v.SetDefault("queue.failure_threshold", 3)
	v.SetDefault("queue.recovery_pause", 3*time.Second)
	v.SetDefault("queue.job_interval", 200*time.Millisecond)

	v.SetDefault("ticket.line_spacing", 24)
	v.SetDefault("ticket.feed_lines", 6)
	v.SetDefault("ticket.qr_size_mm", 35.0)
	v.SetDefault("ticket.qr_caption_top", "Scan the QR code")
	v.SetDefault("ticket.qr_caption_bottom", "Thank you for your purchase")
	v.SetDefault("ticket.transliterate", true)

	v.SetDefault("renderer.pdftoppm_path", "")
	v.SetDefault("renderer.dpi", 180)
	v.SetDefault("renderer.timeout", 30*time.Second)

	v.SetDefault("storage.archive_enabled", false)
	v.SetDefault("storage.provider", "localfs")
	v.SetDefault("storage.local_root", "./data")
	v.SetDefault("gdrive.client_id", "")
	v.SetDefault("gdrive.client_secret", "")
	v.SetDefault("gdrive.refresh_token", "")
	v.SetDefault("gdrive.folder_id", "")

	v.SetDefault("journal.driver", "")
	v.SetDefault("journal.dsn", "")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("relay.queue", "posprint:tickets")
	v.SetDefault("relay.pop_timeout", 30*time.Second)
}

// Load reads configuration with precedence env > config file > defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "config.Load", "reading %s", path)
		}
	} else {
		v.SetConfigName("posprint")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/posprint")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errors.Wrap(err, "config.Load", "reading config file")
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		HTTP: HTTPConfig{
			Port:               v.GetString("http.port"),
			ReadTimeout:        v.GetDuration("http.read_timeout"),
			WriteTimeout:       v.GetDuration("http.write_timeout"),
			IdleTimeout:        v.GetDuration("http.idle_timeout"),
			HandlerTimeout:     v.GetDuration("http.handler_timeout"),
			MaxBodyBytes:       v.GetInt64("http.max_body_bytes"),
			CORSAllowedOrigins: splitCSV(v.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:     v.GetString("log.level"),
			Format:    v.GetString("log.format"),
			AddSource: v.GetBool("log.source"),
		},
		Printer: PrinterConfig{
			Backend:         strings.ToLower(v.GetString("printer.backend")),
			Name:            v.GetString("printer.name"),
			DPI:             v.GetInt("printer.dpi"),
			PaperWidthDots:  v.GetInt("printer.paper_width_dots"),
			PurgeOnStart:    v.GetBool("printer.purge_on_start"),
			USBVendorID:     v.GetInt("printer.usb_vendor_id"),
			USBProductID:    v.GetInt("printer.usb_product_id"),
			TCPAddress:      v.GetString("printer.tcp_address"),
			TCPDialTimeout:  v.GetDuration("printer.tcp_dial_timeout"),
			TCPWriteTimeout: v.GetDuration("printer.tcp_write_timeout"),
		},
		Queue: QueueConfig{
			Capacity:         v.GetInt("queue.capacity"),
			SubmitTimeout:    v.GetDuration("queue.submit_timeout"),
			PurgeSettle:      v.GetDuration("queue.purge_settle"),
			BacklogHighWater: v.GetInt("queue.backlog_high_water"),
			StallPause:       v.GetDuration("queue.stall_pause"),
			FailureThreshold: v.GetInt("queue.failure_threshold"),
			RecoveryPause:    v.GetDuration("queue.recovery_pause"),
			JobInterval:      v.GetDuration("queue.job_interval"),
		},
		Ticket: TicketConfig{
			LineSpacing:     v.GetInt("ticket.line_spacing"),
			FeedLines:       v.GetInt("ticket.feed_lines"),
			QRSizeMM:        v.GetFloat64("ticket.qr_size_mm"),
			QRCaptionTop:    v.GetString("ticket.qr_caption_top"),
			QRCaptionBottom: v.GetString("ticket.qr_caption_bottom"),
			Transliterate:   v.GetBool("ticket.transliterate"),
		},
		Renderer: RendererConfig{
			PdftoppmPath: v.GetString("renderer.pdftoppm_path"),
			DPI:          v.GetInt("renderer.dpi"),
			Timeout:      v.GetDuration("renderer.timeout"),
		},
		Storage: StorageConfig{
			ArchiveEnabled:     v.GetBool("storage.archive_enabled"),
			Provider:           v.GetString("storage.provider"),
			LocalRoot:          v.GetString("storage.local_root"),
			GDriveClientID:     v.GetString("gdrive.client_id"),
			GDriveClientSecret: v.GetString("gdrive.client_secret"),
			GDriveRefreshToken: v.GetString("gdrive.refresh_token"),
			GDriveFolderID:     v.GetString("gdrive.folder_id"),
		},
		Journal: JournalConfig{
			Driver: strings.ToLower(v.GetString("journal.driver")),
			DSN:    v.GetString("journal.dsn"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Relay: RelayConfig{
			Queue:      v.GetString("relay.queue"),
			PopTimeout: v.GetDuration("relay.pop_timeout"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the print pipeline cannot run with.
func (c *Config) Validate() error {
	if !backends[c.Printer.Backend] {
		return errors.ValidationField("printer.backend",
			fmt.Sprintf("unknown printer backend %q (want spooler, usb, tcp or relay)", c.Printer.Backend))
	}
	if c.Printer.Backend == "tcp" && c.Printer.TCPAddress == "" {
		return errors.ValidationField("printer.tcp_address", "tcp backend requires PRINTER_TCP_ADDRESS")
	}
	if c.Queue.Capacity <= 0 {
		return errors.ValidationField("queue.capacity", "queue capacity must be positive")
	}
	if c.Queue.FailureThreshold <= 0 {
		return errors.ValidationField("queue.failure_threshold", "failure threshold must be positive")
	}
	if c.Ticket.FeedLines <= 0 || c.Ticket.FeedLines > 255 {
		return errors.ValidationField("ticket.feed_lines", "feed lines must be between 1 and 255")
	}
	if c.Ticket.LineSpacing <= 0 || c.Ticket.LineSpacing > 255 {
		return errors.ValidationField("ticket.line_spacing", "line spacing must be between 1 and 255")
	}
	if c.Ticket.QRSizeMM <= 0 {
		return errors.ValidationField("ticket.qr_size_mm", "qr size must be positive")
	}
	switch c.Journal.Driver {
	case "", "postgres", "sqlite3":
	default:
		return errors.ValidationField("journal.driver", fmt.Sprintf("unsupported journal driver %q", c.Journal.Driver))
	}
	if c.Journal.Driver != "" && c.Journal.DSN == "" {
		return errors.ValidationField("journal.dsn", "journal driver set without JOURNAL_DSN")
	}
	switch c.Storage.Provider {
	case "localfs", "gdrive":
	default:
		return errors.ValidationField("storage.provider", fmt.Sprintf("unknown storage provider %q", c.Storage.Provider))
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
