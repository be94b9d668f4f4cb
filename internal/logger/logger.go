package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters for the controller's own log file.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the controller's own diagnostic logging.
// The managed service's stdout/stderr files are plain append-mode files owned
// by the service process and are not routed through here.
type Config struct {
	Level      string `toml:"level" mapstructure:"level"` // debug|info|warn|error
	File       string `toml:"file" mapstructure:"file"`   // optional rotating log file; empty means stderr only
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

// Build constructs an slog.Logger from the config. When File is set the output
// goes to a lumberjack-rotated file with a plain text handler; otherwise colored
// text goes to stderr.
func (c Config) Build() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.slogLevel()}
	if c.File != "" {
		return slog.New(slog.NewTextHandler(c.Writer(), opts))
	}
	return slog.New(NewColorTextHandler(os.Stderr, opts))
}

// Writer returns the rotating writer for File. Rotation parameters follow
// lumberjack semantics with the package defaults filled in.
func (c Config) Writer() io.Writer {
	return &lj.Logger{
		Filename:   c.File,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

// Apply installs the built logger as the process default.
func (c Config) Apply() {
	slog.SetDefault(c.Build())
}

func (c Config) slogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
