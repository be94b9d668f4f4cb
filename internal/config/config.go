package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/solo/internal/env"
	"github.com/loykin/solo/internal/logger"
	"github.com/spf13/viper"
)

// Defaults for the polling budgets. All of them can be overridden from the
// TOML file; the code never hardcodes an interval outside this package.
const (
	DefaultReadinessInterval = 200 * time.Millisecond
	DefaultReadinessTicks    = 30
	DefaultScanLines         = 30
	DefaultStopInterval      = time.Second
	DefaultStopAttempts      = 30
	DefaultRestartDelay      = 2 * time.Second
	DefaultServerListen      = "127.0.0.1:8517"
	DefaultServerBasePath    = "/api"
	DefaultSampleInterval    = 5 * time.Second
)

// Config is the single configuration value built once at process start and
// threaded through every component.
type Config struct {
	Service   ServiceConfig   `toml:"service" mapstructure:"service"`
	Readiness ReadinessConfig `toml:"readiness" mapstructure:"readiness"`
	Stop      StopConfig      `toml:"stop" mapstructure:"stop"`
	Restart   RestartConfig   `toml:"restart" mapstructure:"restart"`
	History   HistoryConfig   `toml:"history" mapstructure:"history"`
	Server    ServerConfig    `toml:"server" mapstructure:"server"`
	Log       logger.Config   `toml:"log" mapstructure:"log"`
}

// ServiceConfig describes the one managed service and the files the controller
// shares with it. Empty paths are derived from Name under BaseDir.
type ServiceConfig struct {
	Name       string   `toml:"name" mapstructure:"name"`
	Command    string   `toml:"command" mapstructure:"command"`
	WorkDir    string   `toml:"workdir" mapstructure:"workdir"`
	Env        []string `toml:"env" mapstructure:"env"`
	EnvFiles   []string `toml:"env_files" mapstructure:"env_files"`
	UseOSEnv   bool     `toml:"use_os_env" mapstructure:"use_os_env"`
	BaseDir    string   `toml:"base_dir" mapstructure:"base_dir"`
	PIDFile    string   `toml:"pidfile" mapstructure:"pidfile"`
	MarkerFile string   `toml:"marker_file" mapstructure:"marker_file"`
	LogDir     string   `toml:"log_dir" mapstructure:"log_dir"`
	StdoutLog  string   `toml:"stdout_log" mapstructure:"stdout_log"`
	StderrLog  string   `toml:"stderr_log" mapstructure:"stderr_log"`
}

// ReadinessConfig bounds the post-launch polling window and names the marker
// substrings the service's stdout is scanned for.
type ReadinessConfig struct {
	Interval       time.Duration `toml:"interval" mapstructure:"interval"`
	MaxTicks       int           `toml:"max_ticks" mapstructure:"max_ticks"`
	ScanLines      int           `toml:"scan_lines" mapstructure:"scan_lines"`
	SuccessMarker  string        `toml:"success_marker" mapstructure:"success_marker"`
	FailureMarkers []string      `toml:"failure_markers" mapstructure:"failure_markers"`
}

type StopConfig struct {
	Interval    time.Duration `toml:"interval" mapstructure:"interval"`
	MaxAttempts int           `toml:"max_attempts" mapstructure:"max_attempts"`
}

type RestartConfig struct {
	Delay time.Duration `toml:"delay" mapstructure:"delay"`
}

// HistoryConfig selects an optional lifecycle-event sink by DSN
// (sqlite path, postgres://, clickhouse:// or opensearch:// URL). Recording
// is best-effort.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	DSN     string `toml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the optional `solo serve` HTTP endpoint.
type ServerConfig struct {
	Listen         string        `toml:"listen" mapstructure:"listen"`
	BasePath       string        `toml:"base_path" mapstructure:"base_path"`
	SampleInterval time.Duration `toml:"sample_interval" mapstructure:"sample_interval"`
	TLS            *TLSConfig    `toml:"tls" mapstructure:"tls"`
}

// TLSConfig switches the control API to HTTPS. Certificates come from
// explicit cert/key files or from Dir; with AutoGenerate set, a self-signed
// localhost certificate is written to Dir when none exists yet.
type TLSConfig struct {
	Enabled      bool   `toml:"enabled" mapstructure:"enabled"`
	CertFile     string `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string `toml:"key_file" mapstructure:"key_file"`
	Dir          string `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool   `toml:"auto_generate" mapstructure:"auto_generate"`
	MinVersion   string `toml:"min_version" mapstructure:"min_version"` // "1.2" or "1.3"
	MaxVersion   string `toml:"max_version" mapstructure:"max_version"`
}

// Default returns a normalized config for a service with the given name and
// command, rooted at baseDir. Intended for embedding and tests.
func Default(name, command, baseDir string) *Config {
	c := &Config{}
	c.Service.Name = name
	c.Service.Command = command
	c.Service.BaseDir = baseDir
	c.Normalize()
	return c
}

// Load reads a TOML config file and normalizes it. Relative paths are resolved
// against the config file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.Service.Command) == "" {
		return nil, fmt.Errorf("%s: service.command is required", path)
	}
	ref, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	c.Service.BaseDir = resolve(c.Service.BaseDir, ref)
	c.Normalize()
	c.Service.PIDFile = resolve(c.Service.PIDFile, ref)
	c.Service.MarkerFile = resolve(c.Service.MarkerFile, ref)
	c.Service.LogDir = resolve(c.Service.LogDir, ref)
	c.Service.StdoutLog = resolve(c.Service.StdoutLog, ref)
	c.Service.StderrLog = resolve(c.Service.StderrLog, ref)
	if c.Log.File != "" {
		c.Log.File = resolve(c.Log.File, ref)
	}
	if c.Server.TLS != nil {
		c.Server.TLS.CertFile = resolve(c.Server.TLS.CertFile, ref)
		c.Server.TLS.KeyFile = resolve(c.Server.TLS.KeyFile, ref)
		c.Server.TLS.Dir = resolve(c.Server.TLS.Dir, ref)
	}
	return &c, nil
}

// Normalize fills derived paths and zero-valued budgets in place.
func (c *Config) Normalize() {
	s := &c.Service
	if s.Name == "" {
		s.Name = "service"
	}
	if s.BaseDir == "" {
		s.BaseDir = "."
	}
	if s.PIDFile == "" {
		s.PIDFile = filepath.Join(s.BaseDir, s.Name+".pid")
	}
	if s.MarkerFile == "" {
		s.MarkerFile = filepath.Join(s.BaseDir, s.Name+".startup.json")
	}
	if s.LogDir == "" {
		s.LogDir = filepath.Join(s.BaseDir, "logs")
	}
	if s.StdoutLog == "" {
		s.StdoutLog = filepath.Join(s.LogDir, s.Name+".stdout.log")
	}
	if s.StderrLog == "" {
		s.StderrLog = filepath.Join(s.LogDir, s.Name+".stderr.log")
	}

	r := &c.Readiness
	if r.Interval <= 0 {
		r.Interval = DefaultReadinessInterval
	}
	if r.MaxTicks <= 0 {
		r.MaxTicks = DefaultReadinessTicks
	}
	if r.ScanLines <= 0 {
		r.ScanLines = DefaultScanLines
	}
	if r.SuccessMarker == "" {
		r.SuccessMarker = "listening on"
	}
	if len(r.FailureMarkers) == 0 {
		r.FailureMarkers = []string{"panic:", "fatal error", "address already in use", "EADDRINUSE"}
	}

	if c.Stop.Interval <= 0 {
		c.Stop.Interval = DefaultStopInterval
	}
	if c.Stop.MaxAttempts <= 0 {
		c.Stop.MaxAttempts = DefaultStopAttempts
	}
	if c.Restart.Delay <= 0 {
		c.Restart.Delay = DefaultRestartDelay
	}

	if c.Server.Listen == "" {
		c.Server.Listen = DefaultServerListen
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = DefaultServerBasePath
	}
	if c.Server.SampleInterval <= 0 {
		c.Server.SampleInterval = DefaultSampleInterval
	}
}

// Environ merges the service environment. Precedence: OS env (when UseOSEnv)
// provides the base, then env files in order, then the env list overrides
// last; ${NAME} references in values expand against the merged set. An empty
// result means the child inherits the controller's environment.
func (s ServiceConfig) Environ() ([]string, error) {
	return env.Builder{UseOS: s.UseOSEnv, Files: s.EnvFiles, Pairs: s.Env}.Environ()
}

func resolve(p, ref string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ref, p)
}
