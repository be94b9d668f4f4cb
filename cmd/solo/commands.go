package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/loykin/solo/internal/config"
	"github.com/loykin/solo/internal/control"
	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/history/factory"
	"github.com/loykin/solo/internal/logtail"
	"github.com/loykin/solo/internal/metrics"
	"github.com/loykin/solo/internal/readiness"
	"github.com/loykin/solo/internal/server"
	"github.com/loykin/solo/pkg/scaffold"
	"github.com/prometheus/client_golang/prometheus"
)

// runInit writes a starter config without loading one; init is the only
// subcommand that must work before the config file exists.
func runInit(configPath string, f InitFlags) error {
	tmpl, err := scaffold.Generate(scaffold.Type(f.Type), f.Name, f.Command)
	if err != nil {
		return err
	}
	text, err := tmpl.Render()
	if err != nil {
		return err
	}
	if !f.Force {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists, use --force to overwrite", configPath)
		}
	}
	if err := os.WriteFile(configPath, []byte(text), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", configPath)
	return nil
}

// command wires one loaded config to a controller for a single CLI run.
type command struct {
	cfg  *config.Config
	ctl  *control.Controller
	sink history.Sink
	out  io.Writer
}

// newCommand loads the config, applies the logging setup and builds the
// controller. The history sink is only opened for lifecycle commands;
// read-only commands must not create database files as a side effect.
func newCommand(configPath string, withHistory bool) (*command, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	cfg.Log.Apply()

	var sink history.Sink
	if withHistory && cfg.History.Enabled {
		sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			// History is best-effort: a broken sink must never block the
			// lifecycle commands themselves.
			slog.Warn("history sink unavailable", "dsn", cfg.History.DSN, "error", err)
			sink = nil
		}
	}

	return &command{
		cfg:  cfg,
		ctl:  control.New(cfg, sink),
		sink: sink,
		out:  os.Stdout,
	}, nil
}

func (c *command) close() {
	if c.sink != nil {
		_ = c.sink.Close()
	}
}

func (c *command) start(f StartFlags) error {
	res, err := c.ctl.Start(f.Daemon)
	if err != nil {
		return err
	}
	if res.Daemon {
		c.printLaunch("started", res)
	}
	return nil
}

func (c *command) stop() error {
	res, err := c.ctl.Stop()
	if err != nil {
		return err
	}
	switch {
	case res.Outcome == control.WasNotRunning:
		_, _ = fmt.Fprintf(c.out, "%s was not running\n", c.ctl.Service())
	case res.Killed:
		_, _ = fmt.Fprintf(c.out, "%s killed after the grace window (pid %d)\n", c.ctl.Service(), res.PID)
	default:
		_, _ = fmt.Fprintf(c.out, "%s stopped (pid %d)\n", c.ctl.Service(), res.PID)
	}
	return nil
}

func (c *command) restart(f RestartFlags) error {
	res, err := c.ctl.Restart(f.Daemon)
	if err != nil {
		return err
	}
	if res.Daemon {
		c.printLaunch("restarted", res)
	}
	return nil
}

func (c *command) printLaunch(verb string, res control.StartResult) {
	switch res.Readiness.Outcome {
	case readiness.Timeout:
		_, _ = fmt.Fprintf(c.out, "%s launched with pid %d, readiness not confirmed yet\n", c.ctl.Service(), res.PID)
	default:
		if res.Readiness.Port > 0 {
			_, _ = fmt.Fprintf(c.out, "%s %s with pid %d, listening on port %d\n", c.ctl.Service(), verb, res.PID, res.Readiness.Port)
			return
		}
		_, _ = fmt.Fprintf(c.out, "%s %s with pid %d\n", c.ctl.Service(), verb, res.PID)
	}
}

func (c *command) status() error {
	printJSON(c.out, c.ctl.Status())
	return nil
}

func (c *command) logs(f LogsFlags, args []string) error {
	n := logtail.DefaultLines
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return fmt.Errorf("invalid line count %q", args[0])
		}
		n = v
	}

	path := c.cfg.Service.StdoutLog
	if !f.Follow {
		return logtail.Print(c.out, path, n)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return logtail.Follow(ctx, c.out, path, n, logtail.DefaultFollowInterval)
}

func (c *command) serve(f ServeFlags) error {
	listen := c.cfg.Server.Listen
	if f.Listen != "" {
		listen = f.Listen
	}

	gin.SetMode(gin.ReleaseMode)
	_ = metrics.Register(prometheus.DefaultRegisterer)

	sampler := metrics.NewSampler(c.ctl.Service(), c.cfg.Server.SampleInterval, c.ctl.Registry().Current)
	sampler.Start(context.Background())
	defer sampler.Stop()

	var srv *http.Server
	var err error
	proto := "http"
	if tc := c.cfg.Server.TLS; tc != nil && tc.Enabled {
		proto = "https"
		srv, err = server.NewTLSServer(listen, c.cfg.Server.BasePath, tc, c.ctl)
	} else {
		srv, err = server.NewServer(listen, c.cfg.Server.BasePath, c.ctl)
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "solo API for %s listening on %s://%s%s\n", c.ctl.Service(), proto, listen, c.cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	_, _ = fmt.Fprintln(c.out, "shutting down")
	return srv.Close()
}
