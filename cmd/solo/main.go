package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot assembles the root command and every subcommand. The shared
// GlobalFlags value is what the persistent --config flag writes into.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createInitCommand(globalFlags),
		createStartCommand(globalFlags),
		createStopCommand(globalFlags),
		createRestartCommand(globalFlags),
		createStatusCommand(globalFlags),
		createLogsCommand(globalFlags),
		createServeCommand(globalFlags),
	)

	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "solo",
		Short: "Launch and supervise one long-running service",
		Long: `Solo launches, watches and tears down a single long-running service.
The service command, file locations and polling budgets all come from one
TOML config file; one config file means one service.

Examples:
  solo start -d                # Launch in the background, wait for readiness
  solo status                  # Liveness, pid and resource usage
  solo logs 100 -f             # Print the last 100 stdout lines, then follow
  solo restart -d              # Stop, pause, launch again
  solo stop                    # Graceful stop, forced after the grace window
  solo serve                   # Drive the same lifecycle over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "solo.toml", "path to TOML config file")

	return root
}

func createInitCommand(globalFlags *GlobalFlags) *cobra.Command {
	initFlags := &InitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long: `Write a starter config to the --config path, tuned to the shape of the
service: a web server that logs its listen line, a background worker, a
database with a slow startup.

Examples:
  solo init --name web --command "./bin/web"
  solo init --type worker --name mailer --command "./bin/mailer"
  solo init --type database --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(globalFlags.ConfigPath, *initFlags)
		},
	}

	cmd.Flags().StringVar(&initFlags.Type, "type", "web", "service shape: web, api, worker, database, simple")
	cmd.Flags().StringVar(&initFlags.Name, "name", "", "service name")
	cmd.Flags().StringVar(&initFlags.Command, "command", "", "command line that launches the service")
	cmd.Flags().BoolVar(&initFlags.Force, "force", false, "overwrite an existing config file")

	return cmd
}

func createStartCommand(globalFlags *GlobalFlags) *cobra.Command {
	startFlags := &StartFlags{}

	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"s"},
		Short:   "Launch the configured service",
		Long: `Launch the configured service and wait for it to become ready.
Readiness is detected from the startup marker file the service writes, or
from well-known lines in its stdout log. Without --daemon the service runs
attached to this terminal and start blocks until it exits.

Examples:
  solo start                   # Run in the foreground
  solo start -d                # Detach and confirm readiness`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, true)
			if err != nil {
				return err
			}
			defer c.close()
			return c.start(*startFlags)
		},
	}

	cmd.Flags().BoolVarP(&startFlags.Daemon, "daemon", "d", false, "detach and run in the background")

	return cmd
}

func createStopCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stop",
		Aliases: []string{"sp"},
		Short:   "Stop the running service",
		Long: `Stop the running service. The service first receives SIGTERM; if it is
still alive when the grace window closes it is killed. Stopping a service
that is not running succeeds and clears any stale state files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, true)
			if err != nil {
				return err
			}
			defer c.close()
			return c.stop()
		},
	}

	return cmd
}

func createRestartCommand(globalFlags *GlobalFlags) *cobra.Command {
	restartFlags := &RestartFlags{}

	cmd := &cobra.Command{
		Use:     "restart",
		Aliases: []string{"r"},
		Short:   "Stop the service, pause, launch it again",
		Long: `Stop the service, wait for sockets and files to be released, then launch
it again. The pause between the phases comes from [restart] in the config.

Examples:
  solo restart -d              # Replace the background instance`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, true)
			if err != nil {
				return err
			}
			defer c.close()
			return c.restart(*restartFlags)
		},
	}

	cmd.Flags().BoolVarP(&restartFlags.Daemon, "daemon", "d", false, "detach and run in the background")

	return cmd
}

func createStatusCommand(globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"st"},
		Short:   "Report liveness, pid and resource usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, false)
			if err != nil {
				return err
			}
			defer c.close()
			return c.status()
		},
	}

	return cmd
}

func createLogsCommand(globalFlags *GlobalFlags) *cobra.Command {
	logsFlags := &LogsFlags{}

	cmd := &cobra.Command{
		Use:     "logs [lines]",
		Aliases: []string{"l"},
		Args:    cobra.MaximumNArgs(1),
		Short:   "Print the tail of the service stdout log",
		Long: `Print the last lines of the service stdout log, 50 by default.
With --follow the command keeps streaming appended lines until interrupted.

Examples:
  solo logs                    # Last 50 lines
  solo logs 200                # Last 200 lines
  solo logs -f                 # Tail and follow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, false)
			if err != nil {
				return err
			}
			defer c.close()
			return c.logs(*logsFlags, args)
		},
	}

	cmd.Flags().BoolVarP(&logsFlags.Follow, "follow", "f", false, "keep streaming appended lines")

	return cmd
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the controller over HTTP",
		Long: `Run an HTTP server that exposes the same lifecycle as the CLI:
status, start, stop and restart under the configured base path, plus
/healthz and Prometheus /metrics. The server runs until interrupted.

Examples:
  solo serve                   # Listen address from [server] in the config
  solo serve --listen :9090    # Override the listen address`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newCommand(globalFlags.ConfigPath, true)
			if err != nil {
				return err
			}
			defer c.close()
			return c.serve(*serveFlags)
		},
	}

	cmd.Flags().StringVar(&serveFlags.Listen, "listen", "", "listen address, overrides [server].listen")

	return cmd
}
