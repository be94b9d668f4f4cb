package main

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// Flag structs decouple cobra parsing from the run methods for testing.

type InitFlags struct {
	Type    string
	Name    string
	Command string
	Force   bool
}

type StartFlags struct {
	Daemon bool
}

type RestartFlags struct {
	Daemon bool
}

type LogsFlags struct {
	Follow bool
}

type ServeFlags struct {
	Listen string
}
