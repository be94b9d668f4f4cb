package client

import "time"

// Status mirrors the GET /status response.
type Status struct {
	Service string `json:"service"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Usage carries the resource snapshot of the running service.
type Usage struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float32   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	StartedAt     time.Time `json:"started_at"`
	Cmdline       string    `json:"cmdline,omitempty"`
}

// LaunchResult mirrors the POST /start and POST /restart responses.
type LaunchResult struct {
	OK      bool   `json:"ok"`
	PID     int    `json:"pid"`
	Outcome string `json:"outcome"`
	Port    int    `json:"port,omitempty"`
}

// StopResult mirrors the POST /stop response.
type StopResult struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
	PID     int    `json:"pid,omitempty"`
	Killed  bool   `json:"killed,omitempty"`
}

// ErrorResponse is the JSON body of every non-200 API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
