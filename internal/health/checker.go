package health

import "time"

// Status represents the liveness status of the process.
type Status string

const StatusOK Status = "ok"

// Report is the liveness payload. It never reflects upstream provider state.
type Report struct {
	Status        Status `json:"status"`
	Timestamp     string `json:"timestamp"`
	Version       string `json:"version,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// Checker produces liveness reports.
type Checker struct {
	version string
	started time.Time
	now     func() time.Time
}

// New creates a Checker for a process started now.
func New(version string) *Checker {
	return &Checker{version: version, started: time.Now(), now: time.Now}
}

// Check returns the current liveness report.
func (c *Checker) Check() Report {
	now := c.now()
	return Report{
		Status:        StatusOK,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       c.version,
		UptimeSeconds: int64(now.Sub(c.started) / time.Second),
	}
}
