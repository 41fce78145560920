package diagnostics

import (
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/GoCodeAlone/modloader"
)

// HealthSource computes a health report on demand.
type HealthSource interface {
	Health() modloader.HealthReport
}

// HealthReporter logs a loader health report on a cron schedule. The report
// is computed at each tick; nothing is cached between ticks.
type HealthReporter struct {
	source   HealthSource
	logger   modloader.Logger
	schedule cron.Schedule

	mu      sync.Mutex
	cron    *cron.Cron
	last    modloader.HealthReport
	reports int
}

// NewHealthReporter parses expr (standard cron syntax or descriptors such as
// "@every 1m") and returns a stopped reporter.
func NewHealthReporter(source HealthSource, logger modloader.Logger, expr string) (*HealthReporter, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid health report schedule %q: %w", expr, err)
	}
	return &HealthReporter{
		source:   source,
		logger:   logger,
		schedule: schedule,
	}, nil
}

// Start begins reporting. Calling Start on a running reporter is a no-op.
func (r *HealthReporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return
	}
	r.cron = cron.New()
	r.cron.Schedule(r.schedule, cron.FuncJob(func() { r.Report() }))
	r.cron.Start()
}

// Stop halts reporting and waits for a running report to finish.
func (r *HealthReporter) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Report computes and logs one health report.
func (r *HealthReporter) Report() modloader.HealthReport {
	report := r.source.Health()

	args := []any{
		"score", report.Score,
		"status", report.Status.String(),
		"issues", report.Issues,
	}
	switch report.Status {
	case modloader.HealthStatusHealthy:
		r.logger.Info("Module health", args...)
	case modloader.HealthStatusDegraded:
		r.logger.Warn("Module health", append(args, "recommendations", report.Recommendations)...)
	default:
		r.logger.Error("Module health", append(args, "recommendations", report.Recommendations)...)
	}

	r.mu.Lock()
	r.last = report
	r.reports++
	r.mu.Unlock()
	return report
}

// Last returns the most recent report and how many reports were produced.
func (r *HealthReporter) Last() (modloader.HealthReport, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.reports
}
