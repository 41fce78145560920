package modloader

import (
	"fmt"
	"strings"
	"time"
)

// HealthStatus represents the overall health state derived from the loader.
type HealthStatus int

const (
	// HealthStatusUnknown indicates that the health status cannot be determined.
	HealthStatusUnknown HealthStatus = iota

	// HealthStatusHealthy indicates every enabled module is loaded and no
	// load has failed.
	HealthStatusHealthy

	// HealthStatusDegraded indicates the loader is usable but some enabled
	// modules are missing or loads have failed.
	HealthStatusDegraded

	// HealthStatusUnhealthy indicates that most enabled modules are not
	// available.
	HealthStatusUnhealthy
)

// String returns the string representation of the health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s HealthStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name. Unrecognized names decode to
// HealthStatusUnknown.
func (s *HealthStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "healthy":
		*s = HealthStatusHealthy
	case "degraded":
		*s = HealthStatusDegraded
	case "unhealthy":
		*s = HealthStatusUnhealthy
	default:
		*s = HealthStatusUnknown
	}
	return nil
}

// IsHealthy returns true if the status represents a healthy state
func (s HealthStatus) IsHealthy() bool {
	return s == HealthStatusHealthy
}

// degradedThreshold is the lowest score still reported as degraded.
const degradedThreshold = 50.0

// HealthReport is the on-demand health summary of a loader.
type HealthReport struct {
	// Score is in [0, 100].
	Score           float64      `json:"score"`
	Status          HealthStatus `json:"status"`
	Issues          []string     `json:"issues"`
	Recommendations []string     `json:"recommendations"`
	GeneratedAt     time.Time    `json:"generatedAt"`
}

// healthInput is everything the health computation reads.
type healthInput struct {
	states    []ModuleState
	inflight  []string
	successes int64
	failures  int64
}

// Health computes the current health report. It only reads loader state.
func (l *Loader) Health() HealthReport {
	successes, failures := l.stats.counts()
	return computeHealth(healthInput{
		states:    l.registry.States(),
		inflight:  l.inflightNames(),
		successes: successes,
		failures:  failures,
	})
}

func computeHealth(in healthInput) HealthReport {
	var (
		enabled   int
		loaded    int
		failed    []string
		notLoaded []string
	)
	loading := make(map[string]bool, len(in.inflight))
	for _, name := range in.inflight {
		loading[name] = true
	}

	for _, st := range in.states {
		name := st.Descriptor.Name
		if st.Status == ModuleStatusFailed {
			failed = append(failed, name)
		}
		if !st.Descriptor.Enabled {
			continue
		}
		enabled++
		switch {
		case st.Status == ModuleStatusLoaded:
			loaded++
		case st.Status == ModuleStatusFailed, loading[name]:
		default:
			notLoaded = append(notLoaded, name)
		}
	}

	report := HealthReport{
		Score:           healthScore(loaded, enabled, in.successes, in.failures),
		Issues:          []string{},
		Recommendations: []string{},
		GeneratedAt:     time.Now(),
	}

	if len(failed) > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d module(s) failed to load: %s", len(failed), strings.Join(failed, ", ")))
		report.Recommendations = append(report.Recommendations, "Review dependency configuration and factory errors of the failed modules")
	}
	if len(in.inflight) > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d module(s) still loading: %s", len(in.inflight), strings.Join(in.inflight, ", ")))
		report.Recommendations = append(report.Recommendations, "Check for slow module factories or raise the load timeout")
	}
	if len(notLoaded) > 0 {
		report.Issues = append(report.Issues, fmt.Sprintf("%d enabled module(s) not loaded: %s", len(notLoaded), strings.Join(notLoaded, ", ")))
		report.Recommendations = append(report.Recommendations, "Load eager modules at startup; lazy modules load on first request")
	}
	if in.failures > 0 && len(failed) == 0 {
		report.Recommendations = append(report.Recommendations, "Earlier load failures were recorded; inspect the load metrics for their errors")
	}

	switch {
	case report.Score >= 100 && len(report.Issues) == 0:
		report.Status = HealthStatusHealthy
	case report.Score >= degradedThreshold:
		report.Status = HealthStatusDegraded
	default:
		report.Status = HealthStatusUnhealthy
	}
	return report
}

// healthScore is (loaded/enabled) * (1 - failures/(successes+failures+1))
// scaled to [0, 100]. With nothing enabled the loader is fully healthy.
func healthScore(loaded, enabled int, successes, failures int64) float64 {
	if enabled <= 0 {
		return 100
	}
	loadRatio := float64(loaded) / float64(enabled)
	failureRatio := float64(failures) / float64(successes+failures+1)
	score := loadRatio * (1 - failureRatio) * 100
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
