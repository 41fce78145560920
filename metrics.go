package modloader

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Load results recorded by the loads_total counter.
const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultRejected = "rejected"
)

// LoadMetrics is the diagnostic view of load activity.
type LoadMetrics struct {
	Successes       int64                    `json:"successes"`
	Failures        int64                    `json:"failures"`
	Rejected        int64                    `json:"rejected"`
	TotalLoadTime   time.Duration            `json:"totalLoadTime"`
	AverageLoadTime time.Duration            `json:"averageLoadTime"`
	LoadTimes       map[string]time.Duration `json:"loadTimes"`
	LastErrors      map[string]string        `json:"lastErrors,omitempty"`
}

// loadStats keeps the counters the health monitor reads and mirrors them
// into prometheus collectors.
type loadStats struct {
	mu         sync.Mutex
	successes  int64
	failures   int64
	rejected   int64
	totalTime  time.Duration
	loadTimes  map[string]time.Duration
	lastErrors map[string]error

	loads    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	loaded   prometheus.Gauge
}

func newLoadStats(reg prometheus.Registerer) *loadStats {
	s := &loadStats{
		loadTimes:  make(map[string]time.Duration),
		lastErrors: make(map[string]error),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modloader",
			Name:      "loads_total",
			Help:      "Module load attempts by module and result.",
		}, []string{"module", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "modloader",
			Name:      "load_duration_seconds",
			Help:      "Time spent constructing and initializing modules.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"module"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modloader",
			Name:      "inflight_loads",
			Help:      "Module loads currently in progress.",
		}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modloader",
			Name:      "loaded_modules",
			Help:      "Modules currently held in the loaded-module store.",
		}),
	}
	if reg != nil {
		reg.MustRegister(s.loads, s.duration, s.inflight, s.loaded)
	}
	return s
}

func (s *loadStats) recordSuccess(name string, d time.Duration) {
	s.mu.Lock()
	s.successes++
	s.totalTime += d
	s.loadTimes[name] = d
	delete(s.lastErrors, name)
	s.mu.Unlock()

	s.loads.WithLabelValues(name, resultSuccess).Inc()
	s.duration.WithLabelValues(name).Observe(d.Seconds())
}

func (s *loadStats) recordFailure(name string, err error) {
	s.mu.Lock()
	s.failures++
	s.lastErrors[name] = err
	s.mu.Unlock()

	s.loads.WithLabelValues(name, resultFailure).Inc()
}

// recordRejected counts requests refused before a load started, such as
// unknown or disabled modules. They do not count as load failures.
func (s *loadStats) recordRejected(name string) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()

	s.loads.WithLabelValues(name, resultRejected).Inc()
}

func (s *loadStats) counts() (successes, failures int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successes, s.failures
}

func (s *loadStats) snapshot() LoadMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := LoadMetrics{
		Successes:     s.successes,
		Failures:      s.failures,
		Rejected:      s.rejected,
		TotalLoadTime: s.totalTime,
		LoadTimes:     make(map[string]time.Duration, len(s.loadTimes)),
	}
	if s.successes > 0 {
		m.AverageLoadTime = s.totalTime / time.Duration(s.successes)
	}
	for name, d := range s.loadTimes {
		m.LoadTimes[name] = d
	}
	if len(s.lastErrors) > 0 {
		m.LastErrors = make(map[string]string, len(s.lastErrors))
		for name, err := range s.lastErrors {
			m.LastErrors[name] = err.Error()
		}
	}
	return m
}
