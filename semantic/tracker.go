package semantic

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ToolStats is the rolling performance record of one tool.
type ToolStats struct {
	SuccessRate float64       `json:"success_rate"`
	Calls       int           `json:"calls"`
	Failures    int           `json:"failures"`
	AvgLatency  time.Duration `json:"avg_latency"`
	LastUsed    time.Time     `json:"last_used"`
}

// TrackerOptions configure the performance tracker.
type TrackerOptions struct {
	// Alpha is the weight of the newest observation in the moving average.
	Alpha float64
	// Prior is the success rate reported for unknown tools.
	Prior float64
	// Size bounds how many tools are tracked.
	Size int
	// TTL drops tools not used for this long.
	TTL time.Duration
}

// PerformanceTracker keeps an exponentially weighted success rate per tool.
// Counters are in-process only and are lost on restart.
type PerformanceTracker struct {
	opts TrackerOptions

	mu    sync.Mutex // serialises read-modify-write of one record
	stats *expirable.LRU[string, ToolStats]
}

// NewPerformanceTracker creates a tracker.
func NewPerformanceTracker(optFns ...func(o *TrackerOptions)) *PerformanceTracker {
	opts := TrackerOptions{
		Alpha: 0.2,
		Prior: 0.5,
		Size:  1024,
		TTL:   24 * time.Hour,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &PerformanceTracker{
		opts:  opts,
		stats: expirable.NewLRU[string, ToolStats](opts.Size, nil, opts.TTL),
	}
}

// Record folds one invocation outcome into the tool's statistics.
func (t *PerformanceTracker) Record(tool string, success bool, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.stats.Get(tool)
	if !ok {
		s = ToolStats{SuccessRate: t.opts.Prior}
	}
	obs := 0.0
	if success {
		obs = 1.0
	} else {
		s.Failures++
	}
	s.SuccessRate = t.opts.Alpha*obs + (1-t.opts.Alpha)*s.SuccessRate
	s.Calls++
	if s.Calls == 1 {
		s.AvgLatency = latency
	} else {
		s.AvgLatency = time.Duration(t.opts.Alpha*float64(latency) + (1-t.opts.Alpha)*float64(s.AvgLatency))
	}
	s.LastUsed = time.Now()

	t.stats.Add(tool, s)
}

// SuccessRate returns the averaged success rate, Prior for unknown tools.
func (t *PerformanceTracker) SuccessRate(tool string) float64 {
	if s, ok := t.stats.Peek(tool); ok {
		return s.SuccessRate
	}
	return t.opts.Prior
}

// Stats returns the record for tool.
func (t *PerformanceTracker) Stats(tool string) (ToolStats, bool) {
	return t.stats.Peek(tool)
}
