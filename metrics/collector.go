package metrics

import (
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultFrameRate is reported when no previous frame timestamp exists.
const DefaultFrameRate = 60.0

// Entry is one named performance sample.
type Entry struct {
	Duration  time.Duration      `json:"duration"`
	Timestamp time.Time          `json:"timestamp"`
	Detail    map[string]float64 `json:"detail,omitempty"`
}

// PerformanceEntry is a host timing record. Only entries of type "measure" are kept.
type PerformanceEntry struct {
	Name      string
	EntryType string
	StartTime time.Time
	Duration  time.Duration
	Detail    map[string]float64
}

// MemoryUsage mirrors a heap introspection snapshot in bytes.
type MemoryUsage struct {
	Used  uint64 `json:"used"`
	Total uint64 `json:"total"`
	Limit uint64 `json:"limit"`
}

// MemoryProvider reports memory usage. ok is false when the host has no introspection.
type MemoryProvider interface {
	MemoryUsage() (usage MemoryUsage, ok bool)
}

// RuntimeMemory reads memory usage from the Go runtime.
type RuntimeMemory struct{}

// MemoryUsage implements MemoryProvider.
func (RuntimeMemory) MemoryUsage() (MemoryUsage, bool) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemoryUsage{
		Used:  m.HeapAlloc,
		Total: m.HeapSys,
		Limit: m.Sys,
	}, true
}

// SystemInfo describes the host the samples were taken on.
type SystemInfo struct {
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	CPUs       int    `json:"cpus"`
	Goroutines int    `json:"goroutines"`
	GoVersion  string `json:"go_version"`
}

// Snapshot is the bundle returned by CollectMetrics.
type Snapshot struct {
	Timestamp time.Time      `json:"timestamp"`
	Memory    MemoryUsage    `json:"memory"`
	FrameRate float64        `json:"frame_rate"`
	System    SystemInfo     `json:"system"`
	Results   map[string]any `json:"results,omitempty"`
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithMemoryProvider overrides the memory source. A nil provider reports zeros.
func WithMemoryProvider(p MemoryProvider) Option {
	return func(c *Collector) {
		c.memory = p
	}
}

// Collector is an append-only store of named samples. It is safe for concurrent use.
type Collector struct {
	logger zerolog.Logger
	now    func() time.Time
	memory MemoryProvider

	mu        sync.Mutex
	entries   map[string][]Entry
	lastFrame time.Time
}

// New creates a collector.
func New(logger zerolog.Logger, opts ...Option) *Collector {
	c := &Collector{
		logger:  logger,
		now:     time.Now,
		memory:  RuntimeMemory{},
		entries: make(map[string][]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record appends a sample under name.
func (c *Collector) Record(name string, d time.Duration, detail map[string]float64) {
	entry := Entry{
		Duration:  d,
		Timestamp: c.now(),
		Detail:    copyDetail(detail),
	}

	c.mu.Lock()
	c.entries[name] = append(c.entries[name], entry)
	c.mu.Unlock()

	c.logger.Debug().Str("metric", name).Dur("duration", d).Msg("Recorded metric")
}

// ProcessPerformanceEntries appends every "measure" entry and returns how many were kept.
func (c *Collector) ProcessPerformanceEntries(entries []PerformanceEntry) int {
	kept := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		if e.EntryType != "measure" {
			continue
		}
		ts := e.StartTime
		if ts.IsZero() {
			ts = c.now()
		}
		c.entries[e.Name] = append(c.entries[e.Name], Entry{
			Duration:  e.Duration,
			Timestamp: ts,
			Detail:    copyDetail(e.Detail),
		})
		kept++
	}
	return kept
}

// Entries returns a copy of the samples recorded under name.
func (c *Collector) Entries(name string) []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries[name]))
	copy(out, c.entries[name])
	return out
}

// Names returns the recorded metric names in sorted order.
func (c *Collector) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Durations returns the sample durations of name in milliseconds.
func (c *Collector) Durations(name string) []float64 {
	entries := c.Entries(name)
	out := make([]float64, 0, len(entries))
	for _, e := range entries {
		out = append(out, float64(e.Duration)/float64(time.Millisecond))
	}
	return out
}

// Summary returns descriptive statistics for the durations of name in milliseconds.
func (c *Collector) Summary(name string) Summary {
	return Summarize(c.Durations(name))
}

// Clear drops every recorded sample.
func (c *Collector) Clear() {
	c.mu.Lock()
	c.entries = make(map[string][]Entry)
	c.lastFrame = time.Time{}
	c.mu.Unlock()
}

// FrameRate returns 1000/(now-last) in frames per second, or DefaultFrameRate on the first call.
func (c *Collector) FrameRate() float64 {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	last := c.lastFrame
	c.lastFrame = now
	if last.IsZero() {
		return DefaultFrameRate
	}
	elapsed := float64(now.Sub(last)) / float64(time.Millisecond)
	if elapsed <= 0 {
		return DefaultFrameRate
	}
	return 1000 / elapsed
}

// MemoryUsage returns the current memory usage, or zeros when unavailable.
func (c *Collector) MemoryUsage() MemoryUsage {
	if c.memory == nil {
		return MemoryUsage{}
	}
	usage, ok := c.memory.MemoryUsage()
	if !ok {
		return MemoryUsage{}
	}
	return usage
}

// SystemInfo describes the current host.
func (c *Collector) SystemInfo() SystemInfo {
	return SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPUs:       runtime.NumCPU(),
		Goroutines: runtime.NumGoroutine(),
		GoVersion:  runtime.Version(),
	}
}

// CollectMetrics snapshots memory, frame rate and host details alongside results.
func (c *Collector) CollectMetrics(results map[string]any) Snapshot {
	return Snapshot{
		Timestamp: c.now(),
		Memory:    c.MemoryUsage(),
		FrameRate: c.FrameRate(),
		System:    c.SystemInfo(),
		Results:   results,
	}
}

// Dump is the structured form of every recorded sample.
type Dump struct {
	Metrics map[string][]Entry `json:"metrics"`
}

// Dump returns a deep copy of the collected samples.
func (c *Collector) Dump() Dump {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := Dump{Metrics: make(map[string][]Entry, len(c.entries))}
	for name, entries := range c.entries {
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		out.Metrics[name] = cp
	}
	return out
}

// Restore appends every sample of d, keeping its timestamps.
func (c *Collector) Restore(d Dump) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, entries := range d.Metrics {
		for _, e := range entries {
			e.Detail = copyDetail(e.Detail)
			c.entries[name] = append(c.entries[name], e)
		}
	}
}

func copyDetail(detail map[string]float64) map[string]float64 {
	if len(detail) == 0 {
		return nil
	}
	out := make(map[string]float64, len(detail))
	for k, v := range detail {
		out[k] = v
	}
	return out
}
