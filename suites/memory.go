package suites

import (
	"context"
	"runtime"
	"time"

	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
)

const (
	mb = 1 << 20

	workingSetMB  = 8
	leakRounds    = 5
	leakTolerance = 2 * mb
	gcCycles      = 5
	pressureMB    = 32
)

func (s *Set) memory() runner.Suite {
	return runner.Tests{
		runner.NewTest("baselineUsage", s.baselineUsage),
		runner.NewTest("leakDetection", s.leakDetection),
		runner.NewTest("gcEfficiency", s.gcEfficiency),
		runner.NewTest("pressureHandling", s.pressureHandling),
	}
}

func allocate(n int) [][]byte {
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		buf := make([]byte, mb)
		buf[0] = byte(i)
		out = append(out, buf)
	}
	return out
}

func heapInUse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse
}

func (s *Set) baselineUsage(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	ws := allocate(workingSetMB)
	usage := collector(tc).MemoryUsage()
	runtime.KeepAlive(ws)

	used := float64(usage.Used) / mb
	expected := s.expected(Memory, "baselineUsage")
	return model.TestResult{
		Passed:   used <= expected,
		Result:   used,
		Expected: expected,
		Details: map[string]any{
			"total_mb": float64(usage.Total) / mb,
			"limit_mb": float64(usage.Limit) / mb,
		},
		Performance: map[string]float64{"used_mb": used},
	}, nil
}

// leakDetection allocates and drops a working set repeatedly. A round whose heap stays
// above the starting heap by more than leakTolerance after a collection is a suspected leak.
func (s *Set) leakDetection(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	runtime.GC()
	start := heapInUse()

	suspected := 0
	for i := 0; i < leakRounds; i++ {
		if err := ctx.Err(); err != nil {
			return model.TestResult{}, err
		}
		runtime.KeepAlive(allocate(workingSetMB))
		runtime.GC()
		if heapInUse() > start+leakTolerance {
			suspected++
		}
	}

	expected := s.expected(Memory, "leakDetection")
	return model.TestResult{
		Passed:      float64(suspected) <= expected,
		Result:      float64(suspected),
		Expected:    expected,
		Details:     map[string]any{"rounds": leakRounds},
		Performance: map[string]float64{"suspected_leaks": float64(suspected)},
	}, nil
}

func (s *Set) gcEfficiency(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < gcCycles; i++ {
		if err := ctx.Err(); err != nil {
			return model.TestResult{}, err
		}
		runtime.KeepAlive(allocate(workingSetMB))
		runtime.GC()
	}
	runtime.ReadMemStats(&after)

	cycles := after.NumGC - before.NumGC
	avgPause := 0.0
	if cycles > 0 {
		avgPause = ms(time.Duration(after.PauseTotalNs-before.PauseTotalNs)) / float64(cycles)
	}

	expected := s.expected(Memory, "gcEfficiency")
	return model.TestResult{
		Passed:      avgPause <= expected,
		Result:      avgPause,
		Expected:    expected,
		Details:     map[string]any{"cycles": cycles},
		Performance: map[string]float64{"avg_pause_ms": avgPause},
	}, nil
}

// pressureHandling measures how long it takes to allocate a large burst and reclaim it.
func (s *Set) pressureHandling(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	start := time.Now()
	runtime.KeepAlive(allocate(pressureMB))
	runtime.GC()
	response := ms(time.Since(start))

	expected := s.expected(Memory, "pressureHandling")
	return model.TestResult{
		Passed:      response <= expected,
		Result:      response,
		Expected:    expected,
		Details:     map[string]any{"allocated_mb": pressureMB},
		Performance: map[string]float64{"response_ms": response},
	}, nil
}
