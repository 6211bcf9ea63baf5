package simulator

import (
	"sync"
	"time"
)

type mockVibrator struct {
	mu    sync.Mutex
	calls [][]time.Duration
}

func (m *mockVibrator) Vibrate(pattern []time.Duration) bool {
	cp := make([]time.Duration, len(pattern))
	copy(cp, pattern)
	m.mu.Lock()
	m.calls = append(m.calls, cp)
	m.mu.Unlock()
	return true
}

func (m *mockVibrator) Calls() [][]time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]time.Duration, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockVibrator) reset() {
	m.mu.Lock()
	m.calls = nil
	m.mu.Unlock()
}

type mockBattery struct {
	mu     sync.Mutex
	status BatteryStatus
}

func (m *mockBattery) Status() BatteryStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockBattery) set(level float64, charging bool) {
	m.mu.Lock()
	m.status = batteryStatus(level, charging)
	m.mu.Unlock()
}

// batteryStatus derives charging times from the level: a full charge takes an hour and
// a full battery lasts ten hours.
func batteryStatus(level float64, charging bool) BatteryStatus {
	s := BatteryStatus{Level: level, Charging: charging}
	if charging {
		s.ChargingTime = time.Duration((1 - level) * float64(time.Hour))
		s.DischargingTime = Forever
	} else {
		s.ChargingTime = Forever
		s.DischargingTime = time.Duration(level * float64(10*time.Hour))
	}
	return s
}

type mockServiceWorker struct {
	mu      sync.Mutex
	scripts []string
}

func (m *mockServiceWorker) Register(scriptURL string) (Registration, error) {
	m.mu.Lock()
	m.scripts = append(m.scripts, scriptURL)
	m.mu.Unlock()
	return Registration{ScriptURL: scriptURL, Scope: "/"}, nil
}

func (m *mockServiceWorker) reset() {
	m.mu.Lock()
	m.scripts = nil
	m.mu.Unlock()
}

func (m *mockServiceWorker) registered() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.scripts))
	copy(out, m.scripts)
	return out
}
