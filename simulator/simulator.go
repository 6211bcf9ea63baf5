package simulator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Orientation of the simulated screen.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// DefaultSwipeSteps is the number of touchmove events a swipe is split into.
const DefaultSwipeSteps = 10

// Motion is a device motion sample.
type Motion struct {
	X, Y, Z            float64
	Alpha, Beta, Gamma float64
}

// SimulationState is a snapshot of the simulator's bookkeeping.
type SimulationState struct {
	IsActive        bool           `json:"is_active"`
	MocksApplied    bool           `json:"mocks_applied"`
	Device          string         `json:"device"`
	Orientation     Orientation    `json:"orientation"`
	OriginalValues  map[string]any `json:"-"`
	ActiveListeners []string       `json:"active_listeners"`
}

// Simulator applies a virtual device onto an Environment and reverts it exactly.
type Simulator struct {
	logger  zerolog.Logger
	env     *Environment
	catalog *Catalog
	props   []property
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	device       Profile
	orientation  Orientation
	network      Connection
	active       bool
	mocksApplied bool
	destroyed    bool
	original     map[string]any
	listeners    map[string]ListenerHandle
	lastMotion   Motion

	vibrator      *mockVibrator
	battery       *mockBattery
	serviceWorker *mockServiceWorker
}

// New creates a simulator for env using devices from catalog.
// The catalog's default device is selected but nothing is applied until StartSimulation.
func New(logger zerolog.Logger, env *Environment, catalog *Catalog) (*Simulator, error) {
	device, err := catalog.Lookup(catalog.Default())
	if err != nil {
		return nil, fmt.Errorf("failed to select default device: %w", err)
	}

	s := &Simulator{
		logger:        logger,
		env:           env,
		catalog:       catalog,
		props:         hostProperties(),
		now:           time.Now,
		sleep:         sleepContext,
		original:      make(map[string]any),
		listeners:     make(map[string]ListenerHandle),
		vibrator:      &mockVibrator{},
		battery:       &mockBattery{},
		serviceWorker: &mockServiceWorker{},
	}
	s.selectDevice(device)
	return s, nil
}

// Environment returns the environment the simulator writes to.
func (s *Simulator) Environment() *Environment {
	return s.env
}

// Catalog returns the device catalog.
func (s *Simulator) Catalog() *Catalog {
	return s.catalog
}

// StartSimulation begins a session, optionally on a different device.
// An active session is stopped first. The whole sequence runs under s.mu, so
// concurrent starts leave exactly one set of listeners registered.
func (s *Simulator) StartSimulation(device string) error {
	var profile Profile
	if device != "" {
		p, err := s.catalog.Lookup(device)
		if err != nil {
			return err
		}
		profile = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrSimulatorDestroyed
	}
	if s.active {
		s.stopLocked()
	}
	if device != "" {
		s.switchDeviceLocked(profile)
	}
	s.applyMocksLocked()
	s.registerListeners()
	s.active = true

	s.logger.Info().Str("device", s.device.Name).Msg("Simulation started")
	return nil
}

// StopSimulation ends the session and restores the environment.
func (s *Simulator) StopSimulation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// stopLocked is StopSimulation for callers holding s.mu.
func (s *Simulator) stopLocked() {
	if !s.active {
		return
	}
	s.unregisterListeners()
	s.active = false
	s.removeMocksLocked()
	s.logger.Info().Msg("Simulation stopped")
}

// ApplyMocks snapshots every host property and overwrites it with the device's value.
// It is a no-op while mocks are applied.
func (s *Simulator) ApplyMocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyMocksLocked()
}

func (s *Simulator) applyMocksLocked() {
	if s.mocksApplied || s.destroyed {
		return
	}

	values := s.mockValues()
	for _, p := range s.props {
		s.original[p.key] = s.env.read(p)
		if err := s.env.write(p, values[p.key]); err != nil {
			s.logger.Warn().Err(err).Str("property", p.key).Msg("Failed to apply mock")
		}
	}
	s.mocksApplied = true
	s.logger.Debug().Int("properties", len(s.original)).Msg("Mocks applied")
}

// RemoveMocks writes every snapshotted value back. A failure for one property is
// logged and does not stop the others. It is a no-op when no mocks are applied.
func (s *Simulator) RemoveMocks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeMocksLocked()
}

func (s *Simulator) removeMocksLocked() {
	if !s.mocksApplied {
		return
	}

	failed := 0
	for _, p := range s.props {
		orig, ok := s.original[p.key]
		if !ok {
			continue
		}
		if err := s.env.write(p, orig); err != nil {
			failed++
			s.logger.Warn().Err(err).Str("property", p.key).Msg("Failed to restore property")
		}
	}
	s.original = make(map[string]any)
	s.mocksApplied = false
	s.logger.Debug().Int("failed", failed).Msg("Mocks removed")
}

// SwitchDevice selects another device. While mocks are applied the new values are
// written immediately without re-snapshotting or touching listeners.
func (s *Simulator) SwitchDevice(name string) error {
	device, err := s.catalog.Lookup(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrSimulatorDestroyed
	}
	s.switchDeviceLocked(device)
	return nil
}

func (s *Simulator) switchDeviceLocked(device Profile) {
	s.selectDevice(device)
	if s.mocksApplied {
		s.writeMocks(s.props)
	}
	s.logger.Debug().Str("device", device.Name).Msg("Switched device")
}

// SetOrientation changes the screen orientation, swapping width and height.
// Setting the current orientation does nothing.
func (s *Simulator) SetOrientation(o Orientation) error {
	if o != Portrait && o != Landscape {
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, o)
	}

	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrSimulatorDestroyed
	}
	if s.orientation == o {
		s.mu.Unlock()
		return nil
	}
	s.orientation = o
	if s.mocksApplied {
		s.writeMocks(s.propsFor(PropScreenWidth, PropScreenHeight))
	}
	w, h := s.screenSize()
	s.mu.Unlock()

	angle := 0.0
	if o == Landscape {
		angle = 90
	}
	s.env.Target().DispatchEvent(Event{
		Type:      EventOrientationChange,
		Timestamp: s.now(),
		Detail:    map[string]float64{"angle": angle, "width": float64(w), "height": float64(h)},
	})
	return nil
}

// SetBatteryLevel updates the simulated battery. level must be within [0, 1].
func (s *Simulator) SetBatteryLevel(level float64, charging bool) error {
	if math.IsNaN(level) || level < 0 || level > 1 {
		return &InvalidBatteryLevelError{Level: level}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrSimulatorDestroyed
	}
	s.battery.set(level, charging)
	return nil
}

// BatteryStatus returns the simulated battery status.
func (s *Simulator) BatteryStatus() BatteryStatus {
	return s.battery.Status()
}

// SetNetworkCondition sets the simulated connection. Unknown effective types use the 4g values.
func (s *Simulator) SetNetworkCondition(typ, effectiveType string) (Connection, error) {
	conn, ok := connectionFor(typ, effectiveType)
	if !ok {
		s.logger.Warn().Str("effective_type", effectiveType).Msg("Unknown effective type, using 4g")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return Connection{}, ErrSimulatorDestroyed
	}
	s.network = conn
	if s.mocksApplied {
		s.writeMocks(s.propsFor(PropConnection))
	}
	return conn, nil
}

// SimulateTouch dispatches a tap at (x, y).
func (s *Simulator) SimulateTouch(x, y float64) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	pt := []Point{{X: x, Y: y}}
	s.env.Target().DispatchEvent(Event{Type: EventTouchStart, Timestamp: s.now(), Touches: pt})
	s.env.Target().DispatchEvent(Event{Type: EventTouchEnd, Timestamp: s.now(), Touches: pt})
	return nil
}

// SimulateSwipe dispatches touchstart, steps interpolated touchmove events spread over
// duration, then touchend. steps <= 0 uses DefaultSwipeSteps.
func (s *Simulator) SimulateSwipe(ctx context.Context, from, to Point, duration time.Duration, steps int) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	if steps <= 0 {
		steps = DefaultSwipeSteps
	}

	target := s.env.Target()
	target.DispatchEvent(Event{Type: EventTouchStart, Timestamp: s.now(), Touches: []Point{from}})

	interval := duration / time.Duration(steps)
	for i := 1; i <= steps; i++ {
		if err := s.sleep(ctx, interval); err != nil {
			return err
		}
		f := float64(i) / float64(steps)
		pt := Point{
			X: from.X + (to.X-from.X)*f,
			Y: from.Y + (to.Y-from.Y)*f,
		}
		target.DispatchEvent(Event{Type: EventTouchMove, Timestamp: s.now(), Touches: []Point{pt}})
	}

	target.DispatchEvent(Event{Type: EventTouchEnd, Timestamp: s.now(), Touches: []Point{to}})
	return nil
}

// SimulateVibration calls the environment's vibration API with pattern.
func (s *Simulator) SimulateVibration(pattern ...time.Duration) (bool, error) {
	if err := s.checkAlive(); err != nil {
		return false, err
	}
	ok := s.env.Vibrate(pattern...)
	if ok {
		total := time.Duration(0)
		for _, p := range pattern {
			total += p
		}
		s.env.Target().DispatchEvent(Event{
			Type:      EventVibrate,
			Timestamp: s.now(),
			Detail:    map[string]float64{"duration_ms": float64(total.Milliseconds())},
		})
	}
	return ok, nil
}

// VibrationCalls returns the patterns passed to the mocked vibration API.
func (s *Simulator) VibrationCalls() [][]time.Duration {
	return s.vibrator.Calls()
}

// ServiceWorkerRegistrations returns the scripts registered with the mocked container.
func (s *Simulator) ServiceWorkerRegistrations() []string {
	return s.serviceWorker.registered()
}

// SimulateDeviceMotion dispatches a devicemotion event.
func (s *Simulator) SimulateDeviceMotion(m Motion) error {
	if err := s.checkAlive(); err != nil {
		return err
	}
	s.env.Target().DispatchEvent(Event{
		Type:      EventDeviceMotion,
		Timestamp: s.now(),
		Detail: map[string]float64{
			"x": m.X, "y": m.Y, "z": m.Z,
			"alpha": m.Alpha, "beta": m.Beta, "gamma": m.Gamma,
		},
	})
	return nil
}

// LastMotion returns the most recent motion seen during the active session.
func (s *Simulator) LastMotion() Motion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMotion
}

// CurrentDevice returns the selected device profile.
func (s *Simulator) CurrentDevice() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device
}

// State returns a snapshot of the simulator's bookkeeping.
func (s *Simulator) State() SimulationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig := make(map[string]any, len(s.original))
	for k, v := range s.original {
		orig[k] = v
	}
	keys := make([]string, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return SimulationState{
		IsActive:        s.active,
		MocksApplied:    s.mocksApplied,
		Device:          s.device.Name,
		Orientation:     s.orientation,
		OriginalValues:  orig,
		ActiveListeners: keys,
	}
}

// ResetDeviceState clears mock call history, dispatched events and the battery
// without ending the session.
func (s *Simulator) ResetDeviceState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vibrator.reset()
	s.serviceWorker.reset()
	s.battery.set(s.device.Battery.Level, s.device.Battery.Charging)
	s.lastMotion = Motion{}
	s.env.Target().ClearEvents()
}

// ForceResetDevice stops and restarts the session on the current device.
func (s *Simulator) ForceResetDevice() error {
	device := s.CurrentDevice().Name
	s.StopSimulation()
	s.ResetDeviceState()
	return s.StartSimulation(device)
}

// Reset stops any session and returns to the catalog's default device.
func (s *Simulator) Reset() error {
	s.StopSimulation()

	device, err := s.catalog.Lookup(s.catalog.Default())
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrSimulatorDestroyed
	}
	s.selectDevice(device)
	s.vibrator.reset()
	s.serviceWorker.reset()
	s.env.Target().ClearEvents()
	return nil
}

// Destroy stops any session. Every later operation fails with ErrSimulatorDestroyed.
func (s *Simulator) Destroy() {
	s.StopSimulation()
	s.mu.Lock()
	s.destroyed = true
	s.mu.Unlock()
	s.logger.Debug().Msg("Simulator destroyed")
}

func (s *Simulator) checkAlive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrSimulatorDestroyed
	}
	return nil
}

// selectDevice resets per-device state. Callers hold s.mu or own s exclusively.
func (s *Simulator) selectDevice(device Profile) {
	s.device = device
	s.orientation = device.Orientation()
	s.network, _ = connectionFor(device.Network.Type, device.Network.EffectiveType)
	s.battery.set(device.Battery.Level, device.Battery.Charging)
}

// screenSize returns width and height for the current orientation. Callers hold s.mu.
func (s *Simulator) screenSize() (int, int) {
	w, h := s.device.Width, s.device.Height
	if s.device.Orientation() != s.orientation {
		w, h = h, w
	}
	return w, h
}

// mockValues returns the value every property takes while mocks are applied. Callers hold s.mu.
func (s *Simulator) mockValues() map[string]any {
	w, h := s.screenSize()
	return map[string]any{
		PropUserAgent:      s.device.UserAgent,
		PropScreenWidth:    w,
		PropScreenHeight:   h,
		PropPixelRatio:     s.device.PixelRatio,
		PropMaxTouchPoints: s.device.MaxTouchPoints,
		PropVibrate:        Vibrator(s.vibrator),
		PropBattery:        BatteryProvider(s.battery),
		PropConnection:     s.network,
		PropServiceWorker:  ServiceWorkerContainer(s.serviceWorker),
	}
}

// writeMocks rewrites the given properties with current mock values. Callers hold s.mu.
func (s *Simulator) writeMocks(props []property) {
	values := s.mockValues()
	for _, p := range props {
		if err := s.env.write(p, values[p.key]); err != nil {
			s.logger.Warn().Err(err).Str("property", p.key).Msg("Failed to update mock")
		}
	}
}

func (s *Simulator) propsFor(keys ...string) []property {
	var out []property
	for _, p := range s.props {
		for _, k := range keys {
			if p.key == k {
				out = append(out, p)
			}
		}
	}
	return out
}

// registerListeners subscribes the session's own listeners. Callers hold s.mu.
func (s *Simulator) registerListeners() {
	target := s.env.Target()
	s.listeners[EventDeviceMotion] = target.AddEventListener(EventDeviceMotion, func(e Event) {
		s.mu.Lock()
		s.lastMotion = Motion{
			X: e.Detail["x"], Y: e.Detail["y"], Z: e.Detail["z"],
			Alpha: e.Detail["alpha"], Beta: e.Detail["beta"], Gamma: e.Detail["gamma"],
		}
		s.mu.Unlock()
	})
	s.listeners[EventOrientationChange] = target.AddEventListener(EventOrientationChange, func(e Event) {
		s.logger.Debug().Float64("angle", e.Detail["angle"]).Msg("Orientation changed")
	})
}

// unregisterListeners removes the session's listeners. Callers hold s.mu.
func (s *Simulator) unregisterListeners() {
	target := s.env.Target()
	for key, h := range s.listeners {
		target.RemoveEventListener(h)
		delete(s.listeners, key)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
