package simulator

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Forever stands in for an infinite charging or discharging time.
const Forever = time.Duration(math.MaxInt64)

// Vibrator is the host vibration API.
type Vibrator interface {
	Vibrate(pattern []time.Duration) bool
}

// BatteryStatus mirrors the host battery descriptor.
type BatteryStatus struct {
	Level           float64       `json:"level"`
	Charging        bool          `json:"charging"`
	ChargingTime    time.Duration `json:"charging_time"`
	DischargingTime time.Duration `json:"discharging_time"`
}

// BatteryProvider is the host battery API.
type BatteryProvider interface {
	Status() BatteryStatus
}

// Registration is the result of a service worker registration.
type Registration struct {
	ScriptURL string `json:"script_url"`
	Scope     string `json:"scope"`
}

// ServiceWorkerContainer is the host service worker API.
type ServiceWorkerContainer interface {
	Register(scriptURL string) (Registration, error)
}

// HostState is the set of host properties the simulator overrides.
type HostState struct {
	UserAgent      string
	ScreenWidth    int
	ScreenHeight   int
	PixelRatio     float64
	MaxTouchPoints int
	Vibrator       Vibrator
	Battery        BatteryProvider
	Connection     Connection
	ServiceWorker  ServiceWorkerContainer
}

// DefaultHost is the state of a plain desktop host with no device APIs.
func DefaultHost() HostState {
	return HostState{
		UserAgent:    "perfsuite",
		ScreenWidth:  1920,
		ScreenHeight: 1080,
		PixelRatio:   1,
		Connection: Connection{
			Type:          "ethernet",
			EffectiveType: "4g",
			Downlink:      10,
			RTT:           100 * time.Millisecond,
		},
	}
}

// Environment is the mutable execution context tests observe.
// It replaces process-wide globals: every test receives the same *Environment
// through its context and the simulator overrides its properties in place.
type Environment struct {
	mu     sync.RWMutex
	state  HostState
	target *EventTarget
}

// NewEnvironment creates an environment starting from host.
func NewEnvironment(host HostState) *Environment {
	return &Environment{state: host, target: NewEventTarget()}
}

// State returns a copy of the current host properties.
func (e *Environment) State() HostState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Target returns the event target gestures are dispatched on.
func (e *Environment) Target() *EventTarget {
	return e.target
}

// Vibrate calls the current vibration API. It returns false when none is present.
func (e *Environment) Vibrate(pattern ...time.Duration) bool {
	v := e.State().Vibrator
	if v == nil {
		return false
	}
	return v.Vibrate(pattern)
}

// Battery returns the current battery status. ok is false when no battery API is present.
func (e *Environment) Battery() (status BatteryStatus, ok bool) {
	b := e.State().Battery
	if b == nil {
		return BatteryStatus{}, false
	}
	return b.Status(), true
}

// Connection returns the current connectivity descriptor.
func (e *Environment) Connection() Connection {
	return e.State().Connection
}

// RegisterServiceWorker registers a script with the current service worker container.
func (e *Environment) RegisterServiceWorker(scriptURL string) (Registration, error) {
	sw := e.State().ServiceWorker
	if sw == nil {
		return Registration{}, fmt.Errorf("service workers are not supported")
	}
	return sw.Register(scriptURL)
}

func (e *Environment) read(p property) any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return p.get(&e.state)
}

func (e *Environment) write(p property, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return p.set(&e.state, v)
}

// property is one overridable host property.
type property struct {
	key string
	get func(*HostState) any
	set func(*HostState, any) error
}

// Property keys.
const (
	PropUserAgent      = "userAgent"
	PropScreenWidth    = "screen.width"
	PropScreenHeight   = "screen.height"
	PropPixelRatio     = "devicePixelRatio"
	PropMaxTouchPoints = "maxTouchPoints"
	PropVibrate        = "vibrate"
	PropBattery        = "battery"
	PropConnection     = "connection"
	PropServiceWorker  = "serviceWorker"
)

func field[T any](key string, ref func(*HostState) *T) property {
	return property{
		key: key,
		get: func(h *HostState) any { return *ref(h) },
		set: func(h *HostState, v any) error {
			if v == nil {
				var zero T
				*ref(h) = zero
				return nil
			}
			t, ok := v.(T)
			if !ok {
				return fmt.Errorf("property %s: cannot assign %T", key, v)
			}
			*ref(h) = t
			return nil
		},
	}
}

func hostProperties() []property {
	return []property{
		field(PropUserAgent, func(h *HostState) *string { return &h.UserAgent }),
		field(PropScreenWidth, func(h *HostState) *int { return &h.ScreenWidth }),
		field(PropScreenHeight, func(h *HostState) *int { return &h.ScreenHeight }),
		field(PropPixelRatio, func(h *HostState) *float64 { return &h.PixelRatio }),
		field(PropMaxTouchPoints, func(h *HostState) *int { return &h.MaxTouchPoints }),
		field(PropVibrate, func(h *HostState) *Vibrator { return &h.Vibrator }),
		field(PropBattery, func(h *HostState) *BatteryProvider { return &h.Battery }),
		field(PropConnection, func(h *HostState) *Connection { return &h.Connection }),
		field(PropServiceWorker, func(h *HostState) *ServiceWorkerContainer { return &h.ServiceWorker }),
	}
}
