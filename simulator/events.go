package simulator

import (
	"sync"
	"time"
)

// Event types dispatched by the simulator.
const (
	EventTouchStart        = "touchstart"
	EventTouchMove         = "touchmove"
	EventTouchEnd          = "touchend"
	EventOrientationChange = "orientationchange"
	EventDeviceMotion      = "devicemotion"
	EventVibrate           = "vibrate"
)

// Point is a screen coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Event is a synthetic input or environment notification.
type Event struct {
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	Touches   []Point            `json:"touches,omitempty"`
	Detail    map[string]float64 `json:"detail,omitempty"`
}

// Listener receives dispatched events.
type Listener func(Event)

// ListenerHandle identifies a registered listener.
type ListenerHandle struct {
	Type string
	id   uint64
}

// EventTarget dispatches events to listeners and keeps a history of what was dispatched.
type EventTarget struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[string]map[uint64]Listener
	history   []Event
}

// NewEventTarget creates an empty event target.
func NewEventTarget() *EventTarget {
	return &EventTarget{listeners: make(map[string]map[uint64]Listener)}
}

// AddEventListener registers l for events of type typ.
func (t *EventTarget) AddEventListener(typ string, l Listener) ListenerHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	if t.listeners[typ] == nil {
		t.listeners[typ] = make(map[uint64]Listener)
	}
	t.listeners[typ][t.nextID] = l
	return ListenerHandle{Type: typ, id: t.nextID}
}

// RemoveEventListener unregisters a listener. Unknown handles are ignored.
func (t *EventTarget) RemoveEventListener(h ListenerHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.listeners[h.Type], h.id)
	if len(t.listeners[h.Type]) == 0 {
		delete(t.listeners, h.Type)
	}
}

// ListenerCount returns the number of listeners registered for typ.
func (t *EventTarget) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

// DispatchEvent records e and calls every listener for its type.
// Listeners run outside the target's lock and may dispatch further events.
func (t *EventTarget) DispatchEvent(e Event) {
	t.mu.Lock()
	t.history = append(t.history, e)
	ls := make([]Listener, 0, len(t.listeners[e.Type]))
	for _, l := range t.listeners[e.Type] {
		ls = append(ls, l)
	}
	t.mu.Unlock()

	for _, l := range ls {
		l(e)
	}
}

// Events returns a copy of the dispatch history.
func (t *EventTarget) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Event, len(t.history))
	copy(out, t.history)
	return out
}

// EventsOfType returns the dispatched events of one type.
func (t *EventTarget) EventsOfType(typ string) []Event {
	var out []Event
	for _, e := range t.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// ClearEvents drops the dispatch history.
func (t *EventTarget) ClearEvents() {
	t.mu.Lock()
	t.history = nil
	t.mu.Unlock()
}
