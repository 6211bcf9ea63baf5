package simulator

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestSimulator(t *testing.T) (*Simulator, *Environment) {
	t.Helper()
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	env := NewEnvironment(DefaultHost())
	sim, err := New(zerolog.Nop(), env, catalog)
	require.NoError(t, err)
	sim.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return sim, env
}

func TestSimulator_ApplyRemoveRoundTrip(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	sim.ApplyMocks()
	applied := env.State()
	require.Equal(t, "iPhone 12", sim.CurrentDevice().Name)
	require.Contains(t, applied.UserAgent, "iPhone")
	require.Equal(t, 390, applied.ScreenWidth)
	require.Equal(t, 844, applied.ScreenHeight)
	require.Equal(t, 3.0, applied.PixelRatio)
	require.NotNil(t, applied.Vibrator)
	require.NotNil(t, applied.Battery)
	require.NotNil(t, applied.ServiceWorker)

	state := sim.State()
	require.True(t, state.MocksApplied)
	require.Len(t, state.OriginalValues, len(hostProperties()))
	require.Equal(t, before.UserAgent, state.OriginalValues[PropUserAgent])

	sim.RemoveMocks()
	require.Equal(t, before, env.State())
	require.Empty(t, sim.State().OriginalValues)
	require.False(t, sim.State().MocksApplied)

	// Second removal is a no-op
	sim.RemoveMocks()
	require.Equal(t, before, env.State())
}

func TestSimulator_ApplyTwiceKeepsOriginals(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	sim.ApplyMocks()
	sim.ApplyMocks()
	require.Equal(t, before.UserAgent, sim.State().OriginalValues[PropUserAgent])

	sim.RemoveMocks()
	require.Equal(t, before, env.State())
}

func TestSimulator_RemoveMocksBestEffort(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	sim.props = append([]property{{
		key: "broken",
		get: func(*HostState) any { return "original" },
		set: func(_ *HostState, v any) error {
			if v == "original" {
				return errors.New("read-only")
			}
			return nil
		},
	}}, sim.props...)

	sim.ApplyMocks()
	sim.RemoveMocks()

	require.Equal(t, before, env.State())
	require.Empty(t, sim.State().OriginalValues)
}

func TestSimulator_StartStop(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	require.NoError(t, sim.StartSimulation("Pixel 5"))
	state := sim.State()
	require.True(t, state.IsActive)
	require.Equal(t, "Pixel 5", state.Device)
	require.Equal(t, []string{EventDeviceMotion, EventOrientationChange}, state.ActiveListeners)
	require.Equal(t, 393, env.State().ScreenWidth)

	// Restart on another device must not snapshot mock values as originals
	require.NoError(t, sim.StartSimulation("iPhone SE"))
	require.Equal(t, 375, env.State().ScreenWidth)
	require.Equal(t, 1, env.Target().ListenerCount(EventDeviceMotion))

	sim.StopSimulation()
	require.Equal(t, before, env.State())
	require.False(t, sim.State().IsActive)
	require.Empty(t, sim.State().ActiveListeners)
	require.Zero(t, env.Target().ListenerCount(EventDeviceMotion))

	sim.StopSimulation()
	require.Equal(t, before, env.State())
}

func TestSimulator_ConcurrentStart(t *testing.T) {
	tests := []struct {
		name    string
		devices []string
	}{
		{name: "same device", devices: []string{"", "", "", "", "", "", "", ""}},
		{name: "mixed devices", devices: []string{"Pixel 5", "iPhone SE", "", "Pixel 5", "iPhone SE", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, env := newTestSimulator(t)
			before := env.State()

			var wg sync.WaitGroup
			errs := make([]error, len(tt.devices))
			for i, device := range tt.devices {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs[i] = sim.StartSimulation(device)
				}()
			}
			wg.Wait()

			for _, err := range errs {
				require.NoError(t, err)
			}
			require.True(t, sim.State().IsActive)
			require.True(t, sim.State().MocksApplied)
			require.Equal(t, 1, env.Target().ListenerCount(EventDeviceMotion))
			require.Equal(t, 1, env.Target().ListenerCount(EventOrientationChange))

			// Originals were snapshotted once, from the unmocked host
			sim.StopSimulation()
			require.Equal(t, before, env.State())
			require.Zero(t, env.Target().ListenerCount(EventDeviceMotion))
		})
	}
}

func TestSimulator_SwitchDevice(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	err := sim.SwitchDevice("Nokia 3310")
	var unknown *UnknownDeviceError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "Nokia 3310", unknown.Name)

	require.ErrorAs(t, sim.StartSimulation("Nokia 3310"), &unknown)
	require.False(t, sim.State().IsActive)

	require.NoError(t, sim.StartSimulation(""))
	require.NoError(t, sim.SwitchDevice("Galaxy S21"))
	require.Equal(t, 360, env.State().ScreenWidth)
	require.Contains(t, env.State().UserAgent, "SM-G991B")
	require.Equal(t, before.UserAgent, sim.State().OriginalValues[PropUserAgent])

	sim.StopSimulation()
	require.Equal(t, before, env.State())
}

func TestSimulator_SetOrientation(t *testing.T) {
	sim, env := newTestSimulator(t)
	require.NoError(t, sim.StartSimulation("iPhone 12"))

	var angles []float64
	env.Target().AddEventListener(EventOrientationChange, func(e Event) {
		angles = append(angles, e.Detail["angle"])
	})

	require.NoError(t, sim.SetOrientation(Landscape))
	require.Equal(t, 844, env.State().ScreenWidth)
	require.Equal(t, 390, env.State().ScreenHeight)

	// Same orientation: no swap and no event
	require.NoError(t, sim.SetOrientation(Landscape))
	require.Equal(t, 844, env.State().ScreenWidth)

	require.NoError(t, sim.SetOrientation(Portrait))
	require.Equal(t, 390, env.State().ScreenWidth)
	require.Equal(t, []float64{90, 0}, angles)

	require.ErrorIs(t, sim.SetOrientation("upside-down"), ErrInvalidOrientation)
}

func TestSimulator_SetBatteryLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    float64
		charging bool
		wantErr  bool
	}{
		{name: "above range", level: 1.5, wantErr: true},
		{name: "below range", level: -0.1, wantErr: true},
		{name: "not a number", level: math.NaN(), wantErr: true},
		{name: "charging half", level: 0.5, charging: true},
		{name: "empty", level: 0},
		{name: "full", level: 1, charging: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, env := newTestSimulator(t)
			require.NoError(t, sim.StartSimulation(""))

			err := sim.SetBatteryLevel(tt.level, tt.charging)
			if tt.wantErr {
				var invalid *InvalidBatteryLevelError
				require.ErrorAs(t, err, &invalid)
				require.Equal(t, math.Float64bits(tt.level), math.Float64bits(invalid.Level))

				// A rejected level leaves the battery untouched
				status, ok := env.Battery()
				require.True(t, ok)
				require.False(t, math.IsNaN(status.Level))
				require.Equal(t, sim.CurrentDevice().Battery.Level, status.Level)
				return
			}
			require.NoError(t, err)

			status, ok := env.Battery()
			require.True(t, ok)
			require.Equal(t, tt.level, status.Level)
			require.Equal(t, tt.charging, status.Charging)
		})
	}
}

func TestBatteryStatusTimes(t *testing.T) {
	charging := batteryStatus(0.5, true)
	require.Equal(t, 30*time.Minute, charging.ChargingTime)
	require.Equal(t, Forever, charging.DischargingTime)

	discharging := batteryStatus(0.5, false)
	require.Equal(t, Forever, discharging.ChargingTime)
	require.Equal(t, 5*time.Hour, discharging.DischargingTime)
}

func TestSimulator_SetNetworkCondition(t *testing.T) {
	tests := []struct {
		effective    string
		wantType     string
		wantDownlink float64
		wantRTT      time.Duration
	}{
		{effective: "slow-2g", wantType: "slow-2g", wantDownlink: 0.05, wantRTT: 2000 * time.Millisecond},
		{effective: "2g", wantType: "2g", wantDownlink: 0.25, wantRTT: 1400 * time.Millisecond},
		{effective: "3g", wantType: "3g", wantDownlink: 1.5, wantRTT: 400 * time.Millisecond},
		{effective: "4g", wantType: "4g", wantDownlink: 10, wantRTT: 100 * time.Millisecond},
		{effective: "5g", wantType: "4g", wantDownlink: 10, wantRTT: 100 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.effective, func(t *testing.T) {
			sim, env := newTestSimulator(t)
			require.NoError(t, sim.StartSimulation(""))

			conn, err := sim.SetNetworkCondition("cellular", tt.effective)
			require.NoError(t, err)
			require.Equal(t, tt.wantType, conn.EffectiveType)
			require.Equal(t, tt.wantDownlink, conn.Downlink)
			require.Equal(t, tt.wantRTT, conn.RTT)
			require.Equal(t, conn, env.Connection())
		})
	}
}

func TestSimulator_Gestures(t *testing.T) {
	sim, env := newTestSimulator(t)
	require.NoError(t, sim.StartSimulation(""))

	require.NoError(t, sim.SimulateTouch(10, 20))
	require.Len(t, env.Target().EventsOfType(EventTouchStart), 1)
	require.Len(t, env.Target().EventsOfType(EventTouchEnd), 1)

	env.Target().ClearEvents()
	require.NoError(t, sim.SimulateSwipe(context.Background(), Point{X: 0, Y: 0}, Point{X: 100, Y: 50}, 100*time.Millisecond, 4))
	events := env.Target().Events()
	require.Len(t, events, 6)
	require.Equal(t, EventTouchStart, events[0].Type)
	require.Equal(t, EventTouchEnd, events[5].Type)
	require.Equal(t, Point{X: 25, Y: 12.5}, events[1].Touches[0])
	require.Equal(t, Point{X: 100, Y: 50}, events[4].Touches[0])

	ok, err := sim.SimulateVibration(100*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, [][]time.Duration{{100 * time.Millisecond, 50 * time.Millisecond}}, sim.VibrationCalls())

	require.NoError(t, sim.SimulateDeviceMotion(Motion{X: 1, Y: 2, Z: 9.8}))
	require.Equal(t, 9.8, sim.LastMotion().Z)

	_, err = env.RegisterServiceWorker("/sw.js")
	require.NoError(t, err)
	require.Equal(t, []string{"/sw.js"}, sim.ServiceWorkerRegistrations())

	sim.ResetDeviceState()
	require.Empty(t, sim.VibrationCalls())
	require.Empty(t, sim.ServiceWorkerRegistrations())
	require.Empty(t, env.Target().Events())
	require.Equal(t, Motion{}, sim.LastMotion())

	// Without mocks the host has no vibration API
	sim.StopSimulation()
	ok, err = sim.SimulateVibration(time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSimulator_SwipeCancelled(t *testing.T) {
	sim, _ := newTestSimulator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sim.SimulateSwipe(ctx, Point{}, Point{X: 1}, time.Second, 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSimulator_ResetAndDestroy(t *testing.T) {
	sim, env := newTestSimulator(t)
	before := env.State()

	require.NoError(t, sim.StartSimulation("Pixel 5"))
	require.NoError(t, sim.SetBatteryLevel(0.1, false))
	require.NoError(t, sim.ForceResetDevice())
	require.True(t, sim.State().IsActive)
	require.Equal(t, "Pixel 5", sim.CurrentDevice().Name)
	require.Equal(t, 0.9, sim.BatteryStatus().Level)

	require.NoError(t, sim.Reset())
	require.False(t, sim.State().IsActive)
	require.Equal(t, "iPhone 12", sim.CurrentDevice().Name)
	require.Equal(t, before, env.State())

	sim.Destroy()
	require.ErrorIs(t, sim.StartSimulation(""), ErrSimulatorDestroyed)
	require.ErrorIs(t, sim.SetBatteryLevel(0.5, true), ErrSimulatorDestroyed)
	require.ErrorIs(t, sim.SimulateTouch(1, 1), ErrSimulatorDestroyed)
	require.Equal(t, before, env.State())
}

func TestCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)
	require.Equal(t, "iPhone 12", catalog.Default())
	require.Contains(t, catalog.Names(), "Desktop")

	desktop, err := catalog.Lookup("Desktop")
	require.NoError(t, err)
	require.Equal(t, Landscape, desktop.Orientation())

	override, err := LoadCatalog(strings.NewReader(`
devices:
  - name: iPhone 12
    user_agent: custom
    width: 100
    height: 200
    pixel_ratio: 1
  - name: Kiosk
    width: 1080
    height: 1920
    pixel_ratio: 1
`))
	require.NoError(t, err)
	require.NoError(t, catalog.Merge(override))

	iphone, err := catalog.Lookup("iPhone 12")
	require.NoError(t, err)
	require.Equal(t, "custom", iphone.UserAgent)
	require.Equal(t, "Kiosk", catalog.Names()[len(catalog.Names())-1])

	_, err = LoadCatalog(strings.NewReader("devices:\n  - name: bad\n    width: 0\n    height: 1\n    pixel_ratio: 1\n"))
	require.Error(t, err)

	_, err = LoadCatalog(strings.NewReader("default: missing\ndevices: []\n"))
	var unknown *UnknownDeviceError
	require.ErrorAs(t, err, &unknown)
}

func TestLoadCatalog_BatteryLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{name: "in range", level: "0.25"},
		{name: "full", level: "1"},
		{name: "above range", level: "1.5", wantErr: true},
		{name: "below range", level: "-0.5", wantErr: true},
		{name: "not a number", level: ".nan", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(strings.NewReader(`
devices:
  - name: Tablet
    width: 800
    height: 1280
    pixel_ratio: 2
    battery: {level: ` + tt.level + `, charging: false}
`))
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var invalid *InvalidBatteryLevelError
			require.ErrorAs(t, err, &invalid)
			require.ErrorContains(t, err, `device "Tablet"`)
		})
	}
}
