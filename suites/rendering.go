package suites

import (
	"context"
	"time"

	"github.com/perfgo/perfsuite/model"
	"github.com/perfgo/perfsuite/runner"
	"github.com/perfgo/perfsuite/simulator"
)

const (
	tileSize       = 32
	cullingObjects = 900
	layerCount     = 8
	layerSide      = 128
	renderFrames   = 10
)

func (s *Set) rendering() runner.Suite {
	return runner.Tests{
		runner.NewTest("dirtyRegionEfficiency", s.dirtyRegionEfficiency),
		runner.NewTest("viewportCulling", s.viewportCulling),
		runner.NewTest("layerComposition", s.layerComposition),
		runner.NewTest("renderTime", s.renderTime),
	}
}

func screen(sim *simulator.Simulator) (w, h int) {
	st := sim.Environment().State()
	return st.ScreenWidth, st.ScreenHeight
}

// dirtyRegionEfficiency swipes across the screen and reports the share of screen
// tiles touched by the gesture.
func (s *Set) dirtyRegionEfficiency(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	sim, err := requireSimulator(tc)
	if err != nil {
		return model.TestResult{}, err
	}
	w, h := screen(sim)
	if w <= 0 || h <= 0 {
		return model.TestResult{}, errNoScreen
	}

	target := sim.Environment().Target()
	target.ClearEvents()
	from := simulator.Point{X: float64(w) * 0.1, Y: float64(h) * 0.5}
	to := simulator.Point{X: float64(w) * 0.9, Y: float64(h) * 0.5}
	if err := sim.SimulateSwipe(ctx, from, to, 50*time.Millisecond, 20); err != nil {
		return model.TestResult{}, err
	}

	cols, rows := (w+tileSize-1)/tileSize, (h+tileSize-1)/tileSize
	dirty := map[[2]int]bool{}
	for _, e := range target.Events() {
		for _, p := range e.Touches {
			dirty[[2]int{int(p.X) / tileSize, int(p.Y) / tileSize}] = true
		}
	}
	ratio := float64(len(dirty)) / float64(cols*rows)

	expected := s.expected(Rendering, "dirtyRegionEfficiency")
	return model.TestResult{
		Passed:   ratio <= expected,
		Result:   ratio,
		Expected: expected,
		Details: map[string]any{
			"dirty_tiles": len(dirty),
			"total_tiles": cols * rows,
		},
		Performance: map[string]float64{"dirty_ratio": ratio},
	}, nil
}

// viewportCulling lays objects out on a grid three viewports wide and tall and counts
// how many fall outside the visible viewport.
func (s *Set) viewportCulling(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	sim, err := requireSimulator(tc)
	if err != nil {
		return model.TestResult{}, err
	}
	w, h := screen(sim)
	if w <= 0 || h <= 0 {
		return model.TestResult{}, errNoScreen
	}

	side := 30
	worldW, worldH := float64(3*w), float64(3*h)
	culled := 0
	for i := 0; i < cullingObjects; i++ {
		x := (float64(i%side) + 0.5) * worldW / float64(side)
		y := (float64(i/side) + 0.5) * worldH / float64(side)
		// viewport is the centre tile of the world
		if x < float64(w) || x >= float64(2*w) || y < float64(h) || y >= float64(2*h) {
			culled++
		}
	}
	rate := float64(culled) / cullingObjects

	expected := s.expected(Rendering, "viewportCulling")
	return model.TestResult{
		Passed:      rate >= expected,
		Result:      rate,
		Expected:    expected,
		Details:     map[string]any{"objects": cullingObjects, "culled": culled},
		Performance: map[string]float64{"cull_rate": rate},
	}, nil
}

func composite(dst []uint32, layers [][]uint32) {
	for _, l := range layers {
		for i, px := range l {
			a := px >> 24
			dst[i] = (dst[i]*(255-a) + px*a) / 255
		}
	}
}

func (s *Set) layerComposition(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	layers := make([][]uint32, layerCount)
	for i := range layers {
		layers[i] = make([]uint32, layerSide*layerSide)
		for j := range layers[i] {
			layers[i][j] = uint32(0x80<<24 | (i*31+j)&0xffffff)
		}
	}
	dst := make([]uint32, layerSide*layerSide)

	start := time.Now()
	composite(dst, layers)
	elapsed := ms(time.Since(start))

	expected := s.expected(Rendering, "layerComposition")
	return model.TestResult{
		Passed:      elapsed <= expected,
		Result:      elapsed,
		Expected:    expected,
		Details:     map[string]any{"layers": layerCount, "pixels": layerSide * layerSide},
		Performance: map[string]float64{"composition_ms": elapsed},
	}, nil
}

// renderTime fills a framebuffer the size of the simulated screen renderFrames times
// and reports the average frame time.
func (s *Set) renderTime(ctx context.Context, tc *runner.TestContext) (model.TestResult, error) {
	sim, err := requireSimulator(tc)
	if err != nil {
		return model.TestResult{}, err
	}
	w, h := screen(sim)
	if w <= 0 || h <= 0 {
		return model.TestResult{}, errNoScreen
	}

	fb := make([]uint32, w*h)
	var total time.Duration
	for f := 0; f < renderFrames; f++ {
		if err := ctx.Err(); err != nil {
			return model.TestResult{}, err
		}
		start := time.Now()
		for i := range fb {
			fb[i] = uint32(f*i) | 0xff000000
		}
		total += time.Since(start)
	}
	avg := ms(total) / renderFrames

	expected := s.expected(Rendering, "renderTime")
	return model.TestResult{
		Passed:      avg <= expected,
		Result:      avg,
		Expected:    expected,
		Details:     map[string]any{"width": w, "height": h, "frames": renderFrames},
		Performance: map[string]float64{"frame_ms": avg},
	}, nil
}
