package metrics

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/pprof/profile"
)

// Sample types every exported profile starts with.
const (
	sampleTypeSamples  = "samples"
	sampleTypeDuration = "duration"
)

// profileBuilder turns recorded samples into a pprof profile.
// A metric named "suite.test" becomes the two-frame stack test <- suite,
// so pprof's tree and flame views group tests under their suite.
type profileBuilder struct {
	profile   *profile.Profile
	functions map[string]*profile.Function
	locations map[string]*profile.Location
}

func newProfileBuilder(start time.Time, duration time.Duration) *profileBuilder {
	return &profileBuilder{
		profile: &profile.Profile{
			SampleType: []*profile.ValueType{
				{Type: sampleTypeSamples, Unit: "count"},
				{Type: sampleTypeDuration, Unit: "nanoseconds"},
			},
			TimeNanos:     start.UnixNano(),
			DurationNanos: int64(duration),
			PeriodType:    &profile.ValueType{Type: sampleTypeDuration, Unit: "nanoseconds"},
			Period:        1,
		},
		functions: make(map[string]*profile.Function),
		locations: make(map[string]*profile.Location),
	}
}

// Profile builds a pprof profile from every recorded sample.
func (c *Collector) Profile() *profile.Profile {
	return c.Dump().Profile(c.now())
}

// Profile builds a pprof profile from the dumped samples. now is the profile time
// when the dump holds no samples.
func (dump Dump) Profile(now time.Time) *profile.Profile {
	names := make([]string, 0, len(dump.Metrics))
	var first, last time.Time
	for name, entries := range dump.Metrics {
		names = append(names, name)
		for _, e := range entries {
			if first.IsZero() || e.Timestamp.Before(first) {
				first = e.Timestamp
			}
			if e.Timestamp.After(last) {
				last = e.Timestamp
			}
		}
	}
	sort.Strings(names)
	if first.IsZero() {
		first = now
		last = first
	}

	b := newProfileBuilder(first, last.Sub(first))
	for _, name := range names {
		stack := b.stackFor(name)
		for _, e := range dump.Metrics[name] {
			values := map[string]int64{
				sampleTypeSamples:  1,
				sampleTypeDuration: int64(e.Duration),
			}
			for k, v := range e.Detail {
				values[detailSampleType(k)] = int64(math.Round(v))
			}
			b.addSample(stack, values)
		}
	}
	return b.profile
}

// detailSampleType maps a detail key to its sample type. Keys that collide with the
// base sample types get a "detail_" prefix.
func detailSampleType(key string) string {
	switch key {
	case sampleTypeSamples, sampleTypeDuration:
		return "detail_" + key
	}
	return key
}

// stackFor returns the leaf-first stack for a metric name.
func (b *profileBuilder) stackFor(name string) []*profile.Location {
	parts := strings.Split(name, ".")
	stack := make([]*profile.Location, 0, len(parts))
	for i := len(parts); i > 0; i-- {
		stack = append(stack, b.getOrCreateLocation(strings.Join(parts[:i], ".")))
	}
	return stack
}

func (b *profileBuilder) getOrCreateLocation(name string) *profile.Location {
	if loc, exists := b.locations[name]; exists {
		return loc
	}
	loc := &profile.Location{
		ID:   uint64(len(b.profile.Location) + 1),
		Line: []profile.Line{{Function: b.getOrCreateFunction(name)}},
	}
	b.locations[name] = loc
	b.profile.Location = append(b.profile.Location, loc)
	return loc
}

func (b *profileBuilder) getOrCreateFunction(name string) *profile.Function {
	if fn, exists := b.functions[name]; exists {
		return fn
	}
	fn := &profile.Function{
		ID:         uint64(len(b.profile.Function) + 1),
		Name:       name,
		SystemName: name,
	}
	b.functions[name] = fn
	b.profile.Function = append(b.profile.Function, fn)
	return fn
}

// sampleIndex returns the index of a sample type, adding it (and padding existing samples) when new.
func (b *profileBuilder) sampleIndex(sampleType string) int {
	for idx, st := range b.profile.SampleType {
		if st.Type == sampleType {
			return idx
		}
	}
	b.profile.SampleType = append(b.profile.SampleType, &profile.ValueType{Type: sampleType, Unit: "value"})
	for _, sample := range b.profile.Sample {
		sample.Value = append(sample.Value, 0)
	}
	return len(b.profile.SampleType) - 1
}

// addSample merges values into the sample with the same stack, or creates one.
func (b *profileBuilder) addSample(stack []*profile.Location, values map[string]int64) {
	if len(stack) == 0 {
		return
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	indexes := make(map[string]int, len(keys))
	for _, k := range keys {
		indexes[k] = b.sampleIndex(k)
	}

	for _, existing := range b.profile.Sample {
		if stacksEqual(existing.Location, stack) {
			for k, v := range values {
				existing.Value[indexes[k]] += v
			}
			return
		}
	}

	sample := &profile.Sample{
		Location: stack,
		Value:    make([]int64, len(b.profile.SampleType)),
	}
	for k, v := range values {
		sample.Value[indexes[k]] = v
	}
	b.profile.Sample = append(b.profile.Sample, sample)
}

// stacksEqual returns true if two stacks have the same location IDs
func stacksEqual(a, b []*profile.Location) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
