package telemetry_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teosibileau/grillgauge/internal/probe"
	"github.com/teosibileau/grillgauge/internal/telemetry"
)

const (
	addrA = probe.DeviceID("AA:BB:CC:DD:EE:01")
	addrB = probe.DeviceID("AA:BB:CC:DD:EE:02")
)

func ptr(v float64) *float64 { return &v }

// fakeSink records every gauge update keyed by metric and device.
type fakeSink struct {
	mu     sync.Mutex
	values map[string]float64
}

func newFakeSink() *fakeSink {
	return &fakeSink{values: make(map[string]float64)}
}

func (s *fakeSink) SetGauge(name string, labels telemetry.Labels, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name+"/"+labels.DeviceAddress] = value
}

func (s *fakeSink) get(name string, id probe.DeviceID) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name+"/"+string(id)]
	return v, ok
}

func TestCacheKeepsMostRecentNonNilValue(t *testing.T) {
	cache := telemetry.NewCache(newFakeSink())
	cache.Register(addrA, "Brisket Probe")

	cache.RecordReading(addrA, probe.Reading{Meat: ptr(55.0), Grill: ptr(120.0)})
	cache.RecordReading(addrA, probe.Reading{Meat: ptr(58.5)}) // grill missing this sample

	rec, ok := cache.Get(addrA)
	require.True(t, ok)
	assert.Equal(t, 58.5, rec.Meat)
	assert.Equal(t, 120.0, rec.Grill)
	assert.True(t, rec.HasMeat)
	assert.True(t, rec.HasGrill)
	assert.True(t, rec.Online)
	assert.False(t, rec.UpdatedAt.IsZero())
}

func TestCacheFailureLeavesTemperaturesUntouched(t *testing.T) {
	sink := newFakeSink()
	cache := telemetry.NewCache(sink)
	cache.Register(addrA, "Probe1")

	cache.RecordReading(addrA, probe.Reading{Meat: ptr(60.0), Grill: ptr(110.0)})
	cache.RecordFailure(addrA)

	rec, ok := cache.Get(addrA)
	require.True(t, ok)
	assert.False(t, rec.Online)
	assert.Equal(t, 60.0, rec.Meat)
	assert.Equal(t, 110.0, rec.Grill)

	// The exposed values freeze at the last good reading while the
	// status gauge flips immediately.
	meat, _ := sink.get(telemetry.MeatTemperatureMetric, addrA)
	assert.Equal(t, 60.0, meat)
	status, _ := sink.get(telemetry.ProbeStatusMetric, addrA)
	assert.Equal(t, 0.0, status)
}

func TestCacheNeverReadEmitsZero(t *testing.T) {
	sink := newFakeSink()
	cache := telemetry.NewCache(sink)
	cache.Register(addrA, "Probe1")

	cache.RecordFailure(addrA)

	rec, _ := cache.Get(addrA)
	assert.False(t, rec.HasMeat)
	assert.False(t, rec.HasGrill)

	meat, ok := sink.get(telemetry.MeatTemperatureMetric, addrA)
	require.True(t, ok)
	assert.Equal(t, 0.0, meat)
}

func TestCacheRegisterPrimesStatusGauge(t *testing.T) {
	sink := newFakeSink()
	cache := telemetry.NewCache(sink)

	cache.Register(addrA, "Left Rack")

	status, ok := sink.get(telemetry.ProbeStatusMetric, addrA)
	require.True(t, ok)
	assert.Equal(t, 0.0, status)

	rec, ok := cache.Get(addrA)
	require.True(t, ok)
	assert.False(t, rec.Online)
}

func TestCacheSlugifiesProbeNames(t *testing.T) {
	sink := &labelSink{}
	cache := telemetry.NewCache(sink)

	cache.Register(addrA, "Left Rack Probe")

	require.NotEmpty(t, sink.labels)
	assert.Equal(t, "left-rack-probe", sink.labels[0].ProbeName)
}

type labelSink struct {
	mu     sync.Mutex
	labels []telemetry.Labels
}

func (s *labelSink) SetGauge(_ string, labels telemetry.Labels, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labels = append(s.labels, labels)
}

func TestCacheSnapshotCopies(t *testing.T) {
	cache := telemetry.NewCache(nil)
	cache.Register(addrA, "Probe1")
	cache.Register(addrB, "Probe2")
	cache.RecordReading(addrA, probe.Reading{Meat: ptr(42.0)})

	snap := cache.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 42.0, snap[addrA].Meat)

	// Mutating the snapshot must not leak back into the cache.
	entry := snap[addrA]
	entry.Meat = 0
	snap[addrA] = entry
	rec, _ := cache.Get(addrA)
	assert.Equal(t, 42.0, rec.Meat)
}

func TestCacheGaugesMatchRecordAfterConcurrentWrites(t *testing.T) {
	sink := newFakeSink()
	cache := telemetry.NewCache(sink)
	cache.Register(addrA, "Probe1")

	// Readings arrive from the frame consumer while failures come from
	// the reconnect path. Whatever the interleaving, the sink must end
	// up reflecting the record: a status flip may never be overtaken by
	// an older publish.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cache.RecordReading(addrA, probe.Reading{Meat: ptr(float64(i))})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cache.RecordFailure(addrA)
		}
	}()
	wg.Wait()

	rec, ok := cache.Get(addrA)
	require.True(t, ok)

	wantStatus := 0.0
	if rec.Online {
		wantStatus = 1.0
	}
	status, ok := sink.get(telemetry.ProbeStatusMetric, addrA)
	require.True(t, ok)
	assert.Equal(t, wantStatus, status)

	meat, ok := sink.get(telemetry.MeatTemperatureMetric, addrA)
	require.True(t, ok)
	assert.Equal(t, rec.Meat, meat)
}

func TestCacheConcurrentAccess(t *testing.T) {
	cache := telemetry.NewCache(newFakeSink())
	cache.Register(addrA, "Probe1")
	cache.Register(addrB, "Probe2")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := addrA
			if n%2 == 1 {
				id = addrB
			}
			for j := 0; j < 100; j++ {
				cache.RecordReading(id, probe.Reading{Meat: ptr(float64(j))})
				cache.RecordFailure(id)
				_ = cache.Snapshot()
				_, _ = cache.Get(id)
			}
		}(i)
	}
	wg.Wait()

	rec, ok := cache.Get(addrA)
	require.True(t, ok)
	assert.Equal(t, 99.0, rec.Meat)
	assert.True(t, rec.HasMeat)
}
