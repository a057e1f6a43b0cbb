// Package telemetry holds the last-known-good readings for every
// registered probe and mirrors them into a metrics sink. The cache is
// the only state shared between sessions and the exposition path.
package telemetry

import (
	"sync"
	"time"

	"github.com/gosimple/slug"
	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/probe"
)

const unknownProbeName = "unknown-probe"

// Record is the cached state for one probe. HasMeat/HasGrill track
// whether the field has ever held a good reading; a false flag with the
// zero value means "never read", not "currently unavailable".
type Record struct {
	Meat      float64
	Grill     float64
	HasMeat   bool
	HasGrill  bool
	Online    bool
	UpdatedAt time.Time
}

// Cache stores per-probe telemetry records. Writers are the device
// sessions (one per probe); readers are the exposition handlers.
type Cache struct {
	sink MetricsSink

	mu      sync.RWMutex
	records map[probe.DeviceID]*Record
	names   map[probe.DeviceID]string
}

func NewCache(sink MetricsSink) *Cache {
	if sink == nil {
		sink = NoopSink{}
	}
	return &Cache{
		sink:    sink,
		records: make(map[probe.DeviceID]*Record),
		names:   make(map[probe.DeviceID]string),
	}
}

// Register creates the offline record for a probe and primes its status
// gauge at 0. Registering a known probe only refreshes its name.
func (c *Cache) Register(id probe.DeviceID, name string) {
	labels := Labels{DeviceAddress: string(id), ProbeName: slug.Make(name)}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[id] = labels.ProbeName
	if _, ok := c.records[id]; !ok {
		c.records[id] = &Record{}
	}

	c.sink.SetGauge(ProbeStatusMetric, labels, 0)
	logger.Debug().Str("device", string(id)).Str("probe", labels.ProbeName).Msg("probe registered in cache")
}

// RecordReading upserts each temperature field carrying a value and
// marks the probe online. A nil field leaves the cached value in place,
// which is what keeps a stale-but-valid reading visible during a
// transient dropout.
func (c *Cache) RecordReading(id probe.DeviceID, r probe.Reading) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.ensureLocked(id)
	if r.Meat != nil {
		rec.Meat = *r.Meat
		rec.HasMeat = true
	}
	if r.Grill != nil {
		rec.Grill = *r.Grill
		rec.HasGrill = true
	}
	rec.Online = true
	rec.UpdatedAt = now

	c.publish(c.labelsLocked(id), *rec)
}

// RecordFailure flips the probe offline. Cached temperatures are left
// untouched so the exposed values freeze at the last good reading.
func (c *Cache) RecordFailure(id probe.DeviceID) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.ensureLocked(id)
	rec.Online = false
	rec.UpdatedAt = now

	c.publish(c.labelsLocked(id), *rec)
}

// Get returns the record for one probe.
func (c *Cache) Get(id probe.DeviceID) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of every record.
func (c *Cache) Snapshot() map[probe.DeviceID]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[probe.DeviceID]Record, len(c.records))
	for id, rec := range c.records {
		out[id] = *rec
	}
	return out
}

func (c *Cache) ensureLocked(id probe.DeviceID) *Record {
	rec, ok := c.records[id]
	if !ok {
		rec = &Record{}
		c.records[id] = rec
	}
	return rec
}

func (c *Cache) labelsLocked(id probe.DeviceID) Labels {
	name, ok := c.names[id]
	if !ok {
		name = unknownProbeName
	}
	return Labels{DeviceAddress: string(id), ProbeName: name}
}

// publish mirrors a record into the sink. It runs with the cache lock
// held so gauge updates reach the sink in the same order as the record
// mutations they reflect; a status flip can never be overtaken by an
// older reading's publish. Fields that never held a good reading are
// exposed as 0 so the scrape surface can tell "never read" apart from a
// frozen stale value.
func (c *Cache) publish(labels Labels, rec Record) {
	meat := 0.0
	if rec.HasMeat {
		meat = rec.Meat
	}
	grill := 0.0
	if rec.HasGrill {
		grill = rec.Grill
	}
	status := 0.0
	if rec.Online {
		status = 1.0
	}

	c.sink.SetGauge(MeatTemperatureMetric, labels, meat)
	c.sink.SetGauge(GrillTemperatureMetric, labels, grill)
	c.sink.SetGauge(ProbeStatusMetric, labels, status)
}
