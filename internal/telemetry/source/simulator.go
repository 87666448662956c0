// Package source implements the two telemetry producers — a
// deterministic simulator and a real serial port reader — plus the
// selector that picks which one feeds the Hub at any moment.
package source

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/fsae-team/daqserver/internal/store"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
)

const simulatorTickRate = 100 * time.Millisecond // 10 Hz

// Simulator emits synthetic telemetry frames at 10 Hz, one sine wave per
// enabled sensor with a stable per-sensor frequency and phase derived
// from a hash of its sensor_id.
type Simulator struct {
	st     *store.Store
	rng    *rand.Rand
	active atomic.Bool
}

// NewSimulator creates a Simulator backed by st for its sensor catalog.
func NewSimulator(st *store.Store) *Simulator {
	return &Simulator{
		st:  st,
		rng: rand.New(rand.NewSource(1)),
	}
}

// SetActive controls whether ticks are published to the Hub. The
// Simulator keeps ticking regardless so it resumes mid-waveform the
// instant the Selector hands it back control.
func (s *Simulator) SetActive(active bool) {
	s.active.Store(active)
}

// Run ticks at 10 Hz until ctx is cancelled, publishing one Frame per
// tick built from the currently enabled sensors.
func (s *Simulator) Run(ctx context.Context, h *hub.Hub) error {
	ticker := time.NewTicker(simulatorTickRate)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		sensors, err := s.st.ListSensors(ctx)
		if err != nil {
			continue // transient store error; try again next tick
		}

		if !s.active.Load() {
			continue
		}

		now := time.Now()
		elapsed := now.Sub(start).Seconds()
		channels := make(map[string]float64, len(sensors))
		for _, sn := range sensors {
			if !sn.Enabled {
				continue
			}
			channels[sn.SensorID] = s.sample(sn, elapsed)
		}

		h.Publish(hub.Frame{
			Timestamp: float64(now.UnixNano()) / 1e9,
			Source:    "simulated",
			Channels:  channels,
		})
	}
}

// sample computes one sensor's value at elapsed seconds: a sine wave
// spanning [min,max] with per-sensor frequency/phase, plus 1% uniform
// noise, clamped to the sensor's configured range.
func (s *Simulator) sample(sn *store.Sensor, elapsed float64) float64 {
	freq, phase := sensorWaveform(sn.SensorID)
	span := sn.MaxValue - sn.MinValue
	base := sn.MinValue + span*(0.5+0.5*math.Sin(2*math.Pi*freq*elapsed+phase))

	noise := (s.rng.Float64()*2 - 1) * 0.01 * span
	value := base + noise

	if value < sn.MinValue {
		value = sn.MinValue
	}
	if value > sn.MaxValue {
		value = sn.MaxValue
	}
	return value
}

// sensorWaveform derives a stable (frequency, phase) pair from
// sensorID, so the same sensor always produces the same waveform shape
// across runs.
func sensorWaveform(sensorID string) (freq, phase float64) {
	h := fnv.New32a()
	h.Write([]byte(sensorID))
	sum := h.Sum32()

	// Spread frequencies across a musically uninteresting but visually
	// varied range, and phases across the full circle.
	freq = 0.05 + float64(sum%97)/97.0*0.45 // 0.05 .. 0.5 Hz
	phase = float64((sum/97)%1000) / 1000.0 * 2 * math.Pi
	return freq, phase
}
