package generation

import (
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/DmitrySonora/chimera/prompt"
)

// Metrics holds the process-lifetime counters owned by one Orchestrator.
// All mutation is atomic; there is no cross-process coordination.
type Metrics struct {
	generations  atomic.Uint64
	jsonFailures atomic.Uint64

	// Sum of per-generation cache-hit rates, stored as float64 bits.
	hitRateSumBits atomic.Uint64

	modeSuccess map[prompt.Mode]*atomic.Uint64
	modeFailure map[prompt.Mode]*atomic.Uint64
}

// NewMetrics returns zeroed counters for the closed mode enumeration.
func NewMetrics() *Metrics {
	m := &Metrics{
		modeSuccess: make(map[prompt.Mode]*atomic.Uint64, len(prompt.Modes())),
		modeFailure: make(map[prompt.Mode]*atomic.Uint64, len(prompt.Modes())),
	}
	for _, mode := range prompt.Modes() {
		m.modeSuccess[mode] = &atomic.Uint64{}
		m.modeFailure[mode] = &atomic.Uint64{}
	}
	return m
}

// RecordGeneration increments the generation count and returns the new value.
func (m *Metrics) RecordGeneration() uint64 {
	return m.generations.Add(1)
}

// RecordJSONFailure increments the structured-parse failure count.
func (m *Metrics) RecordJSONFailure() {
	m.jsonFailures.Add(1)
}

// RecordModeSuccess increments the validation success counter for a mode.
func (m *Metrics) RecordModeSuccess(mode prompt.Mode) {
	if c, ok := m.modeSuccess[mode]; ok {
		c.Add(1)
	}
}

// RecordModeFailure increments the validation failure counter for a mode.
func (m *Metrics) RecordModeFailure(mode prompt.Mode) {
	if c, ok := m.modeFailure[mode]; ok {
		c.Add(1)
	}
}

// AddCacheHitRate accumulates one generation's cache-hit rate.
func (m *Metrics) AddCacheHitRate(rate float64) {
	for {
		old := m.hitRateSumBits.Load()
		sum := math.Float64frombits(old) + rate
		if m.hitRateSumBits.CompareAndSwap(old, math.Float64bits(sum)) {
			return
		}
	}
}

// AverageCacheHitRate is the mean cache-hit rate over all generations so far.
func (m *Metrics) AverageCacheHitRate() float64 {
	count := m.generations.Load()
	if count == 0 {
		return 0
	}
	return math.Float64frombits(m.hitRateSumBits.Load()) / float64(count)
}

// Generations returns the total generation count.
func (m *Metrics) Generations() uint64 {
	return m.generations.Load()
}

// JSONFailures returns the structured-parse failure count.
func (m *Metrics) JSONFailures() uint64 {
	return m.jsonFailures.Load()
}

// ModeSuccesses returns the validation success count for a mode.
func (m *Metrics) ModeSuccesses(mode prompt.Mode) uint64 {
	if c, ok := m.modeSuccess[mode]; ok {
		return c.Load()
	}
	return 0
}

// ModeFailures returns the validation failure count for a mode.
func (m *Metrics) ModeFailures(mode prompt.Mode) uint64 {
	if c, ok := m.modeFailure[mode]; ok {
		return c.Load()
	}
	return 0
}

// LogSummary writes the shutdown summary: totals plus the per-mode
// validation counters, when any validation ran.
func (m *Metrics) LogSummary() {
	slog.Info("generation metrics",
		slog.Uint64("generations", m.Generations()),
		slog.Uint64("json_failures", m.JSONFailures()))

	var validated uint64
	for _, mode := range prompt.Modes() {
		validated += m.ModeSuccesses(mode) + m.ModeFailures(mode)
	}
	if validated == 0 {
		return
	}

	attrs := make([]any, 0, len(prompt.Modes()))
	for _, mode := range prompt.Modes() {
		attrs = append(attrs, slog.Group(string(mode),
			slog.Uint64("success", m.ModeSuccesses(mode)),
			slog.Uint64("failure", m.ModeFailures(mode))))
	}
	slog.Info("mode validation counters", attrs...)
}
