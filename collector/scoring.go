package collector

import (
	"math"

	"github.com/hluisi/roguehunter/model"
)

// Weights are the per-resource weights applied before the log-share
// score, configurable via scoring.weights.*.
type Weights struct {
	CPU     float64
	GPU     float64
	Memory  float64
	Disk    float64
	Wakeups float64
}

// DefaultWeights weighs all five resources equally.
func DefaultWeights() Weights {
	return Weights{CPU: 1, GPU: 1, Memory: 1, Disk: 1, Wakeups: 1}
}

// StateMultipliers demote processes that are not actively running, applied
// after the raw log-share score.
type StateMultipliers map[model.State]float64

// DefaultStateMultipliers halves the score of idle and sleeping processes
// and leaves running/stuck processes untouched.
func DefaultStateMultipliers() StateMultipliers {
	return StateMultipliers{
		model.StateIdle:     0.5,
		model.StateSleeping: 0.5,
		model.StateStopped:  0.7,
		model.StateHalted:   0.8,
		model.StateZombie:   0.9,
		model.StateRunning:  1.0,
		model.StateStuck:    1.0,
	}
}

func (m StateMultipliers) factor(s model.State) float64 {
	if f, ok := m[s]; ok {
		return f
	}
	return 1.0
}

// BandThresholds are the lower-inclusive score thresholds for each band,
// monotonically ascending.
type BandThresholds struct {
	Low      int
	Medium   int
	Elevated int
	High     int
	Critical int
}

// DefaultBandThresholds returns the default band boundaries.
func DefaultBandThresholds() BandThresholds {
	return BandThresholds{Low: 0, Medium: 20, Elevated: 45, High: 60, Critical: 80}
}

// bandOf returns the highest band whose threshold is <= score.
func bandOf(score int, t BandThresholds) model.Band {
	band := model.BandLow
	best := t.Low
	for _, pair := range []struct {
		threshold int
		band      model.Band
	}{
		{t.Low, model.BandLow},
		{t.Medium, model.BandMedium},
		{t.Elevated, model.BandElevated},
		{t.High, model.BandHigh},
		{t.Critical, model.BandCritical},
	} {
		if pair.threshold <= score && pair.threshold >= best {
			best = pair.threshold
			band = pair.band
		}
	}
	return band
}

// fairShare is 1/active_processes, floored at 1 active process so it is
// never computed against zero.
func fairShare(activeProcesses int) float64 {
	if activeProcesses < 1 {
		activeProcesses = 1
	}
	return 1.0 / float64(activeProcesses)
}

// shareOf computes one resource's share relative to the host total
// observed this tick: r_share = process_r / (system_r / active_processes).
// A zero or unknown system total yields a 0 share rather than a division
// by zero or an inflated share.
func shareOf(processR, systemR float64, activeProcesses int) float64 {
	if systemR <= 0 {
		return 0
	}
	perProcess := systemR / float64(maxInt(activeProcesses, 1))
	if perProcess <= 0 {
		return 0
	}
	return processR / perProcess
}

// cpuShare normalizes CPU per core:
// cpu_share = process_cpu_percent / ((100 * core_count) / active_processes).
func cpuShare(processCPUPercent float64, coreCount, activeProcesses int) float64 {
	if coreCount < 1 {
		coreCount = 1
	}
	denom := (100.0 * float64(coreCount)) / float64(maxInt(activeProcesses, 1))
	if denom <= 0 {
		return 0
	}
	return processCPUPercent / denom
}

// rawScore is log2(weighted_total) * 10 when weighted_total > 1.0, else 0.
// Calibration: 1x fair share -> 0, 50x -> ~56, 100x -> ~66, 200x -> ~76.
func rawScore(weightedTotal float64) float64 {
	if weightedTotal <= 1.0 {
		return 0
	}
	return math.Log2(weightedTotal) * 10
}

// finalScore applies the state multiplier and clamps/rounds into [0, 100].
func finalScore(raw float64, state model.State, multipliers StateMultipliers) int {
	scaled := raw * multipliers.factor(state)
	if scaled < 0 {
		scaled = 0
	}
	if scaled > 100 {
		scaled = 100
	}
	return int(math.Round(scaled))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
