// Package collector sweeps every process on the host once per tick and
// produces a scored, ranked SampleBatch: enumerate, read, swallow per-PID
// errors, score, sort, truncate to top-N.
package collector

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hluisi/roguehunter/model"
	"github.com/hluisi/roguehunter/platform"
)

// Config holds the collector's tunables, sourced from config.Config.
type Config struct {
	Weights          Weights
	StateMultipliers StateMultipliers
	Bands            BandThresholds
	TopN             int
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		StateMultipliers: DefaultStateMultipliers(),
		Bands:            DefaultBandThresholds(),
		TopN:             20,
	}
}

// prevSample is one PID's previous raw reading, kept for delta/rate
// computation. Entries for PIDs not seen this tick are dropped at the end
// of the tick.
type prevSample struct {
	counters platform.Counters
	wallTime float64
}

// Collector produces one SampleBatch per Collect call. Collect is
// serialized by a mutex; the contract is synchronous with no internal
// yielding.
type Collector struct {
	mu       sync.Mutex
	reader   platform.Reader
	sys      platform.SysInfo
	cfg      Config
	prev     map[int]prevSample
	lastWall float64
	now      func() time.Time // swapped out in tests
}

// New constructs a Collector, reading system info once up front (core
// count, timebase, boot time). A failure here is fatal.
func New(reader platform.Reader, cfg Config) (*Collector, error) {
	sys, err := reader.SystemInfo()
	if err != nil {
		return nil, fmt.Errorf("collector: read system info: %w", err)
	}
	return &Collector{
		reader: reader,
		sys:    sys,
		cfg:    cfg,
		prev:   make(map[int]prevSample),
		now:    time.Now,
	}, nil
}

// SystemInfo returns the system-wide inputs read at construction time,
// used by the daemon to record boot_time on events.
func (c *Collector) SystemInfo() platform.SysInfo {
	return c.sys
}

// rawSample is per-PID working state computed before shares are known
// (phase 1: read + rate), used to build the final ProcessScore once host
// totals for this tick are known (phase 2: share + score).
type rawSample struct {
	counters     platform.Counters
	cpuPct       float64
	pageinsRate  float64
	faultsRate   float64
	diskRate     float64
	wakeRate     float64
	cswRate      float64
	syscallsRate float64
	machMsgsRate float64
	runnableRate float64
	qosRate      float64
	energyRate   float64
}

// Collect runs one full sweep. It never blocks on anything but platform
// syscalls, and fails only when PID enumeration itself fails; individual
// per-PID read failures are absorbed.
func (c *Collector) Collect() (model.SampleBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	nowWall := float64(now.UnixNano()) / 1e9

	pids, err := c.reader.Enumerate()
	if err != nil {
		return model.SampleBatch{}, fmt.Errorf("collector: enumerate pids: %w", err)
	}

	raws := make(map[int]rawSample, len(pids))
	nextPrev := make(map[int]prevSample, len(pids))

	var (
		totalCPUPct   float64
		totalMem      float64
		totalDiskRate float64
		totalWakeRate float64
		active        int
	)

	for _, pid := range pids {
		counters, err := c.reader.ReadProcess(pid)
		if err != nil {
			continue // transient per-PID failure: skip this PID this tick
		}

		prior, hasPrior := c.prev[pid]
		resetForExec := hasPrior && (prior.counters.Command != counters.Command || cumulativeWentBackward(prior.counters, counters))
		if !hasPrior || resetForExec {
			raws[pid] = rawSample{counters: counters}
		} else {
			dt := nowWall - prior.wallTime
			cpuDeltaTicks := delta(prior.counters.UserTime+prior.counters.SystemTime, counters.UserTime+counters.SystemTime)
			cpuSeconds := c.sys.CPUSeconds(cpuDeltaTicks)
			var cpuPct float64
			if dt > 0 {
				cpuPct = (cpuSeconds / dt) * 100
			}
			raws[pid] = rawSample{
				counters:     counters,
				cpuPct:       cpuPct,
				pageinsRate:  rate(prior.counters.Pageins, counters.Pageins, dt),
				faultsRate:   rate(prior.counters.Faults, counters.Faults, dt),
				diskRate:     rate(prior.counters.DiskioRead+prior.counters.DiskioWritten, counters.DiskioRead+counters.DiskioWritten, dt),
				wakeRate:     rate(prior.counters.InterruptWakeups+prior.counters.PackageIdleWakeups, counters.InterruptWakeups+counters.PackageIdleWakeups, dt),
				cswRate:      rate(prior.counters.ContextSwitches, counters.ContextSwitches, dt),
				syscallsRate: rate(prior.counters.MachSyscalls+prior.counters.UnixSyscalls, counters.MachSyscalls+counters.UnixSyscalls, dt),
				machMsgsRate: rate(prior.counters.MachMessagesSent+prior.counters.MachMessagesReceived, counters.MachMessagesSent+counters.MachMessagesReceived, dt),
				runnableRate: rate(prior.counters.RunnableTime, counters.RunnableTime, dt) / 1e6, // ns/s -> ms/s
				qosRate:      rate(prior.counters.CPUTimeQoSUserInteractive, counters.CPUTimeQoSUserInteractive, dt),
				energyRate:   rate(prior.counters.Energy, counters.Energy, dt),
			}
		}

		nextPrev[pid] = prevSample{counters: counters, wallTime: nowWall}

		totalCPUPct += raws[pid].cpuPct
		totalMem += float64(counters.ResidentFootprint)
		totalDiskRate += raws[pid].diskRate
		totalWakeRate += raws[pid].wakeRate
		if counters.State == platform.StateRunning || counters.State == platform.StateIdle {
			active++
		}
	}
	if active < 1 {
		active = 1
	}

	scores := make([]model.ProcessScore, 0, len(raws))
	maxScore := 0
	for pid, raw := range raws {
		ps := c.buildScore(pid, raw, nowWall, active, totalCPUPct, totalMem, totalDiskRate, totalWakeRate)
		if ps.Score > maxScore {
			maxScore = ps.Score
		}
		scores = append(scores, ps)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].PID < scores[j].PID
	})

	topN := c.cfg.TopN
	if topN <= 0 {
		topN = 20
	}
	if len(scores) > topN {
		scores = scores[:topN]
	}

	elapsedMs := int64(0)
	if c.lastWall > 0 {
		elapsedMs = int64((nowWall - c.lastWall) * 1000)
	}
	c.lastWall = nowWall
	c.prev = nextPrev

	return model.SampleBatch{
		Timestamp:    now,
		ElapsedMs:    elapsedMs,
		ProcessCount: int64(len(raws)),
		MaxScore:     maxScore,
		Rogues:       scores,
	}, nil
}

func (c *Collector) buildScore(pid int, raw rawSample, nowWall float64, active int, totalCPUPct, totalMem, totalDiskRate, totalWakeRate float64) model.ProcessScore {
	cnt := raw.counters

	cpuS := cpuShare(raw.cpuPct, c.sys.CoreCount, active)
	memS := shareOf(float64(cnt.ResidentFootprint), totalMem, active)
	diskS := shareOf(raw.diskRate, totalDiskRate, active)
	wakeS := shareOf(raw.wakeRate, totalWakeRate, active)
	const gpuS = 0 // no unprivileged per-process GPU attribution on this platform

	weighted := weightedAverage(c.cfg.Weights, cpuS, gpuS, memS, diskS, wakeS)
	raw9 := rawScore(weighted)
	state := toModelState(cnt.State)
	score := finalScore(raw9, state, c.cfg.StateMultipliers)
	band := bandOf(score, c.cfg.Bands)

	ps := model.ProcessScore{
		PID:        pid,
		Command:    cnt.Command,
		CapturedAt: nowWall,

		CPU: model.NewMetricValue(raw.cpuPct),

		Mem:         model.NewMetricValue(cnt.ResidentFootprint),
		MemPeak:     cnt.LifetimePeakFootprint,
		Pageins:     int64(cnt.Pageins),
		PageinsRate: raw.pageinsRate,
		Faults:      int64(cnt.Faults),
		FaultsRate:  raw.faultsRate,

		DiskIO:     model.NewMetricValue(int64(cnt.DiskioRead + cnt.DiskioWritten)),
		DiskIORate: raw.diskRate,

		CSW:          int64(cnt.ContextSwitches),
		CSWRate:      raw.cswRate,
		Syscalls:     int64(cnt.MachSyscalls + cnt.UnixSyscalls),
		SyscallsRate: raw.syscallsRate,
		Threads:      cnt.ThreadCount,
		MachMsgs:     int64(cnt.MachMessagesSent + cnt.MachMessagesReceived),
		MachMsgsRate: raw.machMsgsRate,

		Instructions: int64(cnt.Instructions),
		Cycles:       int64(cnt.Cycles),

		Energy:      int64(cnt.Energy),
		EnergyRate:  raw.energyRate,
		Wakeups:     int64(cnt.InterruptWakeups + cnt.PackageIdleWakeups),
		WakeupsRate: raw.wakeRate,

		RunnableTime:       int64(cnt.RunnableTime),
		RunnableTimeRate:   raw.runnableRate,
		QoSInteractive:     int64(cnt.CPUTimeQoSUserInteractive),
		QoSInteractiveRate: raw.qosRate,

		State:    model.NewStateValue(state),
		Priority: model.NewMetricValue(cnt.Priority),

		Score:        score,
		Band:         model.NewBandValue(band),
		CPUShare:     cpuS,
		GPUShare:     gpuS,
		MemShare:     memS,
		DiskShare:    diskS,
		WakeupsShare: wakeS,
	}
	ps.ComputeIPC()
	ps.ComputeDisproportionality()
	return ps
}

// weightedAverage combines the five resource shares. All shares at fair
// share (1.0) average to 1.0, which rawScore maps to 0.
func weightedAverage(w Weights, cpuS, gpuS, memS, diskS, wakeS float64) float64 {
	sumW := w.CPU + w.GPU + w.Memory + w.Disk + w.Wakeups
	if sumW <= 0 {
		return 0
	}
	sum := w.CPU*cpuS + w.GPU*gpuS + w.Memory*memS + w.Disk*diskS + w.Wakeups*wakeS
	return sum / sumW
}

func toModelState(s platform.State) model.State {
	switch s {
	case platform.StateIdle:
		return model.StateIdle
	case platform.StateSleeping:
		return model.StateSleeping
	case platform.StateRunning:
		return model.StateRunning
	case platform.StateStopped:
		return model.StateStopped
	case platform.StateZombie:
		return model.StateZombie
	default:
		return model.StateSleeping
	}
}

// cumulativeWentBackward reports whether any cumulative counter decreased,
// the signal that the PID exec'd and its counters reset.
func cumulativeWentBackward(prior, curr platform.Counters) bool {
	return curr.UserTime < prior.UserTime ||
		curr.SystemTime < prior.SystemTime ||
		curr.Pageins < prior.Pageins ||
		curr.DiskioRead < prior.DiskioRead ||
		curr.DiskioWritten < prior.DiskioWritten ||
		curr.InterruptWakeups < prior.InterruptWakeups ||
		curr.PackageIdleWakeups < prior.PackageIdleWakeups
}
