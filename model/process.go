package model

// ProcessScore is the canonical per-process sample record produced by the
// collector each tick. Cumulative counters and their derived rates sit
// next to each other; MetricValue fields carry the ring-window low/high.
type ProcessScore struct {
	// Identity
	PID        int     `json:"pid"`
	Command    string  `json:"command"`
	CapturedAt float64 `json:"captured_at"`

	// CPU
	CPU MetricValue[float64] `json:"cpu"`

	// Memory
	Mem         MetricValue[int64] `json:"mem"`
	MemPeak     int64              `json:"mem_peak"`
	Pageins     int64              `json:"pageins"`
	PageinsRate float64            `json:"pageins_rate"`
	Faults      int64              `json:"faults"`
	FaultsRate  float64            `json:"faults_rate"`

	// Disk
	DiskIO     MetricValue[int64] `json:"disk_io"`
	DiskIORate float64            `json:"disk_io_rate"`

	// Activity
	CSW          int64   `json:"csw"`
	CSWRate      float64 `json:"csw_rate"`
	Syscalls     int64   `json:"syscalls"`
	SyscallsRate float64 `json:"syscalls_rate"`
	Threads      int64   `json:"threads"`
	MachMsgs     int64   `json:"mach_msgs"`
	MachMsgsRate float64 `json:"mach_msgs_rate"`

	// Efficiency
	Instructions int64   `json:"instructions"`
	Cycles       int64   `json:"cycles"`
	IPC          float64 `json:"ipc"`

	// Power
	Energy      int64   `json:"energy"`
	EnergyRate  float64 `json:"energy_rate"`
	Wakeups     int64   `json:"wakeups"`
	WakeupsRate float64 `json:"wakeups_rate"`

	// Contention
	RunnableTime       int64   `json:"runnable_time"`
	RunnableTimeRate   float64 `json:"runnable_time_rate"`
	QoSInteractive     int64   `json:"qos_interactive"`
	QoSInteractiveRate float64 `json:"qos_interactive_rate"`

	// State
	State    MetricValueStr     `json:"state"`
	Priority MetricValue[int32] `json:"priority"`

	// Scoring (disproportionate-share)
	Score              int              `json:"score"`
	Band               MetricValueStr   `json:"band"`
	CPUShare           float64          `json:"cpu_share"`
	GPUShare           float64          `json:"gpu_share"`
	MemShare           float64          `json:"mem_share"`
	DiskShare          float64          `json:"disk_share"`
	WakeupsShare       float64          `json:"wakeups_share"`
	Disproportionality float64          `json:"disproportionality"`
	DominantResource   DominantResource `json:"dominant_resource"`
}

// ComputeIPC sets IPC from Instructions/Cycles. Zero cycles means zero
// IPC, never a division error.
func (p *ProcessScore) ComputeIPC() {
	if p.Cycles == 0 {
		p.IPC = 0
		return
	}
	p.IPC = float64(p.Instructions) / float64(p.Cycles)
}

// ComputeDisproportionality sets Disproportionality to the max of the five
// resource shares and DominantResource to the argmax (none if all zero).
func (p *ProcessScore) ComputeDisproportionality() {
	type share struct {
		v float64
		r DominantResource
	}
	shares := []share{
		{p.CPUShare, DominantCPU},
		{p.GPUShare, DominantGPU},
		{p.MemShare, DominantMemory},
		{p.DiskShare, DominantDisk},
		{p.WakeupsShare, DominantWakeups},
	}
	best := share{0, DominantNone}
	for _, s := range shares {
		if s.v > best.v {
			best = s
		}
	}
	p.Disproportionality = best.v
	p.DominantResource = best.r
}
