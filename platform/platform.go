// Package platform isolates every host-specific system call Rogue Hunter
// needs: PID enumeration, per-process rusage/taskinfo/bsdinfo, and the
// handful of system-wide counters (boot time, core count, CPU timebase).
package platform

import (
	"errors"
	"time"
)

// ErrUnsupportedPlatform is returned by every Reader method on a GOOS this
// package has no binding for, so a non-darwin build fails loudly at daemon
// startup instead of silently emitting zeros.
var ErrUnsupportedPlatform = errors.New("platform: unsupported operating system")

// State is the BSD-level process run state. platform_darwin.go maps
// pbi_status onto it; the collector translates it to model.State
// (collector.toModelState).
type State string

const (
	StateIdle     State = "idle"
	StateSleeping State = "sleeping"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
	StateZombie   State = "zombie"
)

// Counters is one PID's raw, cumulative reading straight off the host
// APIs. No deltas, no rates, no scoring.
type Counters struct {
	PID      int
	Command  string
	State    State
	Priority int32

	// CPU time, in platform timebase units (convert via TimebaseNumer/Denom).
	UserTime   uint64
	SystemTime uint64

	ResidentFootprint     int64
	LifetimePeakFootprint int64

	Pageins uint64
	Faults  uint64

	DiskioRead    uint64
	DiskioWritten uint64

	Instructions uint64
	Cycles       uint64

	Energy uint64

	InterruptWakeups   uint64
	PackageIdleWakeups uint64

	RunnableTime              uint64 // cumulative ns
	CPUTimeQoSUserInteractive uint64 // cumulative ns

	ContextSwitches uint64
	MachSyscalls    uint64
	UnixSyscalls    uint64

	ThreadCount int64

	MachMessagesSent     uint64
	MachMessagesReceived uint64
}

// SysInfo is the set of system-wide inputs the collector reads once at
// startup: boot time, core count, and the CPU timebase conversion factor.
type SysInfo struct {
	BootTime      time.Time
	CoreCount     int
	TimebaseNumer uint32
	TimebaseDenom uint32
}

// CPUSeconds converts a cumulative CPU-time counter (in platform timebase
// units) to seconds. On Apple Silicon the timebase is not 1/1, so the
// counter cannot be assumed to already be nanoseconds.
func (s SysInfo) CPUSeconds(ticks uint64) float64 {
	if s.TimebaseDenom == 0 {
		return float64(ticks) / 1e9
	}
	ns := float64(ticks) * float64(s.TimebaseNumer) / float64(s.TimebaseDenom)
	return ns / 1e9
}

// Reader is the platform bindings interface every other package depends
// on. collector.Collector holds one Reader and never touches cgo or
// syscalls directly.
type Reader interface {
	// Enumerate lists every current PID. A failure here is fatal to the
	// caller's sweep.
	Enumerate() ([]int, error)

	// ReadProcess reads one PID's counters. Callers must treat any error
	// as "skip this PID for this tick", never as fatal.
	ReadProcess(pid int) (Counters, error)

	// SystemInfo reads the system-wide inputs. A failure here is fatal,
	// matching Enumerate.
	SystemInfo() (SysInfo, error)
}
