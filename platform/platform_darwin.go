//go:build darwin

package platform

/*
#cgo LDFLAGS: -lproc
#include <stdlib.h>
#include <string.h>
#include <errno.h>
#include <libproc.h>
#include <sys/sysctl.h>
#include <sys/resource.h>
#include <mach/mach_time.h>

static int rh_listallpids(pid_t *buf, int bufsize) {
	return proc_listallpids(buf, bufsize);
}

static int rh_pid_rusage(pid_t pid, struct rusage_info_v6 *out) {
	return proc_pid_rusage(pid, RUSAGE_INFO_V6, (rusage_info_t *)out);
}

static int rh_pidinfo_task(pid_t pid, struct proc_taskinfo *out) {
	return proc_pidinfo(pid, PROC_PIDTASKINFO, 0, out, sizeof(*out));
}

static int rh_pidinfo_bsd(pid_t pid, struct proc_bsdinfo *out) {
	return proc_pidinfo(pid, PROC_PIDTBSDINFO, 0, out, sizeof(*out));
}
*/
import "C"

import (
	"fmt"
	"time"
	"unsafe"
)

// darwinReader implements Reader over libproc/Mach/sysctl. The zero value
// is not usable; construct with NewReader so the timebase is read once at
// startup.
type darwinReader struct {
	timebaseNumer uint32
	timebaseDenom uint32
}

// NewReader constructs the Darwin platform binding, reading the Mach
// timebase once up front. On Apple Silicon the timebase is not 1/1.
func NewReader() (Reader, error) {
	var info C.struct_mach_timebase_info
	if ret := C.mach_timebase_info(&info); ret != 0 {
		return nil, fmt.Errorf("platform: mach_timebase_info: ret=%d", ret)
	}
	return &darwinReader{
		timebaseNumer: uint32(info.numer),
		timebaseDenom: uint32(info.denom),
	}, nil
}

func (r *darwinReader) Enumerate() ([]int, error) {
	// proc_listallpids wants a buffer sized in bytes; call once to size it,
	// once to fill it. The count can grow between the two calls, so we
	// retry with slack until the result stops growing.
	n := C.rh_listallpids(nil, 0)
	if n <= 0 {
		return nil, fmt.Errorf("platform: proc_listallpids size query failed")
	}

	for attempt := 0; attempt < 3; attempt++ {
		cap := int(n) + 64
		buf := make([]C.pid_t, cap)
		got := C.rh_listallpids((*C.pid_t)(unsafe.Pointer(&buf[0])), C.int(cap)*C.int(unsafe.Sizeof(buf[0])))
		if got <= 0 {
			return nil, fmt.Errorf("platform: proc_listallpids fill failed")
		}
		count := int(got) / int(unsafe.Sizeof(buf[0]))
		if count < cap {
			pids := make([]int, 0, count)
			for i := 0; i < count; i++ {
				if buf[i] > 0 {
					pids = append(pids, int(buf[i]))
				}
			}
			return pids, nil
		}
		n = got
	}
	return nil, fmt.Errorf("platform: proc_listallpids: pid table kept growing")
}

func (r *darwinReader) ReadProcess(pid int) (Counters, error) {
	var ru C.struct_rusage_info_v6
	if C.rh_pid_rusage(C.pid_t(pid), &ru) != 0 {
		return Counters{}, fmt.Errorf("platform: proc_pid_rusage(%d): %w", pid, errnoErr())
	}

	var ti C.struct_proc_taskinfo
	if C.rh_pidinfo_task(C.pid_t(pid), &ti) <= 0 {
		return Counters{}, fmt.Errorf("platform: proc_pidinfo(task, %d): %w", pid, errnoErr())
	}

	var bi C.struct_proc_bsdinfo
	if C.rh_pidinfo_bsd(C.pid_t(pid), &bi) <= 0 {
		return Counters{}, fmt.Errorf("platform: proc_pidinfo(bsd, %d): %w", pid, errnoErr())
	}

	comm := C.GoString((*C.char)(unsafe.Pointer(&bi.pbi_comm[0])))

	return Counters{
		PID:      pid,
		Command:  comm,
		State:    bsdStateToState(uint32(bi.pbi_status)),
		Priority: int32(ti.pti_priority),

		UserTime:   uint64(ru.ri_user_time),
		SystemTime: uint64(ru.ri_system_time),

		ResidentFootprint:     int64(ru.ri_phys_footprint),
		LifetimePeakFootprint: int64(ru.ri_lifetime_max_phys_footprint),

		Pageins: uint64(ru.ri_pageins),
		Faults:  uint64(ti.pti_faults),

		DiskioRead:    uint64(ru.ri_diskio_bytesread),
		DiskioWritten: uint64(ru.ri_diskio_byteswritten),

		Instructions: uint64(ru.ri_instructions),
		Cycles:       uint64(ru.ri_cycles),

		Energy: uint64(ru.ri_billed_energy) + uint64(ru.ri_serviced_energy),

		InterruptWakeups:   uint64(ru.ri_interrupt_wkups),
		PackageIdleWakeups: uint64(ru.ri_pkg_idle_wkups),

		RunnableTime:              uint64(ru.ri_runnable_time),
		CPUTimeQoSUserInteractive: uint64(ru.ri_cpu_time_qos_user_interactive),

		ContextSwitches: uint64(ti.pti_csw),
		MachSyscalls:    uint64(ti.pti_syscalls_mach),
		UnixSyscalls:    uint64(ti.pti_syscalls_unix),

		ThreadCount: int64(ti.pti_threadnum),

		MachMessagesSent:     uint64(ti.pti_messages_sent),
		MachMessagesReceived: uint64(ti.pti_messages_received),
	}, nil
}

func (r *darwinReader) SystemInfo() (SysInfo, error) {
	bootTime, err := sysctlBoottime()
	if err != nil {
		return SysInfo{}, err
	}
	cores, err := sysctlHwNcpu()
	if err != nil {
		return SysInfo{}, err
	}
	return SysInfo{
		BootTime:      bootTime,
		CoreCount:     cores,
		TimebaseNumer: r.timebaseNumer,
		TimebaseDenom: r.timebaseDenom,
	}, nil
}

// bsdStateToState maps Darwin's pbi_status (SIDL/SRUN/SSLEEP/SSTOP/SZOMB)
// onto the five states libproc can directly distinguish. halted and stuck
// have no pbi_status value and are never emitted here.
func bsdStateToState(status uint32) State {
	const (
		sidl   = 1
		srun   = 2
		ssleep = 3
		sstop  = 4
		szomb  = 5
	)
	switch status {
	case sidl:
		return StateIdle
	case srun:
		return StateRunning
	case ssleep:
		return StateSleeping
	case sstop:
		return StateStopped
	case szomb:
		return StateZombie
	default:
		return StateSleeping
	}
}

func sysctlBoottime() (time.Time, error) {
	var tv C.struct_timeval
	size := C.size_t(unsafe.Sizeof(tv))
	name := C.CString("kern.boottime")
	defer C.free(unsafe.Pointer(name))
	if ret, err := C.sysctlbyname(name, unsafe.Pointer(&tv), &size, nil, 0); ret != 0 {
		return time.Time{}, fmt.Errorf("platform: sysctlbyname(kern.boottime): %w", err)
	}
	return time.Unix(int64(tv.tv_sec), int64(tv.tv_usec)*1000), nil
}

func sysctlHwNcpu() (int, error) {
	var n C.int
	size := C.size_t(unsafe.Sizeof(n))
	name := C.CString("hw.physicalcpu")
	defer C.free(unsafe.Pointer(name))
	if ret, err := C.sysctlbyname(name, unsafe.Pointer(&n), &size, nil, 0); ret != 0 {
		return 0, fmt.Errorf("platform: sysctlbyname(hw.physicalcpu): %w", err)
	}
	if n <= 0 {
		return 1, nil
	}
	return int(n), nil
}

func errnoErr() error {
	return fmt.Errorf("errno=%d", C.int(*C.__error()))
}
