package forensics

import "testing"

const sampleSpindumpText = `Process:         rogueapp [4242]
Path:            /Applications/RogueApp.app/Contents/MacOS/rogueapp
Parent:          launchd [1]
Footprint:       812.5 MB
CPU Time:        145.230s

Thread 0x1a2b3c   DispatchQueue-1   250 samples (1-250)  priority 31 (base 31)
  Thread name: "com.apple.main-thread"
  Thread State: Running

Thread 0x4d5e6f   DispatchQueue-2   12 samples (1-12)  priority 4 (base 4)
  Thread name: "worker-0"
  Thread State: Blocked
  Blocked on: semaphore

Process:         helperd [99]
Path:            /usr/libexec/helperd
Footprint:       4.2 MB
CPU Time:        0.010s

Thread 0x7a8b9c   DispatchQueue-3   1 samples (1-1)  priority 20 (base 20)
`

func TestParseSpindumpProcesses(t *testing.T) {
	res := parseSpindump([]byte(sampleSpindumpText))

	if len(res.processes) != 2 {
		t.Fatalf("expected 2 processes, got %d", len(res.processes))
	}

	rogue := res.processes[0]
	if rogue.PID != 4242 || rogue.Name != "rogueapp" {
		t.Fatalf("unexpected rogue process: %+v", rogue)
	}
	if rogue.Path != "/Applications/RogueApp.app/Contents/MacOS/rogueapp" {
		t.Fatalf("unexpected path: %q", rogue.Path)
	}
	if rogue.ParentPID != 1 || rogue.ParentName != "launchd" {
		t.Fatalf("unexpected parent: pid=%d name=%q", rogue.ParentPID, rogue.ParentName)
	}
	if rogue.FootprintMB != 812.5 {
		t.Fatalf("unexpected footprint: %v", rogue.FootprintMB)
	}
	if rogue.CPUTimeSec != 145.230 {
		t.Fatalf("unexpected cpu time: %v", rogue.CPUTimeSec)
	}
	if rogue.ThreadCount != 2 {
		t.Fatalf("expected 2 threads for rogueapp, got %d", rogue.ThreadCount)
	}

	helper := res.processes[1]
	if helper.PID != 99 || helper.ThreadCount != 1 {
		t.Fatalf("unexpected helper process: %+v", helper)
	}
}

func TestParseSpindumpThreads(t *testing.T) {
	res := parseSpindump([]byte(sampleSpindumpText))

	if len(res.threads) != 3 {
		t.Fatalf("expected 3 threads total, got %d", len(res.threads))
	}

	main := res.threads[0]
	if main.ThreadID != "0x1a2b3c" || main.SampleCount != 250 || main.Priority != 31 {
		t.Fatalf("unexpected main thread: %+v", main)
	}
	if main.ThreadName != "com.apple.main-thread" || main.State != "Running" {
		t.Fatalf("unexpected main thread name/state: %+v", main)
	}

	blocked := res.threads[1]
	if blocked.BlockedOn != "semaphore" || blocked.State != "Blocked" {
		t.Fatalf("unexpected blocked thread: %+v", blocked)
	}
	if blocked.ProcessID != res.processes[0].ID {
		t.Fatalf("blocked thread should belong to rogueapp's generated ID")
	}
}

func TestParseSpindumpEmptyInput(t *testing.T) {
	res := parseSpindump([]byte(""))
	if len(res.processes) != 0 || len(res.threads) != 0 {
		t.Fatalf("expected empty result for empty input, got %+v", res)
	}
}

func TestParseSpindumpGarbageLinesSkipped(t *testing.T) {
	res := parseSpindump([]byte("not a spindump at all\njust some noise\n"))
	if len(res.processes) != 0 {
		t.Fatalf("expected no processes from unparseable text, got %d", len(res.processes))
	}
}
