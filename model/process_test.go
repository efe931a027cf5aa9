package model

import "testing"

func TestComputeIPCZeroCycles(t *testing.T) {
	p := ProcessScore{Instructions: 1000, Cycles: 0}
	p.ComputeIPC()
	if p.IPC != 0 {
		t.Fatalf("expected ipc 0 when cycles is 0, got %v", p.IPC)
	}
}

func TestComputeIPCDivides(t *testing.T) {
	p := ProcessScore{Instructions: 2000, Cycles: 1000}
	p.ComputeIPC()
	if p.IPC != 2 {
		t.Fatalf("expected ipc 2, got %v", p.IPC)
	}
}

func TestComputeDisproportionalityPicksDominantShare(t *testing.T) {
	p := ProcessScore{CPUShare: 0.2, MemShare: 0.7, DiskShare: 0.1}
	p.ComputeDisproportionality()
	if p.DominantResource != DominantMemory {
		t.Fatalf("expected dominant resource mem, got %q", p.DominantResource)
	}
	if p.Disproportionality != 0.7 {
		t.Fatalf("expected disproportionality 0.7, got %v", p.Disproportionality)
	}
}

func TestComputeDisproportionalityAllZeroIsNone(t *testing.T) {
	p := ProcessScore{}
	p.ComputeDisproportionality()
	if p.DominantResource != DominantNone {
		t.Fatalf("expected dominant none when every share is 0, got %q", p.DominantResource)
	}
	if p.Disproportionality != 0 {
		t.Fatalf("expected disproportionality 0, got %v", p.Disproportionality)
	}
}
