package model

import "testing"

func TestMetricValueWiden(t *testing.T) {
	mv := NewMetricValue(10)
	if mv.Low != 10 || mv.High != 10 {
		t.Fatalf("expected low==high==10 before widening, got %+v", mv)
	}
	mv.Widen(5)
	mv.Widen(20)
	mv.Widen(12)
	if mv.Low != 5 {
		t.Fatalf("expected low 5, got %d", mv.Low)
	}
	if mv.High != 20 {
		t.Fatalf("expected high 20, got %d", mv.High)
	}
	if mv.Current != 10 {
		t.Fatalf("Widen must not touch Current, got %d", mv.Current)
	}
}

func TestStateSeverityOrdering(t *testing.T) {
	if StateIdle.Severity() >= StateSleeping.Severity() {
		t.Fatalf("expected idle < sleeping")
	}
	if StateZombie.Severity() >= StateStuck.Severity() {
		t.Fatalf("expected zombie < stuck")
	}
	if State("bogus").Severity() != -1 {
		t.Fatalf("expected unknown state to rank -1")
	}
}

func TestBandSeverityOrdering(t *testing.T) {
	if BandLow.Severity() >= BandCritical.Severity() {
		t.Fatalf("expected low < critical")
	}
	if Band("bogus").Severity() != -1 {
		t.Fatalf("expected unknown band to rank -1")
	}
}

func TestWidenStatePicksBySeverityNotAlphabetically(t *testing.T) {
	mv := NewStateValue(StateRunning)
	mv.WidenState(StateIdle)
	mv.WidenState(StateZombie)
	if mv.Low != string(StateIdle) {
		t.Fatalf("expected low idle, got %q", mv.Low)
	}
	if mv.High != string(StateZombie) {
		t.Fatalf("expected high zombie, got %q", mv.High)
	}
}

func TestWidenBandPicksBySeverity(t *testing.T) {
	mv := NewBandValue(BandMedium)
	mv.WidenBand(BandLow)
	mv.WidenBand(BandHigh)
	if mv.Low != string(BandLow) {
		t.Fatalf("expected low %q, got %q", BandLow, mv.Low)
	}
	if mv.High != string(BandHigh) {
		t.Fatalf("expected high %q, got %q", BandHigh, mv.High)
	}
}
