package nco

import (
	"math"
	"testing"
)

func TestMultiStepSchedule(t *testing.T) {
	s := NewMultiStepSchedule(1.0, 0.1, []int{2, 4})

	if s.Kind() != ScheduleMultiStep {
		t.Fatalf("Kind() = %v, want %v", s.Kind(), ScheduleMultiStep)
	}

	want := []float64{1.0, 0.1, 0.1, 0.01, 0.01}
	for epoch, w := range want {
		got := s.Advance()
		if math.Abs(got-w) > 1e-12 {
			t.Errorf("Advance() after epoch %d = %v, want %v", epoch+1, got, w)
		}
	}
}

func TestMultiStepScheduleIsStepCount(t *testing.T) {
	var s Schedule = NewMultiStepSchedule(1.0, 0.5, []int{1})
	if _, ok := s.(StepCountSchedule); !ok {
		t.Error("MultiStepSchedule should expose the Advance capability")
	}

	var c Schedule = NewConstantSchedule(1.0)
	if _, ok := c.(StepCountSchedule); ok {
		t.Error("ConstantSchedule should not expose the Advance capability")
	}

	var p Schedule = NewPlateauSchedule(1.0, 0.5, 2)
	if _, ok := p.(StepCountSchedule); ok {
		t.Error("PlateauSchedule should not expose the Advance capability")
	}
}

func TestPlateauSchedule(t *testing.T) {
	s := NewPlateauSchedule(1.0, 0.5, 1)

	// Improving metrics keep the rate.
	if lr := s.Observe(1.0); lr != 1.0 {
		t.Fatalf("Observe(1.0) = %v, want 1.0", lr)
	}
	if lr := s.Observe(2.0); lr != 1.0 {
		t.Fatalf("Observe(2.0) = %v, want 1.0", lr)
	}

	// One bad epoch is within patience.
	if lr := s.Observe(1.5); lr != 1.0 {
		t.Fatalf("first stall = %v, want 1.0", lr)
	}
	// The second triggers the reduction.
	if lr := s.Observe(1.5); lr != 0.5 {
		t.Fatalf("second stall = %v, want 0.5", lr)
	}
}
