package nco

// ScheduleKind identifies a learning-rate schedule variant.
type ScheduleKind string

const (
	// ScheduleMultiStep decays the learning rate at fixed epoch milestones.
	ScheduleMultiStep ScheduleKind = "multistep"
	// SchedulePlateau tracks a metric; it is advanced by its own monitoring,
	// never by the epoch-boundary hook.
	SchedulePlateau ScheduleKind = "plateau"
	// ScheduleNone keeps the learning rate constant.
	ScheduleNone ScheduleKind = "none"
)

// Schedule is a learning-rate schedule. Only step-count schedules expose an
// epoch-boundary Advance capability (see StepCountSchedule); the trainer
// dispatches on that capability and leaves other kinds untouched.
type Schedule interface {
	Kind() ScheduleKind
	LR() float64
}

// StepCountSchedule is the capability of schedules driven by epoch count.
type StepCountSchedule interface {
	Schedule

	// Advance moves the schedule one epoch forward and returns the new
	// learning rate.
	Advance() float64
}

// MultiStepSchedule multiplies the learning rate by Gamma at each milestone
// epoch, mirroring torch-style MultiStepLR.
type MultiStepSchedule struct {
	lr         float64
	gamma      float64
	milestones []int
	epoch      int
}

// NewMultiStepSchedule creates a multi-step schedule. Milestones are epoch
// indices (1-based, the epoch just completed) at which the decay applies.
func NewMultiStepSchedule(baseLR, gamma float64, milestones []int) *MultiStepSchedule {
	ms := make([]int, len(milestones))
	copy(ms, milestones)
	return &MultiStepSchedule{lr: baseLR, gamma: gamma, milestones: ms}
}

// Kind returns ScheduleMultiStep.
func (s *MultiStepSchedule) Kind() ScheduleKind { return ScheduleMultiStep }

// LR returns the current learning rate.
func (s *MultiStepSchedule) LR() float64 { return s.lr }

// Advance completes one epoch and applies the decay if the epoch is a
// milestone.
func (s *MultiStepSchedule) Advance() float64 {
	s.epoch++
	for _, m := range s.milestones {
		if m == s.epoch {
			s.lr *= s.gamma
			break
		}
	}
	return s.lr
}

// ConstantSchedule keeps the learning rate fixed.
type ConstantSchedule struct {
	lr float64
}

// NewConstantSchedule creates a constant schedule.
func NewConstantSchedule(lr float64) *ConstantSchedule {
	return &ConstantSchedule{lr: lr}
}

// Kind returns ScheduleNone.
func (s *ConstantSchedule) Kind() ScheduleKind { return ScheduleNone }

// LR returns the learning rate.
func (s *ConstantSchedule) LR() float64 { return s.lr }

// PlateauSchedule halves the learning rate when the monitored reward has not
// improved for Patience epochs. It is advanced through Observe, not through
// the epoch-boundary hook.
type PlateauSchedule struct {
	lr       float64
	factor   float64
	patience int

	best float64
	bad  int
	seen bool
}

// NewPlateauSchedule creates a reduce-on-plateau schedule.
func NewPlateauSchedule(baseLR, factor float64, patience int) *PlateauSchedule {
	return &PlateauSchedule{lr: baseLR, factor: factor, patience: patience}
}

// Kind returns SchedulePlateau.
func (s *PlateauSchedule) Kind() ScheduleKind { return SchedulePlateau }

// LR returns the current learning rate.
func (s *PlateauSchedule) LR() float64 { return s.lr }

// Observe feeds the monitored metric (higher is better) and returns the
// possibly reduced learning rate.
func (s *PlateauSchedule) Observe(metric float64) float64 {
	if !s.seen || metric > s.best {
		s.best = metric
		s.bad = 0
		s.seen = true
		return s.lr
	}
	s.bad++
	if s.bad > s.patience {
		s.lr *= s.factor
		s.bad = 0
	}
	return s.lr
}
