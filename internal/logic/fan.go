package logic

// Mode is the fan loop state.
type Mode string

const (
	ModeNormal   Mode = "NORMAL"
	ModeOverride Mode = "OVERRIDE"
)

// OverrideSpeed is the fan speed while humidity is too high.
const OverrideSpeed = 100

// FanInput is what the fan loop reads from one snapshot.
type FanInput struct {
	Humidity   float64
	Target     float64
	HasReading bool // both humidity and target known
	LightOn    bool
	Speed      int // current fan speed
}

// FanDecision is the outcome of one fan evaluation.
type FanDecision struct {
	Mode       Mode
	Transition bool // Mode changed on this evaluation
	Speed      int
	SetSpeed   bool // fan is not already at Speed
}

// FanLoop is the humidity override state machine.
type FanLoop struct {
	mode Mode
}

// NewFanLoop creates a loop in NORMAL mode.
func NewFanLoop() *FanLoop {
	return &FanLoop{mode: ModeNormal}
}

// Mode returns the current state.
func (f *FanLoop) Mode() Mode {
	return f.mode
}

// Override reports whether the humidity override is active.
func (f *FanLoop) Override() bool {
	return f.mode == ModeOverride
}

// Evaluate advances the state machine and computes the wanted speed.
// Without a humidity reading the mode holds.
func (f *FanLoop) Evaluate(in FanInput, cfg FanConfig) FanDecision {
	prev := f.mode
	if in.HasReading {
		switch f.mode {
		case ModeNormal:
			if in.Humidity >= in.Target+cfg.OnThreshold {
				f.mode = ModeOverride
			}
		case ModeOverride:
			if in.Humidity < in.Target+cfg.OffThreshold {
				f.mode = ModeNormal
			}
		}
	}

	speed := cfg.NightSpeed
	switch {
	case f.mode == ModeOverride:
		speed = OverrideSpeed
	case in.LightOn:
		speed = cfg.DaySpeed
	}

	return FanDecision{
		Mode:       f.mode,
		Transition: f.mode != prev,
		Speed:      speed,
		SetSpeed:   speed != in.Speed,
	}
}
