package logic

import "time"

// LightDecision is the outcome of one schedule evaluation.
type LightDecision struct {
	Desired bool
	Action  Action
}

// InWindow reports whether minute-of-day now falls in the on window. When
// on < off the window is [on, off) within one day; otherwise it wraps past
// midnight. Equal times make the light always on.
func InWindow(now, on, off int) bool {
	if on < off {
		return now >= on && now < off
	}
	return now >= on || now < off
}

// EvaluateLight computes the scheduled light state at now (local time of now)
// and the command needed to reach it. A disabled schedule never acts.
func EvaluateLight(now time.Time, cfg LightConfig, lightOn bool) (LightDecision, error) {
	if !cfg.Enabled {
		return LightDecision{Desired: lightOn}, nil
	}
	on, err := ParseClock(cfg.OnTime)
	if err != nil {
		return LightDecision{}, err
	}
	off, err := ParseClock(cfg.OffTime)
	if err != nil {
		return LightDecision{}, err
	}

	desired := InWindow(now.Hour()*60+now.Minute(), on, off)
	return LightDecision{Desired: desired, Action: actionFor(lightOn, desired)}, nil
}
