// Package duty tracks how long the humidifier spends actively misting.
//
// The Tracker keeps a 7-day rolling window of per-tick samples for the day and
// week figures, and an all-time accumulator of monitored and active seconds.
// It is single-writer: only the engine goroutine calls Update and Save.
package duty

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/atomicfile"
)

const (
	// GapSeconds is the longest interval between samples still attributed to
	// the all-time counters. Longer intervals mean the daemon was not watching.
	GapSeconds = 300

	// RetentionSeconds is how long samples are kept in the rolling window.
	RetentionSeconds = 7 * 24 * 3600

	weekSeconds = 7 * 24 * 3600
	daySeconds  = 24 * 3600

	// DefaultWeeks is the default number of weekly histogram buckets.
	DefaultWeeks = 7
)

// Sample is one observation. It is stored on disk as [timestamp, active].
type Sample struct {
	Time   int64
	Active bool
}

// MarshalJSON encodes the sample as a two-element array.
func (s Sample) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{s.Time, s.Active})
}

// UnmarshalJSON decodes a [timestamp, active] pair.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("sample: want 2 elements, got %d", len(raw))
	}
	var ts float64
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return fmt.Errorf("sample timestamp: %w", err)
	}
	if err := json.Unmarshal(raw[1], &s.Active); err != nil {
		return fmt.Errorf("sample state: %w", err)
	}
	s.Time = int64(ts)
	return nil
}

// AllTime is the unbounded accumulator. OnSeconds never exceeds TotalSeconds.
type AllTime struct {
	TotalSeconds int64 `json:"total_seconds"`
	OnSeconds    int64 `json:"on_seconds"`
	StartTime    int64 `json:"start_time"`
}

// State is the persisted form of a Tracker.
type State struct {
	Samples []Sample `json:"samples"`
	AllTime AllTime  `json:"all_time"`
}

// Tracker records samples and derives duty-cycle figures.
type Tracker struct {
	path    string
	now     func() time.Time
	loc     *time.Location
	weeks   int
	samples []Sample
	allTime AllTime
	logger  *zap.Logger
}

// NewTracker creates an empty tracker persisting to path. Call Load to restore
// saved state.
func NewTracker(path string, now func() time.Time, logger *zap.Logger) *Tracker {
	return &Tracker{
		path:    path,
		now:     now,
		loc:     time.Local,
		weeks:   DefaultWeeks,
		allTime: AllTime{StartTime: now().Unix()},
		logger:  logger.Named("duty"),
	}
}

// SetLocation sets the time zone used for calendar-day buckets.
func (t *Tracker) SetLocation(loc *time.Location) {
	if loc != nil {
		t.loc = loc
	}
}

// SetWeeks sets the number of weekly histogram buckets.
func (t *Tracker) SetWeeks(n int) {
	if n > 0 {
		t.weeks = n
	}
}

// Update appends a sample at the current time and advances the all-time
// counters. The interval since the previous sample is credited with the
// previous sample's state; intervals longer than GapSeconds are ignored.
func (t *Tracker) Update(active bool) {
	now := t.now().Unix()

	if n := len(t.samples); n > 0 {
		prev := t.samples[n-1]
		if now <= prev.Time {
			t.logger.Debug("sample not after previous, dropped",
				zap.Int64("time", now), zap.Int64("previous", prev.Time))
			return
		}
		delta := now - prev.Time
		if delta <= GapSeconds {
			t.allTime.TotalSeconds += delta
			if prev.Active {
				t.allTime.OnSeconds += delta
			}
		} else {
			t.logger.Info("monitoring gap excluded", zap.Int64("seconds", delta))
		}
	}

	t.samples = append(t.samples, Sample{Time: now, Active: active})
}

// AllTime returns the all-time accumulator.
func (t *Tracker) AllTime() AllTime {
	return t.allTime
}

// Samples returns a copy of the rolling window.
func (t *Tracker) Samples() []Sample {
	out := make([]Sample, len(t.samples))
	copy(out, t.samples)
	return out
}

// Prune drops samples older than RetentionSeconds before now. Samples are
// chronological, so only a prefix is removed.
func (t *Tracker) Prune(now time.Time) int {
	cutoff := now.Unix() - RetentionSeconds
	i := 0
	for i < len(t.samples) && t.samples[i].Time < cutoff {
		i++
	}
	if i > 0 {
		t.samples = append([]Sample(nil), t.samples[i:]...)
	}
	return i
}

// Save prunes the window and writes the tracker state.
func (t *Tracker) Save() error {
	if n := t.Prune(t.now()); n > 0 {
		t.logger.Debug("pruned samples", zap.Int("count", n))
	}

	data, err := json.Marshal(State{Samples: t.samples, AllTime: t.allTime})
	if err != nil {
		return fmt.Errorf("encode runtime state: %w", err)
	}
	if err := atomicfile.Write(t.path, data, 0o644); err != nil {
		return fmt.Errorf("write runtime state: %w", err)
	}
	return nil
}

// Load restores saved state. A missing file leaves the tracker empty.
func (t *Tracker) Load() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read runtime state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("decode runtime state: %w", err)
	}
	if st.AllTime.OnSeconds > st.AllTime.TotalSeconds {
		return fmt.Errorf("runtime state: on_seconds %d exceeds total_seconds %d",
			st.AllTime.OnSeconds, st.AllTime.TotalSeconds)
	}
	if st.AllTime.StartTime == 0 {
		st.AllTime.StartTime = t.now().Unix()
	}

	t.samples = st.Samples
	t.allTime = st.AllTime
	t.logger.Info("loaded runtime history", zap.Int("samples", len(t.samples)))
	return nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
