package duty

import "time"

// DayBucket is the active share of one calendar day.
type DayBucket struct {
	Date    string  `json:"date"`
	Percent float64 `json:"percent"`
}

// WeekBucket is the active share of one rolling 7-day window. WeeksAgo 0 is
// the window ending now.
type WeekBucket struct {
	WeeksAgo int     `json:"weeks_ago"`
	Label    string  `json:"label"`
	Percent  float64 `json:"percent"`
}

// Metrics are the derived duty-cycle figures, percentages rounded to 0.1.
type Metrics struct {
	Day     float64      `json:"day"`
	Week    float64      `json:"week"`
	AllTime float64      `json:"all_time"`
	Daily   []DayBucket  `json:"history_7d"`
	Weekly  []WeekBucket `json:"history_weeks"`
}

// Metrics computes duty-cycle figures at the current time.
//
// Day and week figures count samples rather than integrating time between
// them, which matches elapsed time only while the poll interval is steady.
func (t *Tracker) Metrics() Metrics {
	now := t.now()

	allTime := 0.0
	if t.allTime.TotalSeconds > 0 {
		allTime = float64(t.allTime.OnSeconds) / float64(t.allTime.TotalSeconds) * 100
	}

	return Metrics{
		Day:     round1(t.windowPercent(now, daySeconds)),
		Week:    round1(t.windowPercent(now, weekSeconds)),
		AllTime: round1(allTime),
		Daily:   t.DailyHistory(now, 7),
		Weekly:  t.WeeklyHistory(now, t.weeks),
	}
}

func (t *Tracker) windowPercent(now time.Time, seconds int64) float64 {
	cutoff := now.Unix() - seconds
	var on, total int
	for _, s := range t.samples {
		if s.Time < cutoff {
			continue
		}
		total++
		if s.Active {
			on++
		}
	}
	return percent(on, total)
}

// DailyHistory returns the active share for each of the last days calendar
// days (in the tracker's location), oldest first. Days without samples are 0.
func (t *Tracker) DailyHistory(now time.Time, days int) []DayBucket {
	local := now.In(t.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, t.loc)
	first := today.AddDate(0, 0, -(days - 1))

	type counts struct{ on, total int }
	buckets := make(map[string]*counts, days)
	keys := make([]string, days)
	for i := 0; i < days; i++ {
		key := first.AddDate(0, 0, i).Format("2006-01-02")
		keys[i] = key
		buckets[key] = &counts{}
	}

	cutoff := first.Unix()
	for _, s := range t.samples {
		if s.Time < cutoff {
			continue
		}
		key := time.Unix(s.Time, 0).In(t.loc).Format("2006-01-02")
		if b, ok := buckets[key]; ok {
			b.total++
			if s.Active {
				b.on++
			}
		}
	}

	out := make([]DayBucket, days)
	for i, key := range keys {
		b := buckets[key]
		out[i] = DayBucket{Date: key, Percent: round1(percent(b.on, b.total))}
	}
	return out
}

// WeeklyHistory returns the active share of the last weeks rolling 7-day
// windows, oldest first. A sample falls in bucket floor((now-ts)/7d).
func (t *Tracker) WeeklyHistory(now time.Time, weeks int) []WeekBucket {
	type counts struct{ on, total int }
	buckets := make([]counts, weeks)

	nowUnix := now.Unix()
	for _, s := range t.samples {
		diff := nowUnix - s.Time
		if diff < 0 {
			continue
		}
		idx := int(diff / weekSeconds)
		if idx >= weeks {
			continue
		}
		buckets[idx].total++
		if s.Active {
			buckets[idx].on++
		}
	}

	out := make([]WeekBucket, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		end := now.In(t.loc).AddDate(0, 0, -7*i)
		start := end.AddDate(0, 0, -6)
		out = append(out, WeekBucket{
			WeeksAgo: i,
			Label:    start.Format("Jan 02"),
			Percent:  round1(percent(buckets[i].on, buckets[i].total)),
		})
	}
	return out
}

func percent(on, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(on) / float64(total) * 100
}
