// Package energy keeps the per-day energy ledger: one record per calendar day,
// kept forever, merged from live meter readings and backfilled history.
package energy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/atomicfile"
)

// DateLayout is the ledger key format.
const DateLayout = "2006-01-02"

// Record is one day's consumption.
type Record struct {
	KWh  float64 `json:"kwh"`
	Cost float64 `json:"cost"`
}

// Day is a Record with its date.
type Day struct {
	Date string  `json:"date"`
	KWh  float64 `json:"kwh"`
	Cost float64 `json:"cost"`
}

// Month is the total of all days in one YYYY-MM.
type Month struct {
	Month string  `json:"month"`
	KWh   float64 `json:"kwh"`
	Cost  float64 `json:"cost"`
	Days  int     `json:"days"`
}

type fileFormat struct {
	AllHistory map[string]Record `json:"all_history"`
	Updated    string            `json:"updated,omitempty"`
}

// Ledger maps dates to records. It is single-writer; callers that read it
// from other goroutines must go through a snapshot taken by the writer.
type Ledger struct {
	path   string
	days   map[string]Record
	now    func() time.Time
	logger *zap.Logger
}

// NewLedger creates an empty ledger persisting to path.
func NewLedger(path string, now func() time.Time, logger *zap.Logger) *Ledger {
	return &Ledger{
		path:   path,
		days:   make(map[string]Record),
		now:    now,
		logger: logger.Named("energy"),
	}
}

// RecordDaily stores the live cumulative reading for date, replacing any
// existing entry. The meter's "today" value only grows within a day, so the
// newest reading is always the best one.
func (l *Ledger) RecordDaily(date string, kwh, price float64) error {
	if err := validDate(date); err != nil {
		return err
	}
	l.days[date] = newRecord(kwh, price)
	return nil
}

// Backfill inserts a historical reading only if date has no entry yet, and
// persists the ledger right away. It reports whether the entry was inserted.
func (l *Ledger) Backfill(date string, kwh, price float64) (bool, error) {
	if err := validDate(date); err != nil {
		return false, err
	}
	if _, ok := l.days[date]; ok {
		return false, nil
	}
	l.days[date] = newRecord(kwh, price)
	if err := l.Save(); err != nil {
		return true, err
	}
	return true, nil
}

// Reprice recomputes every entry's cost at price.
func (l *Ledger) Reprice(price float64) {
	for date, r := range l.days {
		l.days[date] = newRecord(r.KWh, price)
	}
}

// Get returns the record for date.
func (l *Ledger) Get(date string) (Record, bool) {
	r, ok := l.days[date]
	return r, ok
}

// Len returns the number of recorded days.
func (l *Ledger) Len() int {
	return len(l.days)
}

// HistoryRange returns the recorded days among the n calendar days ending on
// now's date, oldest first. Missing days are omitted.
func (l *Ledger) HistoryRange(now time.Time, n int) []Day {
	out := make([]Day, 0, n)
	for i := n - 1; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format(DateLayout)
		if r, ok := l.days[date]; ok {
			out = append(out, Day{Date: date, KWh: r.KWh, Cost: r.Cost})
		}
	}
	return out
}

// MonthTotal sums the entries in now's calendar month.
func (l *Ledger) MonthTotal(now time.Time) Record {
	return l.sumPrefix(now.Format("2006-01"))
}

// YearTotal sums the entries in now's calendar year.
func (l *Ledger) YearTotal(now time.Time) Record {
	return l.sumPrefix(now.Format("2006"))
}

func (l *Ledger) sumPrefix(prefix string) Record {
	kwh, cost := decimal.Zero, decimal.Zero
	for date, r := range l.days {
		if strings.HasPrefix(date, prefix) {
			kwh = kwh.Add(decimal.NewFromFloat(r.KWh))
			cost = cost.Add(decimal.NewFromFloat(r.Cost))
		}
	}
	return Record{KWh: kwh.Round(3).InexactFloat64(), Cost: cost.Round(2).InexactFloat64()}
}

// MonthlyBreakdown groups entries by YYYY-MM, sorted ascending.
func (l *Ledger) MonthlyBreakdown() []Month {
	type acc struct {
		kwh, cost decimal.Decimal
		days      int
	}
	months := make(map[string]*acc)
	for date, r := range l.days {
		key := date[:7]
		a, ok := months[key]
		if !ok {
			a = &acc{kwh: decimal.Zero, cost: decimal.Zero}
			months[key] = a
		}
		a.kwh = a.kwh.Add(decimal.NewFromFloat(r.KWh))
		a.cost = a.cost.Add(decimal.NewFromFloat(r.Cost))
		a.days++
	}

	out := make([]Month, 0, len(months))
	for key, a := range months {
		out = append(out, Month{
			Month: key,
			KWh:   a.kwh.Round(3).InexactFloat64(),
			Cost:  a.cost.Round(2).InexactFloat64(),
			Days:  a.days,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Save writes the ledger.
func (l *Ledger) Save() error {
	data, err := json.Marshal(fileFormat{
		AllHistory: l.days,
		Updated:    l.now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode energy history: %w", err)
	}
	if err := atomicfile.Write(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write energy history: %w", err)
	}
	return nil
}

// Load restores the ledger. A missing file leaves it empty. Entries with
// malformed dates are skipped.
func (l *Ledger) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read energy history: %w", err)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode energy history: %w", err)
	}

	days := make(map[string]Record, len(f.AllHistory))
	for date, r := range f.AllHistory {
		if err := validDate(date); err != nil {
			l.logger.Warn("skipping ledger entry", zap.String("date", date), zap.Error(err))
			continue
		}
		days[date] = r
	}
	l.days = days
	l.logger.Info("loaded energy history", zap.Int("days", len(days)))
	return nil
}

func newRecord(kwh, price float64) Record {
	k := decimal.NewFromFloat(kwh).Round(3)
	cost := k.Mul(decimal.NewFromFloat(price)).Round(2)
	return Record{KWh: k.InexactFloat64(), Cost: cost.InexactFloat64()}
}

func validDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}
	return nil
}

