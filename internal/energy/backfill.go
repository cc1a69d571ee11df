package energy

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/tent-controller/internal/device"
)

// BackfillResult summarises one backfill pass.
type BackfillResult struct {
	Months   int
	Fetched  int
	Inserted int
	Failed   int
}

// RunBackfill fetches daily history for the last months calendar months
// (current month first) and inserts the days the ledger does not have yet.
// A month that fails to fetch is logged and skipped; the error returned is only
// the first failure, for the caller's log.
func RunBackfill(ctx context.Context, l *Ledger, meter device.HistoryMeter, now time.Time, months int, price float64) (res BackfillResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backfill panic: %v", r)
		}
	}()

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	for i := 0; i < months; i++ {
		if ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return res, err
		}

		month := first.AddDate(0, -i, 0)
		res.Months++

		days, ferr := meter.DailyEnergy(ctx, month)
		if ferr != nil {
			res.Failed++
			l.logger.Warn("backfill fetch failed", zap.String("month", month.Format("2006-01")), zap.Error(ferr))
			if err == nil {
				err = fmt.Errorf("fetch %s: %w", month.Format("2006-01"), ferr)
			}
			continue
		}

		for _, d := range days {
			res.Fetched++
			inserted, ierr := l.Backfill(d.Date.Format(DateLayout), d.WattHours/1000, price)
			if ierr != nil {
				l.logger.Warn("backfill insert failed", zap.Time("date", d.Date), zap.Error(ierr))
			}
			if inserted {
				res.Inserted++
			}
		}
	}
	return res, err
}
