package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sweeney/tent-controller/internal/device"
)

const dateLayout = "2006-01-02"

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the dashboard read while the controller writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now, logger: logger.Named("recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS actuations (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			device    TEXT NOT NULL,
			action    TEXT NOT NULL,
			value     INTEGER,
			reason    TEXT,
			error     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actuations_ts ON actuations(timestamp)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			tag       TEXT NOT NULL,
			title     TEXT,
			body      TEXT,
			delivered INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_ts ON notifications(timestamp)`,

		`CREATE TABLE IF NOT EXISTS energy_days (
			date    TEXT PRIMARY KEY,
			kwh     REAL NOT NULL,
			cost    REAL NOT NULL,
			updated INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordActuation(a Actuation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO actuations
		(timestamp, device, action, value, reason, error)
		VALUES (?,?,?,?,?,?)`,
		a.Time.Unix(), a.Device, a.Action, a.Value, a.Reason, a.Err,
	)
	return err
}

// RecordNotification stores n, assigning an ID if it has none.
func (r *SQLiteRecorder) RecordNotification(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	_, err := r.db.Exec(`INSERT INTO notifications
		(id, timestamp, tag, title, body, delivered)
		VALUES (?,?,?,?,?,?)`,
		n.ID, n.Time.Unix(), n.Tag, n.Title, n.Body, n.Delivered,
	)
	return err
}

// RecordDailyEnergy upserts one day's total. The latest value wins.
func (r *SQLiteRecorder) RecordDailyEnergy(date string, kwh, cost float64) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("invalid date %q: %w", date, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO energy_days (date, kwh, cost, updated)
		VALUES (?,?,?,?)
		ON CONFLICT(date) DO UPDATE SET kwh = excluded.kwh, cost = excluded.cost, updated = excluded.updated`,
		date, kwh, cost, r.now().Unix(),
	)
	return err
}

// Actuations returns actuations at or after since, oldest first.
func (r *SQLiteRecorder) Actuations(since time.Time) ([]Actuation, error) {
	rows, err := r.db.Query(`SELECT timestamp, device, action, value, reason, error
		FROM actuations WHERE timestamp >= ? ORDER BY id`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Actuation
	for rows.Next() {
		var (
			a  Actuation
			ts int64
		)
		if err := rows.Scan(&ts, &a.Device, &a.Action, &a.Value, &a.Reason, &a.Err); err != nil {
			return nil, err
		}
		a.Time = time.Unix(ts, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Notifications returns the most recent limit notifications, newest first.
func (r *SQLiteRecorder) Notifications(limit int) ([]Notification, error) {
	rows, err := r.db.Query(`SELECT id, timestamp, tag, title, body, delivered
		FROM notifications ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var (
			n  Notification
			ts int64
		)
		if err := rows.Scan(&n.ID, &ts, &n.Tag, &n.Title, &n.Body, &n.Delivered); err != nil {
			return nil, err
		}
		n.Time = time.Unix(ts, 0)
		out = append(out, n)
	}
	return out, rows.Err()
}

// DailyEnergy returns the recorded days in month. It lets the energy ledger
// be rebuilt from the audit database if its JSON file is lost.
func (r *SQLiteRecorder) DailyEnergy(ctx context.Context, month time.Time) ([]device.DayEnergy, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT date, kwh FROM energy_days
		WHERE date LIKE ? ORDER BY date`, month.Format("2006-01")+"-%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []device.DayEnergy
	for rows.Next() {
		var (
			date string
			kwh  float64
		)
		if err := rows.Scan(&date, &kwh); err != nil {
			return nil, err
		}
		d, err := time.ParseInLocation(dateLayout, date, month.Location())
		if err != nil {
			continue
		}
		out = append(out, device.DayEnergy{Date: d, WattHours: kwh * 1000})
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
