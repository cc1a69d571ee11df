package recorder

// NoopRecorder discards everything. Used when no database is configured or
// it cannot be opened.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (NoopRecorder) RecordActuation(Actuation) error { return nil }
func (NoopRecorder) RecordNotification(Notification) error { return nil }
func (NoopRecorder) RecordDailyEnergy(string, float64, float64) error { return nil }
func (NoopRecorder) Close() error { return nil }
