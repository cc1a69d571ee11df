package gpio

import "sync"

// FakeLine is a test double that records every Set.
type FakeLine struct {
	mu sync.Mutex

	// On is the current driven state.
	On bool

	// Writes records each value passed to Set, in order.
	Writes []bool

	// SetError, if set, will be returned by Set.
	SetError error

	// ReadError, if set, will be returned by Value.
	ReadError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeLine creates a FakeLine that starts off.
func NewFakeLine() *FakeLine {
	return &FakeLine{}
}

// Set records the value and changes state.
func (f *FakeLine) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.On = on
	f.Writes = append(f.Writes, on)
	return nil
}

// Value returns the current state.
func (f *FakeLine) Value() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	return f.On, nil
}

// Close switches off and marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.On = false
	f.Closed = true
	f.mu.Unlock()
	return nil
}
