package gpio

import (
	"context"
	"errors"
	"testing"

	"github.com/sweeney/tent-controller/internal/device"
)

var _ device.ThermostatDevice = (*Relay)(nil)

func TestRelayOnOff(t *testing.T) {
	line := NewFakeLine()
	r := NewRelay(line)
	ctx := context.Background()

	if err := r.TurnOn(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, err := r.HeaterStatus(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.On {
		t.Error("expected heater on")
	}

	if err := r.TurnOff(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st, _ = r.HeaterStatus(ctx)
	if st.On {
		t.Error("expected heater off")
	}

	if len(line.Writes) != 2 || line.Writes[0] != true || line.Writes[1] != false {
		t.Errorf("writes: got %v, want [true false]", line.Writes)
	}
}

func TestRelaySetError(t *testing.T) {
	line := NewFakeLine()
	line.SetError = errors.New("simulated error")
	r := NewRelay(line)

	err := r.TurnOn(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, line.SetError) {
		t.Errorf("error not wrapped: %v", err)
	}
	if line.On {
		t.Error("state changed despite error")
	}
}

func TestRelayReadError(t *testing.T) {
	line := NewFakeLine()
	line.ReadError = errors.New("simulated error")

	if _, err := NewRelay(line).HeaterStatus(context.Background()); err == nil {
		t.Error("expected error to be returned")
	}
}

func TestRelayCloseSwitchesOff(t *testing.T) {
	line := NewFakeLine()
	r := NewRelay(line)
	_ = r.TurnOn(context.Background())

	if err := r.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !line.Closed {
		t.Error("should be closed after Close()")
	}
	if line.On {
		t.Error("should be off after Close()")
	}
}
