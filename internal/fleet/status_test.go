package fleet

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestResolveStatus_OfflineWinsOverEverything(t *testing.T) {
	s := TelemetryState{
		Connection: ConnectionOffline,
		Movement:   MovementMoving,
		Speed:      80,
		Ignition:   boolPtr(true),
	}
	if got := ResolveStatus(s); got != StatusOffline {
		t.Fatalf("expected offline, got %s", got)
	}
}

func TestResolveStatus_MovementStatusPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		movement MovementStatus
		ignition bool
		want     DerivedStatus
	}{
		{"moving", MovementMoving, false, StatusMoving},
		{"moving ignores ignition", MovementMoving, true, StatusMoving},
		{"parked ignition off", MovementParked, false, StatusParked},
		{"parked ignition on", MovementParked, true, StatusIdleParked},
		{"stopped ignition off", MovementStopped, false, StatusStopped},
		{"stopped ignition on", MovementStopped, true, StatusIdleStop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := TelemetryState{
				Connection: ConnectionActive,
				Movement:   tc.movement,
				Ignition:   boolPtr(tc.ignition),
				// speed deliberately contradicts the reported movement
				// status; the reported status must still win
				Speed: 50,
			}
			if got := ResolveStatus(s); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveStatus_SpeedFallback(t *testing.T) {
	// no movement status reported: derive from speed then ignition
	cases := []struct {
		name     string
		speed    float64
		ignition bool
		want     DerivedStatus
	}{
		{"fast", 5.1, false, StatusMoving},
		{"at threshold is not moving", 5.0, false, StatusStopped},
		{"slow ignition on", 2, true, StatusIdleStop},
		{"slow ignition off", 0, false, StatusStopped},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := TelemetryState{
				Connection: ConnectionActive,
				Speed:      tc.speed,
				Ignition:   boolPtr(tc.ignition),
			}
			if got := ResolveStatus(s); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestResolveStatus_IgnitionInputFallback(t *testing.T) {
	// no explicit ignition flag: first input channel stands in for it
	s := TelemetryState{
		Connection: ConnectionIdle,
		Movement:   MovementParked,
		Inputs:     []bool{true, false},
	}
	if got := ResolveStatus(s); got != StatusIdleParked {
		t.Fatalf("expected idle-parked via input fallback, got %s", got)
	}

	s.Inputs = nil
	if got := ResolveStatus(s); got != StatusParked {
		t.Fatalf("expected parked with no ignition signal, got %s", got)
	}
}

func TestResolveStatus_Deterministic(t *testing.T) {
	s := TelemetryState{
		Connection: ConnectionActive,
		Movement:   MovementStopped,
		Ignition:   boolPtr(true),
		Speed:      3,
	}
	first := ResolveStatus(s)
	for i := 0; i < 100; i++ {
		if got := ResolveStatus(s); got != first {
			t.Fatalf("non-deterministic result on iteration %d: %s vs %s", i, got, first)
		}
	}
}
