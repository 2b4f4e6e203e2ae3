package gpio

import "testing"

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Fatalf("NewDriver(true) returned %T, want *MockDriver", d)
	}
	if got := Name(d); got != "mock" {
		t.Errorf("Name = %q, want mock", got)
	}
}

func TestMockDriver_RemembersLevels(t *testing.T) {
	m := &MockDriver{}
	if err := m.WritePin(5, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if got := m.PinLevel(5); got != High {
		t.Errorf("PinLevel(5) = %v, want High", got)
	}
	if got := m.PinLevel(6); got != Low {
		t.Errorf("unwritten pin = %v, want Low", got)
	}
}

func TestMockDriver_RemembersDuty(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPWM(12, 1000, 1023); err != nil {
		t.Fatalf("SetupPWM: %v", err)
	}
	if err := m.WritePWM(12, 512); err != nil {
		t.Fatalf("WritePWM: %v", err)
	}
	if d := m.Duty(12); d != 512 {
		t.Errorf("Duty(12) = %d, want 512", d)
	}
}

func TestPinModeString(t *testing.T) {
	cases := map[PinMode]string{Input: "input", Output: "output", PWM: "pwm", PinMode(9): "mode(9)"}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(mode), got, want)
		}
	}
}
