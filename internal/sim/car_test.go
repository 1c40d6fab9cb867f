package sim

import (
	"math"
	"testing"

	"github.com/1ureka/simlink/internal/protocol"
)

const dt = 1.0 / 50

func run(c *Car, seconds float64) {
	for i, n := 0, int(seconds/dt); i < n; i++ {
		c.Step(dt)
	}
}

func TestThrottleAccelerates(t *testing.T) {
	c := NewCar()
	c.ApplyInput(protocol.Input{Throttle: 1})
	run(c, 2)

	st := c.Snapshot()
	if st.SpeedKmh < 20 {
		t.Errorf("speed after 2s full throttle = %.1f km/h", st.SpeedKmh)
	}
	if st.RPM <= idleRPM || st.RPM > maxRPM {
		t.Errorf("rpm = %.0f", st.RPM)
	}
	if st.Position.Z <= 0 {
		t.Errorf("car did not move forward: %+v", st.Position)
	}
}

func TestBrakeStopsWithoutReversing(t *testing.T) {
	c := NewCar()
	c.ApplyInput(protocol.Input{Throttle: 1})
	run(c, 2)
	c.ApplyInput(protocol.Input{Brake: 1})
	run(c, 5)

	if c.speed != 0 {
		t.Errorf("speed after braking = %v, want 0", c.speed)
	}
}

func TestReverseGear(t *testing.T) {
	c := NewCar()
	c.SetGear(protocol.GearReverse)
	c.ApplyInput(protocol.Input{Throttle: 0.5})
	run(c, 1)

	if c.speed >= 0 {
		t.Errorf("speed in reverse = %v, want negative", c.speed)
	}
	if c.Snapshot().SpeedKmh <= 0 {
		t.Error("reported speed is not a magnitude")
	}
}

func TestNeutralDoesNotDrive(t *testing.T) {
	c := NewCar()
	c.SetGear(protocol.GearNeutral)
	c.ApplyInput(protocol.Input{Throttle: 1})
	run(c, 1)

	if c.speed != 0 || c.rpm != idleRPM {
		t.Errorf("neutral speed=%v rpm=%v", c.speed, c.rpm)
	}
}

func TestSetGearClamps(t *testing.T) {
	testCases := []struct {
		in, want int8
	}{
		{-5, -1}, {-1, -1}, {0, 0}, {6, 6}, {9, 6},
	}
	for _, tc := range testCases {
		c := NewCar()
		c.SetGear(tc.in)
		if c.Snapshot().Gear != tc.want {
			t.Errorf("SetGear(%d) -> %d, want %d", tc.in, c.Snapshot().Gear, tc.want)
		}
	}
}

func TestSteeringTurnsCar(t *testing.T) {
	c := NewCar()
	c.ApplyInput(protocol.Input{Throttle: 0.5, Steer: 1})
	run(c, 2)

	st := c.Snapshot()
	if st.SteerAngle <= 0 || st.SteerAngle > maxSteerAngle {
		t.Errorf("steer angle = %v", st.SteerAngle)
	}
	if st.Position.X <= 0 || st.Rotation.Y <= 0 {
		t.Errorf("car did not turn right: pos=%+v rot=%+v", st.Position, st.Rotation)
	}
	norm := st.Rotation.Y*st.Rotation.Y + st.Rotation.W*st.Rotation.W
	if math.Abs(float64(norm)-1) > 1e-5 {
		t.Errorf("rotation not unit length: %v", norm)
	}
}

func TestControlsReflectedInSnapshot(t *testing.T) {
	c := NewCar()
	c.SetHeadlights(true)
	c.SetIndicator(protocol.IndicatorHazard)
	c.SetCameraFocus(protocol.CameraDashboard)

	st := c.Snapshot()
	if st.Lights&protocol.LightHeadlight == 0 || st.Indicator != protocol.IndicatorHazard || st.CameraPart != protocol.CameraDashboard {
		t.Errorf("snapshot = %+v", st)
	}

	c.SetHeadlights(false)
	if c.Snapshot().Lights != 0 {
		t.Error("headlights still on")
	}
}

func TestResetCar(t *testing.T) {
	c := NewCar()
	c.ApplyInput(protocol.Input{Throttle: 1, Steer: 0.3})
	run(c, 1)
	c.ResetCar()

	st := c.Snapshot()
	if st.SpeedKmh != 0 || st.Position != (protocol.Vec3{}) || st.Rotation != (protocol.Quat{W: 1}) {
		t.Errorf("after reset: %+v", st)
	}
	if st.Gear != 1 {
		t.Errorf("reset changed gear to %d", st.Gear)
	}
}
