// Package sim is a small kinematic car model used as the host-side
// simulation. It is stepped at a fixed rate by its owner and is not safe for
// concurrent use.
package sim

import (
	"math"

	"github.com/1ureka/simlink/internal/protocol"
)

const (
	maxSteerAngle = 30.0 // degrees
	steerSpeed    = 5.0
	finalDrive    = 3.5
	maxRPM        = 6000.0
	idleRPM       = 800.0
	wheelRadius   = 0.33 // m
	wheelBase     = 2.6  // m

	driveAccel     = 6.0 // m/s² at full throttle in first gear
	brakeDecel     = 9.0
	handbrakeDecel = 5.0
	rollingDecel   = 0.3
	dragCoeff      = 0.004
)

// gearRatios is indexed by gear+1: R, N, 1..6.
var gearRatios = [...]float64{-3.5, 0, 3.5, 2.5, 1.8, 1.3, 1.0, 0.8}

// Car holds the full vehicle state. The zero value is not ready; use NewCar.
type Car struct {
	input protocol.Input

	x, z  float64 // ground plane position
	yaw   float64 // radians, 0 faces +Z
	speed float64 // m/s along heading, negative when reversing
	steer float64 // current wheel angle in degrees
	rpm   float64
	slip  [4]float64

	gear      int8
	lights    protocol.LightFlags
	indicator protocol.IndicatorMode
	camera    protocol.CameraPart
}

// NewCar returns a car at the origin in first gear.
func NewCar() *Car {
	return &Car{gear: 1, rpm: idleRPM}
}

func (c *Car) ApplyInput(in protocol.Input) { c.input = in }

// SetGear selects a gear, clamped to the valid range.
func (c *Car) SetGear(g int8) {
	c.gear = min(max(g, protocol.GearReverse), protocol.GearMax)
}

func (c *Car) SetHeadlights(on bool) {
	if on {
		c.lights |= protocol.LightHeadlight
	} else {
		c.lights &^= protocol.LightHeadlight
	}
}

func (c *Car) SetIndicator(m protocol.IndicatorMode) { c.indicator = m }
func (c *Car) SetCameraFocus(p protocol.CameraPart)  { c.camera = p }

// ResetCar puts the car back at the origin, at rest. Gear, lights and the
// last input are kept.
func (c *Car) ResetCar() {
	c.x, c.z, c.yaw = 0, 0, 0
	c.speed, c.steer = 0, 0
	c.rpm = idleRPM
	c.slip = [4]float64{}
}

// Step advances the model by dt seconds using the last applied input.
func (c *Car) Step(dt float64) {
	if dt <= 0 {
		return
	}
	in := c.input

	// Steering with rate limit.
	target := clamp(float64(in.Steer), -1, 1) * maxSteerAngle
	c.steer += (target - c.steer) * math.Min(1, dt*steerSpeed)

	ratio := gearRatios[int(c.gear)+1] * finalDrive
	accel := 0.0
	if c.gear != 0 {
		accel = float64(in.Throttle) * driveAccel * ratio / (gearRatios[2] * finalDrive)
		if c.gear < 0 {
			accel = -math.Abs(accel)
		}
	}

	// Resistive forces oppose the direction of travel and never reverse it.
	resist := float64(in.Brake)*brakeDecel + rollingDecel + dragCoeff*c.speed*c.speed
	if in.Handbrake == 1 {
		resist += handbrakeDecel
	}
	v := c.speed + accel*dt
	if v > 0 {
		v = math.Max(0, v-resist*dt)
	} else if v < 0 {
		v = math.Min(0, v+resist*dt)
	}

	// Engine speed follows the rear axle; the limiter caps road speed.
	if c.gear != 0 {
		wheelRPM := math.Abs(v) / (2 * math.Pi * wheelRadius) * 60
		c.rpm = wheelRPM * math.Abs(ratio)
		if c.rpm > maxRPM {
			v *= maxRPM / c.rpm
			c.rpm = maxRPM
		}
		c.rpm = math.Max(c.rpm, idleRPM)
	} else {
		c.rpm = idleRPM
	}
	c.speed = v

	steerRad := c.steer * math.Pi / 180
	c.yaw += c.speed * math.Tan(steerRad) / wheelBase * dt
	c.x += math.Sin(c.yaw) * c.speed * dt
	c.z += math.Cos(c.yaw) * c.speed * dt

	rearSlip := float64(in.Throttle) * 0.1
	if in.Handbrake == 1 && math.Abs(c.speed) > 1 {
		rearSlip = 0.8
	}
	frontSlip := float64(in.Brake) * 0.05
	c.slip = [4]float64{frontSlip, frontSlip, rearSlip, rearSlip}
}

// Snapshot returns the telemetry view of the car. LastProcessedInputSeq is
// left for the caller to stamp.
func (c *Car) Snapshot() protocol.State {
	half := c.yaw / 2
	return protocol.State{
		Position:   protocol.Vec3{X: float32(c.x), Z: float32(c.z)},
		Rotation:   protocol.Quat{Y: float32(math.Sin(half)), W: float32(math.Cos(half))},
		SpeedKmh:   float32(math.Abs(c.speed) * 3.6),
		RPM:        float32(c.rpm),
		Gear:       c.gear,
		SteerAngle: float32(c.steer),
		WheelSlip: [4]float32{
			float32(c.slip[0]), float32(c.slip[1]), float32(c.slip[2]), float32(c.slip[3]),
		},
		Lights:     c.lights,
		Indicator:  c.indicator,
		CameraPart: c.camera,
	}
}

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
